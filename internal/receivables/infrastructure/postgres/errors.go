package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	receivables "bizledger/internal/receivables/domain"
)

// translateError maps driver failures onto the receivables error taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", receivables.ErrStoreUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", receivables.ErrConcurrentUpdate, err)
		case "23505":
			return fmt.Errorf("%w: %v", receivables.ErrConcurrentUpdate, err)
		}
	}
	return err
}
