package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const ledgerStatsQuery = `
SELECT status, COUNT(*), COALESCE(SUM(amount - paid_amount), 0)::float8
FROM ledger_entries
WHERE entry_type = 'sell' AND status IN ('unpaid', 'partially_paid', 'overdue')
GROUP BY status`

// ledgerCollector reports open sell entries per status straight from the ledger table.
type ledgerCollector struct {
	db          *sql.DB
	logger      *zap.Logger
	timeout     time.Duration
	entries     *prometheus.Desc
	outstanding *prometheus.Desc
}

func newLedgerCollector(db *sql.DB, logger *zap.Logger) *ledgerCollector {
	return &ledgerCollector{
		db:      db,
		logger:  logger,
		timeout: 3 * time.Second,
		entries: prometheus.NewDesc(metricPrefix+"open_entries",
			"Sell entries not yet paid or cancelled, by status", []string{"status"}, nil),
		outstanding: prometheus.NewDesc(metricPrefix+"outstanding_amount",
			"Unpaid principal of open sell entries, by status", []string{"status"}, nil),
	}
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.outstanding
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, ledgerStatsQuery)
	if err != nil {
		c.warn(err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status      string
			count       int64
			outstanding float64
		)
		if err := rows.Scan(&status, &count, &outstanding); err != nil {
			c.warn(err)
			return
		}
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(count), status)
		ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, outstanding, status)
	}
	if err := rows.Err(); err != nil {
		c.warn(err)
	}
}

func (c *ledgerCollector) warn(err error) {
	if c.logger != nil {
		c.logger.Warn("ledger metrics query failed", zap.Error(err))
	}
}
