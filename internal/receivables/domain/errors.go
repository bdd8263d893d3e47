package receivables

import "errors"

var (
	// ErrNotFound is returned when an entry, customer or settings record does not exist
	// within the caller's company scope.
	ErrNotFound = errors.New("receivables: not found")
	// ErrAlreadySettled is returned when settling an entry whose paid amount covers its amount.
	ErrAlreadySettled = errors.New("receivables: entry already settled")
	// ErrInvalidAmount is returned for non-positive settlement amounts.
	ErrInvalidAmount = errors.New("receivables: invalid amount")
	// ErrOverpayment is returned when the overpayment policy rejects excess funds.
	ErrOverpayment = errors.New("receivables: payment exceeds outstanding amount")
	// ErrStoreUnavailable is returned when the record store cannot be reached.
	ErrStoreUnavailable = errors.New("receivables: store unavailable")
	// ErrConcurrentUpdate is returned when a version check fails on write.
	ErrConcurrentUpdate = errors.New("receivables: concurrent update")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("receivables: invalid status transition")
	// ErrEmptyCompanyID is returned when a company scope is required.
	ErrEmptyCompanyID = errors.New("receivables: empty company id")
	// ErrNilEntry is returned when a nil entry is provided.
	ErrNilEntry = errors.New("receivables: nil entry")
)
