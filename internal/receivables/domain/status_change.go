package receivables

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actors recorded on status changes written by the engine itself.
const (
	ActorSweep      = "system:sweep"
	ActorSettlement = "system:settlement"
)

// StatusChange is an append-only audit record of a status transition.
type StatusChange struct {
	ID              int64           `json:"id"`
	EntryID         string          `json:"entry_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CompanyID       string          `json:"company_id"`
	OldStatus       Status          `json:"old_status"`
	NewStatus       Status          `json:"new_status"`
	Reason          string          `json:"reason"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	Actor           string          `json:"actor"`
	CreatedAt       time.Time       `json:"created_at"`
}
