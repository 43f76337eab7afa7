// Package ledger owns the stock_balances table, the authoritative
// quantity-on-hand per (product, location, batch). Every quantity change in
// the system goes through this store so the non-negativity invariant has a
// single enforcement point.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one ledger row. BatchID is nil for untracked lots. At most one
// row exists per (product, location, batch) triple; rows drained to zero are
// deleted rather than kept around.
type Balance struct {
	ID         int64
	ProductID  int64
	LocationID int64
	BatchID    *int64
	Quantity   decimal.Decimal
	Reserved   decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemovedLot reports a batch-linked row removed by a reconciliation, so the
// caller can keep batches.current_quantity in line with the ledger.
type RemovedLot struct {
	BatchID  int64
	Quantity decimal.Decimal
}
