package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

// Store reads and mutates stock_balances. Mutating methods expect a Querier
// backed by the caller's transaction; they never commit on their own.
type Store struct{}

// NewStore constructs Store.
func NewStore() *Store {
	return &Store{}
}

// Available sums quantity for the product at the location, optionally
// restricted to one batch. Missing rows count as zero.
func (s *Store) Available(ctx context.Context, q db.Querier, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	var err error
	if batchID != nil {
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_balances
WHERE product_id=$1 AND location_id=$2 AND batch_id=$3`, productID, locationID, *batchID).Scan(&total)
	} else {
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_balances
WHERE product_id=$1 AND location_id=$2`, productID, locationID).Scan(&total)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ApplyDelta locks the unique matching row and adds delta to its quantity,
// creating the row for a positive delta when none exists and deleting it when
// the result lands on zero. A debit past zero fails with insufficient stock
// carrying the locked quantity.
func (s *Store) ApplyDelta(ctx context.Context, q db.Querier, productID, locationID int64, batchID *int64, delta decimal.Decimal) (Balance, error) {
	if delta.IsZero() {
		return Balance{}, shared.Invalidf("delta must be non-zero")
	}

	bal, found, err := s.lockRow(ctx, q, productID, locationID, batchID)
	if err != nil {
		return Balance{}, err
	}
	if !found {
		if delta.IsNegative() {
			return Balance{}, shared.Insufficient(decimal.Zero)
		}
		return s.insertRow(ctx, q, productID, locationID, batchID, delta)
	}

	newQty := bal.Quantity.Add(delta)
	switch {
	case newQty.IsNegative():
		return Balance{}, shared.Insufficient(bal.Quantity)
	case newQty.IsZero():
		if _, err := q.Exec(ctx, `DELETE FROM stock_balances WHERE id=$1`, bal.ID); err != nil {
			return Balance{}, err
		}
	default:
		if _, err := q.Exec(ctx, `UPDATE stock_balances SET quantity=$1, updated_at=NOW() WHERE id=$2`, newQty, bal.ID); err != nil {
			return Balance{}, err
		}
	}
	bal.Quantity = newQty
	return bal, nil
}

// DebitRow subtracts qty from an already-locked row, enforcing the same
// zero-row deletion policy as ApplyDelta.
func (s *Store) DebitRow(ctx context.Context, q db.Querier, bal Balance, qty decimal.Decimal) (Balance, error) {
	newQty := bal.Quantity.Sub(qty)
	if newQty.IsNegative() {
		return Balance{}, shared.Insufficient(bal.Quantity)
	}
	if newQty.IsZero() {
		if _, err := q.Exec(ctx, `DELETE FROM stock_balances WHERE id=$1`, bal.ID); err != nil {
			return Balance{}, err
		}
	} else {
		if _, err := q.Exec(ctx, `UPDATE stock_balances SET quantity=$1, updated_at=NOW() WHERE id=$2`, newQty, bal.ID); err != nil {
			return Balance{}, err
		}
	}
	bal.Quantity = newQty
	return bal, nil
}

// PickOldest locks the single row at the location able to cover qty in full,
// preferring batch-tracked rows over the untracked one and older rows over
// newer. Requests no single row can cover fail with insufficient stock
// carrying the location total. Multi-row consumption would slot in here
// without touching the engine.
func (s *Store) PickOldest(ctx context.Context, q db.Querier, productID, locationID int64, qty decimal.Decimal) (Balance, error) {
	var bal Balance
	err := q.QueryRow(ctx, `SELECT id, product_id, location_id, batch_id, quantity, reserved_quantity, created_at, updated_at
FROM stock_balances
WHERE product_id=$1 AND location_id=$2 AND quantity >= $3
ORDER BY batch_id IS NULL, created_at, id
LIMIT 1
FOR UPDATE`, productID, locationID, qty).
		Scan(&bal.ID, &bal.ProductID, &bal.LocationID, &bal.BatchID, &bal.Quantity, &bal.Reserved, &bal.CreatedAt, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			available, sumErr := s.Available(ctx, q, productID, locationID, nil)
			if sumErr != nil {
				return Balance{}, sumErr
			}
			return Balance{}, shared.Insufficient(available)
		}
		return Balance{}, err
	}
	return bal, nil
}

// LocationsHolding lists the locations currently holding the product with
// their summed quantities, locking the underlying rows.
func (s *Store) LocationsHolding(ctx context.Context, q db.Querier, productID int64) (map[int64]decimal.Decimal, error) {
	rows, err := q.Query(ctx, `SELECT location_id, quantity FROM stock_balances
WHERE product_id=$1
ORDER BY location_id, id
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var locationID int64
		var qty decimal.Decimal
		if err := rows.Scan(&locationID, &qty); err != nil {
			return nil, err
		}
		totals[locationID] = totals[locationID].Add(qty)
	}
	return totals, rows.Err()
}

// ReplaceLocationQuantity removes every row for the product at the location
// and, when counted is positive, inserts a single untracked row carrying the
// counted quantity. Reconciliation collapses batch granularity on purpose;
// removed batch-linked rows are reported so their batches can be synced.
func (s *Store) ReplaceLocationQuantity(ctx context.Context, q db.Querier, productID, locationID int64, counted decimal.Decimal) ([]RemovedLot, error) {
	if counted.IsNegative() {
		return nil, shared.Invalidf("counted quantity must not be negative")
	}

	rows, err := q.Query(ctx, `DELETE FROM stock_balances
WHERE product_id=$1 AND location_id=$2
RETURNING batch_id, quantity`, productID, locationID)
	if err != nil {
		return nil, err
	}
	var removed []RemovedLot
	for rows.Next() {
		var batchID *int64
		var qty decimal.Decimal
		if err := rows.Scan(&batchID, &qty); err != nil {
			rows.Close()
			return nil, err
		}
		if batchID != nil {
			removed = append(removed, RemovedLot{BatchID: *batchID, Quantity: qty})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if counted.IsPositive() {
		if _, err := s.insertRow(ctx, q, productID, locationID, nil, counted); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

func (s *Store) lockRow(ctx context.Context, q db.Querier, productID, locationID int64, batchID *int64) (Balance, bool, error) {
	const cols = `SELECT id, product_id, location_id, batch_id, quantity, reserved_quantity, created_at, updated_at FROM stock_balances`
	var row pgx.Row
	if batchID != nil {
		row = q.QueryRow(ctx, cols+` WHERE product_id=$1 AND location_id=$2 AND batch_id=$3 FOR UPDATE`, productID, locationID, *batchID)
	} else {
		row = q.QueryRow(ctx, cols+` WHERE product_id=$1 AND location_id=$2 AND batch_id IS NULL FOR UPDATE`, productID, locationID)
	}
	var bal Balance
	err := row.Scan(&bal.ID, &bal.ProductID, &bal.LocationID, &bal.BatchID, &bal.Quantity, &bal.Reserved, &bal.CreatedAt, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, false, nil
		}
		return Balance{}, false, err
	}
	return bal, true, nil
}

func (s *Store) insertRow(ctx context.Context, q db.Querier, productID, locationID int64, batchID *int64, qty decimal.Decimal) (Balance, error) {
	var bal Balance
	err := q.QueryRow(ctx, `INSERT INTO stock_balances (product_id, location_id, batch_id, quantity, reserved_quantity, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,NOW(),NOW())
RETURNING id, product_id, location_id, batch_id, quantity, reserved_quantity, created_at, updated_at`, productID, locationID, batchID, qty).
		Scan(&bal.ID, &bal.ProductID, &bal.LocationID, &bal.BatchID, &bal.Quantity, &bal.Reserved, &bal.CreatedAt, &bal.UpdatedAt)
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}
