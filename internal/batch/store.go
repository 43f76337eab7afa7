package batch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

// Store reads and mutates batches. Mutating methods run on the caller's
// transaction Querier and never commit on their own.
type Store struct{}

// NewStore constructs Store.
func NewStore() *Store {
	return &Store{}
}

// FindOrCreate resolves a (product, batch number) pair to a batch id. An
// existing batch has both its initial and current quantity incremented by the
// received quantity; otherwise a new batch is inserted with both set to it.
func (s *Store) FindOrCreate(ctx context.Context, q db.Querier, lot ReceiptLot) (int64, error) {
	if lot.Number == "" {
		return 0, shared.Invalidf("batch number required")
	}
	if !lot.Quantity.IsPositive() {
		return 0, shared.Invalidf("received quantity must be positive")
	}

	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM batches WHERE product_id=$1 AND batch_number=$2 FOR UPDATE`, lot.ProductID, lot.Number).Scan(&id)
	switch {
	case err == nil:
		_, err = q.Exec(ctx, `UPDATE batches
SET initial_quantity = initial_quantity + $1, current_quantity = current_quantity + $1
WHERE id=$2`, lot.Quantity, id)
		return id, err
	case errors.Is(err, pgx.ErrNoRows):
		err = q.QueryRow(ctx, `INSERT INTO batches (product_id, batch_number, initial_quantity, current_quantity, supplier, purchase_price, expiry_date, production_date, created_at)
VALUES ($1,$2,$3,$3,$4,$5,$6,CURRENT_DATE,NOW())
RETURNING id`, lot.ProductID, lot.Number, lot.Quantity, lot.Supplier, lot.PurchasePrice, lot.ExpiryDate).Scan(&id)
		return id, err
	default:
		return 0, err
	}
}

// Decrement reduces current_quantity, failing with insufficient stock when
// the batch would go negative.
func (s *Store) Decrement(ctx context.Context, q db.Querier, batchID int64, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return shared.Invalidf("decrement quantity must be positive")
	}
	tag, err := q.Exec(ctx, `UPDATE batches SET current_quantity = current_quantity - $1
WHERE id=$2 AND current_quantity >= $1`, qty, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current decimal.Decimal
		err := q.QueryRow(ctx, `SELECT current_quantity FROM batches WHERE id=$1`, batchID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		return shared.Insufficient(current)
	}
	return nil
}

// Get loads one batch.
func (s *Store) Get(ctx context.Context, q db.Querier, id int64) (Batch, error) {
	var b Batch
	err := q.QueryRow(ctx, `SELECT id, product_id, batch_number, initial_quantity, current_quantity, supplier, purchase_price, expiry_date, production_date, created_at
FROM batches WHERE id=$1`, id).
		Scan(&b.ID, &b.ProductID, &b.Number, &b.InitialQuantity, &b.CurrentQuantity, &b.Supplier, &b.PurchasePrice, &b.ExpiryDate, &b.ProductionDate, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, shared.ErrNotFound
	}
	return b, err
}

// ListAvailable returns the product's batches that still have stock, the set
// offered when picking a specific lot for shipment or movement.
func (s *Store) ListAvailable(ctx context.Context, q db.Querier, productID int64) ([]Availability, error) {
	rows, err := q.Query(ctx, `SELECT id, batch_number, current_quantity, expiry_date
FROM batches
WHERE product_id=$1 AND current_quantity > 0
ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Availability
	for rows.Next() {
		var a Availability
		if err := rows.Scan(&a.ID, &a.Number, &a.Available, &a.ExpiryDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Expiring lists batches with stock remaining whose expiry date falls within
// the window. Used by the background expiry scan.
func (s *Store) Expiring(ctx context.Context, q db.Querier, until time.Time) ([]Batch, error) {
	rows, err := q.Query(ctx, `SELECT id, product_id, batch_number, initial_quantity, current_quantity, supplier, purchase_price, expiry_date, production_date, created_at
FROM batches
WHERE current_quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= $1
ORDER BY expiry_date, id`, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.Number, &b.InitialQuantity, &b.CurrentQuantity, &b.Supplier, &b.PurchasePrice, &b.ExpiryDate, &b.ProductionDate, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
