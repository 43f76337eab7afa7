package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/batch"
	"github.com/warelog/warelog/internal/ledger"
	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

// TxRepository is the per-transaction persistence surface of the engine. Every
// method runs on the transaction it was created for.
type TxRepository interface {
	ProductRef(ctx context.Context, id int64) (ProductRef, error)
	LocationRef(ctx context.Context, id int64) (LocationRef, error)

	Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, productID, locationID int64, batchID *int64, delta decimal.Decimal) (ledger.Balance, error)
	PickOldest(ctx context.Context, productID, locationID int64, qty decimal.Decimal) (ledger.Balance, error)
	DebitRow(ctx context.Context, bal ledger.Balance, qty decimal.Decimal) (ledger.Balance, error)
	LocationsHolding(ctx context.Context, productID int64) (map[int64]decimal.Decimal, error)
	ReplaceLocationQuantity(ctx context.Context, productID, locationID int64, counted decimal.Decimal) ([]ledger.RemovedLot, error)

	FindOrCreateBatch(ctx context.Context, lot batch.ReceiptLot) (int64, error)
	DecrementBatch(ctx context.Context, batchID int64, qty decimal.Decimal) error
	GetBatch(ctx context.Context, batchID int64) (batch.Batch, error)

	InsertDocument(ctx context.Context, doc Document) (int64, error)
	InsertTransaction(ctx context.Context, tr Transaction) (int64, error)
}

// RepositoryPort opens engine transactions and serves the pool-level reads
// that do not need one.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error)
	GetDocument(ctx context.Context, number string) (Document, []Transaction, error)
	ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error)
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	Operation OperationType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Repository is the PostgreSQL implementation of RepositoryPort.
type Repository struct {
	pool        *pgxpool.Pool
	balances    *ledger.Store
	batches     *batch.Store
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds how long a posting
// waits on a row lock before the attempt is abandoned and retried.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{
		pool:        pool,
		balances:    ledger.NewStore(),
		batches:     batch.NewStore(),
		lockTimeout: lockTimeout,
	}
}

// WithTx runs fn inside one repeatable-read transaction with the configured
// lock timeout applied.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			// SET LOCAL does not accept bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ops: set lock_timeout: %w", err)
			}
		}
		return fn(ctx, &txRepository{q: tx, balances: r.balances, batches: r.batches})
	})
}

// Available reads the summed balance outside any transaction.
func (r *Repository) Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	return r.balances.Available(ctx, r.pool, productID, locationID, batchID)
}

const documentColumns = `id, document_number, operation_type, document_date, counterparty, comments, status, created_by, completed_at, total_amount, created_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Number, &d.Operation, &d.Date, &d.Counterparty, &d.Comments, &d.Status, &d.CreatedBy, &d.CompletedAt, &d.TotalAmount, &d.CreatedAt)
	return d, err
}

// GetDocument loads a document and its transactions by number.
func (r *Repository) GetDocument(ctx context.Context, number string) (Document, []Transaction, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_number=$1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, nil, shared.ErrNotFound
	}
	if err != nil {
		return Document{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, document_id, product_id, batch_id, location_from, location_to, quantity, price, created_at
FROM transactions WHERE document_id=$1 ORDER BY id`, doc.ID)
	if err != nil {
		return Document{}, nil, err
	}
	defer rows.Close()

	var trs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.ProductID, &t.BatchID, &t.LocationFrom, &t.LocationTo, &t.Quantity, &t.Price, &t.CreatedAt); err != nil {
			return Document{}, nil, err
		}
		trs = append(trs, t)
	}
	return doc, trs, rows.Err()
}

// ListDocuments pages documents newest-first.
func (r *Repository) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []any{}
	if f.Operation != "" {
		args = append(args, f.Operation)
		query += fmt.Sprintf(" AND operation_type=$%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND document_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND document_date < $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type txRepository struct {
	q        db.Querier
	balances *ledger.Store
	batches  *batch.Store
}

func (t *txRepository) ProductRef(ctx context.Context, id int64) (ProductRef, error) {
	var p ProductRef
	err := t.q.QueryRow(ctx, `SELECT id, article, name, unit, is_active, is_deleted FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Article, &p.Name, &p.Unit, &p.Active, &p.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductRef{}, shared.ErrNotFound
	}
	return p, err
}

func (t *txRepository) LocationRef(ctx context.Context, id int64) (LocationRef, error) {
	var l LocationRef
	err := t.q.QueryRow(ctx, `SELECT id, code, zone, is_active FROM locations WHERE id=$1`, id).
		Scan(&l.ID, &l.Code, &l.Zone, &l.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return LocationRef{}, shared.ErrNotFound
	}
	return l, err
}

func (t *txRepository) Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	return t.balances.Available(ctx, t.q, productID, locationID, batchID)
}

func (t *txRepository) ApplyDelta(ctx context.Context, productID, locationID int64, batchID *int64, delta decimal.Decimal) (ledger.Balance, error) {
	return t.balances.ApplyDelta(ctx, t.q, productID, locationID, batchID, delta)
}

func (t *txRepository) PickOldest(ctx context.Context, productID, locationID int64, qty decimal.Decimal) (ledger.Balance, error) {
	return t.balances.PickOldest(ctx, t.q, productID, locationID, qty)
}

func (t *txRepository) DebitRow(ctx context.Context, bal ledger.Balance, qty decimal.Decimal) (ledger.Balance, error) {
	return t.balances.DebitRow(ctx, t.q, bal, qty)
}

func (t *txRepository) LocationsHolding(ctx context.Context, productID int64) (map[int64]decimal.Decimal, error) {
	return t.balances.LocationsHolding(ctx, t.q, productID)
}

func (t *txRepository) ReplaceLocationQuantity(ctx context.Context, productID, locationID int64, counted decimal.Decimal) ([]ledger.RemovedLot, error) {
	return t.balances.ReplaceLocationQuantity(ctx, t.q, productID, locationID, counted)
}

func (t *txRepository) FindOrCreateBatch(ctx context.Context, lot batch.ReceiptLot) (int64, error) {
	return t.batches.FindOrCreate(ctx, t.q, lot)
}

func (t *txRepository) DecrementBatch(ctx context.Context, batchID int64, qty decimal.Decimal) error {
	return t.batches.Decrement(ctx, t.q, batchID, qty)
}

func (t *txRepository) GetBatch(ctx context.Context, batchID int64) (batch.Batch, error) {
	return t.batches.Get(ctx, t.q, batchID)
}

func (t *txRepository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO documents (document_number, operation_type, document_date, counterparty, comments, status, created_by, completed_at, total_amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
RETURNING id`, doc.Number, doc.Operation, doc.Date, doc.Counterparty, doc.Comments, doc.Status, doc.CreatedBy, doc.CompletedAt, doc.TotalAmount).Scan(&id)
	return id, err
}

func (t *txRepository) InsertTransaction(ctx context.Context, tr Transaction) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO transactions (document_id, product_id, batch_id, location_from, location_to, quantity, price, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
RETURNING id`, tr.DocumentID, tr.ProductID, tr.BatchID, tr.LocationFrom, tr.LocationTo, tr.Quantity, tr.Price).Scan(&id)
	return id, err
}
