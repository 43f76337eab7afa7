package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the report queries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates the reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// StockReport lists current positions joined with product thresholds and
// location codes. Rows for deleted products are excluded.
func (r *Repository) StockReport(ctx context.Context, locationID *int64) ([]StockRow, error) {
	query := `SELECT p.id, p.article, p.name, p.unit, l.id, l.code, SUM(sb.quantity), p.min_stock
FROM stock_balances sb
JOIN products p ON p.id = sb.product_id AND p.is_deleted = FALSE
JOIN locations l ON l.id = sb.location_id`
	args := []any{}
	if locationID != nil {
		args = append(args, *locationID)
		query += ` WHERE sb.location_id = $1`
	}
	query += `
GROUP BY p.id, p.article, p.name, p.unit, l.id, l.code, p.min_stock
ORDER BY p.article, l.code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.ProductID, &row.Article, &row.Name, &row.Unit, &row.LocationID, &row.LocationCode, &row.Quantity, &row.MinStock); err != nil {
			return nil, err
		}
		row.LowStock = row.MinStock.IsPositive() && row.Quantity.LessThan(row.MinStock)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Turnover sums received and shipped quantities per product inside the window.
func (r *Repository) Turnover(ctx context.Context, w TurnoverWindow) ([]TurnoverRow, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.article, p.name,
COALESCE(SUM(t.quantity) FILTER (WHERE d.operation_type = 'receipt'), 0),
COALESCE(SUM(-t.quantity) FILTER (WHERE d.operation_type = 'shipment'), 0)
FROM transactions t
JOIN documents d ON d.id = t.document_id
JOIN products p ON p.id = t.product_id
WHERE d.document_date >= $1 AND d.document_date < $2
GROUP BY p.id, p.article, p.name
ORDER BY p.article`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnoverRow
	for rows.Next() {
		var row TurnoverRow
		if err := rows.Scan(&row.ProductID, &row.Article, &row.Name, &row.Received, &row.Shipped); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountProducts counts live products.
func (r *Repository) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE is_deleted = FALSE`).Scan(&n)
	return n, err
}

// CountLocations counts active locations.
func (r *Repository) CountLocations(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE is_active = TRUE`).Scan(&n)
	return n, err
}

// StockValue sums quantity times product price over the ledger.
func (r *Repository) StockValue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(sb.quantity * p.price), 0)
FROM stock_balances sb
JOIN products p ON p.id = sb.product_id`).Scan(&total)
	return total, err
}

// CountDocumentsSince counts documents posted at or after the cutoff.
func (r *Repository) CountDocumentsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

// CountLowStock counts products whose total on hand sits under their minimum.
func (r *Repository) CountLowStock(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM (
SELECT p.id
FROM products p
LEFT JOIN stock_balances sb ON sb.product_id = p.id
WHERE p.is_deleted = FALSE AND p.min_stock > 0
GROUP BY p.id, p.min_stock
HAVING COALESCE(SUM(sb.quantity), 0) < p.min_stock
) low`).Scan(&n)
	return n, err
}

// CountExpiringBatches counts stocked batches expiring inside the window.
func (r *Repository) CountExpiringBatches(ctx context.Context, until time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM batches
WHERE current_quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= $1`, until).Scan(&n)
	return n, err
}
