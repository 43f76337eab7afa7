package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates the PostgreSQL catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repo{db: pool}
}

const productColumns = `id, article, name, description, category_id, unit, barcode, weight, min_stock, max_stock, price, is_active, is_deleted, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Article, &p.Name, &p.Description, &p.CategoryID, &p.Unit, &p.Barcode, &p.Weight, &p.MinStock, &p.MaxStock, &p.Price, &p.Active, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repo) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}

	if !f.IncludeDeleted {
		query += ` AND is_deleted = FALSE`
		countQuery += ` AND is_deleted = FALSE`
	}
	if f.OnlyActive {
		query += ` AND is_active = TRUE`
		countQuery += ` AND is_active = TRUE`
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		cond := fmt.Sprintf(" AND (article ILIKE $%d OR name ILIKE $%d)", len(args), len(args))
		query += cond
		countQuery += cond
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		cond := fmt.Sprintf(" AND category_id = $%d", len(args))
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY name, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO products (article, name, description, category_id, unit, barcode, weight, min_stock, max_stock, price, is_active, is_deleted, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,FALSE,$12,$12) RETURNING id`,
		p.Article, p.Name, p.Description, p.CategoryID, p.Unit, p.Barcode, p.Weight, p.MinStock, p.MaxStock, p.Price, p.Active, now).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "products_article_key") {
			return Product{}, shared.Invalidf("article %q already exists", p.Article)
		}
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *repo) UpdateProduct(ctx context.Context, id int64, p Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET article=$1, name=$2, description=$3, category_id=$4, unit=$5, barcode=$6, weight=$7, min_stock=$8, max_stock=$9, price=$10, is_active=$11, updated_at=$12
WHERE id=$13 AND is_deleted = FALSE`,
		p.Article, p.Name, p.Description, p.CategoryID, p.Unit, p.Barcode, p.Weight, p.MinStock, p.MaxStock, p.Price, p.Active, time.Now(), id)
	if err != nil {
		if db.IsUniqueViolation(err, "products_article_key") {
			return shared.Invalidf("article %q already exists", p.Article)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) SoftDeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_deleted = TRUE, is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const locationColumns = `id, code, name, zone, description, is_active, created_at`

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Zone, &l.Description, &l.Active, &l.CreatedAt)
	return l, err
}

func (r *repo) ListLocations(ctx context.Context, f ListFilters) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE 1=1`
	args := []any{}
	if f.Zone != "" {
		args = append(args, f.Zone)
		query += fmt.Sprintf(" AND zone = $%d", len(args))
	}
	if f.OnlyActive {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.ErrNotFound
	}
	return l, err
}

func (r *repo) CreateLocation(ctx context.Context, l Location) (Location, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO locations (code, name, zone, description, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id, created_at`, l.Code, l.Name, l.Zone, l.Description, l.Active).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "locations_code_key") {
			return Location{}, shared.Invalidf("location code %q already exists", l.Code)
		}
		return Location{}, err
	}
	return l, nil
}

func (r *repo) UpdateLocation(ctx context.Context, id int64, l Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET code=$1, name=$2, zone=$3, description=$4, is_active=$5 WHERE id=$6`,
		l.Code, l.Name, l.Zone, l.Description, l.Active, id)
	if err != nil {
		if db.IsUniqueViolation(err, "locations_code_key") {
			return shared.Invalidf("location code %q already exists", l.Code)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteLocation(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) LocationHoldsStock(ctx context.Context, id int64) (bool, error) {
	var holds bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_balances WHERE location_id = $1)`, id).Scan(&holds)
	return holds, err
}

const categoryColumns = `id, name, description, parent_id, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ParentID, &c.CreatedAt)
	return c, err
}

func (r *repo) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repo) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repo) CreateCategory(ctx context.Context, c Category) (Category, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO categories (name, description, parent_id, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id, created_at`, c.Name, c.Description, c.ParentID).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (r *repo) UpdateCategory(ctx context.Context, id int64, c Category) error {
	tag, err := r.db.Exec(ctx, `UPDATE categories SET name=$1, description=$2, parent_id=$3 WHERE id=$4`,
		c.Name, c.Description, c.ParentID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteCategory(ctx context.Context, id int64) error {
	// products.category_id is ON DELETE SET NULL; orphaned products stay valid.
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
