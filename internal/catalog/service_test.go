package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warelog/warelog/internal/shared"
)

type memoryRepo struct {
	products   map[int64]Product
	locations  map[int64]Location
	categories map[int64]Category
	stocked    map[int64]bool
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   make(map[int64]Product),
		locations:  make(map[int64]Location),
		categories: make(map[int64]Category),
		stocked:    make(map[int64]bool),
	}
}

func (r *memoryRepo) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if p.Deleted && !f.IncludeDeleted {
			continue
		}
		if f.OnlyActive && !p.Active {
			continue
		}
		if f.Search != "" && !strings.Contains(p.Name, f.Search) && !strings.Contains(p.Article, f.Search) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	for _, existing := range r.products {
		if existing.Article == p.Article && !existing.Deleted {
			return Product{}, shared.Invalidf("article %q already exists", p.Article)
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, id int64, p Product) error {
	existing, ok := r.products[id]
	if !ok || existing.Deleted {
		return shared.ErrNotFound
	}
	p.ID = id
	r.products[id] = p
	return nil
}

func (r *memoryRepo) SoftDeleteProduct(ctx context.Context, id int64) error {
	p, ok := r.products[id]
	if !ok || p.Deleted {
		return shared.ErrNotFound
	}
	p.Deleted = true
	p.Active = false
	r.products[id] = p
	return nil
}

func (r *memoryRepo) ListLocations(ctx context.Context, f ListFilters) ([]Location, error) {
	var out []Location
	for _, l := range r.locations {
		if f.Zone != "" && l.Zone != f.Zone {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *memoryRepo) GetLocation(ctx context.Context, id int64) (Location, error) {
	l, ok := r.locations[id]
	if !ok {
		return Location{}, shared.ErrNotFound
	}
	return l, nil
}

func (r *memoryRepo) CreateLocation(ctx context.Context, l Location) (Location, error) {
	r.nextID++
	l.ID = r.nextID
	r.locations[l.ID] = l
	return l, nil
}

func (r *memoryRepo) UpdateLocation(ctx context.Context, id int64, l Location) error {
	if _, ok := r.locations[id]; !ok {
		return shared.ErrNotFound
	}
	l.ID = id
	r.locations[id] = l
	return nil
}

func (r *memoryRepo) DeleteLocation(ctx context.Context, id int64) error {
	if _, ok := r.locations[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.locations, id)
	return nil
}

func (r *memoryRepo) LocationHoldsStock(ctx context.Context, id int64) (bool, error) {
	return r.stocked[id], nil
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	for _, c := range r.categories {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, ok := r.categories[id]
	if !ok {
		return Category{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) CreateCategory(ctx context.Context, c Category) (Category, error) {
	r.nextID++
	c.ID = r.nextID
	r.categories[c.ID] = c
	return c, nil
}

func (r *memoryRepo) UpdateCategory(ctx context.Context, id int64, c Category) error {
	if _, ok := r.categories[id]; !ok {
		return shared.ErrNotFound
	}
	c.ID = id
	r.categories[id] = c
	return nil
}

func (r *memoryRepo) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := r.categories[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.categories, id)
	return nil
}

func validProduct() Product {
	return Product{Article: "WID-1", Name: "Widget", Unit: "pcs", Active: true}
}

func TestProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Product)
	}{
		{"missing article", func(p *Product) { p.Article = " " }},
		{"missing name", func(p *Product) { p.Name = "" }},
		{"missing unit", func(p *Product) { p.Unit = "" }},
		{"negative price", func(p *Product) { p.Price = decimal.NewFromInt(-1) }},
		{"negative min stock", func(p *Product) { p.MinStock = decimal.NewFromInt(-1) }},
		{"min above max", func(p *Product) {
			p.MinStock = decimal.NewFromInt(10)
			p.MaxStock = decimal.NewFromInt(5)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProduct()
			tc.mutate(&p)
			_, err := svc.CreateProduct(ctx, p)
			require.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestProductSoftDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, validProduct())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))

	// Deleted products drop out of listings but the row survives.
	listed, _, err := svc.ListProducts(ctx, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, listed)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Deleted)

	// The article becomes reusable.
	_, err = svc.CreateProduct(ctx, validProduct())
	require.NoError(t, err)
}

func TestDuplicateArticleRejected(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, validProduct())
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, validProduct())
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestLocationZoneValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateLocation(ctx, Location{Code: "A-01", Name: "Rack A", Zone: "basement"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	for _, zone := range []string{ZoneReceiving, ZoneStorage, ZoneShipping, ZoneQuarantine} {
		_, err := svc.CreateLocation(ctx, Location{Code: "Z-" + zone, Name: zone, Zone: zone, Active: true})
		require.NoError(t, err)
	}

	_, err = svc.ListLocations(ctx, ListFilters{Zone: "attic"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestLocationWithStockCannotBeDeleted(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	l, err := svc.CreateLocation(ctx, Location{Code: "A-01", Name: "Rack A", Zone: ZoneStorage, Active: true})
	require.NoError(t, err)
	repo.stocked[l.ID] = true

	err = svc.DeleteLocation(ctx, l.ID)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	repo.stocked[l.ID] = false
	require.NoError(t, svc.DeleteLocation(ctx, l.ID))
}

func TestCategoryCannotBeOwnParent(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, Category{Name: "Tools"})
	require.NoError(t, err)

	err = svc.UpdateCategory(ctx, c.ID, Category{Name: "Tools", ParentID: &c.ID})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
