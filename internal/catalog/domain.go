// Package catalog manages the master data the ledger references: products,
// storage locations and product categories.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Zone classifies a storage location.
const (
	ZoneReceiving  = "receiving"
	ZoneStorage    = "storage"
	ZoneShipping   = "shipping"
	ZoneQuarantine = "quarantine"
)

// ValidZone reports whether zone is one of the known zones.
func ValidZone(zone string) bool {
	switch zone {
	case ZoneReceiving, ZoneStorage, ZoneShipping, ZoneQuarantine:
		return true
	}
	return false
}

// Product is a catalog item. Article is unique among non-deleted products;
// deletion is soft so historical documents keep their references.
type Product struct {
	ID          int64
	Article     string
	Name        string
	Description string
	CategoryID  *int64
	Unit        string
	Barcode     string
	Weight      decimal.Decimal
	MinStock    decimal.Decimal
	MaxStock    decimal.Decimal
	Price       decimal.Decimal
	Active      bool
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Location is a storage place goods can sit in. Code is unique.
type Location struct {
	ID          int64
	Code        string
	Name        string
	Zone        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// Category groups products. ParentID allows one level of nesting.
type Category struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	CreatedAt   time.Time
}

// ListFilters narrows catalog listings.
type ListFilters struct {
	Search         string
	CategoryID     *int64
	Zone           string
	IncludeDeleted bool
	OnlyActive     bool
	Page           int
	Limit          int
}

// Repository is the catalog persistence surface.
type Repository interface {
	ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, p Product) error
	SoftDeleteProduct(ctx context.Context, id int64) error

	ListLocations(ctx context.Context, f ListFilters) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, l Location) (Location, error)
	UpdateLocation(ctx context.Context, id int64, l Location) error
	DeleteLocation(ctx context.Context, id int64) error
	LocationHoldsStock(ctx context.Context, id int64) (bool, error)

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, id int64, c Category) error
	DeleteCategory(ctx context.Context, id int64) error
}
