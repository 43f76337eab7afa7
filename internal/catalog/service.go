package catalog

import (
	"context"
	"strings"

	"github.com/warelog/warelog/internal/shared"
)

// Service wraps the repository with validation.
type Service struct {
	repo Repository
}

// NewService creates the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, f)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalidf("invalid product id")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, p Product) error {
	if id <= 0 {
		return shared.Invalidf("invalid product id")
	}
	if err := validateProduct(p); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, p)
}

// DeleteProduct soft-deletes: the row stays so documents keep their reference,
// but the product disappears from listings and rejects new operations.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalidf("invalid product id")
	}
	return s.repo.SoftDeleteProduct(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, f ListFilters) ([]Location, error) {
	if f.Zone != "" && !ValidZone(f.Zone) {
		return nil, shared.Invalidf("unknown zone %q", f.Zone)
	}
	return s.repo.ListLocations(ctx, f)
}

func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, shared.Invalidf("invalid location id")
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) CreateLocation(ctx context.Context, l Location) (Location, error) {
	if err := validateLocation(l); err != nil {
		return Location{}, err
	}
	return s.repo.CreateLocation(ctx, l)
}

func (s *Service) UpdateLocation(ctx context.Context, id int64, l Location) error {
	if id <= 0 {
		return shared.Invalidf("invalid location id")
	}
	if err := validateLocation(l); err != nil {
		return err
	}
	return s.repo.UpdateLocation(ctx, id, l)
}

// DeleteLocation refuses to remove a location still holding stock.
func (s *Service) DeleteLocation(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalidf("invalid location id")
	}
	holds, err := s.repo.LocationHoldsStock(ctx, id)
	if err != nil {
		return err
	}
	if holds {
		return shared.Invalidf("location still holds stock")
	}
	return s.repo.DeleteLocation(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, shared.Invalidf("invalid category id")
	}
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, c Category) (Category, error) {
	if err := validateCategory(c); err != nil {
		return Category{}, err
	}
	return s.repo.CreateCategory(ctx, c)
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, c Category) error {
	if id <= 0 {
		return shared.Invalidf("invalid category id")
	}
	if err := validateCategory(c); err != nil {
		return err
	}
	if c.ParentID != nil && *c.ParentID == id {
		return shared.Invalidf("category cannot be its own parent")
	}
	return s.repo.UpdateCategory(ctx, id, c)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalidf("invalid category id")
	}
	return s.repo.DeleteCategory(ctx, id)
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Article) == "" {
		return shared.Invalidf("product article is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.Invalidf("product name is required")
	}
	if strings.TrimSpace(p.Unit) == "" {
		return shared.Invalidf("product unit is required")
	}
	if p.Price.IsNegative() {
		return shared.Invalidf("product price must not be negative")
	}
	if p.MinStock.IsNegative() || p.MaxStock.IsNegative() {
		return shared.Invalidf("stock thresholds must not be negative")
	}
	if p.MaxStock.IsPositive() && p.MinStock.GreaterThan(p.MaxStock) {
		return shared.Invalidf("min stock exceeds max stock")
	}
	return nil
}

func validateLocation(l Location) error {
	if strings.TrimSpace(l.Code) == "" {
		return shared.Invalidf("location code is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return shared.Invalidf("location name is required")
	}
	if !ValidZone(l.Zone) {
		return shared.Invalidf("unknown zone %q", l.Zone)
	}
	return nil
}

func validateCategory(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.Invalidf("category name is required")
	}
	return nil
}
