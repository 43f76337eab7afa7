package reports

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warelog/warelog/internal/shared"
)

// Service runs the report queries, fanning out the dashboard counters.
type Service struct {
	repo       *Repository
	expiryDays int
}

// NewService creates the reports service. expiryDays sets the dashboard's
// expiring-batches window.
func NewService(repo *Repository, expiryDays int) *Service {
	if expiryDays <= 0 {
		expiryDays = 30
	}
	return &Service{repo: repo, expiryDays: expiryDays}
}

// StockReport returns positions, optionally narrowed to one location.
func (s *Service) StockReport(ctx context.Context, locationID *int64) ([]StockRow, error) {
	return s.repo.StockReport(ctx, locationID)
}

// Turnover aggregates movement per product for the window.
func (s *Service) Turnover(ctx context.Context, w TurnoverWindow) ([]TurnoverRow, error) {
	if !w.To.After(w.From) {
		return nil, shared.Invalidf("turnover window must not be empty")
	}
	return s.repo.Turnover(ctx, w)
}

// Dashboard gathers the headline counters concurrently.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Products, err = s.repo.CountProducts(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Locations, err = s.repo.CountLocations(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.StockValue, err = s.repo.StockValue(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.DocumentsToday, err = s.repo.CountDocumentsSince(ctx, midnight)
		return err
	})
	g.Go(func() error {
		var err error
		d.LowStockCount, err = s.repo.CountLowStock(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.ExpiringBatches, err = s.repo.CountExpiringBatches(ctx, now.AddDate(0, 0, s.expiryDays))
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
