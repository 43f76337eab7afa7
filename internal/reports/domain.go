// Package reports computes read-only summaries over the ledger: stock on
// hand, turnover per product and the dashboard counters.
package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRow is one (product, location) position with its threshold state.
type StockRow struct {
	ProductID    int64           `json:"product_id"`
	Article      string          `json:"article"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	LocationID   int64           `json:"location_id"`
	LocationCode string          `json:"location_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinStock     decimal.Decimal `json:"min_stock"`
	LowStock     bool            `json:"low_stock"`
}

// TurnoverRow aggregates a product's movement over a window.
type TurnoverRow struct {
	ProductID int64           `json:"product_id"`
	Article   string          `json:"article"`
	Name      string          `json:"name"`
	Received  decimal.Decimal `json:"received"`
	Shipped   decimal.Decimal `json:"shipped"`
}

// Dashboard bundles the headline counters.
type Dashboard struct {
	Products        int             `json:"products"`
	Locations       int             `json:"locations"`
	StockValue      decimal.Decimal `json:"stock_value"`
	DocumentsToday  int             `json:"documents_today"`
	LowStockCount   int             `json:"low_stock_count"`
	ExpiringBatches int             `json:"expiring_batches"`
}

// TurnoverWindow bounds a turnover query.
type TurnoverWindow struct {
	From time.Time
	To   time.Time
}
