// Package batch tracks product lots: quantity received, quantity remaining,
// supplier, purchase price and expiry. Batch numbers are scoped per product.
package batch

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch is one tracked lot of a product. InitialQuantity only ever grows (on
// re-receipt of the same batch number); CurrentQuantity equals the sum of the
// ledger rows referencing the batch and never exceeds InitialQuantity.
type Batch struct {
	ID              int64
	ProductID       int64
	Number          string
	InitialQuantity decimal.Decimal
	CurrentQuantity decimal.Decimal
	Supplier        string
	PurchasePrice   decimal.Decimal
	ExpiryDate      *time.Time
	ProductionDate  time.Time
	CreatedAt       time.Time
}

// ReceiptLot describes a lot being received.
type ReceiptLot struct {
	ProductID     int64
	Number        string
	Supplier      string
	PurchasePrice decimal.Decimal
	ExpiryDate    *time.Time
	Quantity      decimal.Decimal
}

// Availability is a batch with stock remaining, as offered to shipment pickers.
type Availability struct {
	ID         int64
	Number     string
	Available  decimal.Decimal
	ExpiryDate *time.Time
}
