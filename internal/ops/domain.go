// Package ops implements the four warehouse mutation operations: receipt,
// shipment, movement and inventory count. Each posting runs inside one
// database transaction and produces a document, its transaction rows and the
// matching ledger updates, or nothing at all.
package ops

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationType enumerates supported document operations.
type OperationType string

const (
	// OperationReceipt books goods in from a supplier.
	OperationReceipt OperationType = "receipt"
	// OperationShipment books goods out to a customer.
	OperationShipment OperationType = "shipment"
	// OperationMovement relocates goods between storage locations.
	OperationMovement OperationType = "movement"
	// OperationInventory reconciles the ledger against a physical count.
	OperationInventory OperationType = "inventory"
)

// Prefix returns the document number prefix for the operation.
func (t OperationType) Prefix() string {
	switch t {
	case OperationReceipt:
		return "RCV"
	case OperationShipment:
		return "SHP"
	case OperationMovement:
		return "MOV"
	case OperationInventory:
		return "INV"
	default:
		return "DOC"
	}
}

// DocumentStatus tracks the document lifecycle. Documents are persisted in a
// single state-confirming step, so completed is the only status ever stored;
// draft exists for the staging buffers that live outside the engine.
type DocumentStatus string

const (
	// DocumentDraft marks a not-yet-posted document.
	DocumentDraft DocumentStatus = "draft"
	// DocumentCompleted marks a posted document.
	DocumentCompleted DocumentStatus = "completed"
)

// Document groups the transactions of one business operation.
type Document struct {
	ID           int64
	Number       string
	Operation    OperationType
	Date         time.Time
	Counterparty string
	Comments     string
	Status       DocumentStatus
	CreatedBy    int64
	CompletedAt  *time.Time
	TotalAmount  decimal.Decimal
	CreatedAt    time.Time
}

// Transaction is one immutable ledger fact. Quantity is positive for inbound
// and negative for outbound; a movement keeps a positive quantity and carries
// both locations.
type Transaction struct {
	ID           int64
	DocumentID   int64
	ProductID    int64
	BatchID      *int64
	LocationFrom *int64
	LocationTo   *int64
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	CreatedAt    time.Time
}

// ProductRef is the catalog view the engine needs: existence and flags.
type ProductRef struct {
	ID      int64
	Article string
	Name    string
	Unit    string
	Active  bool
	Deleted bool
}

// LocationRef is the storage-location view the engine needs.
type LocationRef struct {
	ID     int64
	Code   string
	Zone   string
	Active bool
}

// ReceiptLine is one received lot-or-quantity.
type ReceiptLine struct {
	ProductID     int64
	LocationID    int64
	Quantity      decimal.Decimal
	BatchNumber   string
	PurchasePrice decimal.Decimal
	ExpiryDate    *time.Time
}

// ReceiptInput describes a receipt posting.
type ReceiptInput struct {
	Lines    []ReceiptLine
	Supplier string
	ActorID  int64
	Ref      string
}

// ShipmentLine is one shipped position. A nil BatchID ships from the oldest
// single balance row able to cover the quantity.
type ShipmentLine struct {
	ProductID  int64
	LocationID int64
	Quantity   decimal.Decimal
	BatchID    *int64
	Price      decimal.Decimal
}

// ShipmentInput describes a shipment posting.
type ShipmentInput struct {
	Lines    []ShipmentLine
	Customer string
	ActorID  int64
	Ref      string
}

// MovementLine relocates a quantity between two locations.
type MovementLine struct {
	ProductID    int64
	LocationFrom int64
	LocationTo   int64
	Quantity     decimal.Decimal
	BatchID      *int64
}

// MovementInput describes a movement posting. Lines are applied independently
// but atomically: one failing line rolls back the whole document.
type MovementInput struct {
	Lines    []MovementLine
	Comments string
	ActorID  int64
	Ref      string
}

// InventoryCountInput describes a reconciliation posting. Counted maps
// location id to the physically counted quantity; counts are per location,
// batch granularity is collapsed.
type InventoryCountInput struct {
	ProductID int64
	Counted   map[int64]decimal.Decimal
	Comments  string
	ActorID   int64
	Ref       string
}
