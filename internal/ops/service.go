package ops

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/batch"
	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

// AuditPort records engine actions. Satisfied by shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes the engine.
type Config struct {
	// MaxAttempts bounds posting retries on serialization failures, lock
	// timeouts and document number collisions.
	MaxAttempts int
}

// Service posts warehouse operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService constructs the engine. audit and idempotency may be nil; both
// are then skipped, so refs no longer dedupe resubmissions.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg Config, logger *slog.Logger) *Service {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		maxAttempts: attempts,
		now:         time.Now,
	}
}

// PostReceipt books the lines in, creating or topping up batches for lines
// that carry a batch number.
func (s *Service) PostReceipt(ctx context.Context, in ReceiptInput) (Document, error) {
	if len(in.Lines) == 0 {
		return Document{}, shared.Invalidf("receipt requires at least one line")
	}
	total := decimal.Zero
	for i, line := range in.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.PurchasePrice.IsNegative() {
			return Document{}, shared.Invalidf("line %d: purchase price must not be negative", i+1)
		}
		total = total.Add(line.PurchasePrice.Mul(line.Quantity))
	}

	doc := Document{
		Operation:    OperationReceipt,
		Counterparty: in.Supplier,
		CreatedBy:    in.ActorID,
		TotalAmount:  total,
	}
	doc, err := s.post(ctx, doc, in.Ref, func(ctx context.Context, tx TxRepository, doc Document) error {
		for _, line := range in.Lines {
			if err := s.checkRefs(ctx, tx, line.ProductID, line.LocationID); err != nil {
				return err
			}
			var batchID *int64
			if line.BatchNumber != "" {
				id, err := tx.FindOrCreateBatch(ctx, batch.ReceiptLot{
					ProductID:     line.ProductID,
					Number:        line.BatchNumber,
					Supplier:      in.Supplier,
					PurchasePrice: line.PurchasePrice,
					ExpiryDate:    line.ExpiryDate,
					Quantity:      line.Quantity,
				})
				if err != nil {
					return err
				}
				batchID = &id
			}
			if _, err := tx.ApplyDelta(ctx, line.ProductID, line.LocationID, batchID, line.Quantity); err != nil {
				return err
			}
			locationTo := line.LocationID
			if _, err := tx.InsertTransaction(ctx, Transaction{
				DocumentID: doc.ID,
				ProductID:  line.ProductID,
				BatchID:    batchID,
				LocationTo: &locationTo,
				Quantity:   line.Quantity,
				Price:      line.PurchasePrice,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.auditRecord(ctx, in.ActorID, "RECEIPT_COMPLETE", doc, len(in.Lines))
	return doc, nil
}

// PostShipment books the lines out. Lines naming a batch debit that batch's
// row at the location; batchless lines consume the oldest single row able to
// cover the quantity.
func (s *Service) PostShipment(ctx context.Context, in ShipmentInput) (Document, error) {
	if len(in.Lines) == 0 {
		return Document{}, shared.Invalidf("shipment requires at least one line")
	}
	total := decimal.Zero
	for i, line := range in.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.Price.IsNegative() {
			return Document{}, shared.Invalidf("line %d: price must not be negative", i+1)
		}
		total = total.Add(line.Price.Mul(line.Quantity))
	}

	doc := Document{
		Operation:    OperationShipment,
		Counterparty: in.Customer,
		CreatedBy:    in.ActorID,
		TotalAmount:  total,
	}
	doc, err := s.post(ctx, doc, in.Ref, func(ctx context.Context, tx TxRepository, doc Document) error {
		for _, line := range in.Lines {
			if err := s.checkRefs(ctx, tx, line.ProductID, line.LocationID); err != nil {
				return err
			}
			batchID := line.BatchID
			if batchID != nil {
				b, err := tx.GetBatch(ctx, *batchID)
				if err != nil {
					return err
				}
				if b.ProductID != line.ProductID {
					return shared.Invalidf("batch %d does not belong to product %d", *batchID, line.ProductID)
				}
				if _, err := tx.ApplyDelta(ctx, line.ProductID, line.LocationID, batchID, line.Quantity.Neg()); err != nil {
					return err
				}
			} else {
				bal, err := tx.PickOldest(ctx, line.ProductID, line.LocationID, line.Quantity)
				if err != nil {
					return err
				}
				if _, err := tx.DebitRow(ctx, bal, line.Quantity); err != nil {
					return err
				}
				batchID = bal.BatchID
			}
			if batchID != nil {
				if err := tx.DecrementBatch(ctx, *batchID, line.Quantity); err != nil {
					return err
				}
			}
			locationFrom := line.LocationID
			if _, err := tx.InsertTransaction(ctx, Transaction{
				DocumentID:   doc.ID,
				ProductID:    line.ProductID,
				BatchID:      batchID,
				LocationFrom: &locationFrom,
				Quantity:     line.Quantity.Neg(),
				Price:        line.Price,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.auditRecord(ctx, in.ActorID, "SHIPMENT_COMPLETE", doc, len(in.Lines))
	return doc, nil
}

// PostMovement relocates the lines between locations. Batch totals are
// unchanged; the moved stock keeps its batch link at the destination.
func (s *Service) PostMovement(ctx context.Context, in MovementInput) (Document, error) {
	if len(in.Lines) == 0 {
		return Document{}, shared.Invalidf("movement requires at least one line")
	}
	for i, line := range in.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.LocationFrom == line.LocationTo {
			return Document{}, shared.Invalidf("line %d: source and destination must differ", i+1)
		}
	}

	doc := Document{
		Operation: OperationMovement,
		Comments:  in.Comments,
		CreatedBy: in.ActorID,
	}
	doc, err := s.post(ctx, doc, in.Ref, func(ctx context.Context, tx TxRepository, doc Document) error {
		for _, line := range in.Lines {
			if err := s.checkProduct(ctx, tx, line.ProductID); err != nil {
				return err
			}
			if err := s.checkLocation(ctx, tx, line.LocationFrom); err != nil {
				return err
			}
			if err := s.checkLocation(ctx, tx, line.LocationTo); err != nil {
				return err
			}
			batchID := line.BatchID
			if batchID != nil {
				b, err := tx.GetBatch(ctx, *batchID)
				if err != nil {
					return err
				}
				if b.ProductID != line.ProductID {
					return shared.Invalidf("batch %d does not belong to product %d", *batchID, line.ProductID)
				}
				if _, err := tx.ApplyDelta(ctx, line.ProductID, line.LocationFrom, batchID, line.Quantity.Neg()); err != nil {
					return err
				}
			} else {
				bal, err := tx.PickOldest(ctx, line.ProductID, line.LocationFrom, line.Quantity)
				if err != nil {
					return err
				}
				if _, err := tx.DebitRow(ctx, bal, line.Quantity); err != nil {
					return err
				}
				batchID = bal.BatchID
			}
			if _, err := tx.ApplyDelta(ctx, line.ProductID, line.LocationTo, batchID, line.Quantity); err != nil {
				return err
			}
			locationFrom, locationTo := line.LocationFrom, line.LocationTo
			if _, err := tx.InsertTransaction(ctx, Transaction{
				DocumentID:   doc.ID,
				ProductID:    line.ProductID,
				BatchID:      batchID,
				LocationFrom: &locationFrom,
				LocationTo:   &locationTo,
				Quantity:     line.Quantity,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.auditRecord(ctx, in.ActorID, "MOVEMENT_COMPLETE", doc, len(in.Lines))
	return doc, nil
}

// PostInventoryCount reconciles the ledger against a physical count. Every
// location currently holding the product takes part: locations omitted from
// the count are treated as counted zero and wiped. Differences are recorded
// as transactions and batch totals of removed lots are synced down.
func (s *Service) PostInventoryCount(ctx context.Context, in InventoryCountInput) (Document, error) {
	if len(in.Counted) == 0 {
		return Document{}, shared.Invalidf("inventory count requires at least one location")
	}
	locationIDs := make([]int64, 0, len(in.Counted))
	for locationID, counted := range in.Counted {
		if counted.IsNegative() {
			return Document{}, shared.Invalidf("location %d: counted quantity must not be negative", locationID)
		}
		if counted.Exponent() < -3 {
			return Document{}, shared.Invalidf("location %d: at most three decimal places", locationID)
		}
		locationIDs = append(locationIDs, locationID)
	}
	// Deterministic lock order across concurrent counts.
	sort.Slice(locationIDs, func(i, j int) bool { return locationIDs[i] < locationIDs[j] })

	doc := Document{
		Operation: OperationInventory,
		Comments:  in.Comments,
		CreatedBy: in.ActorID,
	}
	var adjusted int
	doc, err := s.post(ctx, doc, in.Ref, func(ctx context.Context, tx TxRepository, doc Document) error {
		adjusted = 0
		if err := s.checkProduct(ctx, tx, in.ProductID); err != nil {
			return err
		}
		for _, locationID := range locationIDs {
			if err := s.checkLocation(ctx, tx, locationID); err != nil {
				return err
			}
		}
		system, err := tx.LocationsHolding(ctx, in.ProductID)
		if err != nil {
			return err
		}
		// Holding locations absent from the count are counted zero. Only
		// supplied locations are reference-checked: stock at a location that
		// has since gone inactive must still reconcile away.
		all := append([]int64(nil), locationIDs...)
		for locationID := range system {
			if _, ok := in.Counted[locationID]; !ok {
				all = append(all, locationID)
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		for _, locationID := range all {
			counted := in.Counted[locationID]
			diff := counted.Sub(system[locationID])
			if diff.IsZero() {
				continue
			}
			removed, err := tx.ReplaceLocationQuantity(ctx, in.ProductID, locationID, counted)
			if err != nil {
				return err
			}
			for _, lot := range removed {
				if err := tx.DecrementBatch(ctx, lot.BatchID, lot.Quantity); err != nil {
					return err
				}
			}
			tr := Transaction{
				DocumentID: doc.ID,
				ProductID:  in.ProductID,
				Quantity:   diff.Abs(),
			}
			loc := locationID
			if diff.IsPositive() {
				tr.LocationTo = &loc
			} else {
				tr.LocationFrom = &loc
			}
			if _, err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
			adjusted++
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.auditRecord(ctx, in.ActorID, "INVENTORY_COMPLETE", doc, adjusted)
	return doc, nil
}

// Available reports the current balance without opening a transaction.
func (s *Service) Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	return s.repo.Available(ctx, productID, locationID, batchID)
}

// GetDocument loads one posted document with its transactions.
func (s *Service) GetDocument(ctx context.Context, number string) (Document, []Transaction, error) {
	return s.repo.GetDocument(ctx, number)
}

// ListDocuments pages the document journal.
func (s *Service) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	return s.repo.ListDocuments(ctx, f)
}

// post runs one posting attempt loop: claim the idempotency key, then retry
// the transaction on serialization failures, lock timeouts and document
// number collisions until it settles or attempts run out.
func (s *Service) post(ctx context.Context, doc Document, ref string, fill func(ctx context.Context, tx TxRepository, doc Document) error) (Document, error) {
	key := ""
	if ref != "" && s.idempotency != nil {
		key = string(doc.Operation) + ":" + ref
		if err := s.idempotency.CheckAndInsert(ctx, key, "ops"); err != nil {
			return Document{}, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.now()
		doc.Number = DocumentNumber(doc.Operation, now)
		doc.Date = now
		doc.Status = DocumentCompleted
		completedAt := now
		doc.CompletedAt = &completedAt

		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertDocument(ctx, doc)
			if err != nil {
				return err
			}
			doc.ID = id
			return fill(ctx, tx, doc)
		})
		if err == nil {
			return doc, nil
		}

		switch {
		case db.IsUniqueViolation(err, "documents_document_number_key"),
			db.IsSerializationFailure(err),
			db.IsLockTimeout(err):
			lastErr = err
			s.logger.Warn("posting retry",
				slog.String("operation", string(doc.Operation)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		default:
			s.releaseKey(ctx, key)
			return Document{}, err
		}
	}

	s.releaseKey(ctx, key)
	return Document{}, fmt.Errorf("%w: %s posting did not settle after %d attempts: %v", shared.ErrConflict, doc.Operation, s.maxAttempts, lastErr)
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) checkRefs(ctx context.Context, tx TxRepository, productID, locationID int64) error {
	if err := s.checkProduct(ctx, tx, productID); err != nil {
		return err
	}
	return s.checkLocation(ctx, tx, locationID)
}

func (s *Service) checkProduct(ctx context.Context, tx TxRepository, id int64) error {
	p, err := tx.ProductRef(ctx, id)
	if err != nil {
		return fmt.Errorf("product %d: %w", id, err)
	}
	if p.Deleted {
		return fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	if !p.Active {
		return shared.Invalidf("product %d is inactive", id)
	}
	return nil
}

func (s *Service) checkLocation(ctx context.Context, tx TxRepository, id int64) error {
	l, err := tx.LocationRef(ctx, id)
	if err != nil {
		return fmt.Errorf("location %d: %w", id, err)
	}
	if !l.Active {
		return shared.Invalidf("location %d is inactive", id)
	}
	return nil
}

func (s *Service) auditRecord(ctx context.Context, actorID int64, action string, doc Document, lines int) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: doc.Number,
		Meta: map[string]any{
			"operation": string(doc.Operation),
			"lines":     lines,
			"total":     doc.TotalAmount.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("document", doc.Number), slog.String("error", err.Error()))
	}
}

func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return shared.Invalidf("quantity must be positive")
	}
	if q.Exponent() < -3 {
		return shared.Invalidf("quantity allows at most three decimal places")
	}
	return nil
}
