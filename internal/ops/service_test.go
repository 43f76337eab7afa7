package ops

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warelog/warelog/internal/batch"
	"github.com/warelog/warelog/internal/ledger"
	"github.com/warelog/warelog/internal/shared"
)

type memoryRepo struct {
	products  map[int64]ProductRef
	locations map[int64]LocationRef
	balances  []ledger.Balance
	batches   map[int64]*batch.Batch
	docs      []Document
	trs       []Transaction
	nextID    int64

	failWith error
	attempts int
}

type memorySnapshot struct {
	balances []ledger.Balance
	batches  map[int64]*batch.Batch
	docs     []Document
	trs      []Transaction
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: map[int64]ProductRef{
			1: {ID: 1, Article: "WID-1", Name: "Widget", Unit: "pcs", Active: true},
			2: {ID: 2, Article: "GAD-2", Name: "Gadget", Unit: "pcs", Active: false},
			3: {ID: 3, Article: "OLD-3", Name: "Retired", Unit: "pcs", Active: true, Deleted: true},
		},
		locations: map[int64]LocationRef{
			10: {ID: 10, Code: "A-01", Zone: "storage", Active: true},
			20: {ID: 20, Code: "A-02", Zone: "storage", Active: true},
			30: {ID: 30, Code: "Q-01", Zone: "quarantine", Active: false},
		},
		batches: make(map[int64]*batch.Batch),
	}
}

func (r *memoryRepo) snapshot() memorySnapshot {
	snap := memorySnapshot{
		balances: append([]ledger.Balance(nil), r.balances...),
		batches:  make(map[int64]*batch.Batch, len(r.batches)),
		docs:     append([]Document(nil), r.docs...),
		trs:      append([]Transaction(nil), r.trs...),
		nextID:   r.nextID,
	}
	for id, b := range r.batches {
		copied := *b
		snap.batches[id] = &copied
	}
	return snap
}

func (r *memoryRepo) restore(snap memorySnapshot) {
	r.balances = snap.balances
	r.batches = snap.batches
	r.docs = snap.docs
	r.trs = snap.trs
	r.nextID = snap.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.attempts++
	if r.failWith != nil {
		return r.failWith
	}
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, bal := range r.balances {
		if bal.ProductID != productID || bal.LocationID != locationID {
			continue
		}
		if batchID != nil && (bal.BatchID == nil || *bal.BatchID != *batchID) {
			continue
		}
		total = total.Add(bal.Quantity)
	}
	return total, nil
}

func (r *memoryRepo) GetDocument(ctx context.Context, number string) (Document, []Transaction, error) {
	for _, d := range r.docs {
		if d.Number == number {
			var trs []Transaction
			for _, t := range r.trs {
				if t.DocumentID == d.ID {
					trs = append(trs, t)
				}
			}
			return d, trs, nil
		}
	}
	return Document{}, nil, shared.ErrNotFound
}

func (r *memoryRepo) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	var out []Document
	for _, d := range r.docs {
		if f.Operation != "" && d.Operation != f.Operation {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func sameBatch(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (tx *memoryTx) ProductRef(ctx context.Context, id int64) (ProductRef, error) {
	p, ok := tx.repo.products[id]
	if !ok {
		return ProductRef{}, shared.ErrNotFound
	}
	return p, nil
}

func (tx *memoryTx) LocationRef(ctx context.Context, id int64) (LocationRef, error) {
	l, ok := tx.repo.locations[id]
	if !ok {
		return LocationRef{}, shared.ErrNotFound
	}
	return l, nil
}

func (tx *memoryTx) Available(ctx context.Context, productID, locationID int64, batchID *int64) (decimal.Decimal, error) {
	return tx.repo.Available(ctx, productID, locationID, batchID)
}

func (tx *memoryTx) findRow(productID, locationID int64, batchID *int64) int {
	for i, bal := range tx.repo.balances {
		if bal.ProductID == productID && bal.LocationID == locationID && sameBatch(bal.BatchID, batchID) {
			return i
		}
	}
	return -1
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, productID, locationID int64, batchID *int64, delta decimal.Decimal) (ledger.Balance, error) {
	i := tx.findRow(productID, locationID, batchID)
	if i < 0 {
		if delta.IsNegative() {
			return ledger.Balance{}, shared.Insufficient(decimal.Zero)
		}
		tx.repo.nextID++
		bal := ledger.Balance{ID: tx.repo.nextID, ProductID: productID, LocationID: locationID, BatchID: batchID, Quantity: delta}
		tx.repo.balances = append(tx.repo.balances, bal)
		return bal, nil
	}
	bal := tx.repo.balances[i]
	newQty := bal.Quantity.Add(delta)
	if newQty.IsNegative() {
		return ledger.Balance{}, shared.Insufficient(bal.Quantity)
	}
	if newQty.IsZero() {
		tx.repo.balances = append(tx.repo.balances[:i], tx.repo.balances[i+1:]...)
	} else {
		tx.repo.balances[i].Quantity = newQty
	}
	bal.Quantity = newQty
	return bal, nil
}

// picksBefore mirrors the store's pick order: batch-tracked rows before the
// untracked one, then oldest first.
func picksBefore(a, b ledger.Balance) bool {
	if (a.BatchID != nil) != (b.BatchID != nil) {
		return a.BatchID != nil
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (tx *memoryTx) PickOldest(ctx context.Context, productID, locationID int64, qty decimal.Decimal) (ledger.Balance, error) {
	var best *ledger.Balance
	for i := range tx.repo.balances {
		bal := tx.repo.balances[i]
		if bal.ProductID != productID || bal.LocationID != locationID || bal.Quantity.LessThan(qty) {
			continue
		}
		if best == nil || picksBefore(bal, *best) {
			picked := bal
			best = &picked
		}
	}
	if best == nil {
		available, _ := tx.repo.Available(ctx, productID, locationID, nil)
		return ledger.Balance{}, shared.Insufficient(available)
	}
	return *best, nil
}

func (tx *memoryTx) DebitRow(ctx context.Context, bal ledger.Balance, qty decimal.Decimal) (ledger.Balance, error) {
	for i := range tx.repo.balances {
		if tx.repo.balances[i].ID != bal.ID {
			continue
		}
		newQty := tx.repo.balances[i].Quantity.Sub(qty)
		if newQty.IsNegative() {
			return ledger.Balance{}, shared.Insufficient(tx.repo.balances[i].Quantity)
		}
		if newQty.IsZero() {
			tx.repo.balances = append(tx.repo.balances[:i], tx.repo.balances[i+1:]...)
		} else {
			tx.repo.balances[i].Quantity = newQty
		}
		bal.Quantity = newQty
		return bal, nil
	}
	return ledger.Balance{}, shared.ErrNotFound
}

func (tx *memoryTx) LocationsHolding(ctx context.Context, productID int64) (map[int64]decimal.Decimal, error) {
	totals := make(map[int64]decimal.Decimal)
	for _, bal := range tx.repo.balances {
		if bal.ProductID == productID {
			totals[bal.LocationID] = totals[bal.LocationID].Add(bal.Quantity)
		}
	}
	return totals, nil
}

func (tx *memoryTx) ReplaceLocationQuantity(ctx context.Context, productID, locationID int64, counted decimal.Decimal) ([]ledger.RemovedLot, error) {
	var removed []ledger.RemovedLot
	kept := tx.repo.balances[:0:0]
	for _, bal := range tx.repo.balances {
		if bal.ProductID == productID && bal.LocationID == locationID {
			if bal.BatchID != nil {
				removed = append(removed, ledger.RemovedLot{BatchID: *bal.BatchID, Quantity: bal.Quantity})
			}
			continue
		}
		kept = append(kept, bal)
	}
	tx.repo.balances = kept
	if counted.IsPositive() {
		tx.repo.nextID++
		tx.repo.balances = append(tx.repo.balances, ledger.Balance{ID: tx.repo.nextID, ProductID: productID, LocationID: locationID, Quantity: counted})
	}
	return removed, nil
}

func (tx *memoryTx) FindOrCreateBatch(ctx context.Context, lot batch.ReceiptLot) (int64, error) {
	for id, b := range tx.repo.batches {
		if b.ProductID == lot.ProductID && b.Number == lot.Number {
			b.InitialQuantity = b.InitialQuantity.Add(lot.Quantity)
			b.CurrentQuantity = b.CurrentQuantity.Add(lot.Quantity)
			return id, nil
		}
	}
	tx.repo.nextID++
	tx.repo.batches[tx.repo.nextID] = &batch.Batch{
		ID:              tx.repo.nextID,
		ProductID:       lot.ProductID,
		Number:          lot.Number,
		InitialQuantity: lot.Quantity,
		CurrentQuantity: lot.Quantity,
		Supplier:        lot.Supplier,
		PurchasePrice:   lot.PurchasePrice,
		ExpiryDate:      lot.ExpiryDate,
	}
	return tx.repo.nextID, nil
}

func (tx *memoryTx) DecrementBatch(ctx context.Context, batchID int64, qty decimal.Decimal) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return shared.ErrNotFound
	}
	if b.CurrentQuantity.LessThan(qty) {
		return shared.Insufficient(b.CurrentQuantity)
	}
	b.CurrentQuantity = b.CurrentQuantity.Sub(qty)
	return nil
}

func (tx *memoryTx) GetBatch(ctx context.Context, batchID int64) (batch.Batch, error) {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return batch.Batch{}, shared.ErrNotFound
	}
	return *b, nil
}

func (tx *memoryTx) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	for _, d := range tx.repo.docs {
		if d.Number == doc.Number {
			return 0, &pgconn.PgError{Code: "23505", ConstraintName: "documents_document_number_key"}
		}
	}
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.docs = append(tx.repo.docs, doc)
	return doc.ID, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, tr Transaction) (int64, error) {
	tx.repo.nextID++
	tr.ID = tx.repo.nextID
	tx.repo.trs = append(tx.repo.trs, tr)
	return tr.ID, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, Config{}, nil)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustAvailable(t *testing.T, repo *memoryRepo, productID, locationID int64) decimal.Decimal {
	t.Helper()
	total, err := repo.Available(context.Background(), productID, locationID, nil)
	require.NoError(t, err)
	return total
}

func TestReceiptCreatesBalanceAndDocument(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.PostReceipt(ctx, ReceiptInput{
		Supplier: "ACME",
		Lines:    []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10.5"), PurchasePrice: qty("2")}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.Number, "RCV-"))
	require.Equal(t, DocumentCompleted, doc.Status)
	require.True(t, doc.TotalAmount.Equal(qty("21")))

	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("10.5")))
	require.Len(t, repo.trs, 1)
	require.Nil(t, repo.trs[0].LocationFrom)
	require.NotNil(t, repo.trs[0].LocationTo)
	require.True(t, repo.trs[0].Quantity.Equal(qty("10.5")))
}

func TestReceiptTopsUpExistingBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Supplier: "ACME",
		Lines:    []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{
		Supplier: "ACME",
		Lines:    []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("5"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)

	require.Len(t, repo.batches, 1)
	for _, b := range repo.batches {
		require.True(t, b.InitialQuantity.Equal(qty("15")))
		require.True(t, b.CurrentQuantity.Equal(qty("15")))
	}
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("15")))
}

func TestShipmentInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("5")}},
	})
	require.NoError(t, err)

	_, err = svc.PostShipment(ctx, ShipmentInput{
		Customer: "Buyer",
		Lines:    []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("8")}},
	})
	require.True(t, shared.IsInsufficientStock(err))
	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(qty("5")))

	// Failed posting leaves no trace.
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("5")))
	require.Len(t, repo.docs, 1)
}

func TestShipmentConsumesOldestCoveringRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("20"), BatchNumber: "LOT-B"}},
	})
	require.NoError(t, err)

	// LOT-A cannot cover 15, so the debit lands on LOT-B.
	doc, err := svc.PostShipment(ctx, ShipmentInput{
		Lines: []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("15")}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.Number, "SHP-"))
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("15")))

	for _, b := range repo.batches {
		switch b.Number {
		case "LOT-A":
			require.True(t, b.CurrentQuantity.Equal(qty("10")))
		case "LOT-B":
			require.True(t, b.CurrentQuantity.Equal(qty("5")))
		}
	}

	// Total on hand is 15 but no single row covers 25.
	_, err = svc.PostShipment(ctx, ShipmentInput{
		Lines: []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("25")}},
	})
	require.True(t, shared.IsInsufficientStock(err))
	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(qty("15")))
}

func TestShipmentByExplicitBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)

	var batchID int64
	for id := range repo.batches {
		batchID = id
	}

	_, err = svc.PostShipment(ctx, ShipmentInput{
		Lines: []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("4"), BatchID: &batchID}},
	})
	require.NoError(t, err)
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("6")))
	require.True(t, repo.batches[batchID].CurrentQuantity.Equal(qty("6")))

	wrong := batchID + 1000
	_, err = svc.PostShipment(ctx, ShipmentInput{
		Lines: []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("1"), BatchID: &wrong}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMovementConservesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)

	doc, err := svc.PostMovement(ctx, MovementInput{
		Lines: []MovementLine{{ProductID: 1, LocationFrom: 10, LocationTo: 20, Quantity: qty("4")}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.Number, "MOV-"))

	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("6")))
	require.True(t, mustAvailable(t, repo, 1, 20).Equal(qty("4")))

	// The moved stock keeps its batch link and batch totals are untouched.
	moved := repo.balances[len(repo.balances)-1]
	require.NotNil(t, moved.BatchID)
	require.True(t, repo.batches[*moved.BatchID].CurrentQuantity.Equal(qty("10")))

	tr := repo.trs[len(repo.trs)-1]
	require.NotNil(t, tr.LocationFrom)
	require.NotNil(t, tr.LocationTo)
	require.True(t, tr.Quantity.Equal(qty("4")))
}

func TestMovementRollsBackAtomically(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10")}},
	})
	require.NoError(t, err)

	// Second line fails, so the first line must not stick.
	_, err = svc.PostMovement(ctx, MovementInput{
		Lines: []MovementLine{
			{ProductID: 1, LocationFrom: 10, LocationTo: 20, Quantity: qty("4")},
			{ProductID: 1, LocationFrom: 10, LocationTo: 20, Quantity: qty("100")},
		},
	})
	require.True(t, shared.IsInsufficientStock(err))
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("10")))
	require.True(t, mustAvailable(t, repo, 1, 20).IsZero())

	_, err = svc.PostMovement(ctx, MovementInput{
		Lines: []MovementLine{{ProductID: 1, LocationFrom: 10, LocationTo: 10, Quantity: qty("1")}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestInventoryCountConverges(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)

	doc, err := svc.PostInventoryCount(ctx, InventoryCountInput{
		ProductID: 1,
		Counted:   map[int64]decimal.Decimal{10: qty("7")},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.Number, "INV-"))
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("7")))

	// Removed lots are synced down to their batches.
	for _, b := range repo.batches {
		require.True(t, b.CurrentQuantity.IsZero())
	}

	tr := repo.trs[len(repo.trs)-1]
	require.NotNil(t, tr.LocationFrom)
	require.Nil(t, tr.LocationTo)
	require.True(t, tr.Quantity.Equal(qty("3")))

	// Counting the same values again records no differences.
	before := len(repo.trs)
	_, err = svc.PostInventoryCount(ctx, InventoryCountInput{
		ProductID: 1,
		Counted:   map[int64]decimal.Decimal{10: qty("7")},
	})
	require.NoError(t, err)
	require.Len(t, repo.trs, before)

	// A surplus at an empty location books stock in.
	_, err = svc.PostInventoryCount(ctx, InventoryCountInput{
		ProductID: 1,
		Counted:   map[int64]decimal.Decimal{10: qty("7"), 20: qty("5")},
	})
	require.NoError(t, err)
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("7")))
	require.True(t, mustAvailable(t, repo, 1, 20).Equal(qty("5")))
	surplus := repo.trs[len(repo.trs)-1]
	require.NotNil(t, surplus.LocationTo)
	require.True(t, surplus.Quantity.Equal(qty("5")))

	_, err = svc.PostInventoryCount(ctx, InventoryCountInput{
		ProductID: 1,
		Counted:   map[int64]decimal.Decimal{10: qty("-1")},
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestInventoryCountZeroesUncountedLocations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{
			{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"},
			{ProductID: 1, LocationID: 20, Quantity: qty("6"), BatchNumber: "LOT-A"},
		},
	})
	require.NoError(t, err)

	// A full count covers every holding location: stock at locations the
	// count does not mention was not found on the floor and reconciles to
	// zero.
	doc, err := svc.PostInventoryCount(ctx, InventoryCountInput{
		ProductID: 1,
		Counted:   map[int64]decimal.Decimal{10: qty("7")},
	})
	require.NoError(t, err)
	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("7")))
	require.True(t, mustAvailable(t, repo, 1, 20).IsZero())

	// Both adjustments are on the document: -3 at 10 and -6 at 20.
	_, trs, err := svc.GetDocument(ctx, doc.Number)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	byLocation := make(map[int64]Transaction, len(trs))
	for _, tr := range trs {
		require.NotNil(t, tr.LocationFrom)
		byLocation[*tr.LocationFrom] = tr
	}
	require.True(t, byLocation[10].Quantity.Equal(qty("3")))
	require.True(t, byLocation[20].Quantity.Equal(qty("6")))

	// LOT-A held 16 across both locations and only 7 remain on the shelf.
	for _, b := range repo.batches {
		require.True(t, b.CurrentQuantity.IsZero())
	}
}

func TestShipmentPrefersBatchRowsOverUntracked(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// The untracked row is older, the batch row newer; the debit must still
	// land on the batch row.
	_, err := svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10")}},
	})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("10"), BatchNumber: "LOT-A"}},
	})
	require.NoError(t, err)

	_, err = svc.PostShipment(ctx, ShipmentInput{
		Lines: []ShipmentLine{{ProductID: 1, LocationID: 10, Quantity: qty("5")}},
	})
	require.NoError(t, err)

	require.True(t, mustAvailable(t, repo, 1, 10).Equal(qty("15")))
	for _, b := range repo.batches {
		require.True(t, b.CurrentQuantity.Equal(qty("5")))
	}
	tr := repo.trs[len(repo.trs)-1]
	require.NotNil(t, tr.BatchID)
}

func TestReferenceValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ReceiptInput
		want error
	}{
		{"unknown product", ReceiptInput{Lines: []ReceiptLine{{ProductID: 99, LocationID: 10, Quantity: qty("1")}}}, shared.ErrNotFound},
		{"deleted product", ReceiptInput{Lines: []ReceiptLine{{ProductID: 3, LocationID: 10, Quantity: qty("1")}}}, shared.ErrNotFound},
		{"inactive product", ReceiptInput{Lines: []ReceiptLine{{ProductID: 2, LocationID: 10, Quantity: qty("1")}}}, shared.ErrInvalidInput},
		{"unknown location", ReceiptInput{Lines: []ReceiptLine{{ProductID: 1, LocationID: 99, Quantity: qty("1")}}}, shared.ErrNotFound},
		{"inactive location", ReceiptInput{Lines: []ReceiptLine{{ProductID: 1, LocationID: 30, Quantity: qty("1")}}}, shared.ErrInvalidInput},
		{"zero quantity", ReceiptInput{Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: decimal.Zero}}}, shared.ErrInvalidInput},
		{"negative quantity", ReceiptInput{Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("-2")}}}, shared.ErrInvalidInput},
		{"too many decimals", ReceiptInput{Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("1.0001")}}}, shared.ErrInvalidInput},
		{"no lines", ReceiptInput{}, shared.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PostReceipt(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostingRetriesThenConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.failWith = &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	svc := newTestService(repo)

	_, err := svc.PostReceipt(context.Background(), ReceiptInput{
		Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("1")}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 3, repo.attempts)
}

func TestPostingRetriesOnNumberCollision(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	// The memory repo rejects duplicate numbers the way the unique index
	// would; with a fixed clock every posting shares the date part, so the
	// engine must regenerate on collision until a fresh suffix lands.
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		doc, err := svc.PostReceipt(ctx, ReceiptInput{
			Lines: []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("1")}},
		})
		require.NoError(t, err)
		require.False(t, seen[doc.Number])
		seen[doc.Number] = true
	}
}

func TestDocumentLookup(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.PostReceipt(ctx, ReceiptInput{
		Supplier: "ACME",
		Lines:    []ReceiptLine{{ProductID: 1, LocationID: 10, Quantity: qty("3")}},
	})
	require.NoError(t, err)

	got, trs, err := svc.GetDocument(ctx, doc.Number)
	require.NoError(t, err)
	require.Equal(t, doc.Number, got.Number)
	require.Len(t, trs, 1)

	_, _, err = svc.GetDocument(ctx, fmt.Sprintf("RCV-19700101-%04d", 1))
	require.ErrorIs(t, err, shared.ErrNotFound)
}
