// Package drafts holds per-user staging buffers for operations being
// assembled across several requests. Drafts live in Redis with a TTL and are
// posted through the engine on completion.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/shared"
)

// Kind names the operation a draft is staged for.
type Kind string

const (
	KindReceipt  Kind = "receipt"
	KindShipment Kind = "shipment"
	KindMovement Kind = "movement"
)

// ValidKind reports whether k is a stageable operation.
func ValidKind(k Kind) bool {
	switch k {
	case KindReceipt, KindShipment, KindMovement:
		return true
	}
	return false
}

// Item is one staged line. Fields are interpreted per kind: receipts use
// LocationID/BatchNumber, shipments LocationID/BatchID, movements
// LocationFrom/LocationTo.
type Item struct {
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	LocationID   int64           `json:"location_id,omitempty"`
	LocationFrom int64           `json:"location_from,omitempty"`
	LocationTo   int64           `json:"location_to,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	BatchID      *int64          `json:"batch_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	ExpiryDate   string          `json:"expiry_date,omitempty"`
}

// Draft is a staged operation. Ref is assigned on first save and survives
// edits, so a draft completed twice posts only once.
type Draft struct {
	Kind         Kind      `json:"kind"`
	Ref          string    `json:"ref,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Comments     string    `json:"comments,omitempty"`
	Items        []Item    `json:"items"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists drafts in Redis, one key per (kind, actor).
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs Store. ttl bounds how long an untouched draft survives.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func draftKey(kind Kind, actorID int64) string {
	return fmt.Sprintf("warelog:draft:%s:%d", kind, actorID)
}

// Get loads the actor's draft for the kind. A missing draft comes back empty,
// not as an error.
func (s *Store) Get(ctx context.Context, kind Kind, actorID int64) (Draft, error) {
	if !ValidKind(kind) {
		return Draft{}, shared.Invalidf("unknown draft kind %q", kind)
	}
	raw, err := s.client.Get(ctx, draftKey(kind, actorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{Kind: kind}, nil
	}
	if err != nil {
		return Draft{}, fmt.Errorf("drafts: get: %w", err)
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return Draft{}, fmt.Errorf("drafts: decode: %w", err)
	}
	return d, nil
}

// Save stores the draft and refreshes its TTL, returning the stored state.
func (s *Store) Save(ctx context.Context, actorID int64, d Draft) (Draft, error) {
	if !ValidKind(d.Kind) {
		return Draft{}, shared.Invalidf("unknown draft kind %q", d.Kind)
	}
	if d.Ref == "" {
		d.Ref = uuid.NewString()
	}
	d.UpdatedAt = time.Now()
	raw, err := json.Marshal(d)
	if err != nil {
		return Draft{}, fmt.Errorf("drafts: encode: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(d.Kind, actorID), raw, s.ttl).Err(); err != nil {
		return Draft{}, fmt.Errorf("drafts: save: %w", err)
	}
	return d, nil
}

// AddItem appends one line to the draft.
func (s *Store) AddItem(ctx context.Context, kind Kind, actorID int64, item Item) (Draft, error) {
	if !item.Quantity.IsPositive() {
		return Draft{}, shared.Invalidf("quantity must be positive")
	}
	d, err := s.Get(ctx, kind, actorID)
	if err != nil {
		return Draft{}, err
	}
	d.Items = append(d.Items, item)
	return s.Save(ctx, actorID, d)
}

// RemoveItem drops the line at index.
func (s *Store) RemoveItem(ctx context.Context, kind Kind, actorID int64, index int) (Draft, error) {
	d, err := s.Get(ctx, kind, actorID)
	if err != nil {
		return Draft{}, err
	}
	if index < 0 || index >= len(d.Items) {
		return Draft{}, shared.Invalidf("no draft item at index %d", index)
	}
	d.Items = append(d.Items[:index], d.Items[index+1:]...)
	return s.Save(ctx, actorID, d)
}

// SetHeader updates the draft's counterparty and comments without touching lines.
func (s *Store) SetHeader(ctx context.Context, kind Kind, actorID int64, counterparty, comments string) (Draft, error) {
	d, err := s.Get(ctx, kind, actorID)
	if err != nil {
		return Draft{}, err
	}
	d.Counterparty = counterparty
	d.Comments = comments
	return s.Save(ctx, actorID, d)
}

// Clear removes the draft.
func (s *Store) Clear(ctx context.Context, kind Kind, actorID int64) error {
	if !ValidKind(kind) {
		return shared.Invalidf("unknown draft kind %q", kind)
	}
	if err := s.client.Del(ctx, draftKey(kind, actorID)).Err(); err != nil {
		return fmt.Errorf("drafts: clear: %w", err)
	}
	return nil
}
