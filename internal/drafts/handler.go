package drafts

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warelog/warelog/internal/ops"
	"github.com/warelog/warelog/internal/platform/httpx"
	"github.com/warelog/warelog/internal/shared"
)

// Poster posts completed drafts. Satisfied by ops.Service.
type Poster interface {
	PostReceipt(ctx context.Context, in ops.ReceiptInput) (ops.Document, error)
	PostShipment(ctx context.Context, in ops.ShipmentInput) (ops.Document, error)
	PostMovement(ctx context.Context, in ops.MovementInput) (ops.Document, error)
}

// Handler exposes draft staging endpoints.
type Handler struct {
	logger *slog.Logger
	store  *Store
	poster Poster
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, store *Store, poster Poster) *Handler {
	return &Handler{logger: logger, store: store, poster: poster}
}

// RegisterRoutes mounts the draft routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Get("/", h.getDraft)
		r.Delete("/", h.clearDraft)
		r.Put("/header", h.setHeader)
		r.Post("/items", h.addItem)
		r.Delete("/items/{index}", h.removeItem)
		r.Post("/complete", h.complete)
	})
}

func draftKind(r *http.Request) (Kind, error) {
	kind := Kind(chi.URLParam(r, "kind"))
	if !ValidKind(kind) {
		return "", shared.Invalidf("unknown draft kind %q", kind)
	}
	return kind, nil
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.store.Get(r.Context(), kind, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) clearDraft(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.Clear(r.Context(), kind, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type headerPayload struct {
	Counterparty string `json:"counterparty"`
	Comments     string `json:"comments"`
}

func (h *Handler) setHeader(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload headerPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	d, err := h.store.SetHeader(r.Context(), kind, shared.ActorFromContext(r.Context()), payload.Counterparty, payload.Comments)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var item Item
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	d, err := h.store.AddItem(r.Context(), kind, shared.ActorFromContext(r.Context()), item)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "index must be an integer")
		return
	}
	d, err := h.store.RemoveItem(r.Context(), kind, shared.ActorFromContext(r.Context()), index)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// complete posts the draft through the engine and clears it on success.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	kind, err := draftKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()
	actorID := shared.ActorFromContext(ctx)

	d, err := h.store.Get(ctx, kind, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(d.Items) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "draft has no items")
		return
	}

	doc, err := h.post(ctx, actorID, d)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.Clear(ctx, kind, actorID); err != nil {
		h.logger.Warn("draft cleanup failed", "kind", kind, "actor_id", actorID, "error", err)
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"document_number": doc.Number,
		"operation":       doc.Operation,
		"status":          doc.Status,
	})
}

func (h *Handler) post(ctx context.Context, actorID int64, d Draft) (ops.Document, error) {
	switch d.Kind {
	case KindReceipt:
		in := ops.ReceiptInput{Supplier: d.Counterparty, ActorID: actorID, Ref: d.Ref}
		for _, item := range d.Items {
			expiry, err := parseDate(item.ExpiryDate)
			if err != nil {
				return ops.Document{}, shared.Invalidf("expiry_date must be YYYY-MM-DD")
			}
			in.Lines = append(in.Lines, ops.ReceiptLine{
				ProductID:     item.ProductID,
				LocationID:    item.LocationID,
				Quantity:      item.Quantity,
				BatchNumber:   item.BatchNumber,
				PurchasePrice: item.Price,
				ExpiryDate:    expiry,
			})
		}
		return h.poster.PostReceipt(ctx, in)
	case KindShipment:
		in := ops.ShipmentInput{Customer: d.Counterparty, ActorID: actorID, Ref: d.Ref}
		for _, item := range d.Items {
			in.Lines = append(in.Lines, ops.ShipmentLine{
				ProductID:  item.ProductID,
				LocationID: item.LocationID,
				Quantity:   item.Quantity,
				BatchID:    item.BatchID,
				Price:      item.Price,
			})
		}
		return h.poster.PostShipment(ctx, in)
	case KindMovement:
		in := ops.MovementInput{Comments: d.Comments, ActorID: actorID, Ref: d.Ref}
		for _, item := range d.Items {
			in.Lines = append(in.Lines, ops.MovementLine{
				ProductID:    item.ProductID,
				LocationFrom: item.LocationFrom,
				LocationTo:   item.LocationTo,
				Quantity:     item.Quantity,
				BatchID:      item.BatchID,
			})
		}
		return h.poster.PostMovement(ctx, in)
	default:
		return ops.Document{}, shared.Invalidf("unknown draft kind %q", d.Kind)
	}
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
