package batch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warelog/warelog/internal/platform/httpx"
)

// Handler exposes batch lookups.
type Handler struct {
	pool  *pgxpool.Pool
	store *Store
}

// NewHandler builds Handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool, store: NewStore()}
}

// RegisterRoutes mounts the batch routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listAvailable)
	r.Get("/expiring", h.listExpiring)
	r.Get("/{id}", h.getBatch)
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	batches, err := h.store.ListAvailable(r.Context(), h.pool, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		days = d
	}
	batches, err := h.store.Expiring(r.Context(), h.pool, time.Now().AddDate(0, 0, days))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches, "window_days": days})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	b, err := h.store.Get(r.Context(), h.pool, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}
