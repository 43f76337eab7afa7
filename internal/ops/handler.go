package ops

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warelog/warelog/internal/observability"
	"github.com/warelog/warelog/internal/platform/httpx"
	"github.com/warelog/warelog/internal/shared"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	service  *Service
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs Handler. metrics may be nil.
func NewHandler(service *Service, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		metrics:  metrics,
		logger:   logger,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the operation endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/receipts", h.postReceipt)
	r.Post("/shipments", h.postShipment)
	r.Post("/movements", h.postMovement)
	r.Post("/inventory-counts", h.postInventoryCount)
	r.Get("/availability", h.getAvailability)
	r.Get("/documents", h.listDocuments)
	r.Get("/documents/{number}", h.getDocument)
}

type receiptLineRequest struct {
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	LocationID    int64           `json:"location_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	BatchNumber   string          `json:"batch_number" validate:"max=100"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	ExpiryDate    string          `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
}

type receiptRequest struct {
	Supplier string               `json:"supplier" validate:"max=255"`
	Lines    []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
	Ref      string               `json:"ref" validate:"max=100"`
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := ReceiptInput{
		Supplier: req.Supplier,
		ActorID:  shared.ActorFromContext(r.Context()),
		Ref:      req.Ref,
	}
	for _, line := range req.Lines {
		expiry, err := parseDate(line.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
			return
		}
		in.Lines = append(in.Lines, ReceiptLine{
			ProductID:     line.ProductID,
			LocationID:    line.LocationID,
			Quantity:      line.Quantity,
			BatchNumber:   line.BatchNumber,
			PurchasePrice: line.PurchasePrice,
			ExpiryDate:    expiry,
		})
	}

	doc, err := h.service.PostReceipt(r.Context(), in)
	h.observe(OperationReceipt, err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

type shipmentLineRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	BatchID    *int64          `json:"batch_id" validate:"omitempty,gt=0"`
	Price      decimal.Decimal `json:"price"`
}

type shipmentRequest struct {
	Customer string                `json:"customer" validate:"max=255"`
	Lines    []shipmentLineRequest `json:"lines" validate:"required,min=1,dive"`
	Ref      string                `json:"ref" validate:"max=100"`
}

func (h *Handler) postShipment(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := ShipmentInput{
		Customer: req.Customer,
		ActorID:  shared.ActorFromContext(r.Context()),
		Ref:      req.Ref,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, ShipmentLine{
			ProductID:  line.ProductID,
			LocationID: line.LocationID,
			Quantity:   line.Quantity,
			BatchID:    line.BatchID,
			Price:      line.Price,
		})
	}

	doc, err := h.service.PostShipment(r.Context(), in)
	h.observe(OperationShipment, err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

type movementLineRequest struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	LocationFrom int64           `json:"location_from" validate:"required,gt=0"`
	LocationTo   int64           `json:"location_to" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	BatchID      *int64          `json:"batch_id" validate:"omitempty,gt=0"`
}

type movementRequest struct {
	Comments string                `json:"comments" validate:"max=1000"`
	Lines    []movementLineRequest `json:"lines" validate:"required,min=1,dive"`
	Ref      string                `json:"ref" validate:"max=100"`
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := MovementInput{
		Comments: req.Comments,
		ActorID:  shared.ActorFromContext(r.Context()),
		Ref:      req.Ref,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, MovementLine{
			ProductID:    line.ProductID,
			LocationFrom: line.LocationFrom,
			LocationTo:   line.LocationTo,
			Quantity:     line.Quantity,
			BatchID:      line.BatchID,
		})
	}

	doc, err := h.service.PostMovement(r.Context(), in)
	h.observe(OperationMovement, err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

type inventoryCountRequest struct {
	ProductID int64                      `json:"product_id" validate:"required,gt=0"`
	Counted   map[string]decimal.Decimal `json:"counted" validate:"required,min=1"`
	Comments  string                     `json:"comments" validate:"max=1000"`
	Ref       string                     `json:"ref" validate:"max=100"`
}

func (h *Handler) postInventoryCount(w http.ResponseWriter, r *http.Request) {
	var req inventoryCountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	counted := make(map[int64]decimal.Decimal, len(req.Counted))
	for key, qty := range req.Counted {
		locationID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || locationID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "counted keys must be location ids")
			return
		}
		counted[locationID] = qty
	}

	doc, err := h.service.PostInventoryCount(r.Context(), InventoryCountInput{
		ProductID: req.ProductID,
		Counted:   counted,
		Comments:  req.Comments,
		ActorID:   shared.ActorFromContext(r.Context()),
		Ref:       req.Ref,
	})
	h.observe(OperationInventory, err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	productID, err := queryInt64(r, "product_id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	locationID, err := queryInt64(r, "location_id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id is required")
		return
	}
	var batchID *int64
	if raw := r.URL.Query().Get("batch_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "batch_id must be a positive integer")
			return
		}
		batchID = &id
	}

	available, err := h.service.Available(r.Context(), productID, locationID, batchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":  productID,
		"location_id": locationID,
		"available":   available,
	})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	doc, trs, err := h.service.GetDocument(r.Context(), number)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp := struct {
		documentResponse
		Transactions []transactionResponse `json:"transactions"`
	}{documentResponse: toDocumentResponse(doc)}
	for _, tr := range trs {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ProductID:    tr.ProductID,
			BatchID:      tr.BatchID,
			LocationFrom: tr.LocationFrom,
			LocationTo:   tr.LocationTo,
			Quantity:     tr.Quantity,
			Price:        tr.Price,
			CreatedAt:    tr.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	f := DocumentFilter{}
	if op := r.URL.Query().Get("operation"); op != "" {
		switch OperationType(op) {
		case OperationReceipt, OperationShipment, OperationMovement, OperationInventory:
			f.Operation = OperationType(op)
		default:
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown operation filter")
			return
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		f.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		f.To = &t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		f.Offset, _ = strconv.Atoi(raw)
	}

	docs, err := h.service.ListDocuments(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": out})
}

type documentResponse struct {
	DocumentNumber string          `json:"document_number"`
	Operation      OperationType   `json:"operation"`
	Status         DocumentStatus  `json:"status"`
	Date           time.Time       `json:"date"`
	Counterparty   string          `json:"counterparty,omitempty"`
	Comments       string          `json:"comments,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type transactionResponse struct {
	ProductID    int64           `json:"product_id"`
	BatchID      *int64          `json:"batch_id,omitempty"`
	LocationFrom *int64          `json:"location_from,omitempty"`
	LocationTo   *int64          `json:"location_to,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toDocumentResponse(doc Document) documentResponse {
	return documentResponse{
		DocumentNumber: doc.Number,
		Operation:      doc.Operation,
		Status:         doc.Status,
		Date:           doc.Date,
		Counterparty:   doc.Counterparty,
		Comments:       doc.Comments,
		TotalAmount:    doc.TotalAmount,
	}
}

func (h *Handler) observe(op OperationType, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.metrics.OperationPosted(string(op), outcome)
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

func queryInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, shared.Invalidf("%s must be a positive integer", name)
	}
	return v, nil
}
