package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/internal/service"
	"shopsy-inventory-api/pkg/apierror"
	"shopsy-inventory-api/pkg/response"
)

// maxBodyBytes bounds request bodies of the inventory endpoints.
const maxBodyBytes = 1 << 20

// InventoryHandler handles stock record HTTP requests.
type InventoryHandler struct {
	stockService *service.StockService
	log          *zap.Logger
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(stockService *service.StockService, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		stockService: stockService,
		log:          logger.OrNop(log).Named("inventory_handler"),
	}
}

// MutationResponse is returned by the quantity-changing endpoints.
type MutationResponse struct {
	Status    string              `json:"status"`
	Message   string              `json:"message"`
	Inventory model.StockSnapshot `json:"inventory"`
}

// CreateRecordRequest is the body of POST /api/v1/inventory.
type CreateRecordRequest struct {
	ProductID         string   `json:"product_id"`
	Quantity          quantity `json:"quantity_available"`
	LowStockThreshold *int     `json:"low_stock_threshold"`
}

type quantityRequest struct {
	Quantity quantity `json:"quantity"`
}

// quantity accepts a JSON number or a numeric string. Absent means zero.
type quantity int

func (q *quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*q = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("quantity must be an integer, got %s", string(data))
	}
	*q = quantity(n)
	return nil
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apierror.BadRequest("failed to read request body")
	}
	defer r.Body.Close()

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierror.InvalidQuantity("invalid JSON body: " + err.Error())
	}
	return nil
}

// List handles GET /api/v1/inventory
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, total, err := h.stockService.ListRecords(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	snapshots := make([]model.StockSnapshot, len(records))
	for i, rec := range records {
		snapshots[i] = rec.Snapshot()
	}
	response.JSONWithMeta(w, http.StatusOK, snapshots, page, limit, total)
}

// Create handles POST /api/v1/inventory
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "product_id", Message: "product_id is required"}))
		return
	}

	threshold := model.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}

	rec, err := h.stockService.CreateRecord(r.Context(), req.ProductID, int(req.Quantity), threshold)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.Created(w, rec.Snapshot())
}

// Get handles GET /api/v1/inventory/{id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.stockService.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.OK(w, rec.Snapshot())
}

// CheckStock handles GET /api/v1/inventory/check_stock?product_ids=a,b
// Ids may be given comma separated, as repeated parameters, or both.
func (h *InventoryHandler) CheckStock(w http.ResponseWriter, r *http.Request) {
	var productIDs []string
	for _, v := range r.URL.Query()["product_ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				productIDs = append(productIDs, id)
			}
		}
	}
	if len(productIDs) == 0 {
		response.Error(w, apierror.BadRequest("product_ids parameter required"))
		return
	}

	snapshots, err := h.stockService.CheckStock(r.Context(), productIDs)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.OK(w, snapshots)
}

// Events handles GET /api/v1/inventory/{id}/events
func (h *InventoryHandler) Events(w http.ResponseWriter, r *http.Request) {
	entries, err := h.stockService.RecentEvents(r.Context(), chi.URLParam(r, "id"), service.DefaultRecentEvents)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.OK(w, entries)
}

// ReserveStock handles POST /api/v1/inventory/{id}/reserve_stock
func (h *InventoryHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Reserved %d units", h.stockService.ReserveStock)
}

// ReleaseStock handles POST /api/v1/inventory/{id}/release_stock
func (h *InventoryHandler) ReleaseStock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Released %d units", h.stockService.ReleaseStock)
}

// ConfirmSale handles POST /api/v1/inventory/{id}/confirm_sale
func (h *InventoryHandler) ConfirmSale(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Confirmed sale of %d units", h.stockService.ConfirmSale)
}

// SetQuantity handles PUT /api/v1/inventory/{id}/quantity
func (h *InventoryHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Available quantity set to %d", h.stockService.SetAvailableQuantity)
}

type mutateFunc func(ctx context.Context, id string, quantity int) (*model.StockRecord, error)

func (h *InventoryHandler) mutate(w http.ResponseWriter, r *http.Request, message string, fn mutateFunc) {
	var req quantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	rec, err := fn(r.Context(), chi.URLParam(r, "id"), int(req.Quantity))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.OK(w, MutationResponse{
		Status:    "success",
		Message:   fmt.Sprintf(message, int(req.Quantity)),
		Inventory: rec.Snapshot(),
	})
}

// DeleteByProduct handles DELETE /api/v1/inventory/product/{product_id}
func (h *InventoryHandler) DeleteByProduct(w http.ResponseWriter, r *http.Request) {
	rec, err := h.stockService.DeleteByProduct(r.Context(), chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"status":     "deleted",
		"record_id":  rec.ID,
		"product_id": rec.ProductID,
	})
}
