package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warehouse/internal/domain"
	"warehouse/internal/logger"
	"warehouse/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type productRequest struct {
	Name    string  `json:"name" validate:"required"`
	Color   *string `json:"color"`
	Barcode *string `json:"barcode"`
}

type productPatchRequest struct {
	Name    *string `json:"name"`
	Color   *string `json:"color"`
	Barcode *string `json:"barcode"`
}

type productCategoryRequest struct {
	CategoryID *int64 `json:"category_id" validate:"omitempty,gt=0"`
}

type inflowRequest struct {
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost   *decimal.Decimal `json:"unit_cost" validate:"required"`
	ReceivedAt string           `json:"received_at"`
	FXRate     *decimal.Decimal `json:"fx_rate"`
}

type inflowPatchRequest struct {
	ProductID   *int64           `json:"product_id" validate:"omitempty,gt=0"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitCost    *decimal.Decimal `json:"unit_cost"`
	ReceivedAt  *string          `json:"received_at"`
	FXRate      *decimal.Decimal `json:"fx_rate"`
	ClearFXRate bool             `json:"clear_fx_rate"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListProducts(r.Context(), domain.ProductFilter{
		Search: query.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	product, err := h.svc.CreateProduct(r.Context(), domain.ProductInput{
		Name:    req.Name,
		Color:   req.Color,
		Barcode: req.Barcode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) PatchProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productPatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	product, err := h.svc.UpdateProduct(r.Context(), id, domain.ProductPatch{
		Name:    req.Name,
		Color:   req.Color,
		Barcode: req.Barcode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ProductBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ProductBatches(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) FIFOCost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	quantity, err := parseDecimal(r.URL.Query().Get("quantity"), "quantity")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	cost, err := h.svc.PreviewCost(r.Context(), id, quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

func (h *Handler) SetProductCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productCategoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.svc.SetProductCategory(r.Context(), id, req.CategoryID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	product, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateInflow(w http.ResponseWriter, r *http.Request) {
	var req inflowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	receivedAt, err := parseOptionalTime(req.ReceivedAt)
	if err != nil {
		writeBadRequest(w, "received_at: "+err.Error())
		return
	}
	input := domain.InflowInput{
		ProductID: req.ProductID,
		Quantity:  *req.Quantity,
		UnitCost:  *req.UnitCost,
	}
	if receivedAt != nil {
		input.ReceivedAt = *receivedAt
	}
	if req.FXRate != nil {
		input.FXRate = decimal.NewNullDecimal(*req.FXRate)
	}
	batch, err := h.svc.ReceiveInflow(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (h *Handler) PatchInflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req inflowPatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.ClearFXRate && req.FXRate != nil {
		writeBadRequest(w, "fx_rate and clear_fx_rate are mutually exclusive")
		return
	}
	patch := domain.InflowPatch{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
	}
	if req.ReceivedAt != nil {
		receivedAt, err := parseRequiredTime(*req.ReceivedAt)
		if err != nil {
			writeBadRequest(w, "received_at: "+err.Error())
			return
		}
		patch.ReceivedAt = receivedAt
	}
	switch {
	case req.ClearFXRate:
		patch.SetFXRate = true
	case req.FXRate != nil:
		patch.SetFXRate = true
		patch.FXRate = decimal.NewNullDecimal(*req.FXRate)
	}
	batch, err := h.svc.UpdateInflow(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) DeleteInflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteInflow(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) InventoryAudit(w http.ResponseWriter, r *http.Request) {
	violations, err := h.svc.AuditInventory(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if violations == nil {
		violations = []domain.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    len(violations) == 0,
		"items": violations,
		"count": len(violations),
	})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	if err := validateRequest(out); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

func parseOptionalInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %s", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("value cannot be negative")
	}
	return parsed, nil
}

func parseOptionalBool(raw, name string) (*bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &parsed, nil
}

func parseDecimal(raw, name string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", name)
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return parsed, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid time")
}

func parseRequiredTime(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("time is required")
	}
	return parseOptionalTime(raw)
}

func parseOptionalInt64(raw string) (*int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return nil, fmt.Errorf("invalid id value: %s", raw)
	}
	return &parsed, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": message, "code": code})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, message)
}

// writeServiceError maps ledger error codes to HTTP statuses. Anything
// without a code is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var lerr *domain.Error
	if !errors.As(err, &lerr) {
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	status := http.StatusInternalServerError
	switch lerr.Code {
	case domain.CodeInvalidInput:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeInsufficientStock, domain.CodeBatchInUse, domain.CodeConstraintViolation:
		status = http.StatusConflict
	}
	writeError(w, status, lerr.Code, lerr.Message)
}
