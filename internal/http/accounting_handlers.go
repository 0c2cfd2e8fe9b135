package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

type centerRequest struct {
	Name              string          `json:"name" validate:"required"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	ShippingPolicy    string          `json:"shipping_policy" validate:"omitempty,oneof=manual percent fixed"`
	ShippingPercent   decimal.Decimal `json:"shipping_percent"`
	ShippingMin       decimal.Decimal `json:"shipping_min"`
	ShippingMax       decimal.Decimal `json:"shipping_max"`
	ShippingFixed     decimal.Decimal `json:"shipping_fixed"`
}

type centerPatchRequest struct {
	Name              *string          `json:"name"`
	CommissionPercent *decimal.Decimal `json:"commission_percent"`
	ShippingPolicy    *string          `json:"shipping_policy" validate:"omitempty,oneof=manual percent fixed"`
	ShippingPercent   *decimal.Decimal `json:"shipping_percent"`
	ShippingMin       *decimal.Decimal `json:"shipping_min"`
	ShippingMax       *decimal.Decimal `json:"shipping_max"`
	ShippingFixed     *decimal.Decimal `json:"shipping_fixed"`
}

type categoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type commissionRequest struct {
	CenterID   int64            `json:"center_id" validate:"required,gt=0"`
	CategoryID int64            `json:"category_id" validate:"required,gt=0"`
	Percent    *decimal.Decimal `json:"percent" validate:"required"`
}

type settlementRequest struct {
	CenterID  int64            `json:"center_id" validate:"required,gt=0"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	SettledAt string           `json:"settled_at"`
	Note      *string          `json:"note"`
}

type cashRequest struct {
	Kind        string           `json:"kind" validate:"required,oneof=deposit withdraw"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Source      *string          `json:"source"`
	Description *string          `json:"description"`
	OccurredAt  string           `json:"occurred_at"`
}

func (h *Handler) ListCenters(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCenters(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) GetCenter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	center, err := h.svc.GetCenter(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, center)
}

func (h *Handler) CreateCenter(w http.ResponseWriter, r *http.Request) {
	var req centerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	center, err := h.svc.CreateCenter(r.Context(), domain.CenterInput{
		Name:              req.Name,
		CommissionPercent: req.CommissionPercent,
		ShippingPolicy:    domain.ShippingPolicy(req.ShippingPolicy),
		ShippingPercent:   req.ShippingPercent,
		ShippingMin:       req.ShippingMin,
		ShippingMax:       req.ShippingMax,
		ShippingFixed:     req.ShippingFixed,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, center)
}

// PatchCenter overlays the supplied fields on the stored center.
func (h *Handler) PatchCenter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req centerPatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	current, err := h.svc.GetCenter(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	input := domain.CenterInput{
		Name:              current.Name,
		CommissionPercent: current.CommissionPercent,
		ShippingPolicy:    current.ShippingPolicy,
		ShippingPercent:   current.ShippingPercent,
		ShippingMin:       current.ShippingMin,
		ShippingMax:       current.ShippingMax,
		ShippingFixed:     current.ShippingFixed,
	}
	if req.Name != nil {
		input.Name = *req.Name
	}
	if req.CommissionPercent != nil {
		input.CommissionPercent = *req.CommissionPercent
	}
	if req.ShippingPolicy != nil {
		input.ShippingPolicy = domain.ShippingPolicy(*req.ShippingPolicy)
	}
	if req.ShippingPercent != nil {
		input.ShippingPercent = *req.ShippingPercent
	}
	if req.ShippingMin != nil {
		input.ShippingMin = *req.ShippingMin
	}
	if req.ShippingMax != nil {
		input.ShippingMax = *req.ShippingMax
	}
	if req.ShippingFixed != nil {
		input.ShippingFixed = *req.ShippingFixed
	}

	center, err := h.svc.UpdateCenter(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, center)
}

func (h *Handler) DeleteCenter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCenter(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CenterReceivable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.CenterReceivable(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListReceivables(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListReceivables(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	category, err := h.svc.CreateCategory(r.Context(), domain.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	commission, err := h.svc.SetCommission(r.Context(), req.CenterID, req.CategoryID, *req.Percent)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commission)
}

func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	centerID, err := parseOptionalInt64(r.URL.Query().Get("center_id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListCommissions(r.Context(), centerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.SettlementFilter{}
	var err error
	if filter.CenterID, err = parseOptionalInt64(query.Get("center_id")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.From, err = parseOptionalTime(query.Get("from")); err != nil {
		writeBadRequest(w, "from: "+err.Error())
		return
	}
	if filter.To, err = parseOptionalTime(query.Get("to")); err != nil {
		writeBadRequest(w, "to: "+err.Error())
		return
	}
	if filter.Limit, err = parseOptionalInt(query.Get("limit"), 200); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = parseOptionalInt(query.Get("offset"), 0); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListSettlements(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	settledAt, err := parseOptionalTime(req.SettledAt)
	if err != nil {
		writeBadRequest(w, "settled_at: "+err.Error())
		return
	}
	input := domain.SettlementInput{CenterID: req.CenterID, Amount: *req.Amount, Note: req.Note}
	if settledAt != nil {
		input.SettledAt = *settledAt
	}
	settlement, err := h.svc.CreateSettlement(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (h *Handler) DeleteSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteSettlement(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCashTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.CashFilter{}
	if raw := query.Get("kind"); raw != "" {
		kind := domain.CashKind(raw)
		filter.Kind = &kind
	}
	var err error
	if filter.From, err = parseOptionalTime(query.Get("from")); err != nil {
		writeBadRequest(w, "from: "+err.Error())
		return
	}
	if filter.To, err = parseOptionalTime(query.Get("to")); err != nil {
		writeBadRequest(w, "to: "+err.Error())
		return
	}
	if filter.Limit, err = parseOptionalInt(query.Get("limit"), 200); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = parseOptionalInt(query.Get("offset"), 0); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListCashTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) CreateCashTransaction(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	occurredAt, err := parseOptionalTime(req.OccurredAt)
	if err != nil {
		writeBadRequest(w, "occurred_at: "+err.Error())
		return
	}
	input := domain.CashInput{
		Kind:        domain.CashKind(req.Kind),
		Amount:      *req.Amount,
		Source:      req.Source,
		Description: req.Description,
	}
	if occurredAt != nil {
		input.OccurredAt = *occurredAt
	}
	tx, err := h.svc.CreateCashTransaction(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) DeleteCashTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCashTransaction(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CashBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.CashBalance(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ProductProfit(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ProductProfit(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) DailySales(w http.ResponseWriter, r *http.Request) {
	days, err := parseOptionalInt(r.URL.Query().Get("days"), 30)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	items, err := h.svc.DailySales(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}
