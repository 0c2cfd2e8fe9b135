package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
	"warehouse/internal/service"
)

type saleRequest struct {
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	CenterID   int64            `json:"center_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	SellPrice  *decimal.Decimal `json:"sell_price" validate:"required"`
	Commission *decimal.Decimal `json:"commission"`
	Shipping   *decimal.Decimal `json:"shipping"`
	SoldAt     string           `json:"sold_at"`
	OrderRef   *string          `json:"order_ref"`
}

type quoteRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	CenterID  int64            `json:"center_id" validate:"required,gt=0"`
	Quantity  *decimal.Decimal `json:"quantity" validate:"required"`
	SellPrice *decimal.Decimal `json:"sell_price" validate:"required"`
	Shipping  *decimal.Decimal `json:"shipping"`
}

func (h *Handler) ListOutflows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.OutflowFilter{Search: query.Get("search")}
	var err error

	if filter.From, err = parseOptionalTime(query.Get("from")); err != nil {
		writeBadRequest(w, "from: "+err.Error())
		return
	}
	if filter.To, err = parseOptionalTime(query.Get("to")); err != nil {
		writeBadRequest(w, "to: "+err.Error())
		return
	}
	if filter.CenterID, err = parseOptionalInt64(query.Get("center_id")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.ProductID, err = parseOptionalInt64(query.Get("product_id")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Returned, err = parseOptionalBool(query.Get("returned"), "returned"); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Paid, err = parseOptionalBool(query.Get("paid"), "paid"); err != nil {
		writeBadRequest(w, err.Error())
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

	items, err := h.svc.ListOutflows(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *Handler) GetOutflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outflow, err := h.svc.GetOutflow(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outflow)
}

func (h *Handler) CreateOutflow(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	soldAt, err := parseOptionalTime(req.SoldAt)
	if err != nil {
		writeBadRequest(w, "sold_at: "+err.Error())
		return
	}
	sale := service.SaleRequest{
		ProductID:     req.ProductID,
		CenterID:      req.CenterID,
		Quantity:      *req.Quantity,
		UnitSellPrice: *req.SellPrice,
		Commission:    req.Commission,
		Shipping:      req.Shipping,
		OrderRef:      req.OrderRef,
	}
	if soldAt != nil {
		sale.SoldAt = *soldAt
	}
	outflow, err := h.svc.Sell(r.Context(), sale)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outflow)
}

func (h *Handler) QuoteOutflow(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	quote, err := h.svc.Quote(r.Context(), service.QuoteRequest{
		ProductID:     req.ProductID,
		CenterID:      req.CenterID,
		Quantity:      *req.Quantity,
		UnitSellPrice: *req.SellPrice,
		Shipping:      req.Shipping,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) DeleteOutflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteOutflow(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleReturned(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outflow, err := h.svc.ToggleReturned(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outflow)
}

func (h *Handler) TogglePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outflow, err := h.svc.TogglePaid(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outflow)
}
