package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
	"warehouse/internal/metrics"
	"warehouse/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	store   Store
	engine  *inventory.Engine
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(store Store, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:   store,
		engine:  inventory.NewEngine(store),
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to default business dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SaleRequest is a sale as submitted by a client. Nil Commission or Shipping
// are derived from the center's configuration.
type SaleRequest struct {
	ProductID     int64
	CenterID      int64
	Quantity      decimal.Decimal
	UnitSellPrice decimal.Decimal
	Commission    *decimal.Decimal
	Shipping      *decimal.Decimal
	SoldAt        time.Time
	OrderRef      *string
}

type QuoteRequest struct {
	ProductID     int64
	CenterID      int64
	Quantity      decimal.Decimal
	UnitSellPrice decimal.Decimal
	Shipping      *decimal.Decimal
}

// SaleQuote combines the commission/shipping quote with the FIFO cost the
// sale would carry if committed now.
type SaleQuote struct {
	pricing.Quote
	UnitCOGS  decimal.Decimal `json:"unit_cogs"`
	TotalCOGS decimal.Decimal `json:"total_cogs"`
	Profit    decimal.Decimal `json:"profit"`
}

// Products

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.store.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return domain.Product{}, domain.Invalid("name is required")
	}
	input.Color = normalizeNullable(input.Color)
	input.Barcode = normalizeNullable(input.Barcode)
	return s.store.CreateProduct(ctx, input)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Product{}, domain.Invalid("name cannot be empty")
		}
		patch.Name = &name
	}
	patch.Color = trimPtr(patch.Color)
	patch.Barcode = trimPtr(patch.Barcode)
	return s.store.UpdateProduct(ctx, id, patch)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *Service) SetProductCategory(ctx context.Context, productID int64, categoryID *int64) error {
	return s.store.SetProductCategory(ctx, productID, categoryID)
}

// ProductBatches lists every batch of a product in FIFO order.
func (s *Service) ProductBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.ListBatches(ctx, productID)
}

func (s *Service) PreviewCost(ctx context.Context, productID int64, quantity decimal.Decimal) (inventory.CostAllocation, error) {
	return s.engine.PreviewCost(ctx, productID, quantity)
}

// Inflows

func (s *Service) ReceiveInflow(ctx context.Context, input domain.InflowInput) (domain.InflowBatch, error) {
	input.ReceivedAt = s.businessDay(input.ReceivedAt)
	if input.FXRate.Valid && !input.FXRate.Decimal.IsPositive() {
		return domain.InflowBatch{}, domain.Invalid("fx_rate must be positive")
	}
	batch, err := s.engine.ReceiveInflow(ctx, input)
	s.metrics.RecordInflow(resultCode(err))
	if err != nil {
		return domain.InflowBatch{}, err
	}
	s.log.Info("inflow received",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("product_id", batch.ProductID),
		zap.String("quantity", batch.Quantity.String()),
		zap.String("unit_cost", batch.UnitCost.String()),
	)
	return batch, nil
}

func (s *Service) UpdateInflow(ctx context.Context, batchID int64, patch domain.InflowPatch) (domain.InflowBatch, error) {
	if patch.ReceivedAt != nil {
		day := truncateDay(*patch.ReceivedAt)
		patch.ReceivedAt = &day
	}
	if patch.SetFXRate && patch.FXRate.Valid && !patch.FXRate.Decimal.IsPositive() {
		return domain.InflowBatch{}, domain.Invalid("fx_rate must be positive")
	}
	batch, err := s.engine.UpdateInflow(ctx, batchID, patch)
	if err != nil {
		return domain.InflowBatch{}, err
	}
	s.log.Info("inflow updated", zap.Int64("batch_id", batchID))
	return batch, nil
}

func (s *Service) DeleteInflow(ctx context.Context, batchID int64) error {
	if err := s.engine.DeleteInflow(ctx, batchID); err != nil {
		return err
	}
	s.log.Info("inflow deleted", zap.Int64("batch_id", batchID))
	return nil
}

// Outflows

// Sell commits a sale. Commission and shipping the caller leaves out are
// computed from the center and the product's commission category.
func (s *Service) Sell(ctx context.Context, req SaleRequest) (domain.Outflow, error) {
	input := domain.SaleInput{
		ProductID:     req.ProductID,
		CenterID:      req.CenterID,
		Quantity:      req.Quantity,
		UnitSellPrice: req.UnitSellPrice,
		SoldAt:        s.businessDay(req.SoldAt),
		OrderRef:      normalizeNullable(req.OrderRef),
	}

	if req.Commission == nil || req.Shipping == nil {
		quote, err := s.pricingQuote(ctx, req.ProductID, req.CenterID, req.UnitSellPrice, req.Quantity, req.Shipping)
		if err != nil {
			s.metrics.RecordSale(resultCode(err))
			return domain.Outflow{}, err
		}
		input.CommissionAmount = quote.Commission
		input.ShippingCost = quote.Shipping
	}
	if req.Commission != nil {
		input.CommissionAmount = *req.Commission
	}
	if req.Shipping != nil {
		input.ShippingCost = *req.Shipping
	}

	outflow, err := s.engine.CommitSale(ctx, input)
	s.metrics.RecordSale(resultCode(err))
	if err != nil {
		if domain.CodeOf(err) == domain.CodeInsufficientStock {
			s.log.Warn("sale rejected", zap.Int64("product_id", req.ProductID), zap.Error(err))
		}
		return domain.Outflow{}, err
	}
	s.log.Info("sale committed",
		zap.Int64("outflow_id", outflow.ID),
		zap.Int64("product_id", outflow.ProductID),
		zap.Int64("center_id", outflow.CenterID),
		zap.String("quantity", outflow.Quantity.String()),
		zap.String("total_cogs", outflow.TotalCOGS.String()),
		zap.Int("batches", len(outflow.Allocations)),
	)
	return outflow, nil
}

// Quote previews commission, shipping and FIFO cost for a sale without
// committing it.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (SaleQuote, error) {
	if !req.Quantity.IsPositive() {
		return SaleQuote{}, domain.Invalid("quantity must be positive")
	}
	if req.UnitSellPrice.IsNegative() {
		return SaleQuote{}, domain.Invalid("sell_price cannot be negative")
	}
	quote, err := s.pricingQuote(ctx, req.ProductID, req.CenterID, req.UnitSellPrice, req.Quantity, req.Shipping)
	if err != nil {
		return SaleQuote{}, err
	}
	cost, err := s.engine.PreviewCost(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return SaleQuote{}, err
	}
	return SaleQuote{
		Quote:     quote,
		UnitCOGS:  cost.UnitCost,
		TotalCOGS: cost.TotalCost,
		Profit:    quote.Net.Sub(cost.TotalCost),
	}, nil
}

func (s *Service) pricingQuote(ctx context.Context, productID, centerID int64, unitPrice, quantity decimal.Decimal, manualShipping *decimal.Decimal) (pricing.Quote, error) {
	center, err := s.store.GetCenter(ctx, centerID)
	if err != nil {
		return pricing.Quote{}, err
	}
	categoryPercent, err := s.store.CategoryCommission(ctx, centerID, productID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.NewQuote(&center, categoryPercent, unitPrice, quantity, manualShipping), nil
}

func (s *Service) ListOutflows(ctx context.Context, filter domain.OutflowFilter) ([]domain.Outflow, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.store.ListOutflows(ctx, filter)
}

func (s *Service) GetOutflow(ctx context.Context, id int64) (domain.Outflow, error) {
	return s.store.GetOutflow(ctx, id)
}

func (s *Service) DeleteOutflow(ctx context.Context, id int64) error {
	if err := s.engine.DeleteOutflow(ctx, id); err != nil {
		return err
	}
	s.metrics.RecordReversal("delete")
	s.log.Info("outflow deleted", zap.Int64("outflow_id", id))
	return nil
}

func (s *Service) ToggleReturned(ctx context.Context, id int64) (domain.Outflow, error) {
	outflow, err := s.engine.ToggleReturned(ctx, id)
	if err != nil {
		return domain.Outflow{}, err
	}
	kind := "unreturn"
	if outflow.IsReturned {
		kind = "return"
	}
	s.metrics.RecordReversal(kind)
	s.log.Info("outflow return toggled", zap.Int64("outflow_id", id), zap.Bool("returned", outflow.IsReturned))
	return outflow, nil
}

func (s *Service) TogglePaid(ctx context.Context, id int64) (domain.Outflow, error) {
	return s.engine.TogglePaid(ctx, id)
}

// Centers

func (s *Service) CreateCenter(ctx context.Context, input domain.CenterInput) (domain.Center, error) {
	input, err := normalizeCenter(input)
	if err != nil {
		return domain.Center{}, err
	}
	return s.store.CreateCenter(ctx, input)
}

func (s *Service) GetCenter(ctx context.Context, id int64) (domain.Center, error) {
	return s.store.GetCenter(ctx, id)
}

func (s *Service) ListCenters(ctx context.Context) ([]domain.Center, error) {
	return s.store.ListCenters(ctx)
}

func (s *Service) UpdateCenter(ctx context.Context, id int64, input domain.CenterInput) (domain.Center, error) {
	input, err := normalizeCenter(input)
	if err != nil {
		return domain.Center{}, err
	}
	return s.store.UpdateCenter(ctx, id, input)
}

func (s *Service) DeleteCenter(ctx context.Context, id int64) error {
	return s.store.DeleteCenter(ctx, id)
}

// EnsureDefaultCenters creates every seed whose name is not taken yet.
func (s *Service) EnsureDefaultCenters(ctx context.Context, seeds []domain.CenterInput) error {
	if len(seeds) == 0 {
		return nil
	}
	existing, err := s.store.ListCenters(ctx)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(existing))
	for _, c := range existing {
		taken[strings.ToLower(c.Name)] = true
	}
	for _, seed := range seeds {
		if taken[strings.ToLower(strings.TrimSpace(seed.Name))] {
			continue
		}
		center, err := s.CreateCenter(ctx, seed)
		if err != nil {
			return err
		}
		taken[strings.ToLower(center.Name)] = true
		s.log.Info("default center created", zap.Int64("center_id", center.ID), zap.String("name", center.Name))
	}
	return nil
}

func normalizeCenter(input domain.CenterInput) (domain.CenterInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return input, domain.Invalid("name is required")
	}
	if input.ShippingPolicy == "" {
		input.ShippingPolicy = domain.ShippingManual
	}
	if !input.ShippingPolicy.Valid() {
		return input, domain.Invalid("shipping_policy must be manual, percent or fixed")
	}
	if err := checkPercent("commission_percent", input.CommissionPercent); err != nil {
		return input, err
	}
	if err := checkPercent("shipping_percent", input.ShippingPercent); err != nil {
		return input, err
	}
	for name, v := range map[string]decimal.Decimal{
		"shipping_min":   input.ShippingMin,
		"shipping_max":   input.ShippingMax,
		"shipping_fixed": input.ShippingFixed,
	} {
		if v.IsNegative() {
			return input, domain.Invalid("%s cannot be negative", name)
		}
	}
	if input.ShippingMax.IsPositive() && input.ShippingMin.GreaterThan(input.ShippingMax) {
		return input, domain.Invalid("shipping_min cannot exceed shipping_max")
	}
	return input, nil
}

// Commission categories

func (s *Service) CreateCategory(ctx context.Context, input domain.CategoryInput) (domain.CommissionCategory, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return domain.CommissionCategory{}, domain.Invalid("name is required")
	}
	input.Description = normalizeNullable(input.Description)
	return s.store.CreateCategory(ctx, input)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.CommissionCategory, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *Service) SetCommission(ctx context.Context, centerID, categoryID int64, percent decimal.Decimal) (domain.Commission, error) {
	if err := checkPercent("percent", percent); err != nil {
		return domain.Commission{}, err
	}
	return s.store.UpsertCommission(ctx, centerID, categoryID, percent)
}

func (s *Service) ListCommissions(ctx context.Context, centerID *int64) ([]domain.Commission, error) {
	return s.store.ListCommissions(ctx, centerID)
}

// Settlements and cash

func (s *Service) CreateSettlement(ctx context.Context, input domain.SettlementInput) (domain.Settlement, error) {
	if !input.Amount.IsPositive() {
		return domain.Settlement{}, domain.Invalid("amount must be positive")
	}
	if err := domain.CheckScale("amount", input.Amount); err != nil {
		return domain.Settlement{}, err
	}
	input.SettledAt = s.businessDay(input.SettledAt)
	input.Note = normalizeNullable(input.Note)
	settlement, err := s.store.CreateSettlement(ctx, input)
	if err != nil {
		return domain.Settlement{}, err
	}
	s.log.Info("settlement recorded",
		zap.Int64("settlement_id", settlement.ID),
		zap.Int64("center_id", settlement.CenterID),
		zap.String("amount", settlement.Amount.String()),
	)
	return settlement, nil
}

func (s *Service) ListSettlements(ctx context.Context, filter domain.SettlementFilter) ([]domain.Settlement, error) {
	return s.store.ListSettlements(ctx, filter)
}

func (s *Service) DeleteSettlement(ctx context.Context, id int64) error {
	return s.store.DeleteSettlement(ctx, id)
}

func (s *Service) CreateCashTransaction(ctx context.Context, input domain.CashInput) (domain.CashTransaction, error) {
	if !input.Kind.Valid() {
		return domain.CashTransaction{}, domain.Invalid("kind must be deposit or withdraw")
	}
	if !input.Amount.IsPositive() {
		return domain.CashTransaction{}, domain.Invalid("amount must be positive")
	}
	if err := domain.CheckScale("amount", input.Amount); err != nil {
		return domain.CashTransaction{}, err
	}
	input.OccurredAt = s.businessDay(input.OccurredAt)
	input.Source = normalizeNullable(input.Source)
	input.Description = normalizeNullable(input.Description)
	return s.store.CreateCashTransaction(ctx, input)
}

func (s *Service) ListCashTransactions(ctx context.Context, filter domain.CashFilter) ([]domain.CashTransaction, error) {
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, domain.Invalid("kind must be deposit or withdraw")
	}
	return s.store.ListCashTransactions(ctx, filter)
}

func (s *Service) DeleteCashTransaction(ctx context.Context, id int64) error {
	return s.store.DeleteCashTransaction(ctx, id)
}

func (s *Service) CashBalance(ctx context.Context) (domain.CashBalance, error) {
	return s.store.CashBalance(ctx)
}

// Reports

func (s *Service) CenterReceivable(ctx context.Context, centerID int64) (domain.Receivable, error) {
	return s.store.CenterReceivable(ctx, centerID)
}

func (s *Service) ListReceivables(ctx context.Context) ([]domain.Receivable, error) {
	return s.store.ListReceivables(ctx)
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	return s.store.Summary(ctx)
}

func (s *Service) ProductProfit(ctx context.Context) ([]domain.ProductProfit, error) {
	return s.store.ProductProfit(ctx)
}

// DailySales covers the last days days including today. days defaults to 30
// and is capped at 366.
func (s *Service) DailySales(ctx context.Context, days int) ([]domain.DailySales, error) {
	if days <= 0 {
		days = 30
	}
	if days > 366 {
		days = 366
	}
	since := truncateDay(s.now()).AddDate(0, 0, -(days - 1))
	return s.store.DailySales(ctx, since)
}

// Audit

func (s *Service) AuditInventory(ctx context.Context) ([]domain.Violation, error) {
	violations, err := s.engine.CheckInvariants(ctx)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		s.log.Warn("inventory audit found violations", zap.Int("count", len(violations)))
	}
	return violations, nil
}

// RepairStock resets drifted product stock to the sum of batch remainders.
func (s *Service) RepairStock(ctx context.Context) (int, error) {
	repaired, err := s.engine.RepairStock(ctx)
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.log.Warn("product stock repaired", zap.Int("products", repaired))
	}
	return repaired, nil
}

func (s *Service) businessDay(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return truncateDay(t)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func checkPercent(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return domain.Invalid("%s must be between 0 and 100", field)
	}
	return nil
}

func resultCode(err error) string {
	if err == nil {
		return ""
	}
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return "INTERNAL"
}

func normalizeNullable(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// trimPtr keeps an explicit empty string so a patch can clear the field.
func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}
