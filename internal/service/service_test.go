package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"warehouse/internal/domain"
	"warehouse/internal/memstore"
	"warehouse/internal/metrics"
	"warehouse/internal/service"
)

var today = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func newService(t *testing.T) (*service.Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	svc := service.New(memstore.New(), zap.NewNop(), m).WithClock(func() time.Time { return today })
	return svc, m
}

func mustProduct(t *testing.T, svc *service.Service, name string) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), domain.ProductInput{Name: name})
	require.NoError(t, err)
	return p
}

func mustReceive(t *testing.T, svc *service.Service, productID int64, qty, cost string) domain.InflowBatch {
	t.Helper()
	b, err := svc.ReceiveInflow(context.Background(), domain.InflowInput{
		ProductID: productID,
		Quantity:  dec(qty),
		UnitCost:  dec(cost),
	})
	require.NoError(t, err)
	return b
}

func TestReceivableAfterSaleAndSettlement(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	product := mustProduct(t, svc, "Ceramic mug")
	mustReceive(t, svc, product.ID, "20", "40000")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{
		Name:              "Digikala",
		CommissionPercent: dec("7"),
		ShippingPolicy:    domain.ShippingFixed,
		ShippingFixed:     dec("30000"),
	})
	require.NoError(t, err)

	outflow, err := svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("10"),
		UnitSellPrice: dec("100000"),
	})
	require.NoError(t, err)
	assert.True(t, outflow.CommissionAmount.Equal(dec("70000")))
	assert.True(t, outflow.ShippingCost.Equal(dec("30000")))

	_, err = svc.CreateSettlement(ctx, domain.SettlementInput{CenterID: center.ID, Amount: dec("500000")})
	require.NoError(t, err)

	rec, err := svc.CenterReceivable(ctx, center.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balance.Equal(dec("400000")), "balance %s", rec.Balance)
}

func TestSellUsesCategoryCommissionAndExplicitOverrides(t *testing.T) {
	ctx := context.Background()
	svc, m := newService(t)

	product := mustProduct(t, svc, "Silk scarf")
	mustReceive(t, svc, product.ID, "10", "100")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{
		Name:              "Basalam",
		CommissionPercent: dec("5"),
		ShippingPolicy:    domain.ShippingPercent,
		ShippingPercent:   dec("10"),
		ShippingMin:       dec("15"),
		ShippingMax:       dec("50"),
	})
	require.NoError(t, err)
	category, err := svc.CreateCategory(ctx, domain.CategoryInput{Name: "Textiles"})
	require.NoError(t, err)
	_, err = svc.SetCommission(ctx, center.ID, category.ID, dec("12"))
	require.NoError(t, err)
	require.NoError(t, svc.SetProductCategory(ctx, product.ID, &category.ID))

	first, err := svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("2"),
		UnitSellPrice: dec("100"),
	})
	require.NoError(t, err)
	assert.True(t, first.CommissionAmount.Equal(dec("24")), "commission %s", first.CommissionAmount)
	assert.True(t, first.ShippingCost.Equal(dec("20")), "shipping %s", first.ShippingCost)

	second, err := svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("1"),
		UnitSellPrice: dec("100"),
		Commission:    decPtr("3"),
		Shipping:      decPtr("0"),
	})
	require.NoError(t, err)
	assert.True(t, second.CommissionAmount.Equal(dec("3")))
	assert.True(t, second.ShippingCost.IsZero())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SalesTotal.WithLabelValues("ok")))
}

func TestSellRoundsComputedCommissionToStoredScale(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	product := mustProduct(t, svc, "Linen napkin")
	mustReceive(t, svc, product.ID, "5", "1")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{
		Name:              "Torob",
		CommissionPercent: dec("7"),
		ShippingPolicy:    domain.ShippingManual,
	})
	require.NoError(t, err)

	// 1.2345 x 1.0001 x 7% = 0.0864236415
	outflow, err := svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("1.0001"),
		UnitSellPrice: dec("1.2345"),
	})
	require.NoError(t, err)
	assert.True(t, outflow.CommissionAmount.Equal(dec("0.0864")), "commission %s", outflow.CommissionAmount)
}

func TestSellDefaultsAndTruncatesSoldAt(t *testing.T) {
	ctx := context.Background()
	svc, m := newService(t)

	product := mustProduct(t, svc, "Lamp")
	batch := mustReceive(t, svc, product.ID, "1", "10")
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), batch.ReceivedAt)
	center, err := svc.CreateCenter(ctx, domain.CenterInput{Name: "Shop"})
	require.NoError(t, err)
	assert.Equal(t, domain.ShippingManual, center.ShippingPolicy)

	outflow, err := svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("1"),
		UnitSellPrice: dec("15"),
		SoldAt:        time.Date(2024, 5, 18, 22, 10, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), outflow.SoldAt)

	_, err = svc.Sell(ctx, service.SaleRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("1"),
		UnitSellPrice: dec("15"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SalesTotal.WithLabelValues(domain.CodeInsufficientStock)))
}

func TestQuoteIncludesFIFOCost(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	product := mustProduct(t, svc, "Vase")
	mustReceive(t, svc, product.ID, "2", "100")
	mustReceive(t, svc, product.ID, "2", "200")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{Name: "Shop", CommissionPercent: dec("10")})
	require.NoError(t, err)

	quote, err := svc.Quote(ctx, service.QuoteRequest{
		ProductID:     product.ID,
		CenterID:      center.ID,
		Quantity:      dec("3"),
		UnitSellPrice: dec("300"),
		Shipping:      decPtr("25"),
	})
	require.NoError(t, err)
	assert.True(t, quote.SaleTotal.Equal(dec("900")))
	assert.True(t, quote.Commission.Equal(dec("90")))
	assert.True(t, quote.Shipping.Equal(dec("25")))
	assert.True(t, quote.TotalCOGS.Equal(dec("400")))
	assert.True(t, quote.Profit.Equal(dec("385")), "profit %s", quote.Profit)

	// A quote never touches stock.
	p, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(dec("4")))
}

func TestToggleReturnedRecordsReversals(t *testing.T) {
	ctx := context.Background()
	svc, m := newService(t)

	product := mustProduct(t, svc, "Pen")
	mustReceive(t, svc, product.ID, "5", "1")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{Name: "Shop"})
	require.NoError(t, err)
	outflow, err := svc.Sell(ctx, service.SaleRequest{
		ProductID: product.ID, CenterID: center.ID, Quantity: dec("2"), UnitSellPrice: dec("3"),
	})
	require.NoError(t, err)

	returned, err := svc.ToggleReturned(ctx, outflow.ID)
	require.NoError(t, err)
	assert.True(t, returned.IsReturned)
	restored, err := svc.ToggleReturned(ctx, outflow.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsReturned)
	require.NoError(t, svc.DeleteOutflow(ctx, outflow.ID))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReversalsTotal.WithLabelValues("return")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReversalsTotal.WithLabelValues("unreturn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReversalsTotal.WithLabelValues("delete")))

	p, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(dec("5")))
}

func TestEnsureDefaultCentersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateCenter(ctx, domain.CenterInput{Name: "digikala"})
	require.NoError(t, err)
	seeds := []domain.CenterInput{
		{Name: "Digikala", CommissionPercent: dec("7")},
		{Name: "Basalam", CommissionPercent: dec("5")},
	}
	require.NoError(t, svc.EnsureDefaultCenters(ctx, seeds))
	require.NoError(t, svc.EnsureDefaultCenters(ctx, seeds))

	centers, err := svc.ListCenters(ctx)
	require.NoError(t, err)
	require.Len(t, centers, 2)
	assert.Equal(t, "Basalam", centers[1].Name)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateProduct(ctx, domain.ProductInput{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateCenter(ctx, domain.CenterInput{Name: "X", CommissionPercent: dec("101")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateCenter(ctx, domain.CenterInput{Name: "X", ShippingPolicy: "free"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateCenter(ctx, domain.CenterInput{
		Name: "X", ShippingPolicy: domain.ShippingPercent, ShippingMin: dec("60"), ShippingMax: dec("50"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateCashTransaction(ctx, domain.CashInput{Kind: "loan", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateSettlement(ctx, domain.SettlementInput{CenterID: 1, Amount: dec("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateSettlement(ctx, domain.SettlementInput{CenterID: 1, Amount: dec("10.00001")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateCashTransaction(ctx, domain.CashInput{Kind: domain.CashDeposit, Amount: dec("0.12345")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.SetCommission(ctx, 1, 1, dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCashBalanceAndDailySales(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateCashTransaction(ctx, domain.CashInput{Kind: domain.CashDeposit, Amount: dec("1000")})
	require.NoError(t, err)
	_, err = svc.CreateCashTransaction(ctx, domain.CashInput{Kind: domain.CashWithdraw, Amount: dec("250")})
	require.NoError(t, err)
	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(dec("750")))

	product := mustProduct(t, svc, "Cup")
	mustReceive(t, svc, product.ID, "10", "5")
	center, err := svc.CreateCenter(ctx, domain.CenterInput{Name: "Shop"})
	require.NoError(t, err)
	for _, soldAt := range []time.Time{today.AddDate(0, 0, -40), today.AddDate(0, 0, -1), today} {
		_, err := svc.Sell(ctx, service.SaleRequest{
			ProductID: product.ID, CenterID: center.ID, Quantity: dec("1"), UnitSellPrice: dec("10"), SoldAt: soldAt,
		})
		require.NoError(t, err)
	}

	days, err := svc.DailySales(ctx, 0)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 1, days[1].Count)
	assert.True(t, days[1].Revenue.Equal(dec("10")))
}

func TestAuditAndRepairOnCleanLedger(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	product := mustProduct(t, svc, "Bowl")
	mustReceive(t, svc, product.ID, "3", "7")

	violations, err := svc.AuditInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	repaired, err := svc.RepairStock(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}
