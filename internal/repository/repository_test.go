package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"warehouse/internal/db"
	"warehouse/internal/domain"
	"warehouse/internal/inventory"
	"warehouse/internal/repository"
)

// newTestRepository connects to TEST_DATABASE_URL when set, otherwise starts a
// throwaway PostgreSQL container.
func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("warehouse_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "start postgres container")
		t.Cleanup(func() {
			_ = container.Terminate(context.Background())
		})
		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := db.NewPool(ctx, dsn, db.PoolOptions{MaxConns: 10})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool, zap.NewNop()))
	resetTables(t, pool)
	return repository.New(pool)
}

func resetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE outflow_allocations, outflows, inflow_batches, product_categories,
			commissions, commission_categories, settlements, cash_transactions,
			sales_centers, products
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(n int) time.Time {
	return time.Date(2024, 4, n, 0, 0, 0, 0, time.UTC)
}

type seeded struct {
	product domain.Product
	center  domain.Center
}

func seed(t *testing.T, repo *repository.Repository) seeded {
	t.Helper()
	ctx := context.Background()
	product, err := repo.CreateProduct(ctx, domain.ProductInput{Name: "Wool blanket"})
	require.NoError(t, err)
	center, err := repo.CreateCenter(ctx, domain.CenterInput{
		Name:              "Digikala",
		CommissionPercent: dec("7"),
		ShippingPolicy:    domain.ShippingManual,
	})
	require.NoError(t, err)
	return seeded{product: product, center: center}
}

func TestFIFOSaleAndReversalOnPostgres(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s := seed(t, repo)
	engine := inventory.NewEngine(repo)

	first, err := engine.ReceiveInflow(ctx, domain.InflowInput{
		ProductID: s.product.ID, Quantity: dec("10"), UnitCost: dec("100"), ReceivedAt: day(1),
	})
	require.NoError(t, err)
	second, err := engine.ReceiveInflow(ctx, domain.InflowInput{
		ProductID: s.product.ID, Quantity: dec("5"), UnitCost: dec("200"), ReceivedAt: day(2),
	})
	require.NoError(t, err)

	outflow, err := engine.CommitSale(ctx, domain.SaleInput{
		ProductID:     s.product.ID,
		CenterID:      s.center.ID,
		Quantity:      dec("15"),
		UnitSellPrice: dec("300"),
		SoldAt:        day(3),
	})
	require.NoError(t, err)
	assert.True(t, outflow.TotalCOGS.Equal(dec("2000")), "total %s", outflow.TotalCOGS)
	require.Len(t, outflow.Allocations, 2)
	assert.Equal(t, first.ID, outflow.Allocations[0].BatchID)

	stored, err := repo.GetOutflow(ctx, outflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wool blanket", stored.ProductName)
	assert.Equal(t, "Digikala", stored.CenterName)
	require.Len(t, stored.Allocations, 2)

	assert.ErrorIs(t, engine.DeleteInflow(ctx, second.ID), domain.ErrBatchInUse)

	returned, err := engine.ToggleReturned(ctx, outflow.ID)
	require.NoError(t, err)
	assert.True(t, returned.IsReturned)

	batches, err := repo.ListBatches(ctx, s.product.ID)
	require.NoError(t, err)
	for _, b := range batches {
		assert.True(t, b.Untouched(), "batch %d remaining %s", b.ID, b.Remaining)
	}

	violations, err := repo.AuditStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s := seed(t, repo)
	engine := inventory.NewEngine(repo)

	_, err := engine.ReceiveInflow(ctx, domain.InflowInput{
		ProductID: s.product.ID, Quantity: dec("10"), UnitCost: dec("1"), ReceivedAt: day(1),
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CommitSale(ctx, domain.SaleInput{
				ProductID:     s.product.ID,
				CenterID:      s.center.ID,
				Quantity:      dec("1"),
				UnitSellPrice: dec("2"),
				SoldAt:        day(2),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)
	product, err := repo.GetProduct(ctx, s.product.ID)
	require.NoError(t, err)
	assert.True(t, product.Stock.IsZero())
}

func TestReceivableAndSummaryOnPostgres(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s := seed(t, repo)
	engine := inventory.NewEngine(repo)

	_, err := engine.ReceiveInflow(ctx, domain.InflowInput{
		ProductID: s.product.ID, Quantity: dec("20"), UnitCost: dec("40000"), ReceivedAt: day(1),
	})
	require.NoError(t, err)
	_, err = engine.CommitSale(ctx, domain.SaleInput{
		ProductID:        s.product.ID,
		CenterID:         s.center.ID,
		Quantity:         dec("10"),
		UnitSellPrice:    dec("100000"),
		CommissionAmount: dec("70000"),
		ShippingCost:     dec("30000"),
		SoldAt:           day(2),
	})
	require.NoError(t, err)
	_, err = repo.CreateSettlement(ctx, domain.SettlementInput{CenterID: s.center.ID, Amount: dec("500000"), SettledAt: day(3)})
	require.NoError(t, err)

	rec, err := repo.CenterReceivable(ctx, s.center.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balance.Equal(dec("400000")), "balance %s", rec.Balance)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Revenue.Equal(dec("1000000")))
	assert.True(t, summary.COGS.Equal(dec("400000")))
	assert.True(t, summary.NetProfit.Equal(dec("500000")), "net %s", summary.NetProfit)
	assert.True(t, summary.TotalStock.Equal(dec("10")))
}

func TestConstraintErrorsAreTyped(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s := seed(t, repo)

	_, err := repo.CreateCenter(ctx, domain.CenterInput{Name: "Digikala", ShippingPolicy: domain.ShippingManual})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)

	_, err = repo.GetProduct(ctx, s.product.ID+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	category, err := repo.CreateCategory(ctx, domain.CategoryInput{Name: "Home"})
	require.NoError(t, err)
	_, err = repo.UpsertCommission(ctx, s.center.ID, category.ID, dec("9"))
	require.NoError(t, err)
	updated, err := repo.UpsertCommission(ctx, s.center.ID, category.ID, dec("11"))
	require.NoError(t, err)
	assert.True(t, updated.Percent.Equal(dec("11")))

	require.NoError(t, repo.SetProductCategory(ctx, s.product.ID, &category.ID))
	rate, err := repo.CategoryCommission(ctx, s.center.ID, s.product.ID)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("11")))
}
