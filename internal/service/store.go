package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
)

// Store is everything the service needs from the ledger storage. Both the
// PostgreSQL repository and the in-memory store implement it.
type Store interface {
	inventory.Store

	CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	SetProductCategory(ctx context.Context, productID int64, categoryID *int64) error

	ListOutflows(ctx context.Context, filter domain.OutflowFilter) ([]domain.Outflow, error)

	CreateCenter(ctx context.Context, input domain.CenterInput) (domain.Center, error)
	GetCenter(ctx context.Context, id int64) (domain.Center, error)
	ListCenters(ctx context.Context) ([]domain.Center, error)
	UpdateCenter(ctx context.Context, id int64, input domain.CenterInput) (domain.Center, error)
	DeleteCenter(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, input domain.CategoryInput) (domain.CommissionCategory, error)
	ListCategories(ctx context.Context) ([]domain.CommissionCategory, error)
	DeleteCategory(ctx context.Context, id int64) error
	UpsertCommission(ctx context.Context, centerID, categoryID int64, percent decimal.Decimal) (domain.Commission, error)
	ListCommissions(ctx context.Context, centerID *int64) ([]domain.Commission, error)
	// CategoryCommission returns the (center, product category) rate, or nil
	// when the product has no category or the pair has no rate.
	CategoryCommission(ctx context.Context, centerID, productID int64) (*decimal.Decimal, error)

	CreateSettlement(ctx context.Context, input domain.SettlementInput) (domain.Settlement, error)
	ListSettlements(ctx context.Context, filter domain.SettlementFilter) ([]domain.Settlement, error)
	DeleteSettlement(ctx context.Context, id int64) error

	CreateCashTransaction(ctx context.Context, input domain.CashInput) (domain.CashTransaction, error)
	ListCashTransactions(ctx context.Context, filter domain.CashFilter) ([]domain.CashTransaction, error)
	DeleteCashTransaction(ctx context.Context, id int64) error
	CashBalance(ctx context.Context) (domain.CashBalance, error)

	CenterReceivable(ctx context.Context, centerID int64) (domain.Receivable, error)
	ListReceivables(ctx context.Context) ([]domain.Receivable, error)
	Summary(ctx context.Context) (domain.Summary, error)
	ProductProfit(ctx context.Context) ([]domain.ProductProfit, error)
	DailySales(ctx context.Context, since time.Time) ([]domain.DailySales, error)
}
