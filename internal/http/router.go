package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"warehouse/internal/metrics"
)

func NewRouter(handler *Handler, log *zap.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer)
	r.Use(Metrics(m))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", handler.ListProducts)
		r.Post("/products", handler.CreateProduct)
		r.Get("/products/{id}", handler.GetProduct)
		r.Patch("/products/{id}", handler.PatchProduct)
		r.Delete("/products/{id}", handler.DeleteProduct)
		r.Get("/products/{id}/batches", handler.ProductBatches)
		r.Get("/products/{id}/fifo-cost", handler.FIFOCost)
		r.Put("/products/{id}/category", handler.SetProductCategory)

		r.Post("/inflows", handler.CreateInflow)
		r.Patch("/inflows/{id}", handler.PatchInflow)
		r.Delete("/inflows/{id}", handler.DeleteInflow)

		r.Get("/outflows", handler.ListOutflows)
		r.Post("/outflows", handler.CreateOutflow)
		r.Post("/outflows/quote", handler.QuoteOutflow)
		r.Get("/outflows/{id}", handler.GetOutflow)
		r.Delete("/outflows/{id}", handler.DeleteOutflow)
		r.Post("/outflows/{id}/toggle-return", handler.ToggleReturned)
		r.Post("/outflows/{id}/toggle-paid", handler.TogglePaid)

		r.Get("/centers", handler.ListCenters)
		r.Post("/centers", handler.CreateCenter)
		r.Get("/centers/{id}", handler.GetCenter)
		r.Patch("/centers/{id}", handler.PatchCenter)
		r.Delete("/centers/{id}", handler.DeleteCenter)
		r.Get("/centers/{id}/receivable", handler.CenterReceivable)
		r.Get("/receivables", handler.ListReceivables)

		r.Get("/commission-categories", handler.ListCategories)
		r.Post("/commission-categories", handler.CreateCategory)
		r.Delete("/commission-categories/{id}", handler.DeleteCategory)
		r.Put("/commissions", handler.SetCommission)
		r.Get("/commissions", handler.ListCommissions)

		r.Get("/settlements", handler.ListSettlements)
		r.Post("/settlements", handler.CreateSettlement)
		r.Delete("/settlements/{id}", handler.DeleteSettlement)

		r.Get("/cash-transactions", handler.ListCashTransactions)
		r.Post("/cash-transactions", handler.CreateCashTransaction)
		r.Delete("/cash-transactions/{id}", handler.DeleteCashTransaction)
		r.Get("/cash/balance", handler.CashBalance)

		r.Get("/reports/summary", handler.Summary)
		r.Get("/reports/product-profit", handler.ProductProfit)
		r.Get("/reports/daily-sales", handler.DailySales)

		r.Get("/inventory/audit", handler.InventoryAudit)
	})

	return r
}
