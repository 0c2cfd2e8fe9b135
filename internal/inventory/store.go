package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

// Store is the ledger storage the engine runs against. Reads outside WithTx
// take no locks and may observe slightly stale data.
type Store interface {
	// WithTx runs fn in a single transaction. fn's error rolls everything
	// back; a nil return commits.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	GetBatch(ctx context.Context, id int64) (domain.InflowBatch, error)
	ListBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error)
	GetOutflow(ctx context.Context, id int64) (domain.Outflow, error)
	AuditStock(ctx context.Context) ([]domain.Violation, error)
}

// Tx is the set of primitives available inside a transaction. Lock* methods
// hold the row until the transaction ends. Callers lock the product row before
// any of its batches or outflows.
type Tx interface {
	LockProduct(ctx context.Context, id int64) (domain.Product, error)
	LockOpenBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error)
	LockBatch(ctx context.Context, id int64) (domain.InflowBatch, error)
	LockOutflow(ctx context.Context, id int64) (domain.Outflow, error)
	GetCenter(ctx context.Context, id int64) (domain.Center, error)

	AdjustProductStock(ctx context.Context, productID int64, delta decimal.Decimal) error
	SetProductStock(ctx context.Context, productID int64, stock decimal.Decimal) error
	SumRemaining(ctx context.Context, productID int64) (decimal.Decimal, error)
	AdjustBatchRemaining(ctx context.Context, batchID int64, delta decimal.Decimal) error

	InsertBatch(ctx context.Context, batch domain.InflowBatch) (domain.InflowBatch, error)
	UpdateBatch(ctx context.Context, batch domain.InflowBatch) (domain.InflowBatch, error)
	DeleteBatch(ctx context.Context, id int64) error
	BatchReferenced(ctx context.Context, id int64) (bool, error)

	// InsertOutflow stores the outflow together with its allocations.
	InsertOutflow(ctx context.Context, outflow domain.Outflow) (domain.Outflow, error)
	SetOutflowFlags(ctx context.Context, id int64, returned, paid bool) error
	DeleteOutflow(ctx context.Context, id int64) error
}
