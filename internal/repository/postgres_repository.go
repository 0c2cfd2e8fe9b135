package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit ledger tx")
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return getProduct(ctx, r.pool, id, false)
}

func (r *Repository) GetBatch(ctx context.Context, id int64) (domain.InflowBatch, error) {
	return getBatch(ctx, r.pool, id, false)
}

func (r *Repository) ListBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error) {
	rows, err := r.pool.Query(ctx, batchSelect+`
		WHERE product_id = $1
		ORDER BY received_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return collectBatches(rows)
}

func (r *Repository) GetOutflow(ctx context.Context, id int64) (domain.Outflow, error) {
	return getOutflow(ctx, r.pool, id, false)
}

const productSelect = `
	SELECT
		p.id,
		p.name,
		p.color,
		p.barcode,
		p.stock,
		pc.category_id,
		p.created_at,
		p.updated_at
	FROM products p
	LEFT JOIN product_categories pc ON pc.product_id = p.id
`

func getProduct(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Product, error) {
	query := productSelect + " WHERE p.id = $1"
	if forUpdate {
		query += " FOR UPDATE OF p"
	}
	p, err := scanProductRow(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.NotFound("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product %d: %w", id, err)
	}
	return p, nil
}

const batchSelect = `
	SELECT
		id,
		product_id,
		quantity,
		remaining,
		unit_cost,
		received_at,
		fx_rate,
		created_at
	FROM inflow_batches
`

func getBatch(ctx context.Context, q querier, id int64, forUpdate bool) (domain.InflowBatch, error) {
	query := batchSelect + " WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	b, err := scanBatchRow(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InflowBatch{}, domain.NotFound("batch", id)
	}
	if err != nil {
		return domain.InflowBatch{}, fmt.Errorf("load batch %d: %w", id, err)
	}
	return b, nil
}

const outflowSelect = `
	SELECT
		o.id,
		o.product_id,
		p.name,
		o.center_id,
		c.name,
		o.quantity,
		o.unit_sell_price,
		o.unit_cogs,
		o.total_cogs,
		o.commission_amount,
		o.shipping_cost,
		o.sold_at,
		o.order_ref,
		o.is_returned,
		o.is_paid,
		o.created_at
	FROM outflows o
	JOIN products p ON p.id = o.product_id
	JOIN sales_centers c ON c.id = o.center_id
`

func getOutflow(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Outflow, error) {
	query := outflowSelect + " WHERE o.id = $1"
	if forUpdate {
		query += " FOR UPDATE OF o"
	}
	o, err := scanOutflowRow(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Outflow{}, domain.NotFound("outflow", id)
	}
	if err != nil {
		return domain.Outflow{}, fmt.Errorf("load outflow %d: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT a.batch_id, a.quantity, a.unit_cost
		FROM outflow_allocations a
		JOIN inflow_batches b ON b.id = a.batch_id
		WHERE a.outflow_id = $1
		ORDER BY b.received_at ASC, b.id ASC
	`, id)
	if err != nil {
		return domain.Outflow{}, fmt.Errorf("load allocations of outflow %d: %w", id, err)
	}
	o.Allocations, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Allocation, error) {
		var a domain.Allocation
		err := row.Scan(&a.BatchID, &a.Quantity, &a.UnitCost)
		return a, err
	})
	if err != nil {
		return domain.Outflow{}, fmt.Errorf("scan allocations of outflow %d: %w", id, err)
	}
	return o, nil
}

func scanProductRow(row pgx.Row) (domain.Product, error) {
	var (
		p        domain.Product
		color    sql.NullString
		barcode  sql.NullString
		category sql.NullInt64
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&color,
		&barcode,
		&p.Stock,
		&category,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.Color = nullString(color)
	p.Barcode = nullString(barcode)
	if category.Valid {
		p.CategoryID = &category.Int64
	}
	return p, nil
}

func scanBatchRow(row pgx.Row) (domain.InflowBatch, error) {
	var b domain.InflowBatch
	err := row.Scan(
		&b.ID,
		&b.ProductID,
		&b.Quantity,
		&b.Remaining,
		&b.UnitCost,
		&b.ReceivedAt,
		&b.FXRate,
		&b.CreatedAt,
	)
	return b, err
}

func collectBatches(rows pgx.Rows) ([]domain.InflowBatch, error) {
	batches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.InflowBatch, error) {
		return scanBatchRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}
	return batches, nil
}

func scanOutflowRow(row pgx.Row) (domain.Outflow, error) {
	var (
		o        domain.Outflow
		orderRef sql.NullString
	)
	if err := row.Scan(
		&o.ID,
		&o.ProductID,
		&o.ProductName,
		&o.CenterID,
		&o.CenterName,
		&o.Quantity,
		&o.UnitSellPrice,
		&o.UnitCOGS,
		&o.TotalCOGS,
		&o.CommissionAmount,
		&o.ShippingCost,
		&o.SoldAt,
		&orderRef,
		&o.IsReturned,
		&o.IsPaid,
		&o.CreatedAt,
	); err != nil {
		return domain.Outflow{}, err
	}
	o.OrderRef = nullString(orderRef)
	return o, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// mapError turns PostgreSQL integrity failures into typed ledger errors and
// wraps everything else with op.
func mapError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return domain.Constraint("%s: duplicate value violates %s", op, pgErr.ConstraintName)
		case "23503":
			return domain.Constraint("%s: row is referenced or references a missing row (%s)", op, pgErr.ConstraintName)
		case "23514":
			return domain.Constraint("%s: check %s failed", op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
