package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
)

// ledgerTx implements inventory.Tx on a pgx transaction. Row locks are taken
// with SELECT ... FOR UPDATE and released at commit or rollback.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

// LockOpenBatches locks in id order so two lockers of the same rows never
// cross, then returns the batches in FIFO order.
func (t *ledgerTx) LockOpenBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error) {
	rows, err := t.tx.Query(ctx, batchSelect+`
		WHERE product_id = $1 AND remaining > 0
		ORDER BY id
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("lock open batches of product %d: %w", productID, err)
	}
	batches, err := collectBatches(rows)
	if err != nil {
		return nil, err
	}
	inventory.SortFIFO(batches)
	return batches, nil
}

func (t *ledgerTx) LockBatch(ctx context.Context, id int64) (domain.InflowBatch, error) {
	return getBatch(ctx, t.tx, id, true)
}

func (t *ledgerTx) LockOutflow(ctx context.Context, id int64) (domain.Outflow, error) {
	return getOutflow(ctx, t.tx, id, true)
}

func (t *ledgerTx) GetCenter(ctx context.Context, id int64) (domain.Center, error) {
	return getCenter(ctx, t.tx, id)
}

func (t *ledgerTx) AdjustProductStock(ctx context.Context, productID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, delta)
	if err != nil {
		return mapError(err, fmt.Sprintf("adjust stock of product %d", productID))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", productID)
	}
	return nil
}

func (t *ledgerTx) SetProductStock(ctx context.Context, productID int64, stock decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock = $2, updated_at = NOW()
		WHERE id = $1
	`, productID, stock)
	if err != nil {
		return mapError(err, fmt.Sprintf("set stock of product %d", productID))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", productID)
	}
	return nil
}

func (t *ledgerTx) SumRemaining(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining), 0)
		FROM inflow_batches
		WHERE product_id = $1
	`, productID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum remaining of product %d: %w", productID, err)
	}
	return sum, nil
}

// AdjustBatchRemaining relies on the table's CHECK constraint to refuse a
// remainder outside [0, quantity].
func (t *ledgerTx) AdjustBatchRemaining(ctx context.Context, batchID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inflow_batches
		SET remaining = remaining + $2
		WHERE id = $1
	`, batchID, delta)
	if err != nil {
		return mapError(err, fmt.Sprintf("adjust remaining of batch %d", batchID))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("batch", batchID)
	}
	return nil
}

func (t *ledgerTx) InsertBatch(ctx context.Context, b domain.InflowBatch) (domain.InflowBatch, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO inflow_batches (product_id, quantity, remaining, unit_cost, received_at, fx_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, product_id, quantity, remaining, unit_cost, received_at, fx_rate, created_at
	`, b.ProductID, b.Quantity, b.Remaining, b.UnitCost, b.ReceivedAt, b.FXRate)
	created, err := scanBatchRow(row)
	if err != nil {
		return domain.InflowBatch{}, mapError(err, "insert batch")
	}
	return created, nil
}

func (t *ledgerTx) UpdateBatch(ctx context.Context, b domain.InflowBatch) (domain.InflowBatch, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE inflow_batches
		SET product_id = $2,
			quantity = $3,
			remaining = $4,
			unit_cost = $5,
			received_at = $6,
			fx_rate = $7
		WHERE id = $1
		RETURNING id, product_id, quantity, remaining, unit_cost, received_at, fx_rate, created_at
	`, b.ID, b.ProductID, b.Quantity, b.Remaining, b.UnitCost, b.ReceivedAt, b.FXRate)
	updated, err := scanBatchRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InflowBatch{}, domain.NotFound("batch", b.ID)
	}
	if err != nil {
		return domain.InflowBatch{}, mapError(err, fmt.Sprintf("update batch %d", b.ID))
	}
	return updated, nil
}

func (t *ledgerTx) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM inflow_batches WHERE id = $1", id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete batch %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("batch", id)
	}
	return nil
}

func (t *ledgerTx) BatchReferenced(ctx context.Context, id int64) (bool, error) {
	var referenced bool
	if err := t.tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM outflow_allocations WHERE batch_id = $1)",
		id,
	).Scan(&referenced); err != nil {
		return false, fmt.Errorf("check allocations of batch %d: %w", id, err)
	}
	return referenced, nil
}

func (t *ledgerTx) InsertOutflow(ctx context.Context, o domain.Outflow) (domain.Outflow, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO outflows (
			product_id, center_id, quantity, unit_sell_price, unit_cogs, total_cogs,
			commission_amount, shipping_cost, sold_at, order_ref
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		o.ProductID, o.CenterID, o.Quantity, o.UnitSellPrice, o.UnitCOGS, o.TotalCOGS,
		o.CommissionAmount, o.ShippingCost, o.SoldAt, o.OrderRef,
	).Scan(&id); err != nil {
		return domain.Outflow{}, mapError(err, "insert outflow")
	}

	batch := &pgx.Batch{}
	for _, a := range o.Allocations {
		batch.Queue(`
			INSERT INTO outflow_allocations (outflow_id, batch_id, quantity, unit_cost)
			VALUES ($1, $2, $3, $4)
		`, id, a.BatchID, a.Quantity, a.UnitCost)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Outflow{}, mapError(err, fmt.Sprintf("insert allocations of outflow %d", id))
	}

	return getOutflow(ctx, t.tx, id, false)
}

func (t *ledgerTx) SetOutflowFlags(ctx context.Context, id int64, returned, paid bool) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE outflows
		SET is_returned = $2, is_paid = $3
		WHERE id = $1
	`, id, returned, paid)
	if err != nil {
		return fmt.Errorf("update flags of outflow %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("outflow", id)
	}
	return nil
}

func (t *ledgerTx) DeleteOutflow(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM outflows WHERE id = $1", id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete outflow %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("outflow", id)
	}
	return nil
}
