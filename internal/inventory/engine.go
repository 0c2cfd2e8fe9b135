package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

// Engine applies every stock-changing operation of the ledger. Each public
// method runs in one Store transaction, so a failure leaves the ledger as it
// was before the call.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// PreviewCost is a dry run of the FIFO allocation for a sale of quantity.
func (e *Engine) PreviewCost(ctx context.Context, productID int64, quantity decimal.Decimal) (CostAllocation, error) {
	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return CostAllocation{}, err
	}
	batches, err := e.store.ListBatches(ctx, productID)
	if err != nil {
		return CostAllocation{}, err
	}
	return AllocateCost(productID, batches, quantity)
}

func (e *Engine) ReceiveInflow(ctx context.Context, input domain.InflowInput) (domain.InflowBatch, error) {
	if !input.Quantity.IsPositive() {
		return domain.InflowBatch{}, domain.Invalid("quantity must be positive")
	}
	if input.UnitCost.IsNegative() {
		return domain.InflowBatch{}, domain.Invalid("unit_cost cannot be negative")
	}
	if input.ReceivedAt.IsZero() {
		return domain.InflowBatch{}, domain.Invalid("received_at is required")
	}
	if err := checkScale(
		scaled{"quantity", input.Quantity},
		scaled{"unit_cost", input.UnitCost},
		scaled{"fx_rate", input.FXRate.Decimal},
	); err != nil {
		return domain.InflowBatch{}, err
	}

	var created domain.InflowBatch
	err := e.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockProduct(ctx, input.ProductID); err != nil {
			return err
		}
		batch, err := tx.InsertBatch(ctx, domain.InflowBatch{
			ProductID:  input.ProductID,
			Quantity:   input.Quantity,
			Remaining:  input.Quantity,
			UnitCost:   input.UnitCost,
			ReceivedAt: input.ReceivedAt,
			FXRate:     input.FXRate,
		})
		if err != nil {
			return err
		}
		created = batch
		return tx.AdjustProductStock(ctx, input.ProductID, input.Quantity)
	})
	if err != nil {
		return domain.InflowBatch{}, err
	}
	return created, nil
}

// CommitSale allocates FIFO cost, debits the drawn batches and the product
// stock, and records the outflow with its allocation list.
func (e *Engine) CommitSale(ctx context.Context, input domain.SaleInput) (domain.Outflow, error) {
	switch {
	case !input.Quantity.IsPositive():
		return domain.Outflow{}, domain.Invalid("quantity must be positive")
	case input.UnitSellPrice.IsNegative():
		return domain.Outflow{}, domain.Invalid("sell_price cannot be negative")
	case input.CommissionAmount.IsNegative():
		return domain.Outflow{}, domain.Invalid("commission cannot be negative")
	case input.ShippingCost.IsNegative():
		return domain.Outflow{}, domain.Invalid("shipping cannot be negative")
	case input.SoldAt.IsZero():
		return domain.Outflow{}, domain.Invalid("sold_at is required")
	}
	if err := checkScale(
		scaled{"quantity", input.Quantity},
		scaled{"sell_price", input.UnitSellPrice},
		scaled{"commission", input.CommissionAmount},
		scaled{"shipping", input.ShippingCost},
	); err != nil {
		return domain.Outflow{}, err
	}

	var created domain.Outflow
	err := e.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockProduct(ctx, input.ProductID); err != nil {
			return err
		}
		if _, err := tx.GetCenter(ctx, input.CenterID); err != nil {
			return err
		}
		batches, err := tx.LockOpenBatches(ctx, input.ProductID)
		if err != nil {
			return err
		}
		alloc, err := AllocateCost(input.ProductID, batches, input.Quantity)
		if err != nil {
			return err
		}

		for _, line := range alloc.Lines {
			if err := tx.AdjustBatchRemaining(ctx, line.BatchID, line.Quantity.Neg()); err != nil {
				return err
			}
		}
		if err := tx.AdjustProductStock(ctx, input.ProductID, input.Quantity.Neg()); err != nil {
			return err
		}

		outflow, err := tx.InsertOutflow(ctx, domain.Outflow{
			ProductID:        input.ProductID,
			CenterID:         input.CenterID,
			Quantity:         input.Quantity,
			UnitSellPrice:    input.UnitSellPrice,
			UnitCOGS:         alloc.UnitCost,
			TotalCOGS:        alloc.TotalCost,
			CommissionAmount: input.CommissionAmount,
			ShippingCost:     input.ShippingCost,
			SoldAt:           input.SoldAt,
			OrderRef:         input.OrderRef,
			Allocations:      alloc.Lines,
		})
		if err != nil {
			return err
		}
		created = outflow
		return nil
	})
	if err != nil {
		return domain.Outflow{}, err
	}
	return created, nil
}

// DeleteOutflow removes a sale. Stock drawn by it goes back to the exact
// batches it came from unless the sale was already returned.
func (e *Engine) DeleteOutflow(ctx context.Context, id int64) error {
	return e.withOutflow(ctx, id, func(tx Tx, o *domain.Outflow) error {
		if !o.IsReturned {
			if err := reverse(ctx, tx, *o); err != nil {
				return err
			}
		}
		return tx.DeleteOutflow(ctx, id)
	})
}

// ToggleReturned flips the returned flag. Returning credits the recorded
// batches; un-returning debits the same batches again and fails with
// ErrInsufficientStock if any of them no longer holds enough.
func (e *Engine) ToggleReturned(ctx context.Context, id int64) (domain.Outflow, error) {
	var updated domain.Outflow
	err := e.withOutflow(ctx, id, func(tx Tx, o *domain.Outflow) error {
		if o.IsReturned {
			if err := redebit(ctx, tx, *o); err != nil {
				return err
			}
		} else if err := reverse(ctx, tx, *o); err != nil {
			return err
		}
		o.IsReturned = !o.IsReturned
		if err := tx.SetOutflowFlags(ctx, o.ID, o.IsReturned, o.IsPaid); err != nil {
			return err
		}
		updated = *o
		return nil
	})
	return updated, err
}

func (e *Engine) TogglePaid(ctx context.Context, id int64) (domain.Outflow, error) {
	var updated domain.Outflow
	err := e.withOutflow(ctx, id, func(tx Tx, o *domain.Outflow) error {
		o.IsPaid = !o.IsPaid
		if err := tx.SetOutflowFlags(ctx, o.ID, o.IsReturned, o.IsPaid); err != nil {
			return err
		}
		updated = *o
		return nil
	})
	return updated, err
}

// DeleteInflow removes a batch nothing has drawn from and debits its quantity
// from the product stock.
func (e *Engine) DeleteInflow(ctx context.Context, batchID int64) error {
	return e.withBatch(ctx, batchID, nil, func(tx Tx, b domain.InflowBatch) error {
		if err := ensureUnused(ctx, tx, b); err != nil {
			return err
		}
		if err := tx.DeleteBatch(ctx, b.ID); err != nil {
			return err
		}
		return tx.AdjustProductStock(ctx, b.ProductID, b.Quantity.Neg())
	})
}

// UpdateInflow edits a batch nothing has drawn from. Quantity changes and
// moves to another product carry the stock with them.
func (e *Engine) UpdateInflow(ctx context.Context, batchID int64, patch domain.InflowPatch) (domain.InflowBatch, error) {
	if patch.Quantity != nil && !patch.Quantity.IsPositive() {
		return domain.InflowBatch{}, domain.Invalid("quantity must be positive")
	}
	if patch.UnitCost != nil && patch.UnitCost.IsNegative() {
		return domain.InflowBatch{}, domain.Invalid("unit_cost cannot be negative")
	}
	if patch.ReceivedAt != nil && patch.ReceivedAt.IsZero() {
		return domain.InflowBatch{}, domain.Invalid("received_at cannot be empty")
	}
	var checks []scaled
	if patch.Quantity != nil {
		checks = append(checks, scaled{"quantity", *patch.Quantity})
	}
	if patch.UnitCost != nil {
		checks = append(checks, scaled{"unit_cost", *patch.UnitCost})
	}
	if patch.SetFXRate {
		checks = append(checks, scaled{"fx_rate", patch.FXRate.Decimal})
	}
	if err := checkScale(checks...); err != nil {
		return domain.InflowBatch{}, err
	}

	var extra []int64
	if patch.ProductID != nil {
		extra = append(extra, *patch.ProductID)
	}

	var updated domain.InflowBatch
	err := e.withBatch(ctx, batchID, extra, func(tx Tx, b domain.InflowBatch) error {
		if err := ensureUnused(ctx, tx, b); err != nil {
			return err
		}

		next := b
		if patch.ProductID != nil {
			next.ProductID = *patch.ProductID
		}
		if patch.Quantity != nil {
			next.Quantity = *patch.Quantity
		}
		if patch.UnitCost != nil {
			next.UnitCost = *patch.UnitCost
		}
		if patch.ReceivedAt != nil {
			next.ReceivedAt = *patch.ReceivedAt
		}
		if patch.SetFXRate {
			next.FXRate = patch.FXRate
		}
		next.Remaining = next.Quantity

		if next.ProductID != b.ProductID {
			if err := tx.AdjustProductStock(ctx, b.ProductID, b.Quantity.Neg()); err != nil {
				return err
			}
			if err := tx.AdjustProductStock(ctx, next.ProductID, next.Quantity); err != nil {
				return err
			}
		} else if delta := next.Quantity.Sub(b.Quantity); !delta.IsZero() {
			if err := tx.AdjustProductStock(ctx, b.ProductID, delta); err != nil {
				return err
			}
		}

		saved, err := tx.UpdateBatch(ctx, next)
		if err != nil {
			return err
		}
		updated = saved
		return nil
	})
	return updated, err
}

// CheckInvariants lists every product whose stock differs from the sum of its
// batch remainders and every batch whose remainder is out of range.
func (e *Engine) CheckInvariants(ctx context.Context) ([]domain.Violation, error) {
	return e.store.AuditStock(ctx)
}

// RepairStock resets drifted product stock to the sum of batch remainders and
// returns how many products were changed.
func (e *Engine) RepairStock(ctx context.Context) (int, error) {
	violations, err := e.store.AuditStock(ctx)
	if err != nil {
		return 0, err
	}

	seen := map[int64]bool{}
	repaired := 0
	for _, v := range violations {
		if v.Kind != domain.ViolationStockDrift || seen[v.ProductID] {
			continue
		}
		seen[v.ProductID] = true

		var changed bool
		err := e.store.WithTx(ctx, func(tx Tx) error {
			p, err := tx.LockProduct(ctx, v.ProductID)
			if err != nil {
				return err
			}
			sum, err := tx.SumRemaining(ctx, p.ID)
			if err != nil {
				return err
			}
			if sum.Equal(p.Stock) {
				return nil
			}
			changed = true
			return tx.SetProductStock(ctx, p.ID, sum)
		})
		if err != nil {
			return repaired, err
		}
		if changed {
			repaired++
		}
	}
	return repaired, nil
}

// withOutflow locks the outflow's product, then the outflow itself.
func (e *Engine) withOutflow(ctx context.Context, id int64, fn func(tx Tx, o *domain.Outflow) error) error {
	current, err := e.store.GetOutflow(ctx, id)
	if err != nil {
		return err
	}
	return e.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockProduct(ctx, current.ProductID); err != nil {
			return err
		}
		o, err := tx.LockOutflow(ctx, id)
		if err != nil {
			return err
		}
		return fn(tx, &o)
	})
}

const batchLockAttempts = 3

// withBatch locks the batch's product plus any extra products in ascending id
// order, then the batch. If the batch moved to another product between the
// unlocked read and the lock, it starts over.
func (e *Engine) withBatch(ctx context.Context, batchID int64, extra []int64, fn func(tx Tx, b domain.InflowBatch) error) error {
	for attempt := 0; attempt < batchLockAttempts; attempt++ {
		current, err := e.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}

		moved := false
		err = e.store.WithTx(ctx, func(tx Tx) error {
			for _, pid := range lockOrder(current.ProductID, extra) {
				if _, err := tx.LockProduct(ctx, pid); err != nil {
					return err
				}
			}
			b, err := tx.LockBatch(ctx, batchID)
			if err != nil {
				return err
			}
			if b.ProductID != current.ProductID {
				moved = true
				return nil
			}
			return fn(tx, b)
		})
		if err != nil || !moved {
			return err
		}
	}
	return domain.Constraint("batch %d is being modified concurrently", batchID)
}

func lockOrder(first int64, extra []int64) []int64 {
	ids := []int64{first}
	for _, id := range extra {
		if id != first {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func ensureUnused(ctx context.Context, tx Tx, b domain.InflowBatch) error {
	if !b.Untouched() {
		return domain.BatchInUse(b.ID)
	}
	referenced, err := tx.BatchReferenced(ctx, b.ID)
	if err != nil {
		return err
	}
	if referenced {
		return domain.BatchInUse(b.ID)
	}
	return nil
}

// reverse credits every recorded allocation back to its batch.
func reverse(ctx context.Context, tx Tx, o domain.Outflow) error {
	for _, a := range o.Allocations {
		if err := tx.AdjustBatchRemaining(ctx, a.BatchID, a.Quantity); err != nil {
			return err
		}
	}
	return tx.AdjustProductStock(ctx, o.ProductID, o.Quantity)
}

// redebit draws a returned outflow's allocations again from the same batches.
func redebit(ctx context.Context, tx Tx, o domain.Outflow) error {
	allocs := append([]domain.Allocation(nil), o.Allocations...)
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].BatchID < allocs[j].BatchID })

	for _, a := range allocs {
		b, err := tx.LockBatch(ctx, a.BatchID)
		if err != nil {
			return err
		}
		if b.Remaining.LessThan(a.Quantity) {
			return domain.InsufficientStock(o.ProductID, a.Quantity, b.Remaining)
		}
	}
	for _, a := range allocs {
		if err := tx.AdjustBatchRemaining(ctx, a.BatchID, a.Quantity.Neg()); err != nil {
			return err
		}
	}
	return tx.AdjustProductStock(ctx, o.ProductID, o.Quantity.Neg())
}

type scaled struct {
	field string
	value decimal.Decimal
}

// checkScale keeps inputs at the precision the stores persist, so allocation
// lines, remainders and stock all round-trip without rounding drift.
func checkScale(values ...scaled) error {
	for _, v := range values {
		if err := domain.CheckScale(v.field, v.value); err != nil {
			return err
		}
	}
	return nil
}
