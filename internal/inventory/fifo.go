package inventory

import (
	"sort"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

// CostAllocation is the result of walking a product's batches oldest first.
type CostAllocation struct {
	Quantity  decimal.Decimal     `json:"quantity"`
	UnitCost  decimal.Decimal     `json:"unit_cost"`
	TotalCost decimal.Decimal     `json:"total_cost"`
	Lines     []domain.Allocation `json:"lines"`
}

// AllocateCost computes which batches a sale of quantity would consume and
// the weighted-average unit cost. Batches are taken in (ReceivedAt, ID) order
// and only those with remaining stock are considered. The input slice is not
// modified. When the batches cannot cover the quantity the result is
// ErrInsufficientStock and nothing is allocated.
func AllocateCost(productID int64, batches []domain.InflowBatch, quantity decimal.Decimal) (CostAllocation, error) {
	if !quantity.IsPositive() {
		return CostAllocation{}, domain.Invalid("quantity must be positive")
	}

	open := make([]domain.InflowBatch, 0, len(batches))
	available := decimal.Zero
	for _, b := range batches {
		if b.Remaining.IsPositive() {
			open = append(open, b)
			available = available.Add(b.Remaining)
		}
	}
	if available.LessThan(quantity) {
		return CostAllocation{}, domain.InsufficientStock(productID, quantity, available)
	}
	SortFIFO(open)

	need := quantity
	total := decimal.Zero
	lines := make([]domain.Allocation, 0, len(open))
	for _, b := range open {
		if !need.IsPositive() {
			break
		}
		used := decimal.Min(b.Remaining, need)
		total = total.Add(used.Mul(b.UnitCost))
		lines = append(lines, domain.Allocation{
			BatchID:  b.ID,
			Quantity: used,
			UnitCost: b.UnitCost,
		})
		need = need.Sub(used)
	}

	return CostAllocation{
		Quantity:  quantity,
		UnitCost:  total.Div(quantity),
		TotalCost: total,
		Lines:     lines,
	}, nil
}

// SortFIFO orders batches by receipt date, then by id for same-day receipts.
func SortFIFO(batches []domain.InflowBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].ID < batches[j].ID
	})
}
