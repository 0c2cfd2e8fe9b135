package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouse/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func batch(id int64, received time.Time, qty, remaining, cost string) domain.InflowBatch {
	return domain.InflowBatch{
		ID:         id,
		ProductID:  1,
		Quantity:   d(qty),
		Remaining:  d(remaining),
		UnitCost:   d(cost),
		ReceivedAt: received,
	}
}

func TestAllocateCost(t *testing.T) {
	twoBatches := []domain.InflowBatch{
		batch(2, day(2), "10", "10", "200"),
		batch(1, day(1), "10", "10", "100"),
	}

	tests := []struct {
		name      string
		batches   []domain.InflowBatch
		quantity  string
		wantTotal string
		wantLines []domain.Allocation
		wantErr   error
	}{
		{
			name:      "single batch covers sale",
			batches:   twoBatches,
			quantity:  "4",
			wantTotal: "400",
			wantLines: []domain.Allocation{{BatchID: 1, Quantity: d("4"), UnitCost: d("100")}},
		},
		{
			name:      "spans oldest then newer batch",
			batches:   twoBatches,
			quantity:  "15",
			wantTotal: "2000",
			wantLines: []domain.Allocation{
				{BatchID: 1, Quantity: d("10"), UnitCost: d("100")},
				{BatchID: 2, Quantity: d("5"), UnitCost: d("200")},
			},
		},
		{
			name: "skips exhausted batches",
			batches: []domain.InflowBatch{
				batch(1, day(1), "10", "0", "100"),
				batch(2, day(2), "10", "3", "200"),
				batch(3, day(3), "10", "10", "300"),
			},
			quantity:  "5",
			wantTotal: "1200",
			wantLines: []domain.Allocation{
				{BatchID: 2, Quantity: d("3"), UnitCost: d("200")},
				{BatchID: 3, Quantity: d("2"), UnitCost: d("300")},
			},
		},
		{
			name: "same day ties broken by id",
			batches: []domain.InflowBatch{
				batch(9, day(1), "5", "5", "50"),
				batch(4, day(1), "5", "5", "40"),
			},
			quantity:  "6",
			wantTotal: "250",
			wantLines: []domain.Allocation{
				{BatchID: 4, Quantity: d("5"), UnitCost: d("40")},
				{BatchID: 9, Quantity: d("1"), UnitCost: d("50")},
			},
		},
		{
			name:      "fractional quantities",
			batches:   []domain.InflowBatch{batch(1, day(1), "2.5", "2.5", "10")},
			quantity:  "1.25",
			wantTotal: "12.5",
			wantLines: []domain.Allocation{{BatchID: 1, Quantity: d("1.25"), UnitCost: d("10")}},
		},
		{
			name:     "insufficient stock",
			batches:  twoBatches,
			quantity: "25",
			wantErr:  domain.ErrInsufficientStock,
		},
		{
			name:     "no batches",
			quantity: "1",
			wantErr:  domain.ErrInsufficientStock,
		},
		{
			name:     "zero quantity",
			batches:  twoBatches,
			quantity: "0",
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "negative quantity",
			batches:  twoBatches,
			quantity: "-1",
			wantErr:  domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AllocateCost(1, tt.batches, d(tt.quantity))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got.Lines)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.TotalCost.Equal(d(tt.wantTotal)), "total %s", got.TotalCost)
			require.Len(t, got.Lines, len(tt.wantLines))
			for i, want := range tt.wantLines {
				assert.Equal(t, want.BatchID, got.Lines[i].BatchID)
				assert.True(t, want.Quantity.Equal(got.Lines[i].Quantity))
				assert.True(t, want.UnitCost.Equal(got.Lines[i].UnitCost))
			}
		})
	}
}

func TestAllocateCostWeightedAverage(t *testing.T) {
	batches := []domain.InflowBatch{
		batch(1, day(1), "10", "10", "100"),
		batch(2, day(2), "10", "10", "200"),
	}

	got, err := AllocateCost(1, batches, d("15"))
	require.NoError(t, err)

	assert.Equal(t, "133.33", got.UnitCost.StringFixed(2))
	assert.True(t, got.TotalCost.Equal(d("2000")))
	// input batches are left untouched
	assert.True(t, batches[0].Remaining.Equal(d("10")))
	assert.True(t, batches[1].Remaining.Equal(d("10")))
}
