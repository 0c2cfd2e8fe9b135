package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
	"warehouse/internal/memstore"
	"warehouse/internal/service"
)

func driftedLedger(t *testing.T) *service.Service {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	svc := service.New(store, nil, nil)

	product, err := svc.CreateProduct(ctx, domain.ProductInput{Name: "Teapot"})
	require.NoError(t, err)
	_, err = svc.ReceiveInflow(ctx, domain.InflowInput{
		ProductID: product.ID,
		Quantity:  decimal.NewFromInt(4),
		UnitCost:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// Bypass the engine to simulate a stock counter that drifted.
	require.NoError(t, store.WithTx(ctx, func(tx inventory.Tx) error {
		return tx.AdjustProductStock(ctx, product.ID, decimal.NewFromInt(3))
	}))
	return svc
}

func TestRunReportsWithoutFix(t *testing.T) {
	svc := driftedLedger(t)
	var out bytes.Buffer

	remaining, err := run(context.Background(), svc, options{}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.Contains(t, out.String(), "stock_drift product=1 expected=4 actual=7")
}

func TestRunFixRepairsDrift(t *testing.T) {
	svc := driftedLedger(t)
	var out bytes.Buffer

	remaining, err := run(context.Background(), svc, options{fix: true}, &out)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Contains(t, out.String(), "repaired stock on 1 product(s)")

	out.Reset()
	remaining, err = run(context.Background(), svc, options{asJSON: true}, &out)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.JSONEq(t, "[]", out.String())
}
