package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := InsufficientStock(7, decimal.NewFromInt(25), decimal.NewFromInt(20))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrBatchInUse)
	assert.Contains(t, err.Error(), "product 7")
}

func TestErrorIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("commit sale: %w", BatchInUse(3))

	assert.True(t, errors.Is(wrapped, ErrBatchInUse))
	assert.Equal(t, CodeBatchInUse, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestOutflowNetReceivable(t *testing.T) {
	o := Outflow{
		Quantity:         decimal.NewFromInt(4),
		UnitSellPrice:    decimal.NewFromInt(250000),
		CommissionAmount: decimal.NewFromInt(70000),
		ShippingCost:     decimal.NewFromInt(30000),
	}

	assert.True(t, o.SaleTotal().Equal(decimal.NewFromInt(1000000)))
	assert.True(t, o.NetReceivable().Equal(decimal.NewFromInt(900000)))
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 200, NormalizeLimit(0))
	assert.Equal(t, 1000, NormalizeLimit(5000))
	assert.Equal(t, 15, NormalizeLimit(15))
	assert.Equal(t, 0, NormalizeOffset(-3))
}
