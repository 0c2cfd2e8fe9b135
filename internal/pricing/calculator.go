// Package pricing derives commission and shipping amounts for a sale from the
// selling center's configuration.
package pricing

import (
	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Quote is the commission and shipping charged for one sale.
type Quote struct {
	SaleTotal         decimal.Decimal `json:"sale_total"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Commission        decimal.Decimal `json:"commission"`
	Shipping          decimal.Decimal `json:"shipping"`
	Net               decimal.Decimal `json:"net"`
}

// CommissionPercent picks the category rate when one is configured for the
// (center, category) pair, then the center's default rate.
func CommissionPercent(center *domain.Center, categoryPercent *decimal.Decimal) decimal.Decimal {
	if categoryPercent != nil {
		return *categoryPercent
	}
	if center == nil {
		return decimal.Zero
	}
	return center.CommissionPercent
}

func Commission(center *domain.Center, categoryPercent *decimal.Decimal, saleTotal decimal.Decimal) decimal.Decimal {
	return percentOf(saleTotal, CommissionPercent(center, categoryPercent))
}

// Shipping applies the center's shipping policy. For manual centers the
// caller's amount is used as is.
func Shipping(center *domain.Center, saleTotal decimal.Decimal, manual *decimal.Decimal) decimal.Decimal {
	if center == nil {
		return decimal.Zero
	}
	switch center.ShippingPolicy {
	case domain.ShippingFixed:
		return center.ShippingFixed
	case domain.ShippingPercent:
		cost := percentOf(saleTotal, center.ShippingPercent)
		if center.ShippingMax.IsPositive() {
			cost = decimal.Min(center.ShippingMax, cost)
		}
		return decimal.Max(center.ShippingMin, cost)
	default:
		if manual == nil {
			return decimal.Zero
		}
		return *manual
	}
}

// NewQuote charges commission and percent shipping on the sale total (unit
// price times quantity), not on the unit price.
func NewQuote(center *domain.Center, categoryPercent *decimal.Decimal, unitPrice, quantity decimal.Decimal, manualShipping *decimal.Decimal) Quote {
	total := unitPrice.Mul(quantity)
	q := Quote{
		SaleTotal:         total,
		CommissionPercent: CommissionPercent(center, categoryPercent),
		Shipping:          Shipping(center, total, manualShipping),
	}
	q.Commission = Commission(center, categoryPercent, total)
	q.Net = total.Sub(q.Commission).Sub(q.Shipping)
	return q
}

// percentOf rounds to the ledger scale so a computed amount is always
// storable as is.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(domain.Scale)
}
