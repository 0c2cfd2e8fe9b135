package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Color      *string         `json:"color,omitempty"`
	Barcode    *string         `json:"barcode,omitempty"`
	Stock      decimal.Decimal `json:"stock"`
	CategoryID *int64          `json:"category_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// InflowBatch is one stock receipt. Remaining is what FIFO has not yet
// allocated to a sale.
type InflowBatch struct {
	ID         int64               `json:"id"`
	ProductID  int64               `json:"product_id"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Remaining  decimal.Decimal     `json:"remaining"`
	UnitCost   decimal.Decimal     `json:"unit_cost"`
	ReceivedAt time.Time           `json:"received_at"`
	FXRate     decimal.NullDecimal `json:"fx_rate"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Untouched reports whether no sale has drawn from the batch.
func (b InflowBatch) Untouched() bool {
	return b.Remaining.Equal(b.Quantity)
}

// Allocation is the part of an outflow drawn from a single batch.
type Allocation struct {
	BatchID  int64           `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type Outflow struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name,omitempty"`
	CenterID         int64           `json:"center_id"`
	CenterName       string          `json:"center_name,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitSellPrice    decimal.Decimal `json:"unit_sell_price"`
	UnitCOGS         decimal.Decimal `json:"unit_cogs"`
	TotalCOGS        decimal.Decimal `json:"total_cogs"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	SoldAt           time.Time       `json:"sold_at"`
	OrderRef         *string         `json:"order_ref,omitempty"`
	IsReturned       bool            `json:"is_returned"`
	IsPaid           bool            `json:"is_paid"`
	CreatedAt        time.Time       `json:"created_at"`
	Allocations      []Allocation    `json:"allocations,omitempty"`
}

// SaleTotal is unit sell price times quantity.
func (o Outflow) SaleTotal() decimal.Decimal {
	return o.UnitSellPrice.Mul(o.Quantity)
}

// NetReceivable is what the center owes for this outflow.
func (o Outflow) NetReceivable() decimal.Decimal {
	return o.SaleTotal().Sub(o.CommissionAmount).Sub(o.ShippingCost)
}

type ShippingPolicy string

const (
	ShippingManual  ShippingPolicy = "manual"
	ShippingPercent ShippingPolicy = "percent"
	ShippingFixed   ShippingPolicy = "fixed"
)

func (p ShippingPolicy) Valid() bool {
	switch p {
	case ShippingManual, ShippingPercent, ShippingFixed:
		return true
	}
	return false
}

type Center struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	ShippingPolicy    ShippingPolicy  `json:"shipping_policy"`
	ShippingPercent   decimal.Decimal `json:"shipping_percent"`
	ShippingMin       decimal.Decimal `json:"shipping_min"`
	ShippingMax       decimal.Decimal `json:"shipping_max"`
	ShippingFixed     decimal.Decimal `json:"shipping_fixed"`
	CreatedAt         time.Time       `json:"created_at"`
}

type CommissionCategory struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Commission struct {
	ID         int64           `json:"id"`
	CenterID   int64           `json:"center_id"`
	CategoryID int64           `json:"category_id"`
	Percent    decimal.Decimal `json:"percent"`
}

type Settlement struct {
	ID        int64           `json:"id"`
	CenterID  int64           `json:"center_id"`
	Amount    decimal.Decimal `json:"amount"`
	SettledAt time.Time       `json:"settled_at"`
	Note      *string         `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type CashKind string

const (
	CashDeposit  CashKind = "deposit"
	CashWithdraw CashKind = "withdraw"
)

func (k CashKind) Valid() bool {
	return k == CashDeposit || k == CashWithdraw
}

type CashTransaction struct {
	ID          int64           `json:"id"`
	Kind        CashKind        `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Source      *string         `json:"source,omitempty"`
	Description *string         `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CashBalance struct {
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Balance     decimal.Decimal `json:"balance"`
}

// Receivable is the outstanding amount a center owes. Sales, Commission and
// Shipping cover unpaid, non-returned outflows only.
type Receivable struct {
	CenterID   int64           `json:"center_id"`
	CenterName string          `json:"center_name"`
	Sales      decimal.Decimal `json:"sales"`
	Commission decimal.Decimal `json:"commission"`
	Shipping   decimal.Decimal `json:"shipping"`
	Settled    decimal.Decimal `json:"settled"`
	Balance    decimal.Decimal `json:"balance"`
}

type Summary struct {
	Revenue        decimal.Decimal `json:"revenue"`
	COGS           decimal.Decimal `json:"cogs"`
	Commission     decimal.Decimal `json:"commission"`
	Shipping       decimal.Decimal `json:"shipping"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	TotalStock     decimal.Decimal `json:"total_stock"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	SettledSales   decimal.Decimal `json:"settled_sales"`
	Cash           CashBalance     `json:"cash"`
}

type ProductProfit struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	Commission  decimal.Decimal `json:"commission"`
	Shipping    decimal.Decimal `json:"shipping"`
	Profit      decimal.Decimal `json:"profit"`
}

type DailySales struct {
	Day     time.Time       `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// Violation describes one broken ledger invariant found by an audit.
type Violation struct {
	Kind      string          `json:"kind"`
	ProductID int64           `json:"product_id"`
	BatchID   *int64          `json:"batch_id,omitempty"`
	Expected  decimal.Decimal `json:"expected"`
	Actual    decimal.Decimal `json:"actual"`
}

const (
	ViolationStockDrift     = "stock_drift"
	ViolationBatchRemaining = "batch_remaining_out_of_range"
)
