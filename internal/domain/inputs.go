package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places the ledger stores for quantities and
// money amounts.
const Scale int32 = 4

// CheckScale rejects v when it carries more decimal places than Scale.
func CheckScale(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(Scale)) {
		return Invalid("%s allows at most %d decimal places", field, Scale)
	}
	return nil
}

type ProductInput struct {
	Name    string
	Color   *string
	Barcode *string
}

type ProductPatch struct {
	Name    *string
	Color   *string
	Barcode *string
}

type ProductFilter struct {
	Search string
	Limit  int
	Offset int
}

type InflowInput struct {
	ProductID  int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	ReceivedAt time.Time
	FXRate     decimal.NullDecimal
}

// InflowPatch edits an untouched batch. Nil fields are left alone; SetFXRate
// distinguishes clearing the rate from not touching it.
type InflowPatch struct {
	ProductID  *int64
	Quantity   *decimal.Decimal
	UnitCost   *decimal.Decimal
	ReceivedAt *time.Time
	SetFXRate  bool
	FXRate     decimal.NullDecimal
}

type SaleInput struct {
	ProductID        int64
	CenterID         int64
	Quantity         decimal.Decimal
	UnitSellPrice    decimal.Decimal
	CommissionAmount decimal.Decimal
	ShippingCost     decimal.Decimal
	SoldAt           time.Time
	OrderRef         *string
}

type OutflowFilter struct {
	From      *time.Time
	To        *time.Time
	CenterID  *int64
	ProductID *int64
	Returned  *bool
	Paid      *bool
	Search    string
	Limit     int
	Offset    int
}

type CenterInput struct {
	Name              string
	CommissionPercent decimal.Decimal
	ShippingPolicy    ShippingPolicy
	ShippingPercent   decimal.Decimal
	ShippingMin       decimal.Decimal
	ShippingMax       decimal.Decimal
	ShippingFixed     decimal.Decimal
}

type CategoryInput struct {
	Name        string
	Description *string
}

type SettlementInput struct {
	CenterID  int64
	Amount    decimal.Decimal
	SettledAt time.Time
	Note      *string
}

type SettlementFilter struct {
	CenterID *int64
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type CashInput struct {
	Kind        CashKind
	Amount      decimal.Decimal
	Source      *string
	Description *string
	OccurredAt  time.Time
}

type CashFilter struct {
	Kind   *CashKind
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// NormalizeLimit clamps a page size to (0, 1000], defaulting to 200.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
