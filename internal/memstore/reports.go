package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

func (s *Store) ListOutflows(ctx context.Context, filter domain.OutflowFilter) ([]domain.Outflow, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []domain.Outflow
	err := s.read(ctx, func(st *state) error {
		for id := range st.outflows {
			o, _ := st.outflow(id)
			if !outflowMatches(o, filter, search) {
				continue
			}
			o.Allocations = nil
			out = append(out, o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].SoldAt.After(out[j].SoldAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), err
}

func outflowMatches(o domain.Outflow, f domain.OutflowFilter, search string) bool {
	if f.CenterID != nil && o.CenterID != *f.CenterID {
		return false
	}
	if f.ProductID != nil && o.ProductID != *f.ProductID {
		return false
	}
	if f.Returned != nil && o.IsReturned != *f.Returned {
		return false
	}
	if f.Paid != nil && o.IsPaid != *f.Paid {
		return false
	}
	if !inRange(o.SoldAt, f.From, f.To) {
		return false
	}
	if search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(o.ProductName), search) {
		return true
	}
	return o.OrderRef != nil && strings.Contains(strings.ToLower(*o.OrderRef), search)
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func (s *Store) CenterReceivable(ctx context.Context, centerID int64) (domain.Receivable, error) {
	var rec domain.Receivable
	err := s.read(ctx, func(st *state) error {
		c, ok := st.centers[centerID]
		if !ok {
			return domain.NotFound("center", centerID)
		}
		rec = st.receivable(c)
		return nil
	})
	return rec, err
}

func (s *Store) ListReceivables(ctx context.Context) ([]domain.Receivable, error) {
	var out []domain.Receivable
	err := s.read(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.centers) {
			out = append(out, st.receivable(st.centers[id]))
		}
		return nil
	})
	return out, err
}

func (st *state) receivable(c domain.Center) domain.Receivable {
	rec := domain.Receivable{
		CenterID:   c.ID,
		CenterName: c.Name,
		Sales:      decimal.Zero,
		Commission: decimal.Zero,
		Shipping:   decimal.Zero,
		Settled:    decimal.Zero,
	}
	for _, o := range st.outflows {
		if o.CenterID != c.ID || o.IsReturned || o.IsPaid {
			continue
		}
		rec.Sales = rec.Sales.Add(o.SaleTotal())
		rec.Commission = rec.Commission.Add(o.CommissionAmount)
		rec.Shipping = rec.Shipping.Add(o.ShippingCost)
	}
	for _, set := range st.settlements {
		if set.CenterID == c.ID {
			rec.Settled = rec.Settled.Add(set.Amount)
		}
	}
	rec.Balance = rec.Sales.Sub(rec.Commission).Sub(rec.Shipping).Sub(rec.Settled)
	return rec
}

func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	sum := domain.Summary{
		Revenue:        decimal.Zero,
		COGS:           decimal.Zero,
		Commission:     decimal.Zero,
		Shipping:       decimal.Zero,
		TotalStock:     decimal.Zero,
		InventoryValue: decimal.Zero,
		SettledSales:   decimal.Zero,
	}
	err := s.read(ctx, func(st *state) error {
		for _, o := range st.outflows {
			if o.IsReturned {
				continue
			}
			sum.Revenue = sum.Revenue.Add(o.SaleTotal())
			sum.COGS = sum.COGS.Add(o.TotalCOGS)
			sum.Commission = sum.Commission.Add(o.CommissionAmount)
			sum.Shipping = sum.Shipping.Add(o.ShippingCost)
			if o.IsPaid {
				sum.SettledSales = sum.SettledSales.Add(o.SaleTotal())
			}
		}
		for _, p := range st.products {
			sum.TotalStock = sum.TotalStock.Add(p.Stock)
		}
		for _, b := range st.batches {
			sum.InventoryValue = sum.InventoryValue.Add(b.Remaining.Mul(b.UnitCost))
		}
		sum.Cash = st.cashBalance()
		return nil
	})
	sum.NetProfit = sum.Revenue.Sub(sum.COGS).Sub(sum.Commission).Sub(sum.Shipping)
	return sum, err
}

func (s *Store) ProductProfit(ctx context.Context) ([]domain.ProductProfit, error) {
	var out []domain.ProductProfit
	err := s.read(ctx, func(st *state) error {
		rows := map[int64]*domain.ProductProfit{}
		for _, o := range st.outflows {
			if o.IsReturned {
				continue
			}
			row, ok := rows[o.ProductID]
			if !ok {
				row = &domain.ProductProfit{
					ProductID:   o.ProductID,
					ProductName: st.products[o.ProductID].Name,
				}
				rows[o.ProductID] = row
			}
			row.Quantity = row.Quantity.Add(o.Quantity)
			row.Revenue = row.Revenue.Add(o.SaleTotal())
			row.COGS = row.COGS.Add(o.TotalCOGS)
			row.Commission = row.Commission.Add(o.CommissionAmount)
			row.Shipping = row.Shipping.Add(o.ShippingCost)
		}
		for _, row := range rows {
			row.Profit = row.Revenue.Sub(row.COGS).Sub(row.Commission).Sub(row.Shipping)
			out = append(out, *row)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Profit.Equal(out[j].Profit) {
			return out[i].Profit.GreaterThan(out[j].Profit)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, err
}

func (s *Store) DailySales(ctx context.Context, since time.Time) ([]domain.DailySales, error) {
	var out []domain.DailySales
	err := s.read(ctx, func(st *state) error {
		days := map[time.Time]*domain.DailySales{}
		for _, o := range st.outflows {
			if o.IsReturned || o.SoldAt.Before(since) {
				continue
			}
			key := o.SoldAt.UTC().Truncate(24 * time.Hour)
			row, ok := days[key]
			if !ok {
				row = &domain.DailySales{Day: key}
				days[key] = row
			}
			row.Revenue = row.Revenue.Add(o.SaleTotal())
			row.Count++
		}
		for _, row := range days {
			out = append(out, *row)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, err
}
