package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"warehouse/internal/domain"
)

func (r *Repository) ListOutflows(ctx context.Context, filter domain.OutflowFilter) ([]domain.Outflow, error) {
	query := outflowSelect + " WHERE 1 = 1"
	args := []any{}
	argIndex := 1
	add := func(clause string, value any) {
		query += fmt.Sprintf(clause, argIndex)
		args = append(args, value)
		argIndex++
	}

	if filter.From != nil {
		add(" AND o.sold_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(" AND o.sold_at <= $%d", *filter.To)
	}
	if filter.CenterID != nil {
		add(" AND o.center_id = $%d", *filter.CenterID)
	}
	if filter.ProductID != nil {
		add(" AND o.product_id = $%d", *filter.ProductID)
	}
	if filter.Returned != nil {
		add(" AND o.is_returned = $%d", *filter.Returned)
	}
	if filter.Paid != nil {
		add(" AND o.is_paid = $%d", *filter.Paid)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query += fmt.Sprintf(" AND (p.name ILIKE '%%' || $%d || '%%' OR o.order_ref ILIKE '%%' || $%d || '%%')", argIndex, argIndex)
		args = append(args, search)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY o.sold_at DESC, o.id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, domain.NormalizeLimit(filter.Limit), domain.NormalizeOffset(filter.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outflows: %w", err)
	}
	outflows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Outflow, error) {
		return scanOutflowRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan outflows: %w", err)
	}
	return outflows, nil
}

const receivableSelect = `
	SELECT
		c.id,
		c.name,
		COALESCE(o.sales, 0),
		COALESCE(o.commission, 0),
		COALESCE(o.shipping, 0),
		COALESCE(s.settled, 0)
	FROM sales_centers c
	LEFT JOIN (
		SELECT
			center_id,
			SUM(unit_sell_price * quantity) AS sales,
			SUM(commission_amount) AS commission,
			SUM(shipping_cost) AS shipping
		FROM outflows
		WHERE NOT is_returned AND NOT is_paid
		GROUP BY center_id
	) o ON o.center_id = c.id
	LEFT JOIN (
		SELECT center_id, SUM(amount) AS settled
		FROM settlements
		GROUP BY center_id
	) s ON s.center_id = c.id
`

func scanReceivable(row pgx.Row) (domain.Receivable, error) {
	var rec domain.Receivable
	if err := row.Scan(
		&rec.CenterID,
		&rec.CenterName,
		&rec.Sales,
		&rec.Commission,
		&rec.Shipping,
		&rec.Settled,
	); err != nil {
		return domain.Receivable{}, err
	}
	rec.Balance = rec.Sales.Sub(rec.Commission).Sub(rec.Shipping).Sub(rec.Settled)
	return rec, nil
}

func (r *Repository) CenterReceivable(ctx context.Context, centerID int64) (domain.Receivable, error) {
	rec, err := scanReceivable(r.pool.QueryRow(ctx, receivableSelect+" WHERE c.id = $1", centerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Receivable{}, domain.NotFound("center", centerID)
	}
	if err != nil {
		return domain.Receivable{}, fmt.Errorf("center receivable %d: %w", centerID, err)
	}
	return rec, nil
}

func (r *Repository) ListReceivables(ctx context.Context) ([]domain.Receivable, error) {
	rows, err := r.pool.Query(ctx, receivableSelect+" ORDER BY c.id ASC")
	if err != nil {
		return nil, fmt.Errorf("list receivables: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Receivable, error) {
		return scanReceivable(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan receivables: %w", err)
	}
	return items, nil
}

func (r *Repository) Summary(ctx context.Context) (domain.Summary, error) {
	var s domain.Summary
	if err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(unit_sell_price * quantity), 0),
			COALESCE(SUM(total_cogs), 0),
			COALESCE(SUM(commission_amount), 0),
			COALESCE(SUM(shipping_cost), 0),
			COALESCE(SUM(unit_sell_price * quantity) FILTER (WHERE is_paid), 0)
		FROM outflows
		WHERE NOT is_returned
	`).Scan(&s.Revenue, &s.COGS, &s.Commission, &s.Shipping, &s.SettledSales); err != nil {
		return domain.Summary{}, fmt.Errorf("summarize outflows: %w", err)
	}
	if err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(stock), 0) FROM products),
			(SELECT COALESCE(SUM(remaining * unit_cost), 0) FROM inflow_batches)
	`).Scan(&s.TotalStock, &s.InventoryValue); err != nil {
		return domain.Summary{}, fmt.Errorf("summarize inventory: %w", err)
	}
	cash, err := cashBalance(ctx, r.pool)
	if err != nil {
		return domain.Summary{}, err
	}
	s.Cash = cash
	s.NetProfit = s.Revenue.Sub(s.COGS).Sub(s.Commission).Sub(s.Shipping)
	return s, nil
}

func (r *Repository) ProductProfit(ctx context.Context) ([]domain.ProductProfit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			p.id,
			p.name,
			SUM(o.quantity),
			SUM(o.unit_sell_price * o.quantity),
			SUM(o.total_cogs),
			SUM(o.commission_amount),
			SUM(o.shipping_cost)
		FROM outflows o
		JOIN products p ON p.id = o.product_id
		WHERE NOT o.is_returned
		GROUP BY p.id, p.name
	`)
	if err != nil {
		return nil, fmt.Errorf("product profit: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProductProfit, error) {
		var p domain.ProductProfit
		err := row.Scan(&p.ProductID, &p.ProductName, &p.Quantity, &p.Revenue, &p.COGS, &p.Commission, &p.Shipping)
		p.Profit = p.Revenue.Sub(p.COGS).Sub(p.Commission).Sub(p.Shipping)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan product profit: %w", err)
	}
	sortProfit(items)
	return items, nil
}

func (r *Repository) DailySales(ctx context.Context, since time.Time) ([]domain.DailySales, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sold_at, SUM(unit_sell_price * quantity), COUNT(*)
		FROM outflows
		WHERE NOT is_returned AND sold_at >= $1
		GROUP BY sold_at
		ORDER BY sold_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DailySales, error) {
		var d domain.DailySales
		err := row.Scan(&d.Day, &d.Revenue, &d.Count)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan daily sales: %w", err)
	}
	return items, nil
}

func (r *Repository) AuditStock(ctx context.Context) ([]domain.Violation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, product_id, batch_id, expected, actual
		FROM (
			SELECT
				'`+domain.ViolationStockDrift+`' AS kind,
				p.id AS product_id,
				NULL::bigint AS batch_id,
				COALESCE(b.total, 0) AS expected,
				p.stock AS actual
			FROM products p
			LEFT JOIN (
				SELECT product_id, SUM(remaining) AS total
				FROM inflow_batches
				GROUP BY product_id
			) b ON b.product_id = p.id
			WHERE p.stock <> COALESCE(b.total, 0)
			UNION ALL
			SELECT
				'`+domain.ViolationBatchRemaining+`',
				product_id,
				id,
				quantity,
				remaining
			FROM inflow_batches
			WHERE remaining < 0 OR remaining > quantity
		) v
		ORDER BY product_id, kind
	`)
	if err != nil {
		return nil, fmt.Errorf("audit stock: %w", err)
	}
	violations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Violation, error) {
		var v domain.Violation
		err := row.Scan(&v.Kind, &v.ProductID, &v.BatchID, &v.Expected, &v.Actual)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}
	return violations, nil
}

func sortProfit(items []domain.ProductProfit) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Profit.Equal(items[j].Profit) {
			return items[i].Profit.GreaterThan(items[j].Profit)
		}
		return items[i].ProductID < items[j].ProductID
	})
}
