package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"warehouse/internal/domain"
)

func (r *Repository) CreateSettlement(ctx context.Context, input domain.SettlementInput) (domain.Settlement, error) {
	if _, err := getCenter(ctx, r.pool, input.CenterID); err != nil {
		return domain.Settlement{}, err
	}
	var s domain.Settlement
	err := r.pool.QueryRow(ctx, `
		INSERT INTO settlements (center_id, amount, settled_at, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, center_id, amount, settled_at, note, created_at
	`, input.CenterID, input.Amount, input.SettledAt, input.Note).Scan(
		&s.ID, &s.CenterID, &s.Amount, &s.SettledAt, &s.Note, &s.CreatedAt,
	)
	if err != nil {
		return domain.Settlement{}, mapError(err, "create settlement")
	}
	return s, nil
}

func (r *Repository) ListSettlements(ctx context.Context, filter domain.SettlementFilter) ([]domain.Settlement, error) {
	query := `
		SELECT id, center_id, amount, settled_at, note, created_at
		FROM settlements
		WHERE 1 = 1
	`
	args := []any{}
	argIndex := 1
	if filter.CenterID != nil {
		query += fmt.Sprintf(" AND center_id = $%d", argIndex)
		args = append(args, *filter.CenterID)
		argIndex++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND settled_at >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND settled_at <= $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY settled_at DESC, id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, domain.NormalizeLimit(filter.Limit), domain.NormalizeOffset(filter.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	settlements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Settlement, error) {
		var s domain.Settlement
		err := row.Scan(&s.ID, &s.CenterID, &s.Amount, &s.SettledAt, &s.Note, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan settlements: %w", err)
	}
	return settlements, nil
}

func (r *Repository) DeleteSettlement(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM settlements WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete settlement %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("settlement", id)
	}
	return nil
}

func (r *Repository) CreateCashTransaction(ctx context.Context, input domain.CashInput) (domain.CashTransaction, error) {
	var c domain.CashTransaction
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cash_transactions (kind, amount, source, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, kind, amount, source, description, occurred_at, created_at
	`, string(input.Kind), input.Amount, input.Source, input.Description, input.OccurredAt).Scan(
		&c.ID, &c.Kind, &c.Amount, &c.Source, &c.Description, &c.OccurredAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.CashTransaction{}, mapError(err, "create cash transaction")
	}
	return c, nil
}

func (r *Repository) ListCashTransactions(ctx context.Context, filter domain.CashFilter) ([]domain.CashTransaction, error) {
	query := `
		SELECT id, kind, amount, source, description, occurred_at, created_at
		FROM cash_transactions
		WHERE 1 = 1
	`
	args := []any{}
	argIndex := 1
	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argIndex)
		args = append(args, string(*filter.Kind))
		argIndex++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, domain.NormalizeLimit(filter.Limit), domain.NormalizeOffset(filter.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cash transactions: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CashTransaction, error) {
		var c domain.CashTransaction
		err := row.Scan(&c.ID, &c.Kind, &c.Amount, &c.Source, &c.Description, &c.OccurredAt, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan cash transactions: %w", err)
	}
	return items, nil
}

func (r *Repository) DeleteCashTransaction(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM cash_transactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete cash transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("cash transaction", id)
	}
	return nil
}

func (r *Repository) CashBalance(ctx context.Context) (domain.CashBalance, error) {
	return cashBalance(ctx, r.pool)
}

func cashBalance(ctx context.Context, q querier) (domain.CashBalance, error) {
	var b domain.CashBalance
	if err := q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = 'deposit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'withdraw'), 0)
		FROM cash_transactions
	`).Scan(&b.Deposits, &b.Withdrawals); err != nil {
		return domain.CashBalance{}, fmt.Errorf("cash balance: %w", err)
	}
	b.Balance = b.Deposits.Sub(b.Withdrawals)
	return b, nil
}
