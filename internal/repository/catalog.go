package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

func (r *Repository) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, color, barcode)
		VALUES ($1, $2, $3)
		RETURNING id
	`, input.Name, input.Color, input.Barcode).Scan(&id); err != nil {
		return domain.Product{}, mapError(err, "create product")
	}
	return getProduct(ctx, r.pool, id, false)
}

// ListProducts matches search against name and barcode, or the exact id when
// search is numeric.
func (r *Repository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	limit := domain.NormalizeLimit(filter.Limit)
	offset := domain.NormalizeOffset(filter.Offset)
	search := strings.TrimSpace(filter.Search)

	rows, err := r.pool.Query(ctx, productSelect+`
		WHERE $1 = ''
			OR p.name ILIKE '%' || $1 || '%'
			OR p.barcode ILIKE '%' || $1 || '%'
			OR p.id::text = $1
		ORDER BY p.id ASC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		return scanProductRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	setParts := make([]string, 0, 4)
	args := []any{id}
	argIndex := 2

	if patch.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", argIndex))
		args = append(args, *patch.Name)
		argIndex++
	}
	if patch.Color != nil {
		setParts = append(setParts, fmt.Sprintf("color = NULLIF($%d, '')", argIndex))
		args = append(args, *patch.Color)
		argIndex++
	}
	if patch.Barcode != nil {
		setParts = append(setParts, fmt.Sprintf("barcode = NULLIF($%d, '')", argIndex))
		args = append(args, *patch.Barcode)
		argIndex++
	}
	if len(setParts) == 0 {
		return getProduct(ctx, r.pool, id, false)
	}
	setParts = append(setParts, "updated_at = NOW()")

	tag, err := r.pool.Exec(ctx,
		"UPDATE products SET "+strings.Join(setParts, ", ")+" WHERE id = $1",
		args...,
	)
	if err != nil {
		return domain.Product{}, mapError(err, fmt.Sprintf("update product %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.Product{}, domain.NotFound("product", id)
	}
	return getProduct(ctx, r.pool, id, false)
}

// DeleteProduct refuses products that still have batches or outflows; the
// foreign keys report that as a constraint violation.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete product %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", id)
	}
	return nil
}

func (r *Repository) SetProductCategory(ctx context.Context, productID int64, categoryID *int64) error {
	if _, err := getProduct(ctx, r.pool, productID, false); err != nil {
		return err
	}
	if categoryID == nil {
		if _, err := r.pool.Exec(ctx, "DELETE FROM product_categories WHERE product_id = $1", productID); err != nil {
			return fmt.Errorf("clear category of product %d: %w", productID, err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO product_categories (product_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET category_id = EXCLUDED.category_id
	`, productID, *categoryID)
	if err != nil {
		if domain.CodeOf(mapError(err, "")) == domain.CodeConstraintViolation {
			return domain.NotFound("category", *categoryID)
		}
		return fmt.Errorf("set category of product %d: %w", productID, err)
	}
	return nil
}

const centerSelect = `
	SELECT
		id,
		name,
		commission_percent,
		shipping_policy,
		shipping_percent,
		shipping_min,
		shipping_max,
		shipping_fixed,
		created_at
	FROM sales_centers
`

func getCenter(ctx context.Context, q querier, id int64) (domain.Center, error) {
	c, err := scanCenterRow(q.QueryRow(ctx, centerSelect+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Center{}, domain.NotFound("center", id)
	}
	if err != nil {
		return domain.Center{}, fmt.Errorf("load center %d: %w", id, err)
	}
	return c, nil
}

func scanCenterRow(row pgx.Row) (domain.Center, error) {
	var c domain.Center
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.CommissionPercent,
		&c.ShippingPolicy,
		&c.ShippingPercent,
		&c.ShippingMin,
		&c.ShippingMax,
		&c.ShippingFixed,
		&c.CreatedAt,
	)
	return c, err
}

func (r *Repository) CreateCenter(ctx context.Context, input domain.CenterInput) (domain.Center, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sales_centers (
			name, commission_percent, shipping_policy,
			shipping_percent, shipping_min, shipping_max, shipping_fixed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, name, commission_percent, shipping_policy,
			shipping_percent, shipping_min, shipping_max, shipping_fixed, created_at
	`,
		input.Name, input.CommissionPercent, string(input.ShippingPolicy),
		input.ShippingPercent, input.ShippingMin, input.ShippingMax, input.ShippingFixed,
	)
	c, err := scanCenterRow(row)
	if err != nil {
		return domain.Center{}, mapError(err, "create center")
	}
	return c, nil
}

func (r *Repository) GetCenter(ctx context.Context, id int64) (domain.Center, error) {
	return getCenter(ctx, r.pool, id)
}

func (r *Repository) ListCenters(ctx context.Context) ([]domain.Center, error) {
	rows, err := r.pool.Query(ctx, centerSelect+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	centers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Center, error) {
		return scanCenterRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan centers: %w", err)
	}
	return centers, nil
}

func (r *Repository) UpdateCenter(ctx context.Context, id int64, input domain.CenterInput) (domain.Center, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sales_centers
		SET name = $2,
			commission_percent = $3,
			shipping_policy = $4,
			shipping_percent = $5,
			shipping_min = $6,
			shipping_max = $7,
			shipping_fixed = $8
		WHERE id = $1
		RETURNING id, name, commission_percent, shipping_policy,
			shipping_percent, shipping_min, shipping_max, shipping_fixed, created_at
	`,
		id, input.Name, input.CommissionPercent, string(input.ShippingPolicy),
		input.ShippingPercent, input.ShippingMin, input.ShippingMax, input.ShippingFixed,
	)
	c, err := scanCenterRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Center{}, domain.NotFound("center", id)
	}
	if err != nil {
		return domain.Center{}, mapError(err, fmt.Sprintf("update center %d", id))
	}
	return c, nil
}

func (r *Repository) DeleteCenter(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM sales_centers WHERE id = $1", id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete center %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("center", id)
	}
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, input domain.CategoryInput) (domain.CommissionCategory, error) {
	var c domain.CommissionCategory
	err := r.pool.QueryRow(ctx, `
		INSERT INTO commission_categories (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, created_at
	`, input.Name, input.Description).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		return domain.CommissionCategory{}, mapError(err, "create category")
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.CommissionCategory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, created_at
		FROM commission_categories
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CommissionCategory, error) {
		var c domain.CommissionCategory
		err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return categories, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM commission_categories WHERE id = $1", id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete category %d", id))
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("category", id)
	}
	return nil
}

func (r *Repository) UpsertCommission(ctx context.Context, centerID, categoryID int64, percent decimal.Decimal) (domain.Commission, error) {
	if _, err := getCenter(ctx, r.pool, centerID); err != nil {
		return domain.Commission{}, err
	}
	var c domain.Commission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO commissions (center_id, category_id, percent)
		VALUES ($1, $2, $3)
		ON CONFLICT (center_id, category_id) DO UPDATE SET percent = EXCLUDED.percent
		RETURNING id, center_id, category_id, percent
	`, centerID, categoryID, percent).Scan(&c.ID, &c.CenterID, &c.CategoryID, &c.Percent)
	if err != nil {
		if domain.CodeOf(mapError(err, "")) == domain.CodeConstraintViolation {
			return domain.Commission{}, domain.NotFound("category", categoryID)
		}
		return domain.Commission{}, fmt.Errorf("upsert commission: %w", err)
	}
	return c, nil
}

func (r *Repository) ListCommissions(ctx context.Context, centerID *int64) ([]domain.Commission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, center_id, category_id, percent
		FROM commissions
		WHERE $1::bigint IS NULL OR center_id = $1
		ORDER BY id ASC
	`, centerID)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	commissions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Commission, error) {
		var c domain.Commission
		err := row.Scan(&c.ID, &c.CenterID, &c.CategoryID, &c.Percent)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan commissions: %w", err)
	}
	return commissions, nil
}

func (r *Repository) CategoryCommission(ctx context.Context, centerID, productID int64) (*decimal.Decimal, error) {
	var pct decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT c.percent
		FROM product_categories pc
		JOIN commissions c ON c.category_id = pc.category_id
		WHERE pc.product_id = $1 AND c.center_id = $2
	`, productID, centerID).Scan(&pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load category commission: %w", err)
	}
	return &pct, nil
}
