package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
)

func (s *Store) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	var created domain.Product
	err := s.mutate(ctx, func(st *state) error {
		now := s.now()
		created = domain.Product{
			ID:        st.id(),
			Name:      input.Name,
			Color:     input.Color,
			Barcode:   input.Barcode,
			Stock:     decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.products[created.ID] = created
		return nil
	})
	return created, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []domain.Product
	err := s.read(ctx, func(st *state) error {
		ids := sortedKeys(st.products)
		for _, id := range ids {
			p, _ := st.product(id)
			if search != "" && !productMatches(p, search) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}

func productMatches(p domain.Product, search string) bool {
	if strings.Contains(strings.ToLower(p.Name), search) {
		return true
	}
	if p.Barcode != nil && strings.Contains(strings.ToLower(*p.Barcode), search) {
		return true
	}
	return strconv.FormatInt(p.ID, 10) == search
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	var updated domain.Product
	err := s.mutate(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NotFound("product", id)
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Color != nil {
			p.Color = emptyToNil(*patch.Color)
		}
		if patch.Barcode != nil {
			p.Barcode = emptyToNil(*patch.Barcode)
		}
		p.UpdatedAt = s.now()
		st.products[id] = p
		updated, _ = st.product(id)
		return nil
	})
	return updated, err
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return domain.NotFound("product", id)
		}
		for _, b := range st.batches {
			if b.ProductID == id {
				return domain.Constraint("product %d still has inflow batches", id)
			}
		}
		for _, o := range st.outflows {
			if o.ProductID == id {
				return domain.Constraint("product %d still has outflows", id)
			}
		}
		delete(st.products, id)
		delete(st.productCategory, id)
		return nil
	})
}

func (s *Store) SetProductCategory(ctx context.Context, productID int64, categoryID *int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.products[productID]; !ok {
			return domain.NotFound("product", productID)
		}
		if categoryID == nil {
			delete(st.productCategory, productID)
			return nil
		}
		if _, ok := st.categories[*categoryID]; !ok {
			return domain.NotFound("category", *categoryID)
		}
		st.productCategory[productID] = *categoryID
		return nil
	})
}

func (s *Store) CreateCenter(ctx context.Context, input domain.CenterInput) (domain.Center, error) {
	var created domain.Center
	err := s.mutate(ctx, func(st *state) error {
		if err := st.centerNameFree(input.Name, 0); err != nil {
			return err
		}
		created = centerFromInput(input)
		created.ID = st.id()
		created.CreatedAt = s.now()
		st.centers[created.ID] = created
		return nil
	})
	return created, err
}

func (s *Store) GetCenter(ctx context.Context, id int64) (domain.Center, error) {
	var c domain.Center
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if c, ok = st.centers[id]; !ok {
			return domain.NotFound("center", id)
		}
		return nil
	})
	return c, err
}

func (s *Store) ListCenters(ctx context.Context) ([]domain.Center, error) {
	var out []domain.Center
	err := s.read(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.centers) {
			out = append(out, st.centers[id])
		}
		return nil
	})
	return out, err
}

func (s *Store) UpdateCenter(ctx context.Context, id int64, input domain.CenterInput) (domain.Center, error) {
	var updated domain.Center
	err := s.mutate(ctx, func(st *state) error {
		current, ok := st.centers[id]
		if !ok {
			return domain.NotFound("center", id)
		}
		if err := st.centerNameFree(input.Name, id); err != nil {
			return err
		}
		updated = centerFromInput(input)
		updated.ID = id
		updated.CreatedAt = current.CreatedAt
		st.centers[id] = updated
		return nil
	})
	return updated, err
}

func (s *Store) DeleteCenter(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.centers[id]; !ok {
			return domain.NotFound("center", id)
		}
		for _, o := range st.outflows {
			if o.CenterID == id {
				return domain.Constraint("center %d still has outflows", id)
			}
		}
		for _, set := range st.settlements {
			if set.CenterID == id {
				return domain.Constraint("center %d still has settlements", id)
			}
		}
		for cid, c := range st.commissions {
			if c.CenterID == id {
				delete(st.commissions, cid)
			}
		}
		delete(st.centers, id)
		return nil
	})
}

func (st *state) centerNameFree(name string, except int64) error {
	for _, c := range st.centers {
		if c.ID != except && c.Name == name {
			return domain.Constraint("center name %q already exists", name)
		}
	}
	return nil
}

func centerFromInput(input domain.CenterInput) domain.Center {
	return domain.Center{
		Name:              input.Name,
		CommissionPercent: input.CommissionPercent,
		ShippingPolicy:    input.ShippingPolicy,
		ShippingPercent:   input.ShippingPercent,
		ShippingMin:       input.ShippingMin,
		ShippingMax:       input.ShippingMax,
		ShippingFixed:     input.ShippingFixed,
	}
}

func (s *Store) CreateCategory(ctx context.Context, input domain.CategoryInput) (domain.CommissionCategory, error) {
	var created domain.CommissionCategory
	err := s.mutate(ctx, func(st *state) error {
		for _, c := range st.categories {
			if c.Name == input.Name {
				return domain.Constraint("category name %q already exists", input.Name)
			}
		}
		created = domain.CommissionCategory{
			ID:          st.id(),
			Name:        input.Name,
			Description: input.Description,
			CreatedAt:   s.now(),
		}
		st.categories[created.ID] = created
		return nil
	})
	return created, err
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.CommissionCategory, error) {
	var out []domain.CommissionCategory
	err := s.read(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.categories) {
			out = append(out, st.categories[id])
		}
		return nil
	})
	return out, err
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.categories[id]; !ok {
			return domain.NotFound("category", id)
		}
		for cid, c := range st.commissions {
			if c.CategoryID == id {
				delete(st.commissions, cid)
			}
		}
		for pid, cat := range st.productCategory {
			if cat == id {
				delete(st.productCategory, pid)
			}
		}
		delete(st.categories, id)
		return nil
	})
}

func (s *Store) UpsertCommission(ctx context.Context, centerID, categoryID int64, percent decimal.Decimal) (domain.Commission, error) {
	var saved domain.Commission
	err := s.mutate(ctx, func(st *state) error {
		if _, ok := st.centers[centerID]; !ok {
			return domain.NotFound("center", centerID)
		}
		if _, ok := st.categories[categoryID]; !ok {
			return domain.NotFound("category", categoryID)
		}
		for id, c := range st.commissions {
			if c.CenterID == centerID && c.CategoryID == categoryID {
				c.Percent = percent
				st.commissions[id] = c
				saved = c
				return nil
			}
		}
		saved = domain.Commission{
			ID:         st.id(),
			CenterID:   centerID,
			CategoryID: categoryID,
			Percent:    percent,
		}
		st.commissions[saved.ID] = saved
		return nil
	})
	return saved, err
}

func (s *Store) ListCommissions(ctx context.Context, centerID *int64) ([]domain.Commission, error) {
	var out []domain.Commission
	err := s.read(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.commissions) {
			c := st.commissions[id]
			if centerID != nil && c.CenterID != *centerID {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (s *Store) CategoryCommission(ctx context.Context, centerID, productID int64) (*decimal.Decimal, error) {
	var pct *decimal.Decimal
	err := s.read(ctx, func(st *state) error {
		cat, ok := st.productCategory[productID]
		if !ok {
			return nil
		}
		for _, c := range st.commissions {
			if c.CenterID == centerID && c.CategoryID == cat {
				v := c.Percent
				pct = &v
				return nil
			}
		}
		return nil
	})
	return pct, err
}

func (s *Store) CreateSettlement(ctx context.Context, input domain.SettlementInput) (domain.Settlement, error) {
	var created domain.Settlement
	err := s.mutate(ctx, func(st *state) error {
		if _, ok := st.centers[input.CenterID]; !ok {
			return domain.NotFound("center", input.CenterID)
		}
		created = domain.Settlement{
			ID:        st.id(),
			CenterID:  input.CenterID,
			Amount:    input.Amount,
			SettledAt: input.SettledAt,
			Note:      input.Note,
			CreatedAt: s.now(),
		}
		st.settlements[created.ID] = created
		return nil
	})
	return created, err
}

func (s *Store) ListSettlements(ctx context.Context, filter domain.SettlementFilter) ([]domain.Settlement, error) {
	var out []domain.Settlement
	err := s.read(ctx, func(st *state) error {
		for _, set := range st.settlements {
			if filter.CenterID != nil && set.CenterID != *filter.CenterID {
				continue
			}
			if !inRange(set.SettledAt, filter.From, filter.To) {
				continue
			}
			out = append(out, set)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SettledAt.Equal(out[j].SettledAt) {
			return out[i].SettledAt.After(out[j].SettledAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (s *Store) DeleteSettlement(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.settlements[id]; !ok {
			return domain.NotFound("settlement", id)
		}
		delete(st.settlements, id)
		return nil
	})
}

func (s *Store) CreateCashTransaction(ctx context.Context, input domain.CashInput) (domain.CashTransaction, error) {
	var created domain.CashTransaction
	err := s.mutate(ctx, func(st *state) error {
		created = domain.CashTransaction{
			ID:          st.id(),
			Kind:        input.Kind,
			Amount:      input.Amount,
			Source:      input.Source,
			Description: input.Description,
			OccurredAt:  input.OccurredAt,
			CreatedAt:   s.now(),
		}
		st.cash[created.ID] = created
		return nil
	})
	return created, err
}

func (s *Store) ListCashTransactions(ctx context.Context, filter domain.CashFilter) ([]domain.CashTransaction, error) {
	var out []domain.CashTransaction
	err := s.read(ctx, func(st *state) error {
		for _, c := range st.cash {
			if filter.Kind != nil && c.Kind != *filter.Kind {
				continue
			}
			if !inRange(c.OccurredAt, filter.From, filter.To) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (s *Store) DeleteCashTransaction(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.cash[id]; !ok {
			return domain.NotFound("cash transaction", id)
		}
		delete(st.cash, id)
		return nil
	})
}

func (s *Store) CashBalance(ctx context.Context) (domain.CashBalance, error) {
	var bal domain.CashBalance
	err := s.read(ctx, func(st *state) error {
		bal = st.cashBalance()
		return nil
	})
	return bal, err
}

func (st *state) cashBalance() domain.CashBalance {
	bal := domain.CashBalance{Deposits: decimal.Zero, Withdrawals: decimal.Zero}
	for _, c := range st.cash {
		switch c.Kind {
		case domain.CashDeposit:
			bal.Deposits = bal.Deposits.Add(c.Amount)
		case domain.CashWithdraw:
			bal.Withdrawals = bal.Withdrawals.Add(c.Amount)
		}
	}
	bal.Balance = bal.Deposits.Sub(bal.Withdrawals)
	return bal
}

func emptyToNil(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](items []T, limit, offset int) []T {
	limit = domain.NormalizeLimit(limit)
	offset = domain.NormalizeOffset(offset)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
