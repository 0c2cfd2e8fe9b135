// Package memstore keeps the whole ledger in process memory. Writers are
// serialized by one mutex and work on a copy of the state that replaces the
// live state only when the transaction succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"warehouse/internal/domain"
	"warehouse/internal/inventory"
)

type state struct {
	nextID          int64
	products        map[int64]domain.Product
	batches         map[int64]domain.InflowBatch
	outflows        map[int64]domain.Outflow
	centers         map[int64]domain.Center
	categories      map[int64]domain.CommissionCategory
	commissions     map[int64]domain.Commission
	productCategory map[int64]int64
	settlements     map[int64]domain.Settlement
	cash            map[int64]domain.CashTransaction
}

func newState() *state {
	return &state{
		products:        map[int64]domain.Product{},
		batches:         map[int64]domain.InflowBatch{},
		outflows:        map[int64]domain.Outflow{},
		centers:         map[int64]domain.Center{},
		categories:      map[int64]domain.CommissionCategory{},
		commissions:     map[int64]domain.Commission{},
		productCategory: map[int64]int64{},
		settlements:     map[int64]domain.Settlement{},
		cash:            map[int64]domain.CashTransaction{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Allocation slices are shared because they are
// never modified after insert.
func (s *state) clone() *state {
	return &state{
		nextID:          s.nextID,
		products:        cloneMap(s.products),
		batches:         cloneMap(s.batches),
		outflows:        cloneMap(s.outflows),
		centers:         cloneMap(s.centers),
		categories:      cloneMap(s.categories),
		commissions:     cloneMap(s.commissions),
		productCategory: cloneMap(s.productCategory),
		settlements:     cloneMap(s.settlements),
		cash:            cloneMap(s.cash),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the clock used for created_at and updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	return s.mutate(ctx, func(st *state) error {
		return fn(&tx{st: st, now: s.now})
	})
}

func (s *Store) mutate(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := s.read(ctx, func(st *state) error {
		var err error
		p, err = st.product(id)
		return err
	})
	return p, err
}

func (s *Store) GetBatch(ctx context.Context, id int64) (domain.InflowBatch, error) {
	var b domain.InflowBatch
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if b, ok = st.batches[id]; !ok {
			return domain.NotFound("batch", id)
		}
		return nil
	})
	return b, err
}

func (s *Store) ListBatches(ctx context.Context, productID int64) ([]domain.InflowBatch, error) {
	var out []domain.InflowBatch
	err := s.read(ctx, func(st *state) error {
		out = st.batchesOf(productID, false)
		return nil
	})
	return out, err
}

func (s *Store) GetOutflow(ctx context.Context, id int64) (domain.Outflow, error) {
	var o domain.Outflow
	err := s.read(ctx, func(st *state) error {
		var err error
		o, err = st.outflow(id)
		return err
	})
	return o, err
}

func (s *Store) AuditStock(ctx context.Context) ([]domain.Violation, error) {
	var out []domain.Violation
	err := s.read(ctx, func(st *state) error {
		sums := map[int64]decimal.Decimal{}
		for _, b := range st.batches {
			sums[b.ProductID] = sums[b.ProductID].Add(b.Remaining)
			if b.Remaining.IsNegative() || b.Remaining.GreaterThan(b.Quantity) {
				id := b.ID
				out = append(out, domain.Violation{
					Kind:      domain.ViolationBatchRemaining,
					ProductID: b.ProductID,
					BatchID:   &id,
					Expected:  b.Quantity,
					Actual:    b.Remaining,
				})
			}
		}
		for _, p := range st.products {
			if sum := sums[p.ID]; !sum.Equal(p.Stock) {
				out = append(out, domain.Violation{
					Kind:      domain.ViolationStockDrift,
					ProductID: p.ID,
					Expected:  sum,
					Actual:    p.Stock,
				})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, err
}

func (st *state) product(id int64) (domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return domain.Product{}, domain.NotFound("product", id)
	}
	if cat, ok := st.productCategory[id]; ok {
		p.CategoryID = &cat
	}
	return p, nil
}

func (st *state) outflow(id int64) (domain.Outflow, error) {
	o, ok := st.outflows[id]
	if !ok {
		return domain.Outflow{}, domain.NotFound("outflow", id)
	}
	o.ProductName = st.products[o.ProductID].Name
	o.CenterName = st.centers[o.CenterID].Name
	return o, nil
}

// batchesOf returns a product's batches in FIFO order.
func (st *state) batchesOf(productID int64, openOnly bool) []domain.InflowBatch {
	out := make([]domain.InflowBatch, 0)
	for _, b := range st.batches {
		if b.ProductID != productID {
			continue
		}
		if openOnly && !b.Remaining.IsPositive() {
			continue
		}
		out = append(out, b)
	}
	inventory.SortFIFO(out)
	return out
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) LockProduct(_ context.Context, id int64) (domain.Product, error) {
	return t.st.product(id)
}

func (t *tx) LockOpenBatches(_ context.Context, productID int64) ([]domain.InflowBatch, error) {
	return t.st.batchesOf(productID, true), nil
}

func (t *tx) LockBatch(_ context.Context, id int64) (domain.InflowBatch, error) {
	b, ok := t.st.batches[id]
	if !ok {
		return domain.InflowBatch{}, domain.NotFound("batch", id)
	}
	return b, nil
}

func (t *tx) LockOutflow(_ context.Context, id int64) (domain.Outflow, error) {
	return t.st.outflow(id)
}

func (t *tx) GetCenter(_ context.Context, id int64) (domain.Center, error) {
	c, ok := t.st.centers[id]
	if !ok {
		return domain.Center{}, domain.NotFound("center", id)
	}
	return c, nil
}

func (t *tx) AdjustProductStock(_ context.Context, productID int64, delta decimal.Decimal) error {
	p, ok := t.st.products[productID]
	if !ok {
		return domain.NotFound("product", productID)
	}
	p.Stock = p.Stock.Add(delta)
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return nil
}

func (t *tx) SetProductStock(_ context.Context, productID int64, stock decimal.Decimal) error {
	p, ok := t.st.products[productID]
	if !ok {
		return domain.NotFound("product", productID)
	}
	p.Stock = stock
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return nil
}

func (t *tx) SumRemaining(_ context.Context, productID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, b := range t.st.batches {
		if b.ProductID == productID {
			sum = sum.Add(b.Remaining)
		}
	}
	return sum, nil
}

func (t *tx) AdjustBatchRemaining(_ context.Context, batchID int64, delta decimal.Decimal) error {
	b, ok := t.st.batches[batchID]
	if !ok {
		return domain.NotFound("batch", batchID)
	}
	next := b.Remaining.Add(delta)
	if next.IsNegative() || next.GreaterThan(b.Quantity) {
		return domain.Constraint("batch %d remaining would leave [0, %s]", batchID, b.Quantity.String())
	}
	b.Remaining = next
	t.st.batches[batchID] = b
	return nil
}

func (t *tx) InsertBatch(_ context.Context, b domain.InflowBatch) (domain.InflowBatch, error) {
	if _, ok := t.st.products[b.ProductID]; !ok {
		return domain.InflowBatch{}, domain.NotFound("product", b.ProductID)
	}
	b.ID = t.st.id()
	b.CreatedAt = t.now()
	t.st.batches[b.ID] = b
	return b, nil
}

func (t *tx) UpdateBatch(_ context.Context, b domain.InflowBatch) (domain.InflowBatch, error) {
	current, ok := t.st.batches[b.ID]
	if !ok {
		return domain.InflowBatch{}, domain.NotFound("batch", b.ID)
	}
	if _, ok := t.st.products[b.ProductID]; !ok {
		return domain.InflowBatch{}, domain.NotFound("product", b.ProductID)
	}
	b.CreatedAt = current.CreatedAt
	t.st.batches[b.ID] = b
	return b, nil
}

func (t *tx) DeleteBatch(_ context.Context, id int64) error {
	if _, ok := t.st.batches[id]; !ok {
		return domain.NotFound("batch", id)
	}
	delete(t.st.batches, id)
	return nil
}

func (t *tx) BatchReferenced(_ context.Context, id int64) (bool, error) {
	for _, o := range t.st.outflows {
		for _, a := range o.Allocations {
			if a.BatchID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *tx) InsertOutflow(_ context.Context, o domain.Outflow) (domain.Outflow, error) {
	if _, ok := t.st.products[o.ProductID]; !ok {
		return domain.Outflow{}, domain.NotFound("product", o.ProductID)
	}
	if _, ok := t.st.centers[o.CenterID]; !ok {
		return domain.Outflow{}, domain.NotFound("center", o.CenterID)
	}
	o.ID = t.st.id()
	o.CreatedAt = t.now()
	o.Allocations = append([]domain.Allocation(nil), o.Allocations...)
	o.ProductName = ""
	o.CenterName = ""
	t.st.outflows[o.ID] = o
	return t.st.outflow(o.ID)
}

func (t *tx) SetOutflowFlags(_ context.Context, id int64, returned, paid bool) error {
	o, ok := t.st.outflows[id]
	if !ok {
		return domain.NotFound("outflow", id)
	}
	o.IsReturned = returned
	o.IsPaid = paid
	t.st.outflows[id] = o
	return nil
}

func (t *tx) DeleteOutflow(_ context.Context, id int64) error {
	if _, ok := t.st.outflows[id]; !ok {
		return domain.NotFound("outflow", id)
	}
	delete(t.st.outflows, id)
	return nil
}
