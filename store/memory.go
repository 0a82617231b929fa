package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"settlement-service/models"
)

type key struct {
	tenant string
	id     string
}

// MemoryStore keeps everything in process. It backs tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[key]*models.Table
	orders   map[key]*models.Order
	bills    map[key]*models.Bill
	payments map[key]*models.Payment
	pricing  map[string][]*models.PricingConfig
	calls    map[key]*models.Call
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[key]*models.Table),
		orders:   make(map[key]*models.Order),
		bills:    make(map[key]*models.Bill),
		payments: make(map[key]*models.Payment),
		pricing:  make(map[string][]*models.PricingConfig),
		calls:    make(map[key]*models.Call),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}

func versionMismatch(kind, id string, expected, actual int64) error {
	return fmt.Errorf("%s %s: expected version %d, current %d: %w", kind, id, expected, actual, models.ErrVersionMismatch)
}

func (s *MemoryStore) CreateTable(_ context.Context, t *models.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{t.TenantID, t.ID}
	if _, ok := s.tables[k]; ok {
		return fmt.Errorf("table %s already exists: %w", t.ID, models.ErrConflict)
	}
	for _, existing := range s.tables {
		if existing.TenantID == t.TenantID && existing.Number == t.Number {
			return fmt.Errorf("table number %d already exists: %w", t.Number, models.ErrConflict)
		}
	}
	s.tables[k] = t.Clone()
	return nil
}

func (s *MemoryStore) GetTable(_ context.Context, tenantID, id string) (*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[key{tenantID, id}]
	if !ok {
		return nil, notFound("table", id)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListTables(_ context.Context, tenantID string) ([]*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Table
	for k, t := range s.tables {
		if k.tenant == tenantID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) UpdateTable(_ context.Context, t *models.Table, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{t.TenantID, t.ID}
	cur, ok := s.tables[k]
	if !ok {
		return notFound("table", t.ID)
	}
	if cur.Version != expectedVersion {
		return versionMismatch("table", t.ID, expectedVersion, cur.Version)
	}
	t.Version = expectedVersion + 1
	s.tables[k] = t.Clone()
	return nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{o.TenantID, o.ID}
	if _, ok := s.orders[k]; ok {
		return fmt.Errorf("order %s already exists: %w", o.ID, models.ErrConflict)
	}
	s.orders[k] = o.Clone()
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, tenantID, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[key{tenantID, id}]
	if !ok {
		return nil, notFound("order", id)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrdersByTable(_ context.Context, tenantID, tableID string) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for k, o := range s.orders {
		if k.tenant == tenantID && o.TableID == tableID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *models.Order, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{o.TenantID, o.ID}
	cur, ok := s.orders[k]
	if !ok {
		return notFound("order", o.ID)
	}
	if cur.Version != expectedVersion {
		return versionMismatch("order", o.ID, expectedVersion, cur.Version)
	}
	o.Version = expectedVersion + 1
	s.orders[k] = o.Clone()
	return nil
}

func (s *MemoryStore) DeleteOrder(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenantID, id}
	if _, ok := s.orders[k]; !ok {
		return notFound("order", id)
	}
	delete(s.orders, k)
	return nil
}

func (s *MemoryStore) activeBillLocked(tenantID, tableID string) *models.Bill {
	for k, b := range s.bills {
		if k.tenant == tenantID && b.TableID == tableID && b.Active() {
			return b
		}
	}
	return nil
}

func (s *MemoryStore) CreateBill(_ context.Context, b *models.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.activeBillLocked(b.TenantID, b.TableID); existing != nil {
		return &models.ConflictError{Bill: existing.Clone(), Reason: "table already has an active bill"}
	}
	s.bills[key{b.TenantID, b.ID}] = b.Clone()
	return nil
}

func (s *MemoryStore) GetBill(_ context.Context, tenantID, id string) (*models.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[key{tenantID, id}]
	if !ok {
		return nil, notFound("bill", id)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) FindActiveBill(_ context.Context, tenantID, tableID string) (*models.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.activeBillLocked(tenantID, tableID); b != nil {
		return b.Clone(), nil
	}
	return nil, notFound("active bill for table", tableID)
}

func (s *MemoryStore) ListBills(_ context.Context, tenantID string, active bool) ([]*models.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Bill
	for k, b := range s.bills {
		if k.tenant == tenantID && b.Active() == active {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateBill(_ context.Context, b *models.Bill, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBillLocked(b, expectedVersion)
}

func (s *MemoryStore) updateBillLocked(b *models.Bill, expectedVersion int64) error {
	k := key{b.TenantID, b.ID}
	cur, ok := s.bills[k]
	if !ok {
		return notFound("bill", b.ID)
	}
	if cur.Version != expectedVersion {
		return versionMismatch("bill", b.ID, expectedVersion, cur.Version)
	}
	b.Version = expectedVersion + 1
	s.bills[k] = b.Clone()
	return nil
}

func (s *MemoryStore) DeleteBill(_ context.Context, tenantID, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenantID, id}
	cur, ok := s.bills[k]
	if !ok {
		return notFound("bill", id)
	}
	if cur.Version != expectedVersion {
		return versionMismatch("bill", id, expectedVersion, cur.Version)
	}
	delete(s.bills, k)
	return nil
}

func (s *MemoryStore) SettleBill(_ context.Context, b *models.Bill, expectedVersion int64, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := key{p.TenantID, p.IdempotencyKey}
	if _, ok := s.payments[pk]; ok {
		return fmt.Errorf("idempotency key %s already used: %w", p.IdempotencyKey, models.ErrConflict)
	}
	for _, id := range b.OrderIDs {
		if _, ok := s.orders[key{b.TenantID, id}]; !ok {
			return notFound("order", id)
		}
	}
	if err := s.updateBillLocked(b, expectedVersion); err != nil {
		return err
	}
	for _, id := range b.OrderIDs {
		o := s.orders[key{b.TenantID, id}]
		if o.PaymentStatus == models.PaymentPaid {
			continue
		}
		paid := o.Clone()
		paid.PaymentStatus = models.PaymentPaid
		paid.Version++
		paid.UpdatedAt = p.CreatedAt
		s.orders[key{b.TenantID, id}] = paid
	}
	cp := *p
	s.payments[pk] = &cp
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, tenantID, idempotencyKey string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[key{tenantID, idempotencyKey}]
	if !ok {
		return nil, notFound("payment", idempotencyKey)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SavePricingConfig(_ context.Context, cfg *models.PricingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs := s.pricing[cfg.TenantID]
	var next int64 = 1
	for _, c := range configs {
		if c.Version >= next {
			next = c.Version + 1
		}
		if cfg.Active {
			c.Active = false
		}
	}
	cfg.Version = next
	s.pricing[cfg.TenantID] = append(configs, cfg.Clone())
	return nil
}

func (s *MemoryStore) ActivePricingConfig(_ context.Context, tenantID string) (*models.PricingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.pricing[tenantID] {
		if c.Active {
			return c.Clone(), nil
		}
	}
	return nil, notFound("active pricing config for tenant", tenantID)
}

func (s *MemoryStore) CreateCall(_ context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key{c.TenantID, c.ID}] = c.Clone()
	return nil
}

func (s *MemoryStore) GetCall(_ context.Context, tenantID, id string) (*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[key{tenantID, id}]
	if !ok {
		return nil, notFound("call", id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) FindActiveCall(_ context.Context, tenantID, tableID string, typ models.CallType) (*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, c := range s.calls {
		if k.tenant == tenantID && c.TableID == tableID && c.Type == typ && c.Status == models.CallActive {
			return c.Clone(), nil
		}
	}
	return nil, notFound("active call for table", tableID)
}

func (s *MemoryStore) ListActiveCalls(_ context.Context, tenantID string) ([]*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Call
	for k, c := range s.calls {
		if k.tenant == tenantID && c.Status == models.CallActive {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateCall(_ context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{c.TenantID, c.ID}
	if _, ok := s.calls[k]; !ok {
		return notFound("call", c.ID)
	}
	s.calls[k] = c.Clone()
	return nil
}
