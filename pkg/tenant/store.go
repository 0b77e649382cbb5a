package tenant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Store persists tenants. Every mutation of a money or counter field is an
// atomic increment; implementations must never load, modify and save them.
type Store interface {
	// Get returns the tenant or ErrTenantNotFound.
	Get(ctx context.Context, id string) (*Tenant, error)

	// Create provisions a new tenant. Returns ErrTenantExists on conflict.
	Create(ctx context.Context, t *Tenant) error

	// RecordAnalytics increments the lifetime raw-cost counters.
	RecordAnalytics(ctx context.Context, id string, entry AnalyticsEntry) error

	// AdjustBalance atomically adds delta to the usage balance and returns
	// the balance after the update.
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)

	// AddAccrual atomically adds cents to the AI accrual and returns the new accrual.
	AddAccrual(ctx context.Context, id string, cents int64) (int64, error)

	// SettleAccrual moves charged cents from the accrual to the billed total
	// and stamps the last-charged time. Returns the accrual after the update.
	SettleAccrual(ctx context.Context, id string, chargedCents int64, at time.Time) (int64, error)

	// SetCompliance stores a new compliance status and returns the previous one.
	SetCompliance(ctx context.Context, id string, status ComplianceStatus) (ComplianceStatus, error)

	// TryLock takes a lease of the given kind until LeaseUntil(now, ttl). It
	// succeeds when no lease exists or the existing one has expired.
	TryLock(ctx context.Context, id string, kind LockKind, now time.Time, ttl time.Duration) (bool, error)

	// Unlock releases the lease taken until the given time. A lease that has
	// since been taken over by another holder, or is not held, is left alone.
	Unlock(ctx context.Context, id string, kind LockKind, until time.Time) error

	// MarkApprovalNotified stamps the approval notice time only if it is
	// unset. It reports whether this call set it.
	MarkApprovalNotified(ctx context.Context, id string, at time.Time) (bool, error)

	// ClearApprovalNotified removes the stamp so a failed notice can be retried.
	ClearApprovalNotified(ctx context.Context, id string) error
}

// MemoryStore is a mutex-guarded Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
	locks   map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store, optionally seeded.
func NewMemoryStore(seed ...*Tenant) *MemoryStore {
	s := &MemoryStore{
		tenants: make(map[string]*Tenant),
		locks:   make(map[string]time.Time),
	}
	for _, t := range seed {
		s.tenants[t.ID] = t.Clone()
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, t *Tenant) error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return ErrInvalidIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return ErrTenantExists
	}
	c := t.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = c
	return nil
}

func (s *MemoryStore) RecordAnalytics(ctx context.Context, id string, entry AnalyticsEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	a := &t.Analytics
	a.TotalRawUSD = a.TotalRawUSD.Add(entry.RawCostUSD)
	a.AIMinutes = a.AIMinutes.Add(entry.Minutes)
	a.Events++
	if entry.Category != "" {
		if a.ByCategory == nil {
			a.ByCategory = make(map[string]decimal.Decimal)
		}
		a.ByCategory[entry.Category] = a.ByCategory[entry.Category].Add(entry.RawCostUSD)
	}
	return nil
}

func (s *MemoryStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return decimal.Zero, err
	}
	t.UsageBalanceUSD = t.UsageBalanceUSD.Add(delta)
	return t.UsageBalanceUSD, nil
}

func (s *MemoryStore) AddAccrual(ctx context.Context, id string, cents int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	t.AIAccruedCents += cents
	return t.AIAccruedCents, nil
}

func (s *MemoryStore) SettleAccrual(ctx context.Context, id string, chargedCents int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	t.AIAccruedCents -= chargedCents
	t.AIBilledTotalCents += chargedCents
	at = at.UTC()
	t.AILastChargedAt = &at
	return t.AIAccruedCents, nil
}

func (s *MemoryStore) SetCompliance(ctx context.Context, id string, status ComplianceStatus) (ComplianceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return ComplianceUnknown, err
	}
	prev := t.Compliance
	t.Compliance = status
	return prev, nil
}

func (s *MemoryStore) TryLock(ctx context.Context, id string, kind LockKind, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(id); err != nil {
		return false, err
	}
	key := lockKey(id, kind)
	if until, held := s.locks[key]; held && until.After(now) {
		return false, nil
	}
	s.locks[key] = LeaseUntil(now, ttl)
	return true, nil
}

func (s *MemoryStore) Unlock(ctx context.Context, id string, kind LockKind, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lockKey(id, kind)
	if held, ok := s.locks[key]; ok && held.Equal(leaseTime(until)) {
		delete(s.locks, key)
	}
	return nil
}

// LeaseUntil is the expiry TryLock stores for a lease taken at now. Callers
// pass it back to Unlock to release only their own lease.
func LeaseUntil(now time.Time, ttl time.Duration) time.Time {
	return leaseTime(now.Add(ttl))
}

// leaseTime drops precision below what every backend stores, so the value
// written by TryLock compares equal when read back.
func leaseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (s *MemoryStore) MarkApprovalNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if t.ApprovalNotifiedAt != nil {
		return false, nil
	}
	at = at.UTC()
	t.ApprovalNotifiedAt = &at
	return true, nil
}

func (s *MemoryStore) ClearApprovalNotified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.ApprovalNotifiedAt = nil
	return nil
}

func (s *MemoryStore) lookup(id string) (*Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func lockKey(id string, kind LockKind) string {
	return id + "/" + string(kind)
}
