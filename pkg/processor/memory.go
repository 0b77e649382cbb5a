package processor

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type pendingItem struct {
	id          string
	amountCents int64
	currency    string
	description string
}

// Memory is an in-process processor for tests and local runs. It implements
// Invoicer, CustomerMetadata, MetadataCAS and Payouts.
type Memory struct {
	mu         sync.Mutex
	customers  map[string]map[string]string
	pending    map[string][]pendingItem
	invoices   []Invoice
	byKey      map[string]Invoice
	accounts   map[string]ConnectedAccountParams
	transfers  map[string]string
	failCharge error
}

var (
	_ Invoicer         = (*Memory)(nil)
	_ CustomerMetadata = (*Memory)(nil)
	_ MetadataCAS      = (*Memory)(nil)
	_ Payouts          = (*Memory)(nil)
)

// NewMemory returns a processor that knows the given customers.
func NewMemory(customerRefs ...string) *Memory {
	m := &Memory{
		customers: make(map[string]map[string]string),
		pending:   make(map[string][]pendingItem),
		byKey:     make(map[string]Invoice),
		accounts:  make(map[string]ConnectedAccountParams),
		transfers: make(map[string]string),
	}
	for _, ref := range customerRefs {
		m.customers[ref] = make(map[string]string)
	}
	return m
}

// AddCustomer registers a customer.
func (m *Memory) AddCustomer(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[ref]; !ok {
		m.customers[ref] = make(map[string]string)
	}
}

// FailCharges makes invoice creation fail with err until called with nil.
func (m *Memory) FailCharges(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCharge = err
}

// Invoices returns every invoice created so far.
func (m *Memory) Invoices() []Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invoice, len(m.invoices))
	copy(out, m.invoices)
	return out
}

func (m *Memory) CreateInvoiceItem(ctx context.Context, customerRef string, amountCents int64, currency, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[customerRef]; !ok {
		return "", ErrCustomerNotFound
	}
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	item := pendingItem{
		id:          "ii_" + uuid.NewString(),
		amountCents: amountCents,
		currency:    strings.ToLower(currency),
		description: description,
	}
	m.pending[customerRef] = append(m.pending[customerRef], item)
	return item.id, nil
}

func (m *Memory) CreateInvoice(ctx context.Context, customerRef string, params InvoiceParams) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.IdempotencyKey != "" {
		if inv, ok := m.byKey[params.IdempotencyKey]; ok {
			takeItems(m.pending, customerRef, params.ItemIDs)
			return &inv, nil
		}
	}

	items := takeItems(m.pending, customerRef, params.ItemIDs)
	if len(items) == 0 {
		return nil, ErrNoPendingItems
	}
	if m.failCharge != nil {
		return nil, m.failCharge
	}

	inv := Invoice{
		ID:          "in_" + uuid.NewString(),
		CustomerRef: customerRef,
		Currency:    items[0].currency,
		Status:      "paid",
	}
	for _, it := range items {
		inv.AmountCents += it.amountCents
	}
	m.invoices = append(m.invoices, inv)
	if params.IdempotencyKey != "" {
		m.byKey[params.IdempotencyKey] = inv
	}
	out := inv
	return &out, nil
}

func (m *Memory) GetCustomerMetadata(ctx context.Context, customerRef string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.customers[customerRef]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return maps.Clone(md), nil
}

func (m *Memory) UpdateCustomerMetadata(ctx context.Context, customerRef string, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.customers[customerRef]
	if !ok {
		return ErrCustomerNotFound
	}
	maps.Copy(md, kv)
	return nil
}

func (m *Memory) CompareAndSetMetadata(ctx context.Context, customerRef, key, expected, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.customers[customerRef]
	if !ok {
		return false, ErrCustomerNotFound
	}
	if md[key] != expected {
		return false, nil
	}
	md[key] = value
	return true, nil
}

func (m *Memory) CreateConnectedAccount(ctx context.Context, params ConnectedAccountParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := "acct_" + uuid.NewString()
	m.accounts[ref] = params
	return ref, nil
}

func (m *Memory) CreateAccountOnboardingLink(ctx context.Context, accountRef, returnURL, refreshURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountRef]; !ok {
		return "", ErrAccountNotFound
	}
	return returnURL + "?onboarding=" + accountRef, nil
}

func (m *Memory) CreateTransfer(ctx context.Context, amountCents int64, destinationAccountRef, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	if _, ok := m.accounts[destinationAccountRef]; !ok {
		return "", ErrAccountNotFound
	}
	if id, ok := m.transfers[idempotencyKey]; ok && idempotencyKey != "" {
		return id, nil
	}
	id := "tr_" + uuid.NewString()
	if idempotencyKey != "" {
		m.transfers[idempotencyKey] = id
	}
	return id, nil
}
