package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig configures the Paddle adapter.
//
// Paddle bills catalog prices, so usage charges are expressed as a quantity of
// a one-cent catalog price (UnitPriceID).
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	UnitPriceID string `env:"PADDLE_UNIT_PRICE_ID"`
}

type transactionsAPI interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
}

type customersAPI interface {
	GetCustomer(ctx context.Context, req *paddle.GetCustomerRequest) (*paddle.Customer, error)
	UpdateCustomer(ctx context.Context, req *paddle.UpdateCustomerRequest) (*paddle.Customer, error)
}

// Paddle implements Invoicer and CustomerMetadata on Paddle Billing.
// Invoice items are staged in process until CreateInvoice turns them into one
// automatically collected transaction. Customer custom_data holds metadata.
type Paddle struct {
	transactions transactionsAPI
	customers    customersAPI
	unitPriceID  string

	mu      sync.Mutex
	pending map[string][]pendingItem
}

var (
	_ Invoicer         = (*Paddle)(nil)
	_ CustomerMetadata = (*Paddle)(nil)
)

// NewPaddle creates the adapter for the configured environment.
func NewPaddle(cfg PaddleConfig) (*Paddle, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("paddle API key is required"))
	}
	if cfg.UnitPriceID == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("paddle unit price id is required"))
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("invalid paddle environment: %s", cfg.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return newPaddle(client.TransactionsClient, client.CustomersClient, cfg.UnitPriceID), nil
}

func newPaddle(tx transactionsAPI, customers customersAPI, unitPriceID string) *Paddle {
	return &Paddle{
		transactions: tx,
		customers:    customers,
		unitPriceID:  unitPriceID,
		pending:      make(map[string][]pendingItem),
	}
}

func (p *Paddle) CreateInvoiceItem(ctx context.Context, customerRef string, amountCents int64, currency, description string) (string, error) {
	if customerRef == "" {
		return "", ErrMissingCustomer
	}
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := "ii_" + uuid.NewString()
	p.pending[customerRef] = append(p.pending[customerRef], pendingItem{
		id:          id,
		amountCents: amountCents,
		currency:    strings.ToUpper(currency),
		description: description,
	})
	return id, nil
}

func (p *Paddle) CreateInvoice(ctx context.Context, customerRef string, params InvoiceParams) (*Invoice, error) {
	// Staged items are consumed by this call whatever its outcome, so a
	// failed invoice is never billed again together with its retry.
	p.mu.Lock()
	items := takeItems(p.pending, customerRef, params.ItemIDs)
	p.mu.Unlock()
	if len(items) == 0 {
		return nil, ErrNoPendingItems
	}

	var (
		total        int64
		descriptions = make([]string, 0, len(items))
	)
	for _, it := range items {
		total += it.amountCents
		if it.description != "" {
			descriptions = append(descriptions, it.description)
		}
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.unitPriceID,
		Quantity: int(total),
	})

	customData := paddle.CustomData{
		"description":  strings.Join(descriptions, "; "),
		"auto_advance": params.AutoAdvance,
	}
	if params.IdempotencyKey != "" {
		customData["idempotency_key"] = params.IdempotencyKey
	}
	for k, v := range params.Metadata {
		customData[k] = v
	}

	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(customerRef),
		CustomData: customData,
	}
	if params.CollectionMode == CollectionChargeAutomatically {
		req.CollectionMode = paddle.PtrTo(paddle.CollectionModeAutomatic)
	}

	tx, err := p.transactions.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	return &Invoice{
		ID:          tx.ID,
		CustomerRef: customerRef,
		AmountCents: total,
		Currency:    strings.ToLower(items[0].currency),
		Status:      string(tx.Status),
	}, nil
}

func (p *Paddle) GetCustomerMetadata(ctx context.Context, customerRef string) (map[string]string, error) {
	customer, err := p.customers.GetCustomer(ctx, &paddle.GetCustomerRequest{CustomerID: customerRef})
	if err != nil {
		return nil, fmt.Errorf("failed to get paddle customer: %w", err)
	}

	out := make(map[string]string, len(customer.CustomData))
	for k, v := range customer.CustomData {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// UpdateCustomerMetadata merges kv into the customer's custom_data. Paddle
// replaces custom_data as a whole, so existing keys are read first.
func (p *Paddle) UpdateCustomerMetadata(ctx context.Context, customerRef string, kv map[string]string) error {
	customer, err := p.customers.GetCustomer(ctx, &paddle.GetCustomerRequest{CustomerID: customerRef})
	if err != nil {
		return fmt.Errorf("failed to get paddle customer: %w", err)
	}

	merged := paddle.CustomData{}
	for k, v := range customer.CustomData {
		merged[k] = v
	}
	for k, v := range kv {
		merged[k] = v
	}

	_, err = p.customers.UpdateCustomer(ctx, &paddle.UpdateCustomerRequest{
		CustomerID: customerRef,
		CustomData: paddle.NewPatchField(merged),
	})
	if err != nil {
		return fmt.Errorf("failed to update paddle customer: %w", err)
	}
	return nil
}
