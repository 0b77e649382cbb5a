package carrier

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/credentials"
)

// Sent is a request recorded by Memory.
type Sent struct {
	Handle  credentials.Handle
	Message Message
	Call    Call
	Result  Result
}

// Memory is an in-process Sender for tests and local runs. It accepts every
// request unless a failure has been queued.
type Memory struct {
	mu       sync.Mutex
	price    decimal.Decimal
	segments int
	failures []error
	sent     []Sent
}

var _ Sender = (*Memory)(nil)

// NewMemory returns a sender that reports price per request.
func NewMemory(price decimal.Decimal) *Memory {
	return &Memory{price: price, segments: 1}
}

// SetSegments changes the segment count reported for messages.
func (m *Memory) SetSegments(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = max(n, 1)
}

// FailNext makes the next request return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

// Sent returns a copy of every accepted request.
func (m *Memory) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

func (m *Memory) SendMessage(ctx context.Context, h credentials.Handle, msg Message) (Result, error) {
	if msg.To == "" || msg.Body == "" {
		return Result{}, ErrInvalidMessage
	}
	return m.record(Sent{Handle: h, Message: msg}, "SM")
}

func (m *Memory) CreateCall(ctx context.Context, h credentials.Handle, call Call) (Result, error) {
	if call.To == "" {
		return Result{}, ErrInvalidMessage
	}
	return m.record(Sent{Handle: h, Call: call}, "CA")
}

func (m *Memory) record(s Sent, prefix string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return Result{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	s.Result = Result{
		ExternalID: prefix + uuid.NewString(),
		Status:     "queued",
		Price:      m.price,
		Segments:   m.segments,
	}
	m.sent = append(m.sent, s)
	return s.Result, nil
}
