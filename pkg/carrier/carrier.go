package carrier

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/credentials"
)

// Message is one outbound SMS. MessagingServiceSID wins over From when both
// are set.
type Message struct {
	To                  string
	From                string
	MessagingServiceSID string
	Body                string
}

// Call is one outbound voice call. TwiMLURL is fetched by the carrier when
// the call connects.
type Call struct {
	To       string
	From     string
	TwiMLURL string
}

// Result is what the carrier reported for an accepted message or call.
type Result struct {
	ExternalID string
	Status     string
	// Price is the vendor cost in USD as a positive amount. Zero when the
	// carrier has not priced the request yet.
	Price    decimal.Decimal
	Segments int
}

// Sender is the carrier collaborator. Every request runs under the given
// handle; the caller is responsible for resolving it for the right tenant.
type Sender interface {
	SendMessage(ctx context.Context, h credentials.Handle, msg Message) (Result, error)
	CreateCall(ctx context.Context, h credentials.Handle, call Call) (Result, error)
}

// FromResolution fills the sender identity of msg from a credential resolution.
func FromResolution(res *credentials.Resolution, to, body string) Message {
	return Message{
		To:                  to,
		From:                res.FromNumber,
		MessagingServiceSID: res.MessagingServiceSID,
		Body:                body,
	}
}
