package email

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered HTML email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"-"`
	// Tag groups messages in the provider's analytics.
	Tag string `json:"tag,omitempty"`
}

// Validate checks the fields every sender requires.
func (m Message) Validate() error {
	to := strings.TrimSpace(m.To)
	if to == "" {
		return errors.Join(ErrInvalidMessage, errors.New("recipient is required"))
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	}
	if strings.TrimSpace(m.HTMLBody) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("body is required"))
	}
	return nil
}
