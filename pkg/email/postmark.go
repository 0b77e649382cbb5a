package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"
)

// Postmark sends through Postmark's transactional API.
type Postmark struct {
	client *postmark.Client
	from   string
	reply  string
}

var _ Sender = (*Postmark)(nil)

// PostmarkOption configures a Postmark sender.
type PostmarkOption func(*Postmark)

// WithPostmarkBaseURL points the client at another API host.
func WithPostmarkBaseURL(url string) PostmarkOption {
	return func(p *Postmark) {
		if url != "" {
			p.client.BaseURL = url
		}
	}
}

func NewPostmark(cfg Config, opts ...PostmarkOption) (*Postmark, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: sender email: %v", ErrInvalidConfig, err)
	}
	if cfg.SupportEmail != "" {
		if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
			return nil, fmt.Errorf("%w: support email: %v", ErrInvalidConfig, err)
		}
	}

	p := &Postmark{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.SenderEmail,
		reply:  cfg.SupportEmail,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Send tracks opens and HTML link clicks only.
func (p *Postmark) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.from,
		ReplyTo:    p.reply,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendEmail,
			fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
