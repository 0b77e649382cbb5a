package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// NoticeStore is the part of tenant.Store the notifier needs.
type NoticeStore interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
	MarkApprovalNotified(ctx context.Context, id string, at time.Time) (bool, error)
	ClearApprovalNotified(ctx context.Context, id string) error
}

// ApprovalNotifier tells a tenant, once, that messaging was approved.
type ApprovalNotifier struct {
	store  NoticeStore
	sender Sender
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

// NotifierOption configures an ApprovalNotifier.
type NotifierOption func(*ApprovalNotifier)

func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *ApprovalNotifier) {
		if l != nil {
			n.log = l
		}
	}
}

func WithClock(now func() time.Time) NotifierOption {
	return func(n *ApprovalNotifier) {
		if now != nil {
			n.now = now
		}
	}
}

func NewApprovalNotifier(store NoticeStore, sender Sender, cfg Config, opts ...NotifierOption) *ApprovalNotifier {
	n := &ApprovalNotifier{
		store:  store,
		sender: sender,
		cfg:    cfg,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With(logger.Component("email.approval"))
	return n
}

// NotifyApproval sends the approval email unless it was already sent. The
// stamp is taken before sending and cleared again if the send fails, so a
// later callback retries. It reports whether this call sent the email.
func (n *ApprovalNotifier) NotifyApproval(ctx context.Context, tenantID string) (bool, error) {
	t, err := n.store.Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(t.Email) == "" {
		return false, ErrNoRecipient
	}
	if t.ApprovalNotifiedAt != nil {
		return false, nil
	}

	won, err := n.store.MarkApprovalNotified(ctx, tenantID, n.now())
	if err != nil || !won {
		return false, err
	}

	notice := ApprovalNotice{
		ProductName:  n.cfg.ProductName,
		TenantEmail:  t.Email,
		DashboardURL: n.cfg.DashboardURL,
		SupportEmail: n.cfg.SupportEmail,
	}
	body, err := Render(ctx, notice.Component())
	if err == nil {
		err = n.sender.Send(ctx, Message{
			To:       t.Email,
			Subject:  notice.Subject(),
			HTMLBody: body,
			Tag:      "messaging-approved",
		})
	}
	if err != nil {
		if clearErr := n.store.ClearApprovalNotified(context.WithoutCancel(ctx), tenantID); clearErr != nil {
			n.log.ErrorContext(ctx, "failed to clear approval notice stamp",
				logger.TenantID(tenantID), logger.Error(clearErr))
			err = errors.Join(err, clearErr)
		}
		return false, err
	}

	n.log.InfoContext(ctx, "approval notice sent", logger.TenantID(tenantID))
	return true, nil
}
