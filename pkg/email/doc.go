// Package email sends dialbill's transactional email.
//
// Sender has two implementations: Postmark for production and Outbox, which
// writes HTML and JSON files to a directory for local runs. Bodies are templ
// components rendered with Render.
//
// ApprovalNotifier sends the "messaging approved" email at most once per
// tenant, gated by the tenant's approval_notified_at stamp:
//
//	notifier := email.NewApprovalNotifier(tenants, sender, cfg, email.WithLogger(log))
//	sent, err := notifier.NotifyApproval(ctx, tenantID)
package email
