package email

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// ApprovalNotice is the data behind the messaging-approved email.
type ApprovalNotice struct {
	ProductName  string
	TenantEmail  string
	DashboardURL string
	SupportEmail string
}

// Subject is the approval email's subject line.
func (n ApprovalNotice) Subject() string {
	return n.productName() + ": text messaging is approved"
}

func (n ApprovalNotice) productName() string {
	if strings.TrimSpace(n.ProductName) == "" {
		return "Dialbill"
	}
	return n.ProductName
}

// Component renders the approval email body. Every interpolated value is
// escaped.
func (n ApprovalNotice) Component() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><body style="font-family:sans-serif;line-height:1.5">`)
		b.WriteString(`<h1>Your messaging registration is approved</h1>`)
		b.WriteString(`<p>Good news: `)
		b.WriteString(templ.EscapeString(n.productName()))
		b.WriteString(` can now send appointment confirmations and reminders by text message.</p>`)
		b.WriteString(`<p>Reminders go out automatically for every upcoming booking. Text messages are billed from your usage balance.</p>`)
		if n.DashboardURL != "" {
			b.WriteString(`<p><a href="`)
			b.WriteString(templ.EscapeString(n.DashboardURL))
			b.WriteString(`">Open your dashboard</a></p>`)
		}
		if n.SupportEmail != "" {
			b.WriteString(`<p>Questions? Write to `)
			b.WriteString(templ.EscapeString(n.SupportEmail))
			b.WriteString(`.</p>`)
		}
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Render renders a templ component to a string.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
