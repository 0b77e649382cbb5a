package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Outbox writes each message to disk as an HTML file plus a JSON sidecar.
// It stands in for Postmark in development.
type Outbox struct {
	dir string
	now func() time.Time
}

var _ Sender = (*Outbox)(nil)

func NewOutbox(dir string) *Outbox {
	return &Outbox{dir: dir, now: time.Now}
}

type outboxMeta struct {
	Timestamp string `json:"timestamp"`
	Message
}

func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	now := o.now()
	name := msg.Tag
	if name == "" {
		name = msg.Subject
	}
	base := filepath.Join(o.dir, fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405.000000"), sanitizeFilename(name)))

	if err := os.WriteFile(base+".html", []byte(msg.HTMLBody), 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	meta, err := json.MarshalIndent(outboxMeta{Timestamp: now.Format(time.RFC3339), Message: msg}, "", "  ")
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(s, " ", "_"), "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		return "email"
	}
	return strings.ToLower(s)
}
