package reminder_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/reminder"
)

func TestParseTemplates(t *testing.T) {
	t.Parallel()

	body, err := reminder.ParseTemplates(strings.NewReader(`
confirm: "{{.Greeting}}, see you {{.Date}} at {{.Time}}."
t-minus-15: "Starting soon, {{.Name}}!"
`))
	require.NoError(t, err)

	a := &dispatch.Action{
		RecipientName: "jane doe",
		StartsAt:      time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "Hi Jane Doe, see you Tue, Mar 10 at 3:00 PM.", body(a, dispatch.FlagConfirm))
	assert.Equal(t, "Starting soon, Jane Doe!", body(a, dispatch.FlagTMinus15))
	assert.Equal(t, reminder.DefaultBody(a, dispatch.FlagMorningOf), body(a, dispatch.FlagMorningOf))
}

func TestParseTemplates_Errors(t *testing.T) {
	t.Parallel()

	_, err := reminder.ParseTemplates(strings.NewReader(`weekly: "hi"`))
	assert.ErrorIs(t, err, reminder.ErrUnknownTemplate)

	_, err = reminder.ParseTemplates(strings.NewReader(`confirm: "{{.Greeting"`))
	assert.ErrorIs(t, err, reminder.ErrInvalidTemplates)

	_, err = reminder.ParseTemplates(strings.NewReader(`[not, a, map]`))
	assert.ErrorIs(t, err, reminder.ErrInvalidTemplates)
}

func TestParseTemplates_BadFieldFallsBack(t *testing.T) {
	t.Parallel()

	body, err := reminder.ParseTemplates(strings.NewReader(`confirm: "{{.Missing}}"`))
	require.NoError(t, err)

	a := &dispatch.Action{StartsAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	assert.Equal(t, reminder.DefaultBody(a, dispatch.FlagConfirm), body(a, dispatch.FlagConfirm))
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.yaml")
	require.NoError(t, os.WriteFile(path, []byte("morning_of: \"Today at {{.Time}}\"\n"), 0o600))

	body, err := reminder.LoadTemplates(path)
	require.NoError(t, err)
	a := &dispatch.Action{StartsAt: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	assert.Equal(t, "Today at 9:30 AM", body(a, dispatch.FlagMorningOf))

	_, err = reminder.LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, reminder.ErrInvalidTemplates)
}
