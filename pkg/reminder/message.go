package reminder

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
)

// BodyFunc renders the SMS text for one flag of an action.
type BodyFunc func(a *dispatch.Action, flag dispatch.Flag) string

// DefaultBody renders short English reminders in the action's time zone.
func DefaultBody(a *dispatch.Action, flag dispatch.Flag) string {
	start := a.StartsAt.In(a.Location())
	greeting := "Hi"
	if name := strings.TrimSpace(a.RecipientName); name != "" {
		greeting = "Hi " + cases.Title(language.English).String(name)
	}

	switch flag {
	case dispatch.FlagConfirm:
		return fmt.Sprintf("%s, your appointment on %s at %s is confirmed.",
			greeting, start.Format("Mon, Jan 2"), start.Format("3:04 PM"))
	case dispatch.FlagMorningOf:
		return fmt.Sprintf("%s, a reminder that your appointment is today at %s.",
			greeting, start.Format("3:04 PM"))
	case dispatch.FlagTMinus60:
		return fmt.Sprintf("%s, your appointment starts in 1 hour (%s).",
			greeting, start.Format("3:04 PM"))
	case dispatch.FlagTMinus15:
		return fmt.Sprintf("%s, your appointment starts in 15 minutes.", greeting)
	}
	return ""
}
