package reminder

import (
	"time"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
)

// timed lists the time-based flags from most to least specific.
var timed = []dispatch.Flag{dispatch.FlagTMinus15, dispatch.FlagTMinus60, dispatch.FlagMorningOf}

// DueFlags returns the flags of a that should be sent at now and have not
// been claimed yet. The confirmation is due as soon as the action exists.
// Of the time-based reminders only the most specific due one is returned,
// so a booking first seen ten minutes before it starts gets one reminder
// instead of three. Nothing is due once the action has started.
func DueFlags(a *dispatch.Action, now time.Time, morningHour int) []dispatch.Flag {
	if a == nil || !a.Active || !now.Before(a.StartsAt) {
		return nil
	}

	var out []dispatch.Flag
	if !a.Claimed(dispatch.FlagConfirm) {
		out = append(out, dispatch.FlagConfirm)
	}
	for _, f := range timed {
		if isDue(a, f, now, morningHour) {
			if !a.Claimed(f) {
				out = append(out, f)
			}
			break
		}
	}
	return out
}

func isDue(a *dispatch.Action, f dispatch.Flag, now time.Time, morningHour int) bool {
	until := a.StartsAt.Sub(now)
	switch f {
	case dispatch.FlagTMinus15:
		return until <= 15*time.Minute
	case dispatch.FlagTMinus60:
		return until <= time.Hour
	case dispatch.FlagMorningOf:
		loc := a.Location()
		local, start := now.In(loc), a.StartsAt.In(loc)
		return sameDay(local, start) && local.Hour() >= morningHour
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
