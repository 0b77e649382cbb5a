package dispatch

import (
	"context"
	"maps"
	"strings"
	"time"
)

// Flag names one independent send of a scheduled action.
type Flag string

const (
	FlagConfirm   Flag = "confirm"
	FlagMorningOf Flag = "morning_of"
	FlagTMinus60  Flag = "t_minus_60"
	FlagTMinus15  Flag = "t_minus_15"
)

// Flags lists every flag in send order.
var Flags = []Flag{FlagConfirm, FlagMorningOf, FlagTMinus60, FlagTMinus15}

// Valid reports whether f is a known flag.
func (f Flag) Valid() bool {
	switch f {
	case FlagConfirm, FlagMorningOf, FlagTMinus60, FlagTMinus15:
		return true
	}
	return false
}

// ParseFlag accepts the canonical names plus the dashed spellings.
func ParseFlag(s string) (Flag, error) {
	f := Flag(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !f.Valid() {
		return "", ErrInvalidFlag
	}
	return f, nil
}

// Action is a scheduled booking reminder. Claims holds the flags that have
// been claimed; a missing flag and false are the same state.
type Action struct {
	ID            string
	TenantID      string
	Recipient     string
	RecipientName string
	StartsAt      time.Time
	// TimeZone is an IANA zone name used for the morning-of send.
	TimeZone  string
	Active    bool
	Claims    map[Flag]bool
	CreatedAt time.Time
}

// Claimed reports whether f is currently claimed.
func (a *Action) Claimed(f Flag) bool { return a.Claims[f] }

// Location returns the action's time zone, UTC when unset or unknown.
func (a *Action) Location() *time.Location {
	if a.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	c.Claims = maps.Clone(a.Claims)
	return &c
}

// ActionStore persists scheduled actions.
type ActionStore interface {
	Create(ctx context.Context, a *Action) error
	Get(ctx context.Context, id string) (*Action, error)
	// ListActive returns active actions starting within [from, to], ordered
	// by start time.
	ListActive(ctx context.Context, from, to time.Time) ([]*Action, error)
}

// Claimer is the atomic claim primitive. Exactly one of any number of
// concurrent Claim calls for the same action and flag returns true, and
// none does once the flag is claimed. Revert unconditionally clears the flag.
type Claimer interface {
	Claim(ctx context.Context, actionID string, flag Flag) (bool, error)
	Revert(ctx context.Context, actionID string, flag Flag) error
}
