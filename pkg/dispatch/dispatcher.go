package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dialbill/pkg/broadcast"
	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// Outcome is the result of Dispatch.
type Outcome string

const (
	// OutcomeDispatched means the claim was won and the side effect succeeded.
	// The flag stays claimed for good.
	OutcomeDispatched Outcome = "dispatched"
	// OutcomeClaimLost means another worker holds the flag. Not an error.
	OutcomeClaimLost Outcome = "claim-lost"
	// OutcomeFailed means the side effect failed and the claim was reverted.
	OutcomeFailed Outcome = "failed"
)

// Change is published after every Dispatch that reached the claim.
type Change struct {
	ActionID string
	Flag     Flag
	Outcome  Outcome
	At       time.Time
}

// Dispatcher runs a side effect at most once per action and flag.
type Dispatcher struct {
	claimer Claimer
	log     *slog.Logger
	changes broadcast.Broadcaster[Change]
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithChanges(b broadcast.Broadcaster[Change]) Option {
	return func(d *Dispatcher) { d.changes = b }
}

func NewDispatcher(claimer Claimer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		claimer: claimer,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(logger.Component("dispatch"))
	return d
}

// Dispatch claims (actionID, flag) and, if the claim is won, runs fn. When fn
// fails or panics the claim is reverted so a later pass can retry; a panic is
// re-raised after the revert. A process crash inside fn leaves the flag
// claimed, which can under-send but never double-send.
func (d *Dispatcher) Dispatch(ctx context.Context, actionID string, flag Flag, fn func(context.Context) error) (outcome Outcome, err error) {
	if !flag.Valid() {
		return "", ErrInvalidFlag
	}
	log := d.log.With(logger.ActionID(actionID), logger.Flag(string(flag)))

	won, err := d.claimer.Claim(ctx, actionID, flag)
	if err != nil {
		return "", fmt.Errorf("claim %s/%s: %w", actionID, flag, err)
	}
	if !won {
		log.DebugContext(ctx, "claim lost")
		d.publish(ctx, actionID, flag, OutcomeClaimLost)
		return OutcomeClaimLost, nil
	}

	defer func() {
		if r := recover(); r != nil {
			if rerr := d.revert(ctx, actionID, flag); rerr != nil {
				log.ErrorContext(ctx, "failed to revert claim after panic", logger.Error(rerr))
			}
			d.publish(ctx, actionID, flag, OutcomeFailed)
			panic(r)
		}
	}()

	if ferr := fn(ctx); ferr != nil {
		err = errors.Join(ErrDispatchFailedAfterClaim, ferr)
		if rerr := d.revert(ctx, actionID, flag); rerr != nil {
			err = errors.Join(err, rerr)
			log.ErrorContext(ctx, "failed to revert claim", logger.Error(rerr))
		}
		log.WarnContext(ctx, "dispatch failed, claim reverted", logger.Error(ferr))
		d.publish(ctx, actionID, flag, OutcomeFailed)
		return OutcomeFailed, err
	}

	d.publish(ctx, actionID, flag, OutcomeDispatched)
	return OutcomeDispatched, nil
}

func (d *Dispatcher) revert(ctx context.Context, actionID string, flag Flag) error {
	if err := d.claimer.Revert(context.WithoutCancel(ctx), actionID, flag); err != nil {
		return errors.Join(ErrRevertFailed, err)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, actionID string, flag Flag, outcome Outcome) {
	broadcast.Publish(ctx, d.changes, Change{
		ActionID: actionID,
		Flag:     flag,
		Outcome:  outcome,
		At:       d.now().UTC(),
	})
}
