// Package dispatch guarantees that a side effect tied to a scheduled action
// and a named flag (a reminder send, for instance) runs at most once, even
// when several workers scan the same actions at the same time.
//
// A worker first claims the flag through a Claimer. Only the winner runs the
// side effect. If the side effect fails or panics, the claim is reverted so a
// later pass can retry:
//
//	d := dispatch.NewDispatcher(store, dispatch.WithLogger(log))
//	outcome, err := d.Dispatch(ctx, action.ID, dispatch.FlagTMinus60, func(ctx context.Context) error {
//		return send(ctx, action)
//	})
//
// MongoStore keeps actions and their claims in one document so the claim is
// a single conditional update. RedisClaimer keeps claims in a Redis hash and
// can be paired with any ActionStore. MemoryStore serves tests and local runs.
package dispatch
