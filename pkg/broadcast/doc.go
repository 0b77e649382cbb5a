// Package broadcast fans "something changed" events out to in-process
// subscribers.
//
// The billing engine publishes balance, accrual and one-time charge changes
// and the dispatcher publishes claim outcomes. Delivery is best effort: a full
// subscriber buffer drops the subscriber rather than blocking a money path.
//
//	changes := broadcast.NewMemoryBroadcaster[billing.Change](64)
//	defer changes.Close()
//
//	go broadcast.Consume(ctx, changes.Subscribe(ctx), func(c billing.Change) {
//	    log.Info("billing change", "kind", c.Kind)
//	})
package broadcast
