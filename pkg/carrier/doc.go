// Package carrier sends SMS messages and voice calls through the
// communication carrier and authenticates its inbound callbacks.
//
// Twilio talks to the REST API directly. Only responses that prove the
// request was not accepted (429 and 503) are retried; anything ambiguous is
// returned to the caller so the dispatch layer can decide. A shared
// CircuitBreaker stops traffic to a failing carrier:
//
//	tw, err := carrier.NewTwilio(cfg,
//		carrier.WithCircuitBreaker(carrier.NewCircuitBreaker(5, 2, 30*time.Second)),
//		carrier.WithLogger(log),
//	)
//	res, err := tw.SendMessage(ctx, resolution.Handle, carrier.FromResolution(resolution, to, body))
//
// VerifyRequest checks the X-Twilio-Signature header of status callbacks.
// Memory is an in-process Sender for tests.
package carrier
