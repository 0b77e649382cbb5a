// Package server exposes the engine over HTTP: health probes, the cron
// trigger for reminder passes, and the messaging-registration status
// callback that charges the one-time approval fee. Internal routes accept
// metered usage and AI minutes from the dialer.
//
// Cron and internal requests authenticate with CRON_SECRET passed as ?token=, X-Cron-Key,
// X-Cron-Token or a bearer token. Carrier callbacks are checked against the
// X-Twilio-Signature header when an auth token is configured.
package server
