// Package reminder runs the time-triggered booking reminders.
//
// Each Tick lists the active scheduled actions starting within the
// look-ahead window, works out which reminder flags are due, and sends each
// one through the dispatch layer so that concurrent ticks never send the
// same reminder twice. A sent reminder is metered as carrier-sms usage
// against the tenant.
package reminder
