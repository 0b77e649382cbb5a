// Package billing meters tenant usage and turns it into processor charges.
//
// Three billers share one immutable Config:
//
//   - Meter keeps a continuous USD balance. Each usage event records raw-cost
//     analytics, then decrements the balance by cost × markup. When the
//     balance drops below the low-balance trigger, one fixed top-up is
//     charged and credited.
//   - AccrualBiller accrues AI minutes in integer cents and charges them in
//     whole increments once the accrual crosses one.
//   - OneTimeGuard charges the messaging registration approval fee at most
//     once, keyed off a marker in the processor's customer metadata.
//
// Every money mutation is an atomic increment in tenant.Store, and charge
// attempts run under short per-tenant leases. Processor failures are
// absorbed into the typed results (ChargeResult.Err, OneTimeResult.Err) so a
// processor outage degrades to "bill later". Errors returned from the
// billers are store failures or, in strict mode, ErrUsageSuspended and
// ErrTenantUnlinked.
//
// Strict mode is production or BILLING_STRICT=true.
package billing
