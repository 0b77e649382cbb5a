package billing

import "github.com/shopspring/decimal"

// Outcome says what a billing call did with an event.
type Outcome string

const (
	// OutcomeBilled means the tenant's balance or accrual was charged.
	OutcomeBilled Outcome = "billed"
	// OutcomeSelfBilled means the cost is paid on the tenant's own carrier
	// account; only analytics were recorded.
	OutcomeSelfBilled Outcome = "self-billed"
	// OutcomeExempt means an admin tenant; only analytics were recorded.
	OutcomeExempt Outcome = "exempt"
	// OutcomeAnalyticsOnly means a zero-cost event.
	OutcomeAnalyticsOnly Outcome = "analytics-only"
	// OutcomeNotEntitled means the tenant lacks the feature entitlement.
	OutcomeNotEntitled Outcome = "not-entitled"
	// OutcomeSuspended means the event was refused in strict mode.
	OutcomeSuspended Outcome = "suspended"
	// OutcomeUnlinked means the event was refused in strict mode because the
	// tenant has no processor customer.
	OutcomeUnlinked Outcome = "unlinked"
)

// SkipReason explains why a charge was not attempted.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipUnlinked     SkipReason = "unlinked"
	SkipDisabled     SkipReason = "billing-disabled"
	SkipLocked       SkipReason = "locked"
	SkipNotNeeded    SkipReason = "not-needed"
	SkipBelowTrigger SkipReason = "below-increment"
)

// ChargeResult describes a charge attempt made on the way. Err holds an
// absorbed processor failure (joined with ErrTopUpFailed or
// ErrThresholdChargeFailed); the event itself still succeeded.
type ChargeResult struct {
	Attempted   bool
	Charged     bool
	Skipped     SkipReason
	AmountCents int64
	InvoiceID   string
	Err         error
}

// UsageResult is returned by Meter.RecordUsage.
type UsageResult struct {
	Outcome   Outcome
	BilledUSD decimal.Decimal
	// BalanceUSD is the balance after this event, including any top-up.
	BalanceUSD decimal.Decimal
	// Suspended is set when the balance was below the freeze threshold and
	// the event went through because the meter is permissive.
	Suspended bool
	TopUp     ChargeResult
}

// AccrualResult is returned by AccrualBiller.RecordMinutes.
type AccrualResult struct {
	Outcome       Outcome
	BillableCents int64
	AccruedCents  int64
	Charge        ChargeResult
}

// OneTimeStatus is the outcome of ChargeOnceIfEligible.
type OneTimeStatus string

const (
	OneTimeCharged        OneTimeStatus = "charged"
	OneTimeNotApproved    OneTimeStatus = "not-approved"
	OneTimeAlreadyCharged OneTimeStatus = "already-charged"
	OneTimeAdmin          OneTimeStatus = "admin"
	OneTimePendingLinkage OneTimeStatus = "pending-linkage"
	OneTimeFailed         OneTimeStatus = "failed"
)

// OneTimeResult is returned by OneTimeGuard.ChargeOnceIfEligible.
type OneTimeResult struct {
	Status      OneTimeStatus
	AmountCents int64
	InvoiceID   string
	// Err is set for OneTimeFailed, and for a charge whose marker could not
	// be written afterwards.
	Err error
}

// Charged reports whether this call charged the fee.
func (r OneTimeResult) Charged() bool { return r.Status == OneTimeCharged }
