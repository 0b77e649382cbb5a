package tenant

import (
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingMode says whose external account pays for a tenant's carrier traffic.
type BillingMode string

const (
	// BillingModeSelf means the tenant's own carrier account is billed directly.
	BillingModeSelf BillingMode = "self"
	// BillingModePlatform means the platform pays the carrier and re-bills the tenant.
	BillingModePlatform BillingMode = "platform"
)

// ComplianceStatus is the normalized messaging-registration (A2P) state.
type ComplianceStatus string

const (
	ComplianceUnknown  ComplianceStatus = ""
	CompliancePending  ComplianceStatus = "pending"
	ComplianceApproved ComplianceStatus = "approved"
	ComplianceRejected ComplianceStatus = "rejected"
)

// Approved reports whether the registration is approved and messaging is ready.
func (s ComplianceStatus) Approved() bool { return s == ComplianceApproved }

// ParseComplianceStatus maps the carrier's and legacy spellings onto the
// canonical states. Unrecognized values are treated as pending.
func ParseComplianceStatus(s string) ComplianceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ComplianceUnknown
	case "approved", "verified", "ready", "campaign_approved", "active":
		return ComplianceApproved
	case "rejected", "failed", "campaign_rejected", "suspended":
		return ComplianceRejected
	default:
		return CompliancePending
	}
}

// Credentials is one carrier credential set. KeySecret holds ciphertext when
// Encrypted is true.
type Credentials struct {
	AccountSID string
	KeySID     string
	KeySecret  string
	Encrypted  bool
}

// IsEmpty reports whether no credential material is present at all.
func (c *Credentials) IsEmpty() bool {
	if c == nil {
		return true
	}
	return strings.TrimSpace(c.AccountSID) == "" &&
		strings.TrimSpace(c.KeySID) == "" &&
		strings.TrimSpace(c.KeySecret) == ""
}

// Analytics are lifetime raw vendor cost counters. They grow for every usage
// event, billed or not, and feed margin reporting.
type Analytics struct {
	TotalRawUSD decimal.Decimal
	ByCategory  map[string]decimal.Decimal
	AIMinutes   decimal.Decimal
	Events      int64
}

// Tenant is the canonical billable account record.
type Tenant struct {
	ID    string
	Email string

	BillingMode         BillingMode
	Personal            *Credentials
	SubAccount          *Credentials
	MessagingServiceSID string
	FromNumber          string

	// CustomerRef is the payment processor customer reference.
	CustomerRef     string
	BillingDisabled bool
	IsAdmin         bool
	AIDialerEnabled bool
	Compliance      ComplianceStatus
	// ApprovalNotifiedAt is set once the tenant was told messaging is approved.
	ApprovalNotifiedAt *time.Time

	UsageBalanceUSD    decimal.Decimal
	AIAccruedCents     int64
	AIBilledTotalCents int64
	AILastChargedAt    *time.Time
	Analytics          Analytics

	CreatedAt   time.Time
	SuspendedAt *time.Time
}

// HasProcessorLinkage reports whether the tenant can be charged: a customer
// reference exists and billing was not disabled by an administrator.
func (t *Tenant) HasProcessorLinkage() bool {
	return strings.TrimSpace(t.CustomerRef) != "" && !t.BillingDisabled
}

// Identities returns the values an admin allow-list entry may match.
func (t *Tenant) Identities() []string {
	ids := make([]string, 0, 2)
	if t.ID != "" {
		ids = append(ids, t.ID)
	}
	if t.Email != "" {
		ids = append(ids, strings.ToLower(t.Email))
	}
	return ids
}

// Clone returns a deep copy.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	if t.Personal != nil {
		p := *t.Personal
		c.Personal = &p
	}
	if t.SubAccount != nil {
		s := *t.SubAccount
		c.SubAccount = &s
	}
	if t.AILastChargedAt != nil {
		at := *t.AILastChargedAt
		c.AILastChargedAt = &at
	}
	if t.SuspendedAt != nil {
		at := *t.SuspendedAt
		c.SuspendedAt = &at
	}
	if t.ApprovalNotifiedAt != nil {
		at := *t.ApprovalNotifiedAt
		c.ApprovalNotifiedAt = &at
	}
	c.Analytics.ByCategory = maps.Clone(t.Analytics.ByCategory)
	return &c
}

// AnalyticsEntry is one increment of the lifetime analytics counters.
type AnalyticsEntry struct {
	Category   string
	RawCostUSD decimal.Decimal
	Minutes    decimal.Decimal
}

// LockKind names a per-tenant lease used to serialize charge attempts.
type LockKind string

const (
	LockTopUp   LockKind = "topup"
	LockAccrual LockKind = "accrual"
)
