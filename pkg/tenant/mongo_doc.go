package tenant

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type credentialsDoc struct {
	AccountSID string `bson:"account_sid,omitempty"`
	KeySID     string `bson:"key_sid,omitempty"`
	KeySecret  string `bson:"key_secret,omitempty"`
	Encrypted  bool   `bson:"encrypted,omitempty"`
}

type analyticsDoc struct {
	TotalRawUSD bson.RawValue            `bson:"total_raw_usd"`
	ByCategory  map[string]bson.RawValue `bson:"by_category"`
	AIMinutes   bson.RawValue            `bson:"ai_minutes"`
	Events      int64                    `bson:"events"`
}

// tenantDoc is the stored shape, canonical fields first, then every legacy
// spelling still present in older documents.
type tenantDoc struct {
	ID                  string          `bson:"_id"`
	Email               string          `bson:"email"`
	BillingMode         string          `bson:"billing_mode"`
	Personal            *credentialsDoc `bson:"personal"`
	SubAccount          *credentialsDoc `bson:"sub_account"`
	MessagingServiceSID string          `bson:"messaging_service_sid"`
	FromNumber          string          `bson:"from_number"`
	CustomerRef         string          `bson:"customer_ref"`
	BillingDisabled     bool            `bson:"billing_disabled"`
	IsAdmin             bool            `bson:"is_admin"`
	AIDialerEnabled     bool            `bson:"ai_dialer_enabled"`
	ComplianceStatus    string          `bson:"compliance_status"`
	UsageBalanceUSD     bson.RawValue   `bson:"usage_balance_usd"`
	AIAccruedCents      int64           `bson:"ai_accrued_cents"`
	AIBilledTotalCents  int64           `bson:"ai_billed_total_cents"`
	AILastChargedAt     *time.Time      `bson:"ai_last_charged_at"`
	Analytics           analyticsDoc    `bson:"analytics"`
	CreatedAt           time.Time       `bson:"created_at"`
	SuspendedAt         *time.Time      `bson:"suspended_at"`
	ApprovalNotifiedAt  *time.Time      `bson:"approval_notified_at"`

	LegacyBillingMode        string        `bson:"billingMode"`
	LegacyAccountSID         string        `bson:"twilioAccountSid"`
	LegacyAPIKeySID          string        `bson:"twilioApiKeySid"`
	LegacyAPIKeySecret       string        `bson:"twilioApiKeySecret"`
	LegacySubaccountSID      string        `bson:"subaccountSid"`
	LegacySubaccountToken    string        `bson:"subaccountAuthToken"`
	LegacyCustomerID         string        `bson:"stripeCustomerId"`
	LegacyBalance            bson.RawValue `bson:"usageBalance"`
	LegacyRegistrationStatus string        `bson:"registrationStatus"`
	LegacyMessagingReady     *bool         `bson:"messagingReady"`
	LegacyApplicationStatus  string        `bson:"applicationStatus"`
	LegacyA2PStatus          string        `bson:"a2pStatus"`
	LegacyHasAIUpgrade       *bool         `bson:"hasAIUpgrade"`
	LegacyRole               string        `bson:"role"`
	LegacyCreatedAt          *time.Time    `bson:"createdAt"`
	LegacyApprovalNotifiedAt *time.Time    `bson:"approvalNotifiedAt"`
}

func (d *tenantDoc) toTenant() *Tenant {
	t := &Tenant{
		ID:                  d.ID,
		Email:               strings.ToLower(strings.TrimSpace(d.Email)),
		BillingMode:         BillingMode(firstNonEmpty(d.BillingMode, d.LegacyBillingMode)),
		MessagingServiceSID: d.MessagingServiceSID,
		FromNumber:          d.FromNumber,
		CustomerRef:         firstNonEmpty(d.CustomerRef, d.LegacyCustomerID),
		BillingDisabled:     d.BillingDisabled,
		IsAdmin:             d.IsAdmin || strings.EqualFold(d.LegacyRole, "admin"),
		AIDialerEnabled:     d.AIDialerEnabled || (d.LegacyHasAIUpgrade != nil && *d.LegacyHasAIUpgrade),
		Compliance:          d.compliance(),
		AIAccruedCents:      d.AIAccruedCents,
		AIBilledTotalCents:  d.AIBilledTotalCents,
		AILastChargedAt:     d.AILastChargedAt,
		CreatedAt:           d.CreatedAt,
		SuspendedAt:         d.SuspendedAt,
	}
	if t.CreatedAt.IsZero() && d.LegacyCreatedAt != nil {
		t.CreatedAt = *d.LegacyCreatedAt
	}
	t.ApprovalNotifiedAt = d.ApprovalNotifiedAt
	if t.ApprovalNotifiedAt == nil {
		t.ApprovalNotifiedAt = d.LegacyApprovalNotifiedAt
	}

	if d.Personal != nil {
		t.Personal = d.Personal.toCredentials()
	} else if d.LegacyAccountSID != "" || d.LegacyAPIKeySID != "" || d.LegacyAPIKeySecret != "" {
		t.Personal = &Credentials{
			AccountSID: d.LegacyAccountSID,
			KeySID:     d.LegacyAPIKeySID,
			KeySecret:  d.LegacyAPIKeySecret,
		}
	}

	if d.SubAccount != nil {
		t.SubAccount = d.SubAccount.toCredentials()
	} else if d.LegacySubaccountSID != "" {
		// Legacy sub-accounts authenticated with the account's own token.
		t.SubAccount = &Credentials{
			AccountSID: d.LegacySubaccountSID,
			KeySID:     d.LegacySubaccountSID,
			KeySecret:  d.LegacySubaccountToken,
		}
	}

	if balance, ok := decimalFromRaw(d.UsageBalanceUSD); ok {
		t.UsageBalanceUSD = balance
	} else if balance, ok := decimalFromRaw(d.LegacyBalance); ok {
		t.UsageBalanceUSD = balance
	}

	t.Analytics = d.Analytics.toAnalytics()
	return t
}

// compliance folds the historical registration fields into one status. The
// canonical field wins once it has been written.
func (d *tenantDoc) compliance() ComplianceStatus {
	if d.ComplianceStatus != "" {
		return ComplianceStatus(d.ComplianceStatus)
	}
	if strings.EqualFold(d.LegacyRegistrationStatus, "ready") ||
		(d.LegacyMessagingReady != nil && *d.LegacyMessagingReady) {
		return ComplianceApproved
	}
	for _, s := range []string{d.LegacyApplicationStatus, d.LegacyA2PStatus, d.LegacyRegistrationStatus} {
		if status := ParseComplianceStatus(s); status != ComplianceUnknown {
			return status
		}
	}
	return ComplianceUnknown
}

func (c *credentialsDoc) toCredentials() *Credentials {
	return &Credentials{
		AccountSID: c.AccountSID,
		KeySID:     c.KeySID,
		KeySecret:  c.KeySecret,
		Encrypted:  c.Encrypted,
	}
}

func fromCredentials(c *Credentials) credentialsDoc {
	return credentialsDoc{
		AccountSID: c.AccountSID,
		KeySID:     c.KeySID,
		KeySecret:  c.KeySecret,
		Encrypted:  c.Encrypted,
	}
}

func (a analyticsDoc) toAnalytics() Analytics {
	out := Analytics{Events: a.Events}
	out.TotalRawUSD, _ = decimalFromRaw(a.TotalRawUSD)
	out.AIMinutes, _ = decimalFromRaw(a.AIMinutes)
	if len(a.ByCategory) > 0 {
		out.ByCategory = make(map[string]decimal.Decimal, len(a.ByCategory))
		for k, v := range a.ByCategory {
			out.ByCategory[k], _ = decimalFromRaw(v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
