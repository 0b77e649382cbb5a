package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/pg"
)

// PostgresStore is the relational Store. Amounts are NUMERIC, passed and read
// as text so no precision is lost in the driver, and every counter change is
// a single UPDATE ... SET x = x + $n.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore expects the schema applied by pg.Migrate.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type credentialsJSON struct {
	AccountSID string `json:"account_sid,omitempty"`
	KeySID     string `json:"key_sid,omitempty"`
	KeySecret  string `json:"key_secret,omitempty"`
	Encrypted  bool   `json:"encrypted,omitempty"`
}

func toCredentialsJSON(c *Credentials) *credentialsJSON {
	if c.IsEmpty() {
		return nil
	}
	return &credentialsJSON{
		AccountSID: c.AccountSID,
		KeySID:     c.KeySID,
		KeySecret:  c.KeySecret,
		Encrypted:  c.Encrypted,
	}
}

func (c *credentialsJSON) toCredentials() *Credentials {
	if c == nil {
		return nil
	}
	return &Credentials{
		AccountSID: c.AccountSID,
		KeySID:     c.KeySID,
		KeySecret:  c.KeySecret,
		Encrypted:  c.Encrypted,
	}
}

const selectTenant = `
SELECT id, email, billing_mode, personal, sub_account, messaging_service_sid,
       from_number, customer_ref, billing_disabled, is_admin, ai_dialer_enabled,
       compliance_status, usage_balance_usd::text, ai_accrued_cents,
       ai_billed_total_cents, ai_last_charged_at, approval_notified_at,
       analytics_total_raw_usd::text, analytics_ai_minutes::text,
       analytics_events, created_at, suspended_at
FROM tenants
WHERE id = $1`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	var (
		t                          Tenant
		billingMode, compliance    string
		personal, subAccount       *credentialsJSON
		balance, rawUSD, aiMinutes string
	)
	err := s.pool.QueryRow(ctx, selectTenant, id).Scan(
		&t.ID, &t.Email, &billingMode, &personal, &subAccount, &t.MessagingServiceSID,
		&t.FromNumber, &t.CustomerRef, &t.BillingDisabled, &t.IsAdmin, &t.AIDialerEnabled,
		&compliance, &balance, &t.AIAccruedCents,
		&t.AIBilledTotalCents, &t.AILastChargedAt, &t.ApprovalNotifiedAt,
		&rawUSD, &aiMinutes,
		&t.Analytics.Events, &t.CreatedAt, &t.SuspendedAt,
	)
	if err != nil {
		return nil, pgNotFound(err)
	}
	t.BillingMode = BillingMode(billingMode)
	t.Compliance = ComplianceStatus(compliance)
	t.Personal = personal.toCredentials()
	t.SubAccount = subAccount.toCredentials()

	if t.UsageBalanceUSD, err = parseNumeric(balance); err != nil {
		return nil, err
	}
	if t.Analytics.TotalRawUSD, err = parseNumeric(rawUSD); err != nil {
		return nil, err
	}
	if t.Analytics.AIMinutes, err = parseNumeric(aiMinutes); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT category, raw_usd::text FROM tenant_usage_by_category WHERE tenant_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load usage categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category, raw string
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("scan usage category: %w", err)
		}
		amount, err := parseNumeric(raw)
		if err != nil {
			return nil, err
		}
		if t.Analytics.ByCategory == nil {
			t.Analytics.ByCategory = make(map[string]decimal.Decimal)
		}
		t.Analytics.ByCategory[category] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load usage categories: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return ErrInvalidIdentifier
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO tenants (
    id, email, billing_mode, personal, sub_account, messaging_service_sid,
    from_number, customer_ref, billing_disabled, is_admin, ai_dialer_enabled,
    compliance_status, usage_balance_usd, ai_accrued_cents, ai_billed_total_cents,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14, $15, $16)`,
		t.ID, strings.ToLower(t.Email), string(t.BillingMode),
		toCredentialsJSON(t.Personal), toCredentialsJSON(t.SubAccount), t.MessagingServiceSID,
		t.FromNumber, t.CustomerRef, t.BillingDisabled, t.IsAdmin, t.AIDialerEnabled,
		string(t.Compliance), t.UsageBalanceUSD.String(), t.AIAccruedCents, t.AIBilledTotalCents,
		createdAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrTenantExists
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAnalytics(ctx context.Context, id string, entry AnalyticsEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE tenants
SET analytics_total_raw_usd = analytics_total_raw_usd + $2::numeric,
    analytics_ai_minutes = analytics_ai_minutes + $3::numeric,
    analytics_events = analytics_events + 1
WHERE id = $1`,
			id, entry.RawCostUSD.String(), entry.Minutes.String())
		if err != nil {
			return fmt.Errorf("record analytics: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrTenantNotFound
		}
		if entry.Category == "" {
			return nil
		}

		_, err = tx.Exec(ctx, `
INSERT INTO tenant_usage_by_category (tenant_id, category, raw_usd)
VALUES ($1, $2, $3::numeric)
ON CONFLICT (tenant_id, category)
DO UPDATE SET raw_usd = tenant_usage_by_category.raw_usd + EXCLUDED.raw_usd`,
			id, entry.Category, entry.RawCostUSD.String())
		if err != nil {
			return fmt.Errorf("record category analytics: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.pool.QueryRow(ctx, `
UPDATE tenants SET usage_balance_usd = usage_balance_usd + $2::numeric
WHERE id = $1
RETURNING usage_balance_usd::text`, id, delta.String()).Scan(&balance)
	if err != nil {
		return decimal.Zero, pgNotFound(err)
	}
	return parseNumeric(balance)
}

func (s *PostgresStore) AddAccrual(ctx context.Context, id string, cents int64) (int64, error) {
	var accrued int64
	err := s.pool.QueryRow(ctx, `
UPDATE tenants SET ai_accrued_cents = ai_accrued_cents + $2
WHERE id = $1
RETURNING ai_accrued_cents`, id, cents).Scan(&accrued)
	if err != nil {
		return 0, pgNotFound(err)
	}
	return accrued, nil
}

func (s *PostgresStore) SettleAccrual(ctx context.Context, id string, chargedCents int64, at time.Time) (int64, error) {
	var accrued int64
	err := s.pool.QueryRow(ctx, `
UPDATE tenants
SET ai_accrued_cents = ai_accrued_cents - $2,
    ai_billed_total_cents = ai_billed_total_cents + $2,
    ai_last_charged_at = $3
WHERE id = $1
RETURNING ai_accrued_cents`, id, chargedCents, at.UTC()).Scan(&accrued)
	if err != nil {
		return 0, pgNotFound(err)
	}
	return accrued, nil
}

func (s *PostgresStore) SetCompliance(ctx context.Context, id string, status ComplianceStatus) (ComplianceStatus, error) {
	var prev string
	err := s.pool.QueryRow(ctx, `
UPDATE tenants t SET compliance_status = $2
FROM (SELECT id, compliance_status FROM tenants WHERE id = $1 FOR UPDATE) prev
WHERE t.id = prev.id
RETURNING prev.compliance_status`, id, string(status)).Scan(&prev)
	if err != nil {
		return ComplianceUnknown, pgNotFound(err)
	}
	return ComplianceStatus(prev), nil
}

// TryLock upserts the lease row; the conflict branch only fires when the
// held lease has expired, so RowsAffected tells whether it was taken.
func (s *PostgresStore) TryLock(ctx context.Context, id string, kind LockKind, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO tenant_locks (tenant_id, kind, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, kind)
DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE tenant_locks.expires_at <= $4`,
		id, string(kind), LeaseUntil(now, ttl), now.UTC())
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return false, ErrTenantNotFound
		}
		return false, fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Unlock(ctx context.Context, id string, kind LockKind, until time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM tenant_locks WHERE tenant_id = $1 AND kind = $2 AND expires_at = $3`,
		id, string(kind), leaseTime(until)); err != nil {
		return fmt.Errorf("release %s lock: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) MarkApprovalNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET approval_notified_at = $2 WHERE id = $1 AND approval_notified_at IS NULL`,
		id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark approval notified: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.exists(ctx, id)
}

func (s *PostgresStore) ClearApprovalNotified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET approval_notified_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear approval notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PostgresStore) exists(ctx context.Context, id string) error {
	var found bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&found); err != nil {
		return err
	}
	if !found {
		return ErrTenantNotFound
	}
	return nil
}

func pgNotFound(err error) error {
	if pg.IsNotFoundError(err) {
		return ErrTenantNotFound
	}
	return err
}

func parseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Join(ErrInvalidAmount, err)
	}
	return d, nil
}
