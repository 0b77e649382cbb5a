package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the collection MongoStore uses unless overridden.
const DefaultCollection = "tenants"

// MongoStore is the production Store. USD amounts are stored as Decimal128
// and mutated with $inc only.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore returns a store over db. An empty collection name selects
// DefaultCollection.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Tenant, error) {
	var doc tenantDoc
	if err := s.coll.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return nil, notFound(err)
	}

	t := doc.toTenant()

	// A legacy balance must be copied into the canonical field before the
	// first $inc touches it, otherwise the increment would start from zero.
	if doc.UsageBalanceUSD.Type == 0 && doc.LegacyBalance.Type != 0 {
		if err := s.materializeBalance(ctx, id, t.UsageBalanceUSD); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *MongoStore) Create(ctx context.Context, t *Tenant) error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return ErrInvalidIdentifier
	}
	balance, err := toDecimal128(t.UsageBalanceUSD)
	if err != nil {
		return err
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := bson.D{
		{Key: "_id", Value: t.ID},
		{Key: "email", Value: strings.ToLower(t.Email)},
		{Key: "billing_mode", Value: string(t.BillingMode)},
		{Key: "messaging_service_sid", Value: t.MessagingServiceSID},
		{Key: "from_number", Value: t.FromNumber},
		{Key: "customer_ref", Value: t.CustomerRef},
		{Key: "billing_disabled", Value: t.BillingDisabled},
		{Key: "is_admin", Value: t.IsAdmin},
		{Key: "ai_dialer_enabled", Value: t.AIDialerEnabled},
		{Key: "compliance_status", Value: string(t.Compliance)},
		{Key: "usage_balance_usd", Value: balance},
		{Key: "ai_accrued_cents", Value: t.AIAccruedCents},
		{Key: "ai_billed_total_cents", Value: t.AIBilledTotalCents},
		{Key: "created_at", Value: createdAt},
	}
	if !t.Personal.IsEmpty() {
		doc = append(doc, bson.E{Key: "personal", Value: fromCredentials(t.Personal)})
	}
	if !t.SubAccount.IsEmpty() {
		doc = append(doc, bson.E{Key: "sub_account", Value: fromCredentials(t.SubAccount)})
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrTenantExists
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *MongoStore) RecordAnalytics(ctx context.Context, id string, entry AnalyticsEntry) error {
	raw, err := toDecimal128(entry.RawCostUSD)
	if err != nil {
		return err
	}
	minutes, err := toDecimal128(entry.Minutes)
	if err != nil {
		return err
	}

	inc := bson.D{
		{Key: "analytics.total_raw_usd", Value: raw},
		{Key: "analytics.ai_minutes", Value: minutes},
		{Key: "analytics.events", Value: int64(1)},
	}
	if entry.Category != "" {
		inc = append(inc, bson.E{Key: "analytics.by_category." + fieldSafe(entry.Category), Value: raw})
	}

	res, err := s.coll.UpdateOne(ctx, byID(id), bson.D{{Key: "$inc", Value: inc}})
	if err != nil {
		return fmt.Errorf("record analytics: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *MongoStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	d128, err := toDecimal128(delta)
	if err != nil {
		return decimal.Zero, err
	}

	var out struct {
		Balance bson.RawValue `bson:"usage_balance_usd"`
	}
	err = s.coll.FindOneAndUpdate(ctx, byID(id),
		bson.D{{Key: "$inc", Value: bson.D{{Key: "usage_balance_usd", Value: d128}}}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.D{{Key: "usage_balance_usd", Value: 1}}),
	).Decode(&out)
	if err != nil {
		return decimal.Zero, notFound(err)
	}

	balance, ok := decimalFromRaw(out.Balance)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}
	return balance, nil
}

func (s *MongoStore) AddAccrual(ctx context.Context, id string, cents int64) (int64, error) {
	var out struct {
		Accrued int64 `bson:"ai_accrued_cents"`
	}
	err := s.coll.FindOneAndUpdate(ctx, byID(id),
		bson.D{{Key: "$inc", Value: bson.D{{Key: "ai_accrued_cents", Value: cents}}}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.D{{Key: "ai_accrued_cents", Value: 1}}),
	).Decode(&out)
	if err != nil {
		return 0, notFound(err)
	}
	return out.Accrued, nil
}

func (s *MongoStore) SettleAccrual(ctx context.Context, id string, chargedCents int64, at time.Time) (int64, error) {
	var out struct {
		Accrued int64 `bson:"ai_accrued_cents"`
	}
	err := s.coll.FindOneAndUpdate(ctx, byID(id),
		bson.D{
			{Key: "$inc", Value: bson.D{
				{Key: "ai_accrued_cents", Value: -chargedCents},
				{Key: "ai_billed_total_cents", Value: chargedCents},
			}},
			{Key: "$set", Value: bson.D{{Key: "ai_last_charged_at", Value: at.UTC()}}},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.D{{Key: "ai_accrued_cents", Value: 1}}),
	).Decode(&out)
	if err != nil {
		return 0, notFound(err)
	}
	return out.Accrued, nil
}

func (s *MongoStore) SetCompliance(ctx context.Context, id string, status ComplianceStatus) (ComplianceStatus, error) {
	var before tenantDoc
	err := s.coll.FindOneAndUpdate(ctx, byID(id),
		bson.D{{Key: "$set", Value: bson.D{{Key: "compliance_status", Value: string(status)}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		return ComplianceUnknown, notFound(err)
	}
	return before.compliance(), nil
}

func (s *MongoStore) TryLock(ctx context.Context, id string, kind LockKind, now time.Time, ttl time.Duration) (bool, error) {
	field := "locks." + fieldSafe(string(kind))
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: field, Value: bson.D{{Key: "$lte", Value: now.UTC()}}}},
		}},
	}
	res, err := s.coll.UpdateOne(ctx, filter,
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: LeaseUntil(now, ttl)}}}})
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, byID(id))
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	if n == 0 {
		return false, ErrTenantNotFound
	}
	return false, nil
}

func (s *MongoStore) Unlock(ctx context.Context, id string, kind LockKind, until time.Time) error {
	field := "locks." + fieldSafe(string(kind))
	filter := bson.D{{Key: "_id", Value: id}, {Key: field, Value: leaseTime(until)}}
	_, err := s.coll.UpdateOne(ctx, filter,
		bson.D{{Key: "$unset", Value: bson.D{{Key: field, Value: ""}}}})
	if err != nil {
		return fmt.Errorf("release %s lock: %w", kind, err)
	}
	return nil
}

// MarkApprovalNotified matches only documents with neither the canonical nor
// the legacy stamp, so exactly one caller wins.
func (s *MongoStore) MarkApprovalNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "approval_notified_at", Value: nil},
		{Key: "approvalNotifiedAt", Value: nil},
	}
	res, err := s.coll.UpdateOne(ctx, filter,
		bson.D{{Key: "$set", Value: bson.D{{Key: "approval_notified_at", Value: at.UTC()}}}})
	if err != nil {
		return false, fmt.Errorf("mark approval notified: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, byID(id))
	if err != nil {
		return false, fmt.Errorf("mark approval notified: %w", err)
	}
	if n == 0 {
		return false, ErrTenantNotFound
	}
	return false, nil
}

func (s *MongoStore) ClearApprovalNotified(ctx context.Context, id string) error {
	res, err := s.coll.UpdateOne(ctx, byID(id),
		bson.D{{Key: "$unset", Value: bson.D{
			{Key: "approval_notified_at", Value: ""},
			{Key: "approvalNotifiedAt", Value: ""},
		}}})
	if err != nil {
		return fmt.Errorf("clear approval notified: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *MongoStore) materializeBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	d128, err := toDecimal128(balance)
	if err != nil {
		return err
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "usage_balance_usd", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "usage_balance_usd", Value: d128}}}},
	)
	if err != nil {
		return fmt.Errorf("materialize legacy balance: %w", err)
	}
	return nil
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrTenantNotFound
	}
	return err
}

// fieldSafe keeps user-influenced names from turning into nested paths or operators.
func fieldSafe(name string) string {
	return strings.NewReplacer(".", "_", "$", "_").Replace(name)
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	d128, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, errors.Join(ErrInvalidAmount, err)
	}
	return d128, nil
}

func decimalFromRaw(rv bson.RawValue) (decimal.Decimal, bool) {
	switch rv.Type {
	case bson.TypeDecimal128:
		d128, ok := rv.Decimal128OK()
		if !ok {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(d128.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case bson.TypeDouble:
		v, ok := rv.DoubleOK()
		return decimal.NewFromFloat(v), ok
	case bson.TypeInt32:
		v, ok := rv.Int32OK()
		return decimal.NewFromInt32(v), ok
	case bson.TypeInt64:
		v, ok := rv.Int64OK()
		return decimal.NewFromInt(v), ok
	case bson.TypeString:
		v, ok := rv.StringValueOK()
		if !ok {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
