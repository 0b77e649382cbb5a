package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the collection MongoStore uses unless overridden.
const DefaultCollection = "scheduled_actions"

type actionDoc struct {
	ID            string          `bson:"_id"`
	TenantID      string          `bson:"tenant_id"`
	Recipient     string          `bson:"recipient"`
	RecipientName string          `bson:"recipient_name,omitempty"`
	StartsAt      time.Time       `bson:"starts_at"`
	TimeZone      string          `bson:"time_zone,omitempty"`
	Active        bool            `bson:"active"`
	Claims        map[string]bool `bson:"claims,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
}

func (d *actionDoc) toAction() *Action {
	a := &Action{
		ID:            d.ID,
		TenantID:      d.TenantID,
		Recipient:     d.Recipient,
		RecipientName: d.RecipientName,
		StartsAt:      d.StartsAt,
		TimeZone:      d.TimeZone,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
	}
	if len(d.Claims) > 0 {
		a.Claims = make(map[Flag]bool, len(d.Claims))
		for k, v := range d.Claims {
			a.Claims[Flag(k)] = v
		}
	}
	return a
}

// MongoStore is the production ActionStore and Claimer. A claim is a single
// conditional update on claims.<flag>, so MongoDB's per-document atomicity
// decides the winner.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var (
	_ ActionStore = (*MongoStore)(nil)
	_ Claimer     = (*MongoStore)(nil)
)

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{coll: db.Collection(collection), now: time.Now}
}

// EnsureIndexes creates the index ListActive relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "active", Value: 1}, {Key: "starts_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create scheduled action index: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, a *Action) error {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return ErrInvalidAction
	}
	doc := actionDoc{
		ID:            a.ID,
		TenantID:      a.TenantID,
		Recipient:     a.Recipient,
		RecipientName: a.RecipientName,
		StartsAt:      a.StartsAt.UTC(),
		TimeZone:      a.TimeZone,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	if len(a.Claims) > 0 {
		doc.Claims = make(map[string]bool, len(a.Claims))
		for k, v := range a.Claims {
			doc.Claims[string(k)] = v
		}
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrActionExists
		}
		return fmt.Errorf("insert scheduled action: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Action, error) {
	var doc actionDoc
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}
	return doc.toAction(), nil
}

func (s *MongoStore) ListActive(ctx context.Context, from, to time.Time) ([]*Action, error) {
	filter := bson.D{
		{Key: "active", Value: true},
		{Key: "starts_at", Value: bson.D{
			{Key: "$gte", Value: from.UTC()},
			{Key: "$lte", Value: to.UTC()},
		}},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list scheduled actions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []actionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode scheduled actions: %w", err)
	}
	out := make([]*Action, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toAction())
	}
	return out, nil
}

// Claim sets claims.<flag> to true only if it is missing or not already true.
func (s *MongoStore) Claim(ctx context.Context, actionID string, flag Flag) (bool, error) {
	if !flag.Valid() {
		return false, ErrInvalidFlag
	}
	field := "claims." + string(flag)

	res, err := s.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: actionID},
			{Key: field, Value: bson.D{{Key: "$ne", Value: true}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: field, Value: true},
			{Key: "claimed_at." + string(flag), Value: s.now().UTC()},
		}}},
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", flag, err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: actionID}})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", flag, err)
	}
	if n == 0 {
		return false, ErrActionNotFound
	}
	return false, nil
}

// Revert clears the flag unconditionally.
func (s *MongoStore) Revert(ctx context.Context, actionID string, flag Flag) error {
	if !flag.Valid() {
		return ErrInvalidFlag
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: actionID}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "claims." + string(flag), Value: false}}},
			{Key: "$unset", Value: bson.D{{Key: "claimed_at." + string(flag), Value: ""}}},
		},
	)
	if err != nil {
		return fmt.Errorf("revert %s: %w", flag, err)
	}
	if res.MatchedCount == 0 {
		return ErrActionNotFound
	}
	return nil
}
