// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth    = "auth"
	CategoryAccount = "account"
	CategorySync    = "sync"
)

// Auth event types
const (
	EventLoginSuccess        = "login_success"
	EventLoginFailed         = "login_failed"
	EventLoginRateLimited    = "login_rate_limited"
	EventLogout              = "logout"
	EventCredentialLinked    = "credential_linked"
	EventCredentialNotLinked = "credential_not_linked"
)

// Account event types
const (
	EventRegistrationSucceeded = "registration_succeeded"
	EventRegistrationFailed    = "registration_failed"
	EventCompensationFailed    = "compensation_failed"
)

// Sync event types
const (
	EventSyncPartial    = "sync_partial"
	EventProfileMissing = "profile_missing"
)

// DefaultLimit caps queries that do not set one.
const DefaultLimit = 100

// Event is one audit record. Indexes live in system/indexes.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`

	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"event_type"`

	// Identity the event is about; empty when it was never created.
	UID   string `bson:"uid,omitempty" json:"uid,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`

	IP        string `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"-"`

	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	UID       string
	Category  string
	EventType string
	Since     time.Time
	Limit     int64
}

func (f Filter) bson() bson.M {
	q := bson.M{}
	if f.UID != "" {
		q["uid"] = f.UID
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.EventType != "" {
		q["event_type"] = f.EventType
	}
	if !f.Since.IsZero() {
		q["timestamp"] = bson.M{"$gte": f.Since}
	}
	return q
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log inserts event, stamping ID and Timestamp when unset.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Find returns matching events, newest first.
func (s *Store) Find(ctx context.Context, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, f.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	events := []Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of matching events. Limit is ignored.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	return s.c.CountDocuments(ctx, f.bson())
}

// ForIdentity returns the most recent events about uid.
func (s *Store) ForIdentity(ctx context.Context, uid string, limit int64) ([]Event, error) {
	return s.Find(ctx, Filter{UID: uid, Limit: limit})
}
