// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionIndexes struct {
	name   string
	models []mongo.IndexModel
}

func unique(name string, keys ...string) mongo.IndexModel {
	return mongo.IndexModel{Keys: ascending(keys...), Options: options.Index().SetUnique(true).SetName(name)}
}

func plain(name string, keys ...string) mongo.IndexModel {
	return mongo.IndexModel{Keys: ascending(keys...), Options: options.Index().SetName(name)}
}

func ascending(keys ...string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return d
}

// desired lists every index the remote store relies on. Unique indexes
// back the duplicate checks in the stores (email, join code, federated
// subject, one membership per student and class, one attendance mark per
// student and day).
func desired() []collectionIndexes {
	return []collectionIndexes{
		{"auth_accounts", []mongo.IndexModel{
			unique("uniq_email", "email"),
		}},
		{"identity_links", []mongo.IndexModel{
			unique("uniq_provider_subject", "provider", "subject"),
			plain("idx_uid", "uid"),
		}},
		{"profiles", []mongo.IndexModel{
			plain("idx_email", "email"),
		}},
		{"students", []mongo.IndexModel{
			plain("idx_owner", "owner_uid"),
		}},
		{"classes", []mongo.IndexModel{
			unique("uniq_join_code", "join_code"),
			plain("idx_teacher", "teacher_uid"),
		}},
		{"class_members", []mongo.IndexModel{
			unique("uniq_class_student", "class_id", "student_id"),
			plain("idx_parent", "parent_uid"),
		}},
		{"messages", []mongo.IndexModel{
			plain("idx_sender", "sender_uid", "sent_at"),
			plain("idx_recipient", "recipient_uid", "sent_at"),
		}},
		{"events", []mongo.IndexModel{
			plain("idx_class_starts", "class_id", "starts_at"),
		}},
		{"material_requests", []mongo.IndexModel{
			plain("idx_class", "class_id"),
		}},
		{"annotations", []mongo.IndexModel{
			plain("idx_student", "student_id"),
			plain("idx_class", "class_id"),
		}},
		{"attendance", []mongo.IndexModel{
			unique("uniq_student_class_date", "student_id", "class_id", "date"),
			plain("idx_class", "class_id"),
		}},
		{"justifications", []mongo.IndexModel{
			plain("idx_parent", "parent_uid"),
			plain("idx_class", "class_id"),
		}},
		{"audit_events", []mongo.IndexModel{
			plain("idx_timestamp", "timestamp"),
			plain("idx_uid_timestamp", "uid", "timestamp"),
			plain("idx_category_type_timestamp", "category", "event_type", "timestamp"),
		}},
	}
}

/*
EnsureAll is called at startup. Each collection is reconciled on its own
and problems are aggregated so startup fails with the full picture.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string
	for _, ci := range desired() {
		if err := ensureIndexSet(ctx, db.Collection(ci.name), ci.models, logger); err != nil {
			problems = append(problems, ci.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			return nil, err
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet reconciles one collection: matching indexes are reused,
// indexes whose name or uniqueness differ are dropped and recreated, and
// missing ones are created.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, want []mongo.IndexModel, logger *zap.Logger) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// A collection that does not exist yet has no indexes.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range want {
		name := *m.Options.Name
		wantUnique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := logger.With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", wantUnique),
		)

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == wantUnique && ex.Name == name {
				log.Debug("reusing existing index")
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
			log.Info("dropped index to realign options", zap.String("old_name", ex.Name))
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if wantUnique && wafflemongo.IsDup(err) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed", zap.Error(err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
