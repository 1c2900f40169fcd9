// internal/app/store/justifications/justificationstore.go
package justificationstore

import (
	"context"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("justification not found")

	errNoReason  = errors.New("justification must have a reason")
	errBadStatus = errors.New(`status must be "pending"|"accepted"|"rejected"`)
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("justifications")}
}

// Submit stores a parent's absence justification as pending.
func (s *Store) Submit(ctx context.Context, j models.Justification) (models.Justification, error) {
	j.Reason = normalize.Text(j.Reason)
	if j.Reason == "" {
		return models.Justification{}, errNoReason
	}
	j.ID = primitive.NewObjectID()
	j.Status = models.JustificationPending
	j.Date = j.Date.UTC().Truncate(24 * time.Hour)
	j.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, j); err != nil {
		return models.Justification{}, err
	}
	return j, nil
}

// Review sets the status of a justification.
func (s *Store) Review(ctx context.Context, id primitive.ObjectID, status string) error {
	if status != models.JustificationAccepted && status != models.JustificationRejected {
		return errBadStatus
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVisible returns justifications the parent submitted or that belong to
// any of classIDs, newest first.
func (s *Store) ListVisible(ctx context.Context, parentUID string, classIDs []primitive.ObjectID) ([]models.Justification, error) {
	or := bson.A{bson.M{"parent_uid": parentUID}}
	if len(classIDs) > 0 {
		or = append(or, bson.M{"class_id": bson.M{"$in": classIDs}})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"$or": or}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Justification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
