// internal/app/store/annotations/annotationstore.go
package annotationstore

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

var errBadKind = errors.New(`kind must be "positive"|"negative"|"observation"`)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("annotations")}
}

// Create stores a record-book annotation.
func (s *Store) Create(ctx context.Context, a models.Annotation) (models.Annotation, error) {
	switch a.Kind {
	case models.AnnotationPositive, models.AnnotationNegative, models.AnnotationObservation:
	default:
		return models.Annotation{}, errBadKind
	}
	a.ID = primitive.NewObjectID()
	a.Text = normalize.Text(a.Text)
	a.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		return models.Annotation{}, err
	}
	return a, nil
}

// ListVisible returns annotations about any of studentIDs or written in any
// of classIDs, newest first. Either slice may be empty.
func (s *Store) ListVisible(ctx context.Context, studentIDs, classIDs []primitive.ObjectID) ([]models.Annotation, error) {
	filter := visibleFilter(studentIDs, classIDs)
	if filter == nil {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Annotation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func visibleFilter(studentIDs, classIDs []primitive.ObjectID) bson.M {
	var or bson.A
	if len(studentIDs) > 0 {
		or = append(or, bson.M{"student_id": bson.M{"$in": studentIDs}})
	}
	if len(classIDs) > 0 {
		or = append(or, bson.M{"class_id": bson.M{"$in": classIDs}})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}
