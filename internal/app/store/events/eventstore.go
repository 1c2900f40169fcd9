// internal/app/store/events/eventstore.go
package eventstore

import (
	"context"
	"errors"

	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNoTitle = errors.New("event must have a title")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("events")}
}

// Create stores a class event.
func (s *Store) Create(ctx context.Context, e models.Event) (models.Event, error) {
	e.Title = normalize.Text(e.Title)
	if e.Title == "" {
		return models.Event{}, errNoTitle
	}
	e.ID = primitive.NewObjectID()
	e.Description = normalize.Text(e.Description)
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// ListByClasses returns the events of the given classes, soonest first.
func (s *Store) ListByClasses(ctx context.Context, classIDs []primitive.ObjectID) ([]models.Event, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"class_id": bson.M{"$in": classIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
