// internal/app/store/materialrequests/materialrequeststore.go
package materialrequeststore

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

var errNoTitle = errors.New("material request must have a title")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("material_requests")}
}

// Create stores a material request for a class.
func (s *Store) Create(ctx context.Context, m models.MaterialRequest) (models.MaterialRequest, error) {
	m.Title = normalize.Text(m.Title)
	if m.Title == "" {
		return models.MaterialRequest{}, errNoTitle
	}
	m.ID = primitive.NewObjectID()
	m.Description = normalize.Text(m.Description)
	m.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.MaterialRequest{}, err
	}
	return m, nil
}

// ListByClasses returns the requests of the given classes by due date.
func (s *Store) ListByClasses(ctx context.Context, classIDs []primitive.ObjectID) ([]models.MaterialRequest, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"class_id": bson.M{"$in": classIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.MaterialRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
