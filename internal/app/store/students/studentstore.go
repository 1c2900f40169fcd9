// internal/app/store/students/studentstore.go
package studentstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("student not found")
	ErrExists   = errors.New("student already exists")

	errNoOwner = errors.New("student must have an owner_uid")
	errNoName  = errors.New("student must have a full_name")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("students")}
}

// Create inserts a student owned by st.OwnerUID. A zero ID is replaced with
// a new one; a caller-chosen ID makes retries detectable through ErrExists.
func (s *Store) Create(ctx context.Context, st models.Student) (models.Student, error) {
	if st.OwnerUID == "" {
		return models.Student{}, errNoOwner
	}
	st.FullName = normalize.Name(st.FullName)
	if st.FullName == "" {
		return models.Student{}, errNoName
	}
	if st.ID.IsZero() {
		st.ID = primitive.NewObjectID()
	}
	st.RUT = normalize.RUT(st.RUT)
	st.Grade = normalize.Text(st.Grade)
	st.CreatedAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, st); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Student{}, ErrExists
		}
		return models.Student{}, err
	}
	return st, nil
}

// GetByID loads a student by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Student, error) {
	var st models.Student
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// ListByOwner returns the students owned by a parent, oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerUID string) ([]models.Student, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"owner_uid": ownerUID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Student
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDsByOwner returns only the IDs of a parent's students.
func (s *Store) IDsByOwner(ctx context.Context, ownerUID string) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"owner_uid": ownerUID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// Delete removes a student by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
