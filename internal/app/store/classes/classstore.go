// internal/app/store/classes/classstore.go
package classstore

import (
	"context"
	"crypto/rand"
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
	ErrNotFound = errors.New("class not found")

	// ErrDuplicateJoinCode is returned when another class already uses the code.
	ErrDuplicateJoinCode = errors.New("a class with this join code already exists")

	errNoTeacher = errors.New("class must have a teacher_uid")
	errNoCode    = errors.New("class must have a join_code")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("classes")}
}

// Create inserts a class. The join code is normalized to upper case and a
// zero ID is replaced with a new one.
func (s *Store) Create(ctx context.Context, c models.Class) (models.Class, error) {
	if c.TeacherUID == "" {
		return models.Class{}, errNoTeacher
	}
	c.JoinCode = normalize.JoinCode(c.JoinCode)
	if c.JoinCode == "" {
		return models.Class{}, errNoCode
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	c.Name = normalize.Name(c.Name)
	c.CreatedAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Class{}, ErrDuplicateJoinCode
		}
		return models.Class{}, err
	}
	return c, nil
}

// Delete removes a class by ID. Deleting a missing class is not an error.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// joinCodeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// JoinCodeLength is the length of generated join codes.
const JoinCodeLength = 6

// NewJoinCode returns a random join code.
func NewJoinCode() (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// GetByJoinCode resolves a join code (any case, spaces and dashes ignored).
func (s *Store) GetByJoinCode(ctx context.Context, code string) (*models.Class, error) {
	code = normalize.JoinCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	var c models.Class
	if err := s.c.FindOne(ctx, bson.M{"join_code": code}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByID loads a class by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Class, error) {
	var c models.Class
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListByTeacher returns the classes a teacher teaches, by name.
func (s *Store) ListByTeacher(ctx context.Context, teacherUID string) ([]models.Class, error) {
	return s.find(ctx, bson.M{"teacher_uid": teacherUID})
}

// ListByIDs returns the classes with the given IDs, by name.
func (s *Store) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Class, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// IDsByTeacher returns only the IDs of a teacher's classes.
func (s *Store) IDsByTeacher(ctx context.Context, teacherUID string) ([]primitive.ObjectID, error) {
	classes, err := s.find(ctx, bson.M{"teacher_uid": teacherUID})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Class, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Class
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
