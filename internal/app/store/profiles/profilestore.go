// internal/app/store/profiles/profilestore.go
package profilestore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound = errors.New("profile not found")

	// ErrExists is returned when a profile already exists for the UID.
	ErrExists = errors.New("profile already exists")

	errNoUID  = errors.New("profile must have a uid")
	errNoRole = errors.New("profile must be a teacher, a parent, or both")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("profiles")}
}

// Create inserts a profile after normalizing fields. The UID is kept as given.
func (s *Store) Create(ctx context.Context, p models.Profile) (models.Profile, error) {
	if p.UID == "" {
		return models.Profile{}, errNoUID
	}
	if !p.IsTeacher && !p.IsParent {
		return models.Profile{}, errNoRole
	}
	p.Email = normalize.Email(p.Email)
	p.FullName = normalize.Name(p.FullName)
	p.Phone = normalize.Phone(p.Phone)
	p.Address = normalize.Text(p.Address)

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Profile{}, ErrExists
		}
		return models.Profile{}, err
	}
	return p, nil
}

// GetByUID loads a profile by UID.
func (s *Store) GetByUID(ctx context.Context, uid string) (*models.Profile, error) {
	var p models.Profile
	if err := s.c.FindOne(ctx, bson.M{"_id": uid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ContactUpdate holds the amendable profile fields.
type ContactUpdate struct {
	FullName string
	Phone    string
	Address  string
}

// UpdateContact amends name, phone and address.
func (s *Store) UpdateContact(ctx context.Context, uid string, upd ContactUpdate) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"full_name":  normalize.Name(upd.FullName),
		"phone":      normalize.Phone(upd.Phone),
		"address":    normalize.Text(upd.Address),
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRole turns on the teacher or parent flag, e.g. when a teacher also
// registers a child.
func (s *Store) AddRole(ctx context.Context, uid string, teacher, parent bool) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if teacher {
		set["is_teacher"] = true
	}
	if parent {
		set["is_parent"] = true
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the profile. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, uid string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": uid})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
