package remotestore

import (
	"context"
	"errors"

	"github.com/oriundostartup/libreta/internal/app/accounts"
	classstore "github.com/oriundostartup/libreta/internal/app/store/classes"
	classmemberstore "github.com/oriundostartup/libreta/internal/app/store/classmembers"
	profilestore "github.com/oriundostartup/libreta/internal/app/store/profiles"
	studentstore "github.com/oriundostartup/libreta/internal/app/store/students"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// joinCodeAttempts bounds how many generated join codes CreateClass tries
// before giving up on collisions.
const joinCodeAttempts = 5

var _ accounts.Directory = (*Store)(nil)

// ClassByJoinCode returns accounts.ErrClassNotFound for unknown codes.
func (s *Store) ClassByJoinCode(ctx context.Context, code string) (*models.Class, error) {
	c, err := s.classes.GetByJoinCode(ctx, code)
	if errors.Is(err, classstore.ErrNotFound) {
		return nil, accounts.ErrClassNotFound
	}
	return c, err
}

func (s *Store) CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	out, err := s.profiles.Create(ctx, p)
	if errors.Is(err, profilestore.ErrExists) {
		return models.Profile{}, accounts.ErrAlreadyExists
	}
	return out, err
}

func (s *Store) DeleteProfile(ctx context.Context, uid string) error {
	_, err := s.profiles.Delete(ctx, uid)
	return err
}

func (s *Store) CreateStudent(ctx context.Context, st models.Student) (models.Student, error) {
	out, err := s.students.Create(ctx, st)
	if errors.Is(err, studentstore.ErrExists) {
		return models.Student{}, accounts.ErrAlreadyExists
	}
	return out, err
}

func (s *Store) DeleteStudent(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.students.Delete(ctx, id)
	return err
}

// CreateClass inserts c, generating a join code when c has none. A generated
// code that collides with another class is replaced and retried.
func (s *Store) CreateClass(ctx context.Context, c models.Class) (models.Class, error) {
	generated := c.JoinCode == ""
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}

	for attempt := 1; ; attempt++ {
		if generated {
			code, err := classstore.NewJoinCode()
			if err != nil {
				return models.Class{}, err
			}
			c.JoinCode = code
		}

		out, err := s.classes.Create(ctx, c)
		if !errors.Is(err, classstore.ErrDuplicateJoinCode) {
			return out, err
		}
		if _, getErr := s.classes.GetByID(ctx, c.ID); getErr == nil {
			return models.Class{}, accounts.ErrAlreadyExists
		}
		if !generated || attempt >= joinCodeAttempts {
			return models.Class{}, err
		}
	}
}

func (s *Store) DeleteClass(ctx context.Context, id primitive.ObjectID) error {
	return s.classes.Delete(ctx, id)
}

// AddClassMember reports accounts.ErrAlreadyExists only when the membership
// with m.ID is the one already stored; a different membership for the same
// student and class is returned as a plain duplicate.
func (s *Store) AddClassMember(ctx context.Context, m models.ClassMember) (models.ClassMember, error) {
	out, err := s.members.Add(ctx, m)
	if errors.Is(err, classmemberstore.ErrDuplicateMembership) && !m.ID.IsZero() {
		if _, getErr := s.members.GetByID(ctx, m.ID); getErr == nil {
			return models.ClassMember{}, accounts.ErrAlreadyExists
		}
	}
	return out, err
}

func (s *Store) RemoveClassMember(ctx context.Context, id primitive.ObjectID) error {
	return s.members.Remove(ctx, id)
}
