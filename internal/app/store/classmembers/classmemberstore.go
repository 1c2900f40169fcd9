// internal/app/store/classmembers/classmemberstore.go
package classmemberstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages class_members, the join between students and classes.
// It reads profiles, students and classes to enforce that a link never
// points at a missing document.
type Store struct {
	c        *mongo.Collection
	classes  *mongo.Collection
	students *mongo.Collection
	profiles *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:        db.Collection("class_members"),
		classes:  db.Collection("classes"),
		students: db.Collection("students"),
		profiles: db.Collection("profiles"),
	}
}

var (
	// ErrDuplicateMembership is returned when the student is already in the class.
	ErrDuplicateMembership = errors.New("student is already a member of this class")

	ErrNotFound = errors.New("class membership not found")

	errMissingClass   = errors.New("class does not exist")
	errMissingStudent = errors.New("student does not exist")
	errMissingProfile = errors.New("parent profile does not exist")
	errOwnerMismatch  = errors.New("student is not owned by this parent")
)

// Add links a parent's student to a class after checking that the class,
// the student and the parent profile all exist and that the parent owns the
// student. JoinedAt defaults to now.
func (s *Store) Add(ctx context.Context, m models.ClassMember) (models.ClassMember, error) {
	if err := s.classes.FindOne(ctx, bson.M{"_id": m.ClassID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ClassMember{}, errMissingClass
		}
		return models.ClassMember{}, err
	}

	var st models.Student
	if err := s.students.FindOne(ctx, bson.M{"_id": m.StudentID}).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ClassMember{}, errMissingStudent
		}
		return models.ClassMember{}, err
	}
	if st.OwnerUID != m.ParentUID {
		return models.ClassMember{}, errOwnerMismatch
	}

	if err := s.profiles.FindOne(ctx, bson.M{"_id": m.ParentUID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ClassMember{}, errMissingProfile
		}
		return models.ClassMember{}, err
	}

	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.StudentName == "" {
		m.StudentName = st.FullName
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.ClassMember{}, ErrDuplicateMembership
		}
		return models.ClassMember{}, err
	}
	return m, nil
}

// GetByID loads a membership by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.ClassMember, error) {
	var m models.ClassMember
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Remove deletes a membership by ID.
func (s *Store) Remove(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteByStudent removes all memberships for a student.
// Returns the number of documents deleted.
func (s *Store) DeleteByStudent(ctx context.Context, studentID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"student_id": studentID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByParent returns every membership of the parent's students.
func (s *Store) ListByParent(ctx context.Context, parentUID string) ([]models.ClassMember, error) {
	return s.find(ctx, bson.M{"parent_uid": parentUID})
}

// ListByClasses returns the rosters of the given classes.
func (s *Store) ListByClasses(ctx context.Context, classIDs []primitive.ObjectID) ([]models.ClassMember, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"class_id": bson.M{"$in": classIDs}})
}

// ClassIDsByParent returns the distinct classes the parent's students belong to.
func (s *Store) ClassIDsByParent(ctx context.Context, parentUID string) ([]primitive.ObjectID, error) {
	raw, err := s.c.Distinct(ctx, "class_id", bson.M{"parent_uid": parentUID})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountByClass returns the number of students in a class.
func (s *Store) CountByClass(ctx context.Context, classID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"class_id": classID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.ClassMember, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ClassMember
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
