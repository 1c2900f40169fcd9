// internal/app/store/remote/remotestore.go
package remotestore

// Terminology: Visibility
//   - taught classes: classes whose teacher_uid is the identity
//   - linked classes: classes one of the identity's students belongs to
//   - visible classes: taught ∪ linked

import (
	"context"
	"errors"

	annotationstore "github.com/oriundostartup/libreta/internal/app/store/annotations"
	attendancestore "github.com/oriundostartup/libreta/internal/app/store/attendance"
	classstore "github.com/oriundostartup/libreta/internal/app/store/classes"
	classmemberstore "github.com/oriundostartup/libreta/internal/app/store/classmembers"
	eventstore "github.com/oriundostartup/libreta/internal/app/store/events"
	justificationstore "github.com/oriundostartup/libreta/internal/app/store/justifications"
	materialrequeststore "github.com/oriundostartup/libreta/internal/app/store/materialrequests"
	messagestore "github.com/oriundostartup/libreta/internal/app/store/messages"
	profilestore "github.com/oriundostartup/libreta/internal/app/store/profiles"
	studentstore "github.com/oriundostartup/libreta/internal/app/store/students"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store reads what an identity can see across the per-category stores.
// Each method computes visibility on its own so one category's failure
// never leaks into another's.
type Store struct {
	profiles       *profilestore.Store
	students       *studentstore.Store
	classes        *classstore.Store
	members        *classmemberstore.Store
	messages       *messagestore.Store
	events         *eventstore.Store
	annotations    *annotationstore.Store
	attendance     *attendancestore.Store
	justifications *justificationstore.Store
	requests       *materialrequeststore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		profiles:       profilestore.New(db),
		students:       studentstore.New(db),
		classes:        classstore.New(db),
		members:        classmemberstore.New(db),
		messages:       messagestore.New(db),
		events:         eventstore.New(db),
		annotations:    annotationstore.New(db),
		attendance:     attendancestore.New(db),
		justifications: justificationstore.New(db),
		requests:       materialrequeststore.New(db),
	}
}

var _ syncengine.Remote = (*Store)(nil)

// Profile returns syncengine.ErrRemoteProfileMissing when uid has none.
func (s *Store) Profile(ctx context.Context, uid string) (*models.Profile, error) {
	p, err := s.profiles.GetByUID(ctx, uid)
	if errors.Is(err, profilestore.ErrNotFound) {
		return nil, syncengine.ErrRemoteProfileMissing
	}
	return p, err
}

func (s *Store) Students(ctx context.Context, uid string) ([]models.Student, error) {
	return s.students.ListByOwner(ctx, uid)
}

func (s *Store) Classes(ctx context.Context, uid string) ([]models.Class, error) {
	ids, err := s.visibleClassIDs(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.classes.ListByIDs(ctx, ids)
}

// ClassMembers returns the identity's own links plus the rosters of the
// classes it teaches.
func (s *Store) ClassMembers(ctx context.Context, uid string) ([]models.ClassMember, error) {
	own, err := s.members.ListByParent(ctx, uid)
	if err != nil {
		return nil, err
	}
	taught, err := s.classes.IDsByTeacher(ctx, uid)
	if err != nil {
		return nil, err
	}
	rosters, err := s.members.ListByClasses(ctx, taught)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]struct{}, len(own)+len(rosters))
	out := make([]models.ClassMember, 0, len(own)+len(rosters))
	for _, list := range [][]models.ClassMember{own, rosters} {
		for _, m := range list {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) Messages(ctx context.Context, uid string) ([]models.Message, error) {
	return s.messages.ListForParticipant(ctx, uid)
}

func (s *Store) Events(ctx context.Context, uid string) ([]models.Event, error) {
	ids, err := s.visibleClassIDs(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.events.ListByClasses(ctx, ids)
}

func (s *Store) MaterialRequests(ctx context.Context, uid string) ([]models.MaterialRequest, error) {
	ids, err := s.visibleClassIDs(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.requests.ListByClasses(ctx, ids)
}

// Annotations covers the identity's own students and every student of the
// classes it teaches.
func (s *Store) Annotations(ctx context.Context, uid string) ([]models.Annotation, error) {
	studentIDs, taught, err := s.recordScope(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.annotations.ListVisible(ctx, studentIDs, taught)
}

func (s *Store) Attendance(ctx context.Context, uid string) ([]models.Attendance, error) {
	studentIDs, taught, err := s.recordScope(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.attendance.ListVisible(ctx, studentIDs, taught)
}

// Justifications covers the ones the identity submitted and those sent to
// the classes it teaches.
func (s *Store) Justifications(ctx context.Context, uid string) ([]models.Justification, error) {
	taught, err := s.classes.IDsByTeacher(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.justifications.ListVisible(ctx, uid, taught)
}

func (s *Store) recordScope(ctx context.Context, uid string) (studentIDs, taught []primitive.ObjectID, err error) {
	studentIDs, err = s.students.IDsByOwner(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	taught, err = s.classes.IDsByTeacher(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	return studentIDs, taught, nil
}

func (s *Store) visibleClassIDs(ctx context.Context, uid string) ([]primitive.ObjectID, error) {
	taught, err := s.classes.IDsByTeacher(ctx, uid)
	if err != nil {
		return nil, err
	}
	linked, err := s.members.ClassIDsByParent(ctx, uid)
	if err != nil {
		return nil, err
	}
	return unionIDs(taught, linked), nil
}

func unionIDs(a, b []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(a)+len(b))
	out := make([]primitive.ObjectID, 0, len(a)+len(b))
	for _, list := range [][]primitive.ObjectID{a, b} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
