package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating remote test documents.
// Documents are inserted directly, bypassing the stores' own checks.
type Fixtures struct {
	db  *mongo.Database
	t   *testing.T
	now time.Time
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t, now: time.Now().UTC().Truncate(time.Millisecond)}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to create test %s: %v", coll, err)
	}
}

// CreateTeacher creates a teacher profile.
func (f *Fixtures) CreateTeacher(ctx context.Context, uid, fullName string) models.Profile {
	f.t.Helper()
	p := models.Profile{
		UID: uid, Email: uid + "@test.com", FullName: fullName,
		IsTeacher: true, CreatedAt: f.now, UpdatedAt: f.now,
	}
	f.insert(ctx, "profiles", p)
	return p
}

// CreateParent creates a parent profile.
func (f *Fixtures) CreateParent(ctx context.Context, uid, fullName string) models.Profile {
	f.t.Helper()
	p := models.Profile{
		UID: uid, Email: uid + "@test.com", FullName: fullName,
		IsParent: true, CreatedAt: f.now, UpdatedAt: f.now,
	}
	f.insert(ctx, "profiles", p)
	return p
}

// CreateClass creates a class taught by teacherUID.
func (f *Fixtures) CreateClass(ctx context.Context, name, joinCode, teacherUID string) models.Class {
	f.t.Helper()
	c := models.Class{
		ID: primitive.NewObjectID(), Name: name, JoinCode: joinCode,
		TeacherUID: teacherUID, CreatedAt: f.now,
	}
	f.insert(ctx, "classes", c)
	return c
}

// CreateStudent creates a student owned by parentUID.
func (f *Fixtures) CreateStudent(ctx context.Context, parentUID, fullName string) models.Student {
	f.t.Helper()
	s := models.Student{
		ID: primitive.NewObjectID(), OwnerUID: parentUID, FullName: fullName, CreatedAt: f.now,
	}
	f.insert(ctx, "students", s)
	return s
}

// Enroll adds student to class.
func (f *Fixtures) Enroll(ctx context.Context, class models.Class, student models.Student) models.ClassMember {
	f.t.Helper()
	m := models.ClassMember{
		ID: primitive.NewObjectID(), ClassID: class.ID, StudentID: student.ID,
		ParentUID: student.OwnerUID, StudentName: student.FullName, JoinedAt: f.now,
	}
	f.insert(ctx, "class_members", m)
	return m
}

// CreateMessage creates a message between two identities.
func (f *Fixtures) CreateMessage(ctx context.Context, senderUID, recipientUID, subject string) models.Message {
	f.t.Helper()
	m := models.Message{
		ID: primitive.NewObjectID(), SenderUID: senderUID, RecipientUID: recipientUID,
		Subject: subject, Body: subject, SentAt: f.now,
	}
	f.insert(ctx, "messages", m)
	return m
}

// CreateEvent creates a class event created by the class's teacher.
func (f *Fixtures) CreateEvent(ctx context.Context, class models.Class, title string) models.Event {
	f.t.Helper()
	e := models.Event{
		ID: primitive.NewObjectID(), ClassID: class.ID, Title: title,
		StartsAt: f.now.Add(24 * time.Hour), CreatedBy: class.TeacherUID,
	}
	f.insert(ctx, "events", e)
	return e
}

// CreateMaterialRequest creates a material request for class.
func (f *Fixtures) CreateMaterialRequest(ctx context.Context, class models.Class, title string) models.MaterialRequest {
	f.t.Helper()
	r := models.MaterialRequest{
		ID: primitive.NewObjectID(), ClassID: class.ID, TeacherUID: class.TeacherUID,
		Title: title, DueDate: f.now.Add(7 * 24 * time.Hour), CreatedAt: f.now,
	}
	f.insert(ctx, "material_requests", r)
	return r
}

// CreateAnnotation records a positive annotation on student in class.
func (f *Fixtures) CreateAnnotation(ctx context.Context, class models.Class, student models.Student, text string) models.Annotation {
	f.t.Helper()
	a := models.Annotation{
		ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID,
		TeacherUID: class.TeacherUID, Kind: models.AnnotationPositive, Text: text, CreatedAt: f.now,
	}
	f.insert(ctx, "annotations", a)
	return a
}

// CreateAbsence records student as absent from class on day.
func (f *Fixtures) CreateAbsence(ctx context.Context, class models.Class, student models.Student, day time.Time) models.Attendance {
	f.t.Helper()
	a := models.Attendance{
		ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID,
		Date: day, Status: models.AttendanceAbsent, RecordedBy: class.TeacherUID,
	}
	f.insert(ctx, "attendance", a)
	return a
}

// CreateJustification records a pending justification from the student's parent.
func (f *Fixtures) CreateJustification(ctx context.Context, class models.Class, student models.Student, day time.Time, reason string) models.Justification {
	f.t.Helper()
	j := models.Justification{
		ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID,
		ParentUID: student.OwnerUID, Date: day, Reason: reason,
		Status: models.JustificationPending, CreatedAt: f.now,
	}
	f.insert(ctx, "justifications", j)
	return j
}
