package classmemberstore_test

import (
	"errors"
	"testing"

	classmemberstore "github.com/oriundostartup/libreta/internal/app/store/classmembers"
	"github.com/oriundostartup/libreta/internal/app/system/indexes"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"github.com/oriundostartup/libreta/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestStore_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := classmemberstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	fixtures.CreateTeacher(ctx, "teacher", "Profesora Rojas")
	fixtures.CreateParent(ctx, "parent", "María Soto")
	class := fixtures.CreateClass(ctx, "3ro B", "XYZ999", "teacher")
	student := fixtures.CreateStudent(ctx, "parent", "Ana Soto")

	m, err := store.Add(ctx, models.ClassMember{ClassID: class.ID, StudentID: student.ID, ParentUID: "parent"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if m.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if m.StudentName != "Ana Soto" {
		t.Errorf("StudentName: got %q, want the student's name", m.StudentName)
	}
	if m.JoinedAt.IsZero() {
		t.Error("expected JoinedAt to be set")
	}

	_, err = store.Add(ctx, models.ClassMember{ClassID: class.ID, StudentID: student.ID, ParentUID: "parent"})
	if !errors.Is(err, classmemberstore.ErrDuplicateMembership) {
		t.Errorf("second Add: got %v, want ErrDuplicateMembership", err)
	}

	n, err := store.CountByClass(ctx, class.ID)
	if err != nil || n != 1 {
		t.Errorf("CountByClass: got %d, %v; want 1", n, err)
	}
}

func TestStore_AddRequiresReferencedDocuments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := classmemberstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fixtures.CreateParent(ctx, "parent", "María Soto")
	class := fixtures.CreateClass(ctx, "3ro B", "XYZ999", "teacher")
	student := fixtures.CreateStudent(ctx, "parent", "Ana Soto")
	orphan := fixtures.CreateStudent(ctx, "no-profile", "Sin Apoderado")

	tests := []struct {
		name string
		m    models.ClassMember
	}{
		{"missing class", models.ClassMember{ClassID: primitive.NewObjectID(), StudentID: student.ID, ParentUID: "parent"}},
		{"missing student", models.ClassMember{ClassID: class.ID, StudentID: primitive.NewObjectID(), ParentUID: "parent"}},
		{"student of another parent", models.ClassMember{ClassID: class.ID, StudentID: student.ID, ParentUID: "someone-else"}},
		{"missing parent profile", models.ClassMember{ClassID: class.ID, StudentID: orphan.ID, ParentUID: "no-profile"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Add(ctx, tt.m); err == nil {
				t.Error("expected Add to fail")
			}
		})
	}

	members, err := store.ListByClasses(ctx, []primitive.ObjectID{class.ID})
	if err != nil {
		t.Fatalf("ListByClasses failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("got %d memberships, want none", len(members))
	}
}

func TestStore_ListAndRemove(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := classmemberstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateClass(ctx, "3ro B", "CODE01", "teacher")
	b := fixtures.CreateClass(ctx, "4to A", "CODE02", "teacher")
	ana := fixtures.CreateStudent(ctx, "parent", "Ana Soto")
	luis := fixtures.CreateStudent(ctx, "parent", "Luis Soto")
	m1 := fixtures.Enroll(ctx, a, ana)
	fixtures.Enroll(ctx, b, luis)
	fixtures.Enroll(ctx, b, ana)

	byParent, err := store.ListByParent(ctx, "parent")
	if err != nil {
		t.Fatalf("ListByParent failed: %v", err)
	}
	if len(byParent) != 3 {
		t.Errorf("ListByParent: got %d, want 3", len(byParent))
	}

	classIDs, err := store.ClassIDsByParent(ctx, "parent")
	if err != nil {
		t.Fatalf("ClassIDsByParent failed: %v", err)
	}
	if len(classIDs) != 2 {
		t.Errorf("ClassIDsByParent: got %d, want 2 distinct classes", len(classIDs))
	}

	if err := store.Remove(ctx, m1.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := store.GetByID(ctx, m1.ID); !errors.Is(err, classmemberstore.ErrNotFound) {
		t.Errorf("GetByID after Remove: got %v, want ErrNotFound", err)
	}

	n, err := store.DeleteByStudent(ctx, ana.ID)
	if err != nil || n != 1 {
		t.Errorf("DeleteByStudent: got %d, %v; want 1", n, err)
	}
}
