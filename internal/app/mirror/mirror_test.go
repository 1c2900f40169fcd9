package mirror_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"github.com/oriundostartup/libreta/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func openTestMirror(t *testing.T) *mirror.Store {
	t.Helper()
	s, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProfile(uid string) models.Profile {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Profile{
		UID:       uid,
		Email:     uid + "@example.com",
		FullName:  "Profile " + uid,
		IsParent:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpsertProfile_InsertThenOverwrite(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()

	p := testProfile("u1")
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	p.FullName = "Renamed"
	p.IsTeacher = true
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("second UpsertProfile failed: %v", err)
	}

	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.FullName != "Renamed" {
		t.Errorf("FullName: got %q, want %q", got.FullName, "Renamed")
	}
	if !got.IsTeacher || !got.IsParent {
		t.Errorf("role flags: got teacher=%v parent=%v, want both true", got.IsTeacher, got.IsParent)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, p.CreatedAt)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := openTestMirror(t)
	_, err := s.GetProfile(context.Background(), "missing")
	if err != mirror.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceStudents_KeepsLocalIDAndPrunes(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()
	if err := s.UpsertProfile(ctx, testProfile("parent")); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	a := models.Student{ID: primitive.NewObjectID(), OwnerUID: "parent", FullName: "Ana", CreatedAt: time.Now()}
	b := models.Student{ID: primitive.NewObjectID(), OwnerUID: "parent", FullName: "Beto", CreatedAt: time.Now()}
	if err := s.ReplaceStudents(ctx, "parent", []models.Student{a, b}); err != nil {
		t.Fatalf("ReplaceStudents failed: %v", err)
	}
	before, err := s.StudentByRemoteID(ctx, "parent", a.ID.Hex())
	if err != nil {
		t.Fatalf("StudentByRemoteID failed: %v", err)
	}

	a.FullName = "Ana María"
	if err := s.ReplaceStudents(ctx, "parent", []models.Student{a}); err != nil {
		t.Fatalf("second ReplaceStudents failed: %v", err)
	}

	after, err := s.StudentByRemoteID(ctx, "parent", a.ID.Hex())
	if err != nil {
		t.Fatalf("StudentByRemoteID failed: %v", err)
	}
	if after.ID != before.ID {
		t.Errorf("local id changed: got %d, want %d", after.ID, before.ID)
	}
	if after.FullName != "Ana María" {
		t.Errorf("FullName: got %q, want %q", after.FullName, "Ana María")
	}
	if _, err := s.StudentByRemoteID(ctx, "parent", b.ID.Hex()); err != mirror.ErrNotFound {
		t.Errorf("expected pruned student to be gone, got %v", err)
	}
}

func TestReplaceStudents_RequiresProfile(t *testing.T) {
	s := openTestMirror(t)
	st := models.Student{ID: primitive.NewObjectID(), OwnerUID: "ghost", FullName: "Nobody"}
	if err := s.ReplaceStudents(context.Background(), "ghost", []models.Student{st}); err == nil {
		t.Fatal("expected foreign key failure for a missing profile")
	}
}

func TestReplaceClassMembers_RequiresMirroredClass(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()
	if err := s.UpsertProfile(ctx, testProfile("parent")); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	m := models.ClassMember{
		ID:        primitive.NewObjectID(),
		ClassID:   primitive.NewObjectID(),
		StudentID: primitive.NewObjectID(),
		ParentUID: "parent",
	}
	if err := s.ReplaceClassMembers(ctx, "parent", []models.ClassMember{m}); err == nil {
		t.Fatal("expected error when the class is not mirrored")
	}
}

func TestReplaceClassMembers_LinksLocalClass(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()
	if err := s.UpsertProfile(ctx, testProfile("parent")); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	class := models.Class{ID: primitive.NewObjectID(), Name: "4°B", JoinCode: "XYZ999", TeacherUID: "teacher"}
	if err := s.ReplaceClasses(ctx, "parent", []models.Class{class}); err != nil {
		t.Fatalf("ReplaceClasses failed: %v", err)
	}
	studentID := primitive.NewObjectID()
	m := models.ClassMember{
		ID:          primitive.NewObjectID(),
		ClassID:     class.ID,
		StudentID:   studentID,
		ParentUID:   "parent",
		StudentName: "Ana",
		JoinedAt:    time.Now(),
	}
	if err := s.ReplaceClassMembers(ctx, "parent", []models.ClassMember{m}); err != nil {
		t.Fatalf("ReplaceClassMembers failed: %v", err)
	}

	got, err := s.ClassMemberFor(ctx, "parent", class.ID.Hex(), studentID.Hex())
	if err != nil {
		t.Fatalf("ClassMemberFor failed: %v", err)
	}
	local, err := s.ClassByRemoteID(ctx, "parent", class.ID.Hex())
	if err != nil {
		t.Fatalf("ClassByRemoteID failed: %v", err)
	}
	if got.ClassID != local.ID {
		t.Errorf("ClassID: got %d, want local class id %d", got.ClassID, local.ID)
	}

	// Dropping the class cascades to its members.
	if err := s.ReplaceClasses(ctx, "parent", nil); err != nil {
		t.Fatalf("ReplaceClasses(nil) failed: %v", err)
	}
	counts, err := s.Counts(ctx, "parent")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["class_members"] != 0 {
		t.Errorf("expected members to cascade away, got %d", counts["class_members"])
	}
}

func TestDeleteProfile_Cascades(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()
	if err := s.UpsertProfile(ctx, testProfile("parent")); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	st := models.Student{ID: primitive.NewObjectID(), OwnerUID: "parent", FullName: "Ana"}
	if err := s.ReplaceStudents(ctx, "parent", []models.Student{st}); err != nil {
		t.Fatalf("ReplaceStudents failed: %v", err)
	}
	msg := models.Message{ID: primitive.NewObjectID(), SenderUID: "teacher", RecipientUID: "parent", Body: "hola"}
	if err := s.ReplaceMessages(ctx, "parent", []models.Message{msg}); err != nil {
		t.Fatalf("ReplaceMessages failed: %v", err)
	}

	if err := s.DeleteProfile(ctx, "parent"); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}

	counts, err := s.Counts(ctx, "parent")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("%s: expected 0 rows after cascade, got %d", table, n)
		}
	}
}

func TestSnapshot_StableAcrossIdenticalReplace(t *testing.T) {
	s := openTestMirror(t)
	ctx := context.Background()
	p := testProfile("teacher")
	p.IsTeacher = true
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	class := models.Class{ID: primitive.NewObjectID(), Name: "1°A", JoinCode: "ABC123", TeacherUID: "teacher"}
	events := []models.Event{{ID: primitive.NewObjectID(), ClassID: class.ID, Title: "Reunión", StartsAt: time.Now()}}

	apply := func() map[string][]map[string]any {
		t.Helper()
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("UpsertProfile failed: %v", err)
		}
		if err := s.ReplaceClasses(ctx, "teacher", []models.Class{class}); err != nil {
			t.Fatalf("ReplaceClasses failed: %v", err)
		}
		if err := s.ReplaceEvents(ctx, "teacher", events); err != nil {
			t.Fatalf("ReplaceEvents failed: %v", err)
		}
		return testutil.MirrorSnapshot(t, s, "teacher")
	}

	first := apply()
	second := apply()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshot changed across identical replace:\nfirst:  %v\nsecond: %v", first, second)
	}
}
