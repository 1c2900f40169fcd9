package syncengine_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"github.com/oriundostartup/libreta/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRemote serves fixed documents and can fail individual categories.
type fakeRemote struct {
	mu       sync.Mutex
	profile  *models.Profile
	students []models.Student
	classes  []models.Class
	members  []models.ClassMember
	messages []models.Message
	events   []models.Event
	notes    []models.Annotation
	marks    []models.Attendance
	excuses  []models.Justification
	requests []models.MaterialRequest
	fail     map[syncengine.Category]error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeRemote) err(c syncengine.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[c]
}

func (f *fakeRemote) setFail(c syncengine.Category, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[syncengine.Category]error)
	}
	if err == nil {
		delete(f.fail, c)
		return
	}
	f.fail[c] = err
}

func (f *fakeRemote) Profile(ctx context.Context, uid string) (*models.Profile, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if err := f.err(syncengine.CategoryProfile); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return nil, syncengine.ErrRemoteProfileMissing
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeRemote) Students(ctx context.Context, uid string) ([]models.Student, error) {
	if err := f.err(syncengine.CategoryStudents); err != nil {
		return nil, err
	}
	return f.students, nil
}

func (f *fakeRemote) Classes(ctx context.Context, uid string) ([]models.Class, error) {
	if err := f.err(syncengine.CategoryClasses); err != nil {
		return nil, err
	}
	return f.classes, nil
}

func (f *fakeRemote) ClassMembers(ctx context.Context, uid string) ([]models.ClassMember, error) {
	if err := f.err(syncengine.CategoryClassMembers); err != nil {
		return nil, err
	}
	return f.members, nil
}

func (f *fakeRemote) Messages(ctx context.Context, uid string) ([]models.Message, error) {
	if err := f.err(syncengine.CategoryMessages); err != nil {
		return nil, err
	}
	return f.messages, nil
}

func (f *fakeRemote) Events(ctx context.Context, uid string) ([]models.Event, error) {
	if err := f.err(syncengine.CategoryEvents); err != nil {
		return nil, err
	}
	return f.events, nil
}

func (f *fakeRemote) Annotations(ctx context.Context, uid string) ([]models.Annotation, error) {
	if err := f.err(syncengine.CategoryAnnotations); err != nil {
		return nil, err
	}
	return f.notes, nil
}

func (f *fakeRemote) Attendance(ctx context.Context, uid string) ([]models.Attendance, error) {
	if err := f.err(syncengine.CategoryAttendance); err != nil {
		return nil, err
	}
	return f.marks, nil
}

func (f *fakeRemote) Justifications(ctx context.Context, uid string) ([]models.Justification, error) {
	if err := f.err(syncengine.CategoryJustifications); err != nil {
		return nil, err
	}
	return f.excuses, nil
}

func (f *fakeRemote) MaterialRequests(ctx context.Context, uid string) ([]models.MaterialRequest, error) {
	if err := f.err(syncengine.CategoryMaterialRequests); err != nil {
		return nil, err
	}
	return f.requests, nil
}

// parentRemote returns a parent with one student enrolled in one class and
// one record in every category.
func parentRemote() *fakeRemote {
	now := time.Now().UTC().Truncate(time.Millisecond)
	uid := "parent-1"
	class := models.Class{ID: primitive.NewObjectID(), Name: "3°A", Grade: "3", JoinCode: "ABC123", TeacherUID: "teacher-1", CreatedAt: now}
	student := models.Student{ID: primitive.NewObjectID(), OwnerUID: uid, FullName: "Ana Pérez", CreatedAt: now}

	return &fakeRemote{
		profile:  &models.Profile{UID: uid, Email: "p@example.com", FullName: "Paula Pérez", IsParent: true, CreatedAt: now, UpdatedAt: now},
		students: []models.Student{student},
		classes:  []models.Class{class},
		members: []models.ClassMember{{
			ID: primitive.NewObjectID(), ClassID: class.ID, StudentID: student.ID,
			ParentUID: uid, StudentName: student.FullName, JoinedAt: now,
		}},
		messages: []models.Message{{ID: primitive.NewObjectID(), SenderUID: "teacher-1", RecipientUID: uid, Subject: "Hola", Body: "Bienvenidos", SentAt: now}},
		events:   []models.Event{{ID: primitive.NewObjectID(), ClassID: class.ID, Title: "Reunión", StartsAt: now, CreatedBy: "teacher-1"}},
		notes:    []models.Annotation{{ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID, TeacherUID: "teacher-1", Kind: models.AnnotationPositive, Text: "Participa", CreatedAt: now}},
		marks:    []models.Attendance{{ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID, Date: now, Status: models.AttendancePresent, RecordedBy: "teacher-1"}},
		excuses:  []models.Justification{{ID: primitive.NewObjectID(), StudentID: student.ID, ClassID: class.ID, ParentUID: uid, Date: now, Reason: "Médico", Status: models.JustificationPending, CreatedAt: now}},
		requests: []models.MaterialRequest{{ID: primitive.NewObjectID(), ClassID: class.ID, TeacherUID: "teacher-1", Title: "Cartulina", CreatedAt: now}},
	}
}

func newEngine(t *testing.T, remote syncengine.Remote) (*syncengine.Engine, *mirror.Store) {
	t.Helper()
	m := testutil.OpenMirror(t)
	return syncengine.New(remote, m, zap.NewNop(), syncengine.Config{Concurrency: 3}), m
}

func TestSyncAll_MirrorsEveryCategory(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	if _, err := m.GetProfile(ctx, "parent-1"); err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	counts, err := m.Counts(ctx, "parent-1")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	for _, table := range mirror.Tables {
		if counts[table] != 1 {
			t.Errorf("%s: got %d rows, want 1", table, counts[table])
		}
	}
}

func TestSyncAll_RepeatedSyncLeavesMirrorUnchanged(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("first SyncAll failed: %v", err)
	}
	first := testutil.MirrorSnapshot(t, m, "parent-1")

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("second SyncAll failed: %v", err)
	}
	second := testutil.MirrorSnapshot(t, m, "parent-1")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("mirror changed across identical syncs:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestSyncAll_PrunesRowsRemovedRemotely(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	remote.messages = nil
	remote.members = nil
	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	counts, err := m.Counts(ctx, "parent-1")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["messages"] != 0 {
		t.Errorf("messages: got %d, want 0", counts["messages"])
	}
	if counts["class_members"] != 0 {
		t.Errorf("class_members: got %d, want 0", counts["class_members"])
	}
	if counts["classes"] != 1 {
		t.Errorf("classes: got %d, want 1", counts["classes"])
	}
}

func TestSyncAll_OneCategoryFailing(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	// Changes on the remote side; messages now fail to fetch.
	remote.mu.Lock()
	remote.events = nil
	remote.profile.FullName = "Paula Pérez Soto"
	remote.mu.Unlock()
	boom := errors.New("connection reset")
	remote.setFail(syncengine.CategoryMessages, boom)

	err := eng.SyncAll(ctx, "parent-1")
	pf, ok := syncengine.AsPartialFailure(err)
	if !ok {
		t.Fatalf("expected *PartialFailure, got %v", err)
	}
	if !pf.Failed(syncengine.CategoryMessages) {
		t.Errorf("expected messages in failures, got %v", pf.Names())
	}
	if len(pf.Failures) != 1 {
		t.Errorf("expected exactly one failed category, got %v", pf.Names())
	}
	if !errors.Is(err, boom) {
		t.Error("expected errors.Is to reach the category cause")
	}

	counts, cerr := m.Counts(ctx, "parent-1")
	if cerr != nil {
		t.Fatalf("Counts failed: %v", cerr)
	}
	if counts["messages"] != 1 {
		t.Errorf("failed category should keep its previous rows, got %d messages", counts["messages"])
	}
	if counts["events"] != 0 {
		t.Errorf("other categories should still sync, got %d events", counts["events"])
	}
	prof, perr := m.GetProfile(ctx, "parent-1")
	if perr != nil {
		t.Fatalf("GetProfile failed: %v", perr)
	}
	if prof.FullName != "Paula Pérez Soto" {
		t.Errorf("profile should still sync, got FullName %q", prof.FullName)
	}
}

func TestSyncAll_ClassFailureStillSyncsMembersOfMirroredClasses(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	remote.setFail(syncengine.CategoryClasses, errors.New("timeout"))
	err := eng.SyncAll(ctx, "parent-1")
	pf, ok := syncengine.AsPartialFailure(err)
	if !ok {
		t.Fatalf("expected *PartialFailure, got %v", err)
	}
	// No class was ever mirrored, so the link cannot be stored either.
	want := []string{"class_members", "classes"}
	if !reflect.DeepEqual(pf.Names(), want) {
		t.Errorf("failed categories: got %v, want %v", pf.Names(), want)
	}

	remote.setFail(syncengine.CategoryClasses, nil)
	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll after recovery failed: %v", err)
	}
	counts, err := m.Counts(ctx, "parent-1")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["class_members"] != 1 {
		t.Errorf("expected 1 member after recovery, got %d", counts["class_members"])
	}
}

func TestSyncAll_RemoteProfileMissingClearsMirror(t *testing.T) {
	remote := parentRemote()
	eng, m := newEngine(t, remote)
	ctx := context.Background()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	remote.mu.Lock()
	remote.profile = nil
	remote.mu.Unlock()

	if err := eng.SyncAll(ctx, "parent-1"); err != nil {
		t.Fatalf("SyncAll with missing profile should succeed, got %v", err)
	}
	if _, err := m.GetProfile(ctx, "parent-1"); err != mirror.ErrNotFound {
		t.Errorf("expected local profile removed, got %v", err)
	}
	counts, err := m.Counts(ctx, "parent-1")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("%s: expected cascade to remove rows, got %d", table, n)
		}
	}
}

func TestSyncAll_SerializesPerIdentity(t *testing.T) {
	remote := parentRemote()
	eng, _ := newEngine(t, remote)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- eng.SyncAll(ctx, "parent-1")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("SyncAll failed: %v", err)
		}
	}
	if got := remote.maxInFlight.Load(); got != 1 {
		t.Errorf("expected syncs of one identity to run one at a time, saw %d overlapping", got)
	}
}

func TestSyncAll_EmptyUID(t *testing.T) {
	eng, _ := newEngine(t, parentRemote())
	if err := eng.SyncAll(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty uid")
	}
}
