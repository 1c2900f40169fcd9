package accounts_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/oriundostartup/libreta/internal/app/accounts"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/testutil"
)

func TestRegister_ParentWithStudent(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	class := h.world.addClass("3ro Básico B", "XYZ999", "teacher-1")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := h.flow.Register(ctx, parentRegistration("maria@example.com", "XYZ999"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if out.Role != accounts.RoleParent {
		t.Errorf("Role = %q, want %q", out.Role, accounts.RoleParent)
	}
	if out.Profile == nil || out.Profile.UID != out.UID || !out.Profile.IsParent {
		t.Fatalf("Profile = %+v, want a parent profile for %s", out.Profile, out.UID)
	}
	if out.Student == nil || out.Student.FullName != "Ana Soto" {
		t.Fatalf("Student = %+v, want Ana Soto", out.Student)
	}
	if out.Class == nil || out.Class.RemoteID != class.ID.Hex() {
		t.Fatalf("Class = %+v, want remote id %s", out.Class, class.ID.Hex())
	}
	if out.Member == nil || out.Member.StudentRemoteID != out.Student.RemoteID || out.Member.ClassID != out.Class.ID {
		t.Fatalf("Member = %+v, want a link between the student and the class", out.Member)
	}

	counts, err := h.mirror.Counts(ctx, out.UID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	for table, want := range map[string]int{"students": 1, "classes": 1, "class_members": 1} {
		if counts[table] != want {
			t.Errorf("mirror %s = %d, want %d", table, counts[table], want)
		}
	}
}

func TestRegister_TeacherWithFirstClass(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := teacherRegistration("profe@example.com")
	reg.Intent = accounts.TeacherIntent{FirstClass: &accounts.ClassForm{Name: "4to Básico A", School: "Escuela D-123"}}

	out, err := h.flow.Register(ctx, reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !out.Profile.IsTeacher {
		t.Error("expected a teacher profile")
	}
	if out.Class == nil || out.Class.TeacherUID != out.UID || out.Class.JoinCode == "" {
		t.Fatalf("Class = %+v, want a class taught by %s with a join code", out.Class, out.UID)
	}
	if out.Student != nil || out.Member != nil {
		t.Errorf("teacher registration returned student %+v member %+v", out.Student, out.Member)
	}
}

func TestRegister_UnknownJoinCodeCreatesNoIdentity(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.flow.Register(ctx, parentRegistration("maria@example.com", "ABC123"))
	if !errors.Is(err, accounterr.ReferenceNotFound) {
		t.Fatalf("err = %v, want ReferenceNotFound", err)
	}
	if h.world.idpCalls != 0 {
		t.Errorf("identity provider called %d times, want 0", h.world.idpCalls)
	}
}

func TestRegister_DuplicateEmailWritesNoProfile(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := h.flow.Register(ctx, teacherRegistration("t@x.com")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	before, _, _ := h.world.count()

	_, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if !errors.Is(err, accounterr.DuplicateIdentity) {
		t.Fatalf("err = %v, want DuplicateIdentity", err)
	}
	if after, _, _ := h.world.count(); after != before {
		t.Errorf("profiles = %d after duplicate, want %d", after, before)
	}
}

func TestRegister_JoinCodeLookupUnavailable(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.addClass("3ro Básico B", "XYZ999", "teacher-1")
	h.world.fail["class_by_join_code"] = errors.New("connection reset by peer")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.flow.Register(ctx, parentRegistration("maria@example.com", "XYZ999"))
	if !errors.Is(err, accounterr.RemoteRead) {
		t.Fatalf("err = %v, want RemoteRead", err)
	}
	if got := accounterr.KindOf(err).Remedy(); got != accounterr.RemedyRetryLater {
		t.Errorf("Remedy = %q, want %q", got, accounterr.RemedyRetryLater)
	}
	if h.world.idpCalls != 0 {
		t.Errorf("identity provider called %d times, want 0", h.world.idpCalls)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := teacherRegistration("t@x.com")
	reg.Account.Password = "abc"
	_, err := h.flow.Register(ctx, reg)
	if !errors.Is(err, accounterr.WeakCredential) {
		t.Fatalf("err = %v, want WeakCredential", err)
	}
	if got := accounterr.KindOf(err).Remedy(); got != accounterr.RemedyFixInput {
		t.Errorf("Remedy = %q, want %q", got, accounterr.RemedyFixInput)
	}
}

func TestRegister_PasswordTooLong(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := teacherRegistration("t@x.com")
	reg.Account.Password = strings.Repeat("a", 80)
	_, err := h.flow.Register(ctx, reg)
	if !errors.Is(err, accounterr.WeakCredential) {
		t.Fatalf("err = %v, want WeakCredential", err)
	}
	if profiles, _, _ := h.world.count(); profiles != 0 {
		t.Errorf("profiles = %d, want 0", profiles)
	}
}

func TestRegister_InvalidFormMakesNoCalls(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*accounts.Registration)
	}{
		{"missing email", func(r *accounts.Registration) { r.Account.Email = " " }},
		{"missing password", func(r *accounts.Registration) { r.Account.Password = "" }},
		{"missing name", func(r *accounts.Registration) { r.Account.FullName = "" }},
		{"missing role", func(r *accounts.Registration) { r.Intent = nil }},
		{"student without code", func(r *accounts.Registration) {
			r.Intent = accounts.ParentIntent{Student: &accounts.StudentForm{FullName: "Ana"}}
		}},
		{"student without name", func(r *accounts.Registration) {
			r.Intent = accounts.ParentIntent{Student: &accounts.StudentForm{}, JoinCode: "XYZ999"}
		}},
		{"class without name", func(r *accounts.Registration) {
			r.Intent = accounts.TeacherIntent{FirstClass: &accounts.ClassForm{}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, accounts.Config{})
			ctx, cancel := testutil.TestContext()
			defer cancel()

			reg := teacherRegistration("t@x.com")
			tt.mod(&reg)
			_, err := h.flow.Register(ctx, reg)
			if !errors.Is(err, accounterr.InvalidInput) {
				t.Fatalf("err = %v, want InvalidInput", err)
			}
			if h.world.idpCalls != 0 {
				t.Errorf("identity provider called %d times, want 0", h.world.idpCalls)
			}
		})
	}
}

func TestRegister_ProfileWriteFailureRemovesIdentity(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	cause := errors.New("write rejected")
	h.world.fail["profile"] = cause

	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if !errors.Is(err, accounterr.RemoteWrite) {
		t.Fatalf("err = %v, want RemoteWrite", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want the original cause wrapped", err)
	}
	if h.world.hasAccount("uid-1") {
		t.Error("identity uid-1 still exists after compensation")
	}
}

func TestRegister_LaterFailuresUndoEverything(t *testing.T) {
	for _, op := range []string{"student", "member"} {
		t.Run(op, func(t *testing.T) {
			h := newHarness(t, accounts.Config{})
			h.world.addClass("3ro B", "XYZ999", "teacher-1")
			h.world.fail[op] = errors.New("write rejected")

			ctx, cancel := testutil.TestContext()
			defer cancel()

			_, err := h.flow.Register(ctx, parentRegistration("maria@example.com", "XYZ999"))
			if !errors.Is(err, accounterr.RemoteWrite) {
				t.Fatalf("err = %v, want RemoteWrite", err)
			}
			if h.world.hasAccount("uid-1") {
				t.Error("identity still exists")
			}
			profiles, students, members := h.world.count()
			if profiles+students+members != 0 {
				t.Errorf("left behind %d profiles, %d students, %d members", profiles, students, members)
			}
			if h.world.orphanLinks != 0 {
				t.Errorf("%d class members written without their references", h.world.orphanLinks)
			}
		})
	}
}

func TestRegister_CompensationFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	cause := errors.New("profile write rejected")
	h.world.fail["profile"] = cause
	h.world.fail["delete_account"] = errors.New("provider unavailable")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	run := h.flow.Start(ctx, teacherRegistration("t@x.com"))
	var events []accounts.StepEvent
	for ev := range run.Events() {
		events = append(events, ev)
	}
	_, err := run.Wait()

	if !errors.Is(err, cause) || accounterr.KindOf(err) != accounterr.KindRemoteWrite {
		t.Fatalf("err = %v, want RemoteWrite wrapping the profile failure", err)
	}

	var sawUndoFailure bool
	for _, ev := range events {
		if ev.Step == accounts.StepCreateAccount && ev.Status == accounts.StepCompensationFailed {
			sawUndoFailure = true
		}
	}
	if !sawUndoFailure {
		t.Errorf("events = %+v, want a compensation_failed event for create_account", events)
	}

	audited := h.logs.FilterMessage("audit event").FilterFieldKey("detail_step").All()
	if len(audited) != 1 {
		t.Errorf("audited %d compensation failures, want 1", len(audited))
	}
}

func TestRegister_LinkFailureIsTolerated(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.fail["link_credential"] = federated.ErrInvalidCredential

	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := teacherRegistration("t@x.com")
	reg.External = &federated.Credential{Provider: federated.ProviderGoogle, IDToken: "token"}

	run := h.flow.Start(ctx, reg)
	var tolerated bool
	for ev := range run.Events() {
		if ev.Step == accounts.StepLinkCredential && ev.Status == accounts.StepTolerated {
			tolerated = true
		}
	}
	out, err := run.Wait()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if out.Profile == nil {
		t.Fatal("expected a mirrored profile")
	}
	if !tolerated {
		t.Error("expected a tolerated link_credential event")
	}
}

func TestRegister_LinksExternalCredential(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	cred := federated.Credential{Provider: federated.ProviderGoogle, IDToken: "token"}
	reg := teacherRegistration("t@x.com")
	reg.External = &cred

	out, err := h.flow.Register(ctx, reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	sess, err := h.resolver.SignInWithCredential(ctx, cred)
	if err != nil {
		t.Fatalf("SignInWithCredential: %v", err)
	}
	if sess.UID != out.UID {
		t.Errorf("signed in as %s, want %s", sess.UID, out.UID)
	}
}

func TestRegister_SyncFailureKeepsAccount(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.fetchFail[syncengine.CategoryMessages] = errors.New("messages unavailable")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if !errors.Is(err, accounterr.SyncPartialFailure) {
		t.Fatalf("err = %v, want SyncPartialFailure", err)
	}
	var e *accounterr.Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %T, want *accounterr.Error", err)
	}
	if !reflect.DeepEqual(e.Missing, []string{"messages"}) {
		t.Errorf("Missing = %v, want [messages]", e.Missing)
	}
	if got := accounterr.KindOf(err).Remedy(); got != accounterr.RemedyRetrySync {
		t.Errorf("Remedy = %q, want %q", got, accounterr.RemedyRetrySync)
	}
	if !h.world.hasAccount("uid-1") || !h.world.hasProfile("uid-1") {
		t.Error("a sync failure must not undo the remote writes")
	}
}

func TestRegister_RetriesTransientWrites(t *testing.T) {
	h := newHarness(t, accounts.Config{Attempts: 3, Backoff: time.Millisecond})
	h.world.fail["profile"] = context.DeadlineExceeded
	h.world.failFirst["profile"] = 2

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := h.flow.Register(ctx, teacherRegistration("t@x.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := h.world.calls["profile"]; got != 3 {
		t.Errorf("profile writes = %d, want 3", got)
	}
}

func TestRegister_RetryAfterLandedWrite(t *testing.T) {
	h := newHarness(t, accounts.Config{Attempts: 2, Backoff: time.Millisecond})
	h.world.landThenFail["profile"] = context.DeadlineExceeded

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if out.Profile == nil || out.Profile.UID != out.UID {
		t.Errorf("Profile = %+v, want the profile the first attempt stored", out.Profile)
	}
}

func TestRegister_SingleAttemptByDefault(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.fail["profile"] = context.DeadlineExceeded

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := h.flow.Register(ctx, teacherRegistration("t@x.com")); !errors.Is(err, accounterr.RemoteWrite) {
		t.Fatalf("err = %v, want RemoteWrite", err)
	}
	if got := h.world.calls["profile"]; got != 1 {
		t.Errorf("profile writes = %d, want 1", got)
	}
}

func TestRegister_NonTransientNotRetried(t *testing.T) {
	h := newHarness(t, accounts.Config{Attempts: 3, Backoff: time.Millisecond})
	h.world.fail["profile"] = errors.New("validation failed")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := h.flow.Register(ctx, teacherRegistration("t@x.com")); err == nil {
		t.Fatal("expected an error")
	}
	if got := h.world.calls["profile"]; got != 1 {
		t.Errorf("profile writes = %d, want 1", got)
	}
}

func TestStart_EventsInOrder(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.addClass("3ro B", "XYZ999", "teacher-1")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	run := h.flow.Start(ctx, parentRegistration("maria@example.com", "XYZ999"))
	var steps []string
	for ev := range run.Events() {
		if ev.Status == accounts.StepSucceeded {
			steps = append(steps, ev.Step)
		}
	}
	if _, err := run.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := []string{
		accounts.StepValidate,
		accounts.StepResolveClass,
		accounts.StepCreateAccount,
		accounts.StepWriteProfile,
		accounts.StepWriteStudent,
		accounts.StepWriteMember,
		accounts.StepSync,
		accounts.StepReadBack,
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestCompleteProfile_ExistingIdentityWithoutProfile(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.world.mu.Lock()
	delete(h.world.profiles, out.UID)
	h.world.mu.Unlock()

	if _, err := h.resolver.ResolveCurrentUser(ctx, out.UID); !errors.Is(err, accounterr.ProfileNotFound) {
		t.Fatalf("ResolveCurrentUser err = %v, want ProfileNotFound", err)
	}

	reg := teacherRegistration("t@x.com")
	reg.Account.Password = ""
	done, err := h.flow.CompleteProfile(ctx, out.UID, reg)
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if done.UID != out.UID {
		t.Errorf("UID = %q, want %q", done.UID, out.UID)
	}
	if done.Profile == nil || !done.Profile.IsTeacher {
		t.Errorf("Profile = %+v, want a mirrored teacher profile", done.Profile)
	}

	sess, err := h.resolver.ResolveCurrentUser(ctx, out.UID)
	if err != nil {
		t.Fatalf("ResolveCurrentUser after completion: %v", err)
	}
	if sess.Profile.Email != "t@x.com" {
		t.Errorf("Email = %q, want %q", sess.Profile.Email, "t@x.com")
	}
}

func TestCompleteProfile_ProfileAlreadyThere(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := h.flow.Register(ctx, teacherRegistration("t@x.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = h.flow.CompleteProfile(ctx, out.UID, teacherRegistration("t@x.com"))
	if !errors.Is(err, accounterr.DuplicateIdentity) {
		t.Fatalf("err = %v, want DuplicateIdentity", err)
	}
	if !h.world.hasProfile(out.UID) {
		t.Error("existing profile was removed")
	}
	if !h.world.hasAccount(out.UID) {
		t.Error("existing identity was removed")
	}
}

func TestCompleteProfile_FailureKeepsIdentity(t *testing.T) {
	h := newHarness(t, accounts.Config{})
	h.world.addClass("3ro Básico B", "XYZ999", "teacher-1")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := h.flow.Register(ctx, parentRegistration("maria@example.com", "XYZ999"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.world.mu.Lock()
	delete(h.world.profiles, out.UID)
	h.world.mu.Unlock()
	h.world.fail["student"] = errors.New("write concern error")

	reg := parentRegistration("maria@example.com", "XYZ999")
	reg.Account.Password = ""
	_, err = h.flow.CompleteProfile(ctx, out.UID, reg)
	if !errors.Is(err, accounterr.RemoteWrite) {
		t.Fatalf("err = %v, want RemoteWrite", err)
	}
	if h.world.hasProfile(out.UID) {
		t.Error("profile should be compensated")
	}
	if !h.world.hasAccount(out.UID) {
		t.Error("identity must survive a failed completion")
	}
}

func TestCompleteProfile_RequiresIdentity(t *testing.T) {
	h := newHarness(t, accounts.Config{})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := h.flow.CompleteProfile(ctx, "", teacherRegistration("t@x.com"))
	if !errors.Is(err, accounterr.InvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}
