// Package accounts provisions accounts across the identity provider and
// the remote document store, and resolves signed-in identities to their
// mirrored profile.
//
// The remote stores have no transactions spanning collections, so a
// registration runs as a saga: every remote write is paired with an undo,
// and a failure undoes the completed writes newest first. The identity is
// always the first thing created and the last thing removed.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/identity"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config configures a Flow.
type Config struct {
	// Attempts is the total number of tries for each remote document
	// write. Zero or one means a single attempt.
	Attempts int
	// Backoff is the wait before the second attempt.
	Backoff time.Duration
	// Audit receives registration and compensation events. May be nil.
	Audit *auditlog.Logger
}

// Flow registers accounts.
type Flow struct {
	idp    IdentityProvider
	dir    Directory
	sync   Syncer
	mirror Mirror
	retry  retryPolicy
	log    *zap.Logger
	audit  *auditlog.Logger
}

// NewFlow wires a Flow from its collaborators.
func NewFlow(idp IdentityProvider, dir Directory, syncer Syncer, m Mirror, logger *zap.Logger, cfg Config) *Flow {
	return &Flow{
		idp:    idp,
		dir:    dir,
		sync:   syncer,
		mirror: m,
		retry:  newRetryPolicy(cfg.Attempts, cfg.Backoff),
		log:    logger,
		audit:  cfg.Audit,
	}
}

// Run is a registration in progress.
type Run struct {
	events chan StepEvent
	done   chan struct{}
	result *ProvisionedAccount
	err    error
}

// Events delivers progress in order and is closed when the run ends.
func (r *Run) Events() <-chan StepEvent { return r.events }

// Wait blocks until the run ends. Every error is an *accounterr.Error.
func (r *Run) Wait() (*ProvisionedAccount, error) {
	<-r.done
	return r.result, r.err
}

// Start begins a registration in the background.
func (f *Flow) Start(ctx context.Context, reg Registration) *Run {
	run := &Run{
		events: make(chan StepEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(run.done)
		defer close(run.events)
		run.result, run.err = f.register(ctx, reg, "", func(ev StepEvent) { run.events <- ev })
	}()
	return run
}

// Register runs a registration to completion. On success the returned
// records come from the local mirror. On failure no identity created by
// this call remains, unless the failure happened after the remote writes
// (sync or read-back), where the account is complete and only the mirror
// needs another sync.
func (f *Flow) Register(ctx context.Context, reg Registration) (*ProvisionedAccount, error) {
	return f.register(ctx, reg, "", func(StepEvent) {})
}

// CompleteProfile writes the documents for an identity that exists but has
// no profile, the state ResolveCurrentUser reports as ProfileNotFound. The
// identity is neither created nor removed, so reg needs no password. A
// profile that is already there yields DuplicateIdentity.
func (f *Flow) CompleteProfile(ctx context.Context, uid string, reg Registration) (*ProvisionedAccount, error) {
	if uid == "" {
		return nil, accounterr.Invalid("uid", "an existing identity is required")
	}
	return f.register(ctx, reg, uid, func(StepEvent) {})
}

// provisioning is the state one registration accumulates.
type provisioning struct {
	reg      Registration
	uid      string
	existing bool // uid was signed in before this call
	class    *models.Class
	student  *models.Student
	member   *models.ClassMember
}

func (f *Flow) register(ctx context.Context, reg Registration, uid string, emit func(StepEvent)) (*ProvisionedAccount, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Flow(), f.log, "register")
	defer cancel()

	role := ""
	if reg.Intent != nil {
		role = reg.Intent.Role()
	}

	s := &saga{uid: uid, emit: emit, log: f.log, audit: f.audit}
	p := &provisioning{reg: reg, uid: uid, existing: uid != ""}

	out, err := f.provision(ctx, s, p)
	if err != nil {
		f.log.Warn("registration failed",
			zap.String("uid", p.uid),
			zap.String("role", role),
			zap.String("kind", accounterr.KindOf(err).String()),
			zap.Error(err))
		f.audit.RegistrationFailed(context.WithoutCancel(ctx), p.uid, normalize.Email(reg.Account.Email), role, accounterr.KindOf(err).String(), err)
		return nil, err
	}

	f.log.Info("registration succeeded", zap.String("uid", out.UID), zap.String("role", role))
	f.audit.RegistrationSucceeded(ctx, out.UID, out.Profile.Email, role)
	return out, nil
}

func (f *Flow) provision(ctx context.Context, s *saga, p *provisioning) (*ProvisionedAccount, error) {
	if err := s.run(ctx, step{name: StepValidate, do: func(context.Context) error {
		return p.reg.validate(!p.existing)
	}}); err != nil {
		return nil, err
	}

	// The join code is checked before the identity exists, so a doomed
	// registration never creates one.
	parent, _ := p.reg.Intent.(ParentIntent)
	if parent.Student != nil {
		if err := s.run(ctx, f.resolveClass(p, parent.JoinCode)); err != nil {
			return nil, err
		}
	}

	if !p.existing {
		if err := s.run(ctx, f.createAccount(s, p)); err != nil {
			return nil, err
		}
	}

	if p.reg.External != nil {
		f.linkCredential(ctx, s, p)
	}

	writes := []step{f.writeProfile(p)}
	if teacher, ok := p.reg.Intent.(TeacherIntent); ok && teacher.FirstClass != nil {
		writes = append(writes, f.writeClass(p, *teacher.FirstClass))
	}
	if parent.Student != nil {
		writes = append(writes, f.writeStudent(p, *parent.Student), f.writeMember(p))
	}
	for _, st := range writes {
		if err := s.run(ctx, st); err != nil {
			s.compensate(ctx)
			if p.existing && st.name == StepWriteProfile && errors.Is(err, ErrAlreadyExists) {
				return nil, accounterr.New(accounterr.KindDuplicateIdentity, st.name, err)
			}
			return nil, accounterr.New(accounterr.KindRemoteWrite, st.name, err)
		}
	}

	if err := s.run(ctx, step{name: StepSync, do: func(ctx context.Context) error {
		return f.sync.SyncAll(ctx, p.uid)
	}}); err != nil {
		return nil, syncError(StepSync, err)
	}

	var out *ProvisionedAccount
	if err := s.run(ctx, step{name: StepReadBack, do: func(ctx context.Context) error {
		var err error
		out, err = f.readBack(ctx, p)
		return err
	}}); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Flow) resolveClass(p *provisioning, code string) step {
	return step{name: StepResolveClass, do: func(ctx context.Context) error {
		rctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), f.log, StepResolveClass)
		defer cancel()
		c, err := f.dir.ClassByJoinCode(rctx, code)
		if err != nil {
			if errors.Is(err, ErrClassNotFound) {
				return accounterr.New(accounterr.KindReferenceNotFound, StepResolveClass, err)
			}
			return accounterr.New(accounterr.KindRemoteRead, StepResolveClass, err)
		}
		p.class = c
		return nil
	}}
}

func (f *Flow) createAccount(s *saga, p *provisioning) step {
	return step{
		name: StepCreateAccount,
		do: func(ctx context.Context) error {
			actx, cancel := timeouts.WithTimeout(ctx, timeouts.Step(), f.log, StepCreateAccount)
			defer cancel()
			uid, err := f.idp.CreateAccount(actx, p.reg.Account.Email, p.reg.Account.Password)
			if err != nil {
				return identityError(err)
			}
			p.uid = uid
			s.uid = uid
			return nil
		},
		undo: func(ctx context.Context) error {
			return f.idp.DeleteAccount(ctx, p.uid)
		},
	}
}

// linkCredential attaches the external credential. The password identity
// already works on its own, so failure is reported and the flow goes on.
func (f *Flow) linkCredential(ctx context.Context, s *saga, p *provisioning) {
	provider := p.reg.External.Provider
	s.report(StepLinkCredential, StepStarted, nil)

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Step(), f.log, StepLinkCredential)
	err := f.idp.LinkCredential(lctx, p.uid, *p.reg.External)
	cancel()

	if err != nil {
		f.log.Warn("credential not linked",
			zap.String("uid", p.uid),
			zap.String("provider", provider),
			zap.Error(err))
		f.audit.CredentialNotLinked(ctx, p.uid, provider, err)
		s.report(StepLinkCredential, StepTolerated, err)
		return
	}
	f.audit.CredentialLinked(ctx, p.uid, provider)
	s.report(StepLinkCredential, StepSucceeded, nil)
}

func (f *Flow) writeProfile(p *provisioning) step {
	return step{
		name: StepWriteProfile,
		do: func(ctx context.Context) error {
			a := p.reg.Account
			prof := models.Profile{
				UID:       p.uid,
				Email:     a.Email,
				FullName:  a.FullName,
				Phone:     a.Phone,
				Address:   a.Address,
				IsTeacher: p.reg.Intent.Role() == RoleTeacher,
				IsParent:  p.reg.Intent.Role() == RoleParent,
			}
			return f.retry.do(ctx, f.log, StepWriteProfile, func(ctx context.Context) error {
				_, err := f.dir.CreateProfile(ctx, prof)
				return err
			})
		},
		undo: func(ctx context.Context) error {
			return f.dir.DeleteProfile(ctx, p.uid)
		},
	}
}

func (f *Flow) writeClass(p *provisioning, form ClassForm) step {
	c := models.Class{ID: primitive.NewObjectID()}
	return step{
		name: StepWriteClass,
		do: func(ctx context.Context) error {
			c.Name = form.Name
			c.Grade = normalize.Text(form.Grade)
			c.School = normalize.Text(form.School)
			c.TeacherUID = p.uid
			err := f.retry.do(ctx, f.log, StepWriteClass, func(ctx context.Context) error {
				created, err := f.dir.CreateClass(ctx, c)
				if err == nil {
					c = created
				}
				return err
			})
			if err == nil {
				p.class = &c
			}
			return err
		},
		undo: func(ctx context.Context) error {
			return f.dir.DeleteClass(ctx, c.ID)
		},
	}
}

func (f *Flow) writeStudent(p *provisioning, form StudentForm) step {
	return step{
		name: StepWriteStudent,
		do: func(ctx context.Context) error {
			st := models.Student{
				ID:        primitive.NewObjectID(),
				OwnerUID:  p.uid,
				FullName:  form.FullName,
				RUT:       form.RUT,
				BirthDate: form.BirthDate,
				Grade:     form.Grade,
			}
			p.student = &st
			return f.retry.do(ctx, f.log, StepWriteStudent, func(ctx context.Context) error {
				created, err := f.dir.CreateStudent(ctx, st)
				if err == nil {
					*p.student = created
				}
				return err
			})
		},
		undo: func(ctx context.Context) error {
			return f.dir.DeleteStudent(ctx, p.student.ID)
		},
	}
}

// writeMember links the student to the class. It runs last among the
// remote writes, so a link never exists without its profile and student.
func (f *Flow) writeMember(p *provisioning) step {
	return step{
		name: StepWriteMember,
		do: func(ctx context.Context) error {
			m := models.ClassMember{
				ID:          primitive.NewObjectID(),
				ClassID:     p.class.ID,
				StudentID:   p.student.ID,
				ParentUID:   p.uid,
				StudentName: p.student.FullName,
			}
			p.member = &m
			return f.retry.do(ctx, f.log, StepWriteMember, func(ctx context.Context) error {
				created, err := f.dir.AddClassMember(ctx, m)
				if err == nil {
					*p.member = created
				}
				return err
			})
		},
		undo: func(ctx context.Context) error {
			return f.dir.RemoveClassMember(ctx, p.member.ID)
		},
	}
}

// readBack loads everything the registration created from the mirror.
func (f *Flow) readBack(ctx context.Context, p *provisioning) (*ProvisionedAccount, error) {
	var (
		missing []string
		cause   error
	)
	note := func(record string, err error) {
		missing = append(missing, record)
		if !errors.Is(err, mirror.ErrNotFound) && cause == nil {
			cause = err
		}
	}

	out := &ProvisionedAccount{UID: p.uid, Role: p.reg.Intent.Role()}

	prof, err := f.mirror.GetProfile(ctx, p.uid)
	if err != nil {
		note("profile", err)
	}
	out.Profile = prof

	if p.class != nil {
		c, err := f.mirror.ClassByRemoteID(ctx, p.uid, p.class.ID.Hex())
		if err != nil {
			note("class", err)
		}
		out.Class = c
	}
	if p.student != nil {
		st, err := f.mirror.StudentByRemoteID(ctx, p.uid, p.student.ID.Hex())
		if err != nil {
			note("student", err)
		}
		out.Student = st
	}
	if p.member != nil {
		m, err := f.mirror.ClassMemberFor(ctx, p.uid, p.class.ID.Hex(), p.student.ID.Hex())
		if err != nil {
			note("class_member", err)
		}
		out.Member = m
	}

	if len(missing) > 0 {
		return nil, &accounterr.Error{
			Kind:    accounterr.KindPostSyncRead,
			Op:      StepReadBack,
			Err:     cause,
			Missing: missing,
		}
	}
	return out, nil
}

// identityError maps identity provider failures onto the taxonomy.
func identityError(err error) error {
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return accounterr.New(accounterr.KindDuplicateIdentity, StepCreateAccount, err)
	case errors.Is(err, identity.ErrWeakPassword):
		return accounterr.New(accounterr.KindWeakCredential, StepCreateAccount, err)
	case errors.Is(err, identity.ErrInvalidEmail):
		return accounterr.New(accounterr.KindInvalidInput, "email", err)
	default:
		return accounterr.New(accounterr.KindRemoteWrite, StepCreateAccount, err)
	}
}

// syncError turns a sync failure into SyncPartialFailure, listing the
// failed categories when the engine reported them.
func syncError(op string, err error) error {
	e := accounterr.New(accounterr.KindSyncPartialFailure, op, err)
	if pf, ok := syncengine.AsPartialFailure(err); ok {
		e.Missing = pf.Names()
	}
	return e
}
