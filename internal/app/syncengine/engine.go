// Package syncengine copies everything an identity can see in the remote
// store into the local mirror.
//
// A sync runs in three stages. The profile goes first because every other
// mirrored row references it. Students, classes and the per-class and
// per-student records then sync concurrently. Class members go last since
// they point at mirrored classes. Each category is fetched on its own and
// replaces the mirror's copy wholesale, so a failure in one never touches
// another.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRemoteProfileMissing is returned by Remote.Profile when the identity
// has no profile document.
var ErrRemoteProfileMissing = errors.New("syncengine: remote profile not found")

// Remote reads what one identity can see. Every method is scoped to uid
// and computes visibility on its own.
type Remote interface {
	Profile(ctx context.Context, uid string) (*models.Profile, error)
	Students(ctx context.Context, uid string) ([]models.Student, error)
	Classes(ctx context.Context, uid string) ([]models.Class, error)
	ClassMembers(ctx context.Context, uid string) ([]models.ClassMember, error)
	Messages(ctx context.Context, uid string) ([]models.Message, error)
	Events(ctx context.Context, uid string) ([]models.Event, error)
	Annotations(ctx context.Context, uid string) ([]models.Annotation, error)
	Attendance(ctx context.Context, uid string) ([]models.Attendance, error)
	Justifications(ctx context.Context, uid string) ([]models.Justification, error)
	MaterialRequests(ctx context.Context, uid string) ([]models.MaterialRequest, error)
}

// DefaultConcurrency bounds the stage-two fan-out when Config leaves it unset.
const DefaultConcurrency = 4

// Config configures an Engine.
type Config struct {
	Concurrency int              // stage-two goroutines; <= 0 uses DefaultConcurrency
	Audit       *auditlog.Logger // optional
}

// Engine runs syncs. It is safe for concurrent use; syncs of the same
// identity are serialized.
type Engine struct {
	remote      Remote
	mirror      *mirror.Store
	log         *zap.Logger
	audit       *auditlog.Logger
	concurrency int
	locks       keyedMutex
}

// New creates an Engine.
func New(remote Remote, m *mirror.Store, logger *zap.Logger, cfg Config) *Engine {
	n := cfg.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Engine{
		remote:      remote,
		mirror:      m,
		log:         logger,
		audit:       cfg.Audit,
		concurrency: n,
	}
}

type job struct {
	cat Category
	run func(ctx context.Context, uid string) error
}

// fanOut lists the stage-two categories.
func (e *Engine) fanOut() []job {
	return []job{
		{CategoryStudents, func(ctx context.Context, uid string) error {
			list, err := e.remote.Students(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceStudents(ctx, uid, list)
		}},
		{CategoryClasses, func(ctx context.Context, uid string) error {
			list, err := e.remote.Classes(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceClasses(ctx, uid, list)
		}},
		{CategoryMessages, func(ctx context.Context, uid string) error {
			list, err := e.remote.Messages(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceMessages(ctx, uid, list)
		}},
		{CategoryEvents, func(ctx context.Context, uid string) error {
			list, err := e.remote.Events(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceEvents(ctx, uid, list)
		}},
		{CategoryAnnotations, func(ctx context.Context, uid string) error {
			list, err := e.remote.Annotations(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceAnnotations(ctx, uid, list)
		}},
		{CategoryAttendance, func(ctx context.Context, uid string) error {
			list, err := e.remote.Attendance(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceAttendance(ctx, uid, list)
		}},
		{CategoryJustifications, func(ctx context.Context, uid string) error {
			list, err := e.remote.Justifications(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceJustifications(ctx, uid, list)
		}},
		{CategoryMaterialRequests, func(ctx context.Context, uid string) error {
			list, err := e.remote.MaterialRequests(ctx, uid)
			if err != nil {
				return err
			}
			return e.mirror.ReplaceMaterialRequests(ctx, uid, list)
		}},
	}
}

func (e *Engine) syncClassMembers(ctx context.Context, uid string) error {
	list, err := e.remote.ClassMembers(ctx, uid)
	if err != nil {
		return err
	}
	return e.mirror.ReplaceClassMembers(ctx, uid, list)
}

// SyncAll mirrors everything uid can see. It returns nil when every
// category synced, or a *PartialFailure naming the ones that did not.
//
// When the identity has no remote profile the mirrored profile is removed,
// along with everything that hangs off it, and SyncAll returns nil. Callers
// detect that case by reading the mirror.
func (e *Engine) SyncAll(ctx context.Context, uid string) error {
	if uid == "" {
		return errors.New("syncengine: empty uid")
	}

	unlock := e.locks.lock(uid)
	defer unlock()

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Sync(), e.log, "sync all")
	defer cancel()

	start := time.Now()
	failures := &failureSet{}

	// Stage 1: profile.
	p, err := e.remote.Profile(ctx, uid)
	switch {
	case errors.Is(err, ErrRemoteProfileMissing):
		if err := e.mirror.DeleteProfile(ctx, uid); err != nil {
			failures.add(CategoryProfile, err)
			return e.finish(ctx, uid, start, failures)
		}
		e.log.Info("remote profile missing; local copy removed", zap.String("uid", uid))
		e.audit.ProfileMissing(ctx, uid)
		return nil
	case err != nil:
		failures.add(CategoryProfile, err)
	default:
		if err := e.mirror.UpsertProfile(ctx, *p); err != nil {
			failures.add(CategoryProfile, err)
		}
	}

	// Stage 2: independent categories. Goroutines never return an error so
	// one failure does not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, j := range e.fanOut() {
		j := j
		g.Go(func() error {
			if err := j.run(ctx, uid); err != nil {
				failures.add(j.cat, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Stage 3: class members reference mirrored classes.
	if err := e.syncClassMembers(ctx, uid); err != nil {
		failures.add(CategoryClassMembers, err)
	}

	return e.finish(ctx, uid, start, failures)
}

func (e *Engine) finish(ctx context.Context, uid string, start time.Time, failures *failureSet) error {
	pf := failures.result(uid)
	if pf == nil {
		e.log.Debug("sync complete",
			zap.String("uid", uid),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	}

	names := pf.Names()
	fields := []zap.Field{
		zap.String("uid", uid),
		zap.Strings("failed", names),
		zap.Duration("took", time.Since(start)),
	}
	for _, c := range pf.Categories() {
		fields = append(fields, zap.NamedError(string(c), pf.Failures[c]))
	}
	e.log.Warn("sync partially failed", fields...)
	e.audit.SyncPartial(ctx, uid, names)
	return pf
}

type failureSet struct {
	mu sync.Mutex
	m  map[Category]error
}

func (f *failureSet) add(c Category, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[Category]error)
	}
	f.m[c] = err
}

func (f *failureSet) result(uid string) *PartialFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.m) == 0 {
		return nil
	}
	return &PartialFailure{UID: uid, Failures: f.m}
}
