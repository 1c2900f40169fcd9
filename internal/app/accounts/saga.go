package accounts

import (
	"context"
	"time"

	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// step is one saga action. undo is nil for steps that leave nothing behind
// in the remote stores.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order and remembers the completed ones so they can be
// undone in reverse when a later step fails.
type saga struct {
	uid   string
	done  []step
	emit  func(StepEvent)
	log   *zap.Logger
	audit *auditlog.Logger
}

func (s *saga) report(name string, status StepStatus, err error) {
	s.emit(StepEvent{Step: name, Status: status, Err: err, At: time.Now().UTC()})
}

// run executes st and records it on success.
func (s *saga) run(ctx context.Context, st step) error {
	s.report(st.name, StepStarted, nil)
	if err := st.do(ctx); err != nil {
		s.report(st.name, StepFailed, err)
		return err
	}
	s.report(st.name, StepSucceeded, nil)
	s.done = append(s.done, st)
	return nil
}

// compensate undoes completed steps newest first. Undo failures are logged
// and audited; they never replace the error that triggered compensation.
// Undo runs even when ctx is already canceled.
func (s *saga) compensate(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := len(s.done) - 1; i >= 0; i-- {
		st := s.done[i]
		if st.undo == nil {
			continue
		}
		uctx, cancel := timeouts.WithTimeout(base, timeouts.Step(), s.log, "undo "+st.name)
		err := st.undo(uctx)
		cancel()
		if err != nil {
			s.log.Error("compensation failed",
				zap.String("uid", s.uid),
				zap.String("step", st.name),
				zap.Error(err))
			s.audit.CompensationFailed(base, s.uid, st.name, err)
			s.report(st.name, StepCompensationFailed, err)
			continue
		}
		s.log.Info("step compensated", zap.String("uid", s.uid), zap.String("step", st.name))
		s.report(st.name, StepCompensated, nil)
	}
	s.done = nil
}
