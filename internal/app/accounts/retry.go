package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultRetryBackoff is the wait before the second attempt of a remote
// write; later attempts wait proportionally longer.
const DefaultRetryBackoff = 500 * time.Millisecond

// retryPolicy governs remote document writes. attempts is the total number
// of tries, so 1 means no retry.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int, backoff time.Duration) retryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return retryPolicy{attempts: attempts, backoff: backoff}
}

// transient reports whether a failed write may succeed if repeated.
func transient(err error) bool {
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

// do runs one remote write under the step timeout, repeating it on
// transient failures. Every write carries a caller-chosen id, so
// ErrAlreadyExists on a repeat means an earlier attempt landed.
func (p retryPolicy) do(ctx context.Context, log *zap.Logger, op string, write func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		wctx, cancel := timeouts.WithTimeout(ctx, timeouts.Step(), log, op)
		err := write(wctx)
		cancel()

		switch {
		case err == nil:
			return nil
		case attempt > 1 && errors.Is(err, ErrAlreadyExists):
			return nil
		case attempt >= p.attempts || !transient(err):
			return err
		}

		wait := p.backoff * time.Duration(attempt)
		log.Warn("remote write failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return err
		}
	}
}
