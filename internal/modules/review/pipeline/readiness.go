package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
)

// Readiness runs a one-time environment check (binaries, credentials) shared
// by every run. Concurrent callers share one check; a success is cached and a
// failure is retried on the next call.
type Readiness struct {
	check func(ctx context.Context) error
	group singleflight.Group
	ready atomic.Bool
	calls atomic.Int64
}

func NewReadiness(check func(ctx context.Context) error) *Readiness {
	return &Readiness{check: check}
}

// AlreadyReady returns a Readiness that never runs a check.
func AlreadyReady() *Readiness {
	r := &Readiness{}
	r.ready.Store(true)
	return r
}

func (r *Readiness) Ready() bool {
	return r != nil && r.ready.Load()
}

func (r *Readiness) Ensure(ctx context.Context) error {
	if r == nil || r.ready.Load() {
		return nil
	}
	ctx = ctxutil.Default(ctx)
	ch := r.group.DoChan("ready", func() (any, error) {
		if r.ready.Load() {
			return nil, nil
		}
		r.calls.Add(1)
		if r.check != nil {
			// Detached so one caller's cancellation does not fail the others.
			if err := r.check(context.WithoutCancel(ctx)); err != nil {
				return nil, err
			}
		}
		r.ready.Store(true)
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// checks reports how many times the underlying check has executed.
func (r *Readiness) checks() int64 { return r.calls.Load() }
