package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// DefaultBackgroundTimeout bounds a background task when none is configured.
const DefaultBackgroundTimeout = 30 * time.Second

// Background runs work that must not delay the response but must not be
// dropped either. Tasks outlive the request that started them and are
// drained by Wait on shutdown.
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  observability.Logger
}

// NewBackground creates a task group whose tasks are each bounded by timeout.
func NewBackground(timeout time.Duration, logger observability.Logger) *Background {
	if timeout <= 0 {
		timeout = DefaultBackgroundTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Background{timeout: timeout, logger: logger}
}

// Go runs fn in a new goroutine with a context detached from ctx's
// cancellation but carrying its values.
func (b *Background) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	m := getDispatchMetrics()
	m.backgroundInflight.Inc()
	b.wg.Add(1)

	detached := context.WithoutCancel(ctx)
	go func() {
		defer b.wg.Done()
		defer m.backgroundInflight.Dec()

		taskCtx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()

		err := runTask(taskCtx, fn)
		result := "success"
		if err != nil {
			result = "error"
			b.logger.WithContext(detached).Warn("background task failed",
				observability.String("task", name),
				observability.Error(err),
			)
		}
		m.backgroundTasks.WithLabelValues(name, result).Inc()
	}()
}

func runTask(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every task has finished or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
