// Package executor runs capability calls with a bounded wait and hands
// timeout recovery to the service layer.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrTimeout is returned when a task exceeds the configured bound. The
// worker is torn down when this happens; the caller only sees this error.
var ErrTimeout = errors.New("executor: request timed out")

// Task is a single capability call. It receives a context that is cancelled
// when the executor gives up on the call.
type Task func(ctx context.Context) ([]byte, error)

// Hooks are invoked by Run around task completion. Either may be nil.
type Hooks struct {
	// OnSuccess runs after the task returns without error, before Run
	// returns. The service layer counts the request here.
	OnSuccess func()

	// OnTimeout runs when the bound expires before the task finishes.
	// The service layer disposes the session and terminates the worker.
	OnTimeout func()
}

type result struct {
	data []byte
	err  error
}

// Executor bounds capability calls. A zero timeout means unbounded.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New returns an executor with the given request bound.
func New(timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{timeout: timeout, logger: logger}
}

// Timeout returns the configured request bound.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes task on its own goroutine and waits for it to finish or for
// the bound to expire, whichever comes first. On timeout the task context
// is cancelled and the goroutine is left to drain into a buffered channel,
// so a wedged worker call cannot leak a blocked sender.
func (e *Executor) Run(ctx context.Context, method string, task Task, hooks Hooks) ([]byte, error) {
	taskCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		data, err := task(taskCtx)
		ch <- result{data: data, err: err}
	}()

	select {
	case res := <-ch:
		// The task may race the deadline and report its own error
		// first. Either way an expired bound is a timeout.
		if e.expired(taskCtx, ctx) {
			return nil, e.timedOut(method, start, hooks)
		}
		if res.err != nil {
			return nil, res.err
		}
		if hooks.OnSuccess != nil {
			hooks.OnSuccess()
		}
		return res.data, nil

	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, e.timedOut(method, start, hooks)
	}
}

// expired reports whether the request bound ran out, as opposed to the
// caller cancelling the request.
func (e *Executor) expired(taskCtx, parent context.Context) bool {
	return e.timeout > 0 &&
		errors.Is(taskCtx.Err(), context.DeadlineExceeded) &&
		parent.Err() == nil
}

func (e *Executor) timedOut(method string, start time.Time, hooks Hooks) error {
	e.logger.Error("request_timeout",
		"method", method,
		"timeout", e.timeout,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if hooks.OnTimeout != nil {
		hooks.OnTimeout()
	}
	return ErrTimeout
}
