package uno

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// ErrBudgetExhausted is returned when the retry budget runs out before a
// connection is established. It is fatal to service startup.
var ErrBudgetExhausted = errors.New("uno: connect retry budget exhausted")

// RetryPolicy describes the connect retry schedule. The budget is a shared
// pool of attempts; each failure class burns a different amount of it.
//
// The defaults (20 attempts, refused costs 1 with a 2s sleep, anything else
// costs 4 with a 5s sleep) reproduce the schedule the office worker needs:
// worst case that is 40s of waiting for a worker that never opens its port,
// or five attempts at a persistently broken endpoint.
type RetryPolicy struct {
	Budget       int
	RefusedCost  int
	RefusedDelay time.Duration
	OtherCost    int
	OtherDelay   time.Duration

	// OnRetry, if set, is called once per failed attempt.
	OnRetry func()
}

// DefaultRetryPolicy returns the documented default schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Budget:       20,
		RefusedCost:  1,
		RefusedDelay: 2 * time.Second,
		OtherCost:    4,
		OtherDelay:   5 * time.Second,
	}
}

// DialFunc abstracts connection establishment so the retry loop can be
// exercised without a real socket.
type DialFunc func(ctx context.Context) (net.Conn, error)

// NetDialer returns a DialFunc for a TCP address.
func NetDialer(addr string) DialFunc {
	var d net.Dialer
	return func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	}
}

// refused reports whether err is a connection-refused class error,
// meaning the worker has not opened its accept port yet.
func refused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Connect dials until a connection is established, the context is
// cancelled, or the retry budget is exhausted.
func Connect(ctx context.Context, dial DialFunc, policy RetryPolicy, logger *slog.Logger) (net.Conn, error) {
	budget := policy.Budget

	for budget > 0 {
		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if policy.OnRetry != nil {
			policy.OnRetry()
		}

		var delay time.Duration
		if refused(err) {
			// The worker is not listening yet.
			logger.Debug("worker_not_listening", "remaining_budget", budget)
			budget -= policy.RefusedCost
			delay = policy.RefusedDelay
		} else {
			logger.Warn("bridge_connect_retry", "error", err, "remaining_budget", budget)
			budget -= policy.OtherCost
			delay = policy.OtherDelay
		}

		if budget <= 0 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, ErrBudgetExhausted
}
