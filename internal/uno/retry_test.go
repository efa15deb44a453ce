package uno

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPolicy keeps the retry schedule's costs but removes the sleeps.
func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.RefusedDelay = 0
	p.OtherDelay = 0
	return p
}

// refusedErr mimics what net.Dialer returns when nothing is listening.
func refusedErr() error {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}
}

// countingDialer fails with the errors in sequence, then succeeds.
type countingDialer struct {
	errs  []error
	calls int
}

func (d *countingDialer) dial(ctx context.Context) (net.Conn, error) {
	d.calls++
	if d.calls <= len(d.errs) {
		return nil, d.errs[d.calls-1]
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func repeatErrs(err error, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

func TestConnectImmediateSuccess(t *testing.T) {
	d := &countingDialer{}
	conn, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()
	if d.calls != 1 {
		t.Errorf("calls = %d, want 1", d.calls)
	}
}

func TestConnectOnRetryCallback(t *testing.T) {
	d := &countingDialer{errs: repeatErrs(refusedErr(), 3)}
	policy := fastPolicy()
	retries := 0
	policy.OnRetry = func() { retries++ }

	conn, err := Connect(context.Background(), d.dial, policy, testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()
	// One callback per failed attempt; the success does not count.
	if retries != 3 {
		t.Errorf("retries = %d, want 3", retries)
	}
}

func TestConnectRefusedThenSuccess(t *testing.T) {
	d := &countingDialer{errs: repeatErrs(refusedErr(), 5)}
	conn, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()
	if d.calls != 6 {
		t.Errorf("calls = %d, want 6", d.calls)
	}
}

func TestConnectRefusedExhaustsBudget(t *testing.T) {
	// Refused costs 1: the full budget allows exactly 20 attempts.
	d := &countingDialer{errs: repeatErrs(refusedErr(), 100)}
	_, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if d.calls != 20 {
		t.Errorf("calls = %d, want 20", d.calls)
	}
}

func TestConnectOtherErrorsCostMore(t *testing.T) {
	// Cost 4 per attempt: the budget of 20 allows exactly 5 attempts.
	d := &countingDialer{errs: repeatErrs(errors.New("connection reset"), 100)}
	_, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if d.calls != 5 {
		t.Errorf("calls = %d, want 5", d.calls)
	}
}

func TestConnectMixedFailuresTerminate(t *testing.T) {
	// Alternate refused and other errors; budget 20 drains by 5 per pair,
	// so the loop must end after 8 attempts (4 pairs).
	var errs []error
	for i := 0; i < 50; i++ {
		errs = append(errs, refusedErr(), errors.New("reset"))
	}
	d := &countingDialer{errs: errs}
	_, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if d.calls != 8 {
		t.Errorf("calls = %d, want 8", d.calls)
	}
}

func TestConnectLateSuccessWithinBudget(t *testing.T) {
	// 4 other errors (cost 16) plus 3 refused (cost 3) leaves budget 1:
	// the next attempt still runs and succeeds.
	errs := append(repeatErrs(errors.New("reset"), 4), repeatErrs(refusedErr(), 3)...)
	d := &countingDialer{errs: errs}
	conn, err := Connect(context.Background(), d.dial, fastPolicy(), testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()
	if d.calls != 8 {
		t.Errorf("calls = %d, want 8", d.calls)
	}
}

func TestConnectContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dial := func(ctx context.Context) (net.Conn, error) {
		return nil, refusedErr()
	}
	_, err := Connect(ctx, dial, DefaultRetryPolicy(), testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConnectContextCancelledDuringSleep(t *testing.T) {
	policy := fastPolicy()
	policy.RefusedDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	dial := func(ctx context.Context) (net.Conn, error) {
		cancel() // cancel once the first attempt has failed
		return nil, refusedErr()
	}

	start := time.Now()
	_, err := Connect(ctx, dial, policy, testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancel did not interrupt the retry sleep")
	}
}

func TestRefusedClassification(t *testing.T) {
	if !refused(refusedErr()) {
		t.Error("wrapped ECONNREFUSED not classified as refused")
	}
	if !refused(syscall.ECONNREFUSED) {
		t.Error("bare ECONNREFUSED not classified as refused")
	}
	if refused(errors.New("connection reset by peer")) {
		t.Error("generic error classified as refused")
	}
	if refused(syscall.ETIMEDOUT) {
		t.Error("ETIMEDOUT classified as refused")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.Budget != 20 || p.RefusedCost != 1 || p.OtherCost != 4 {
		t.Errorf("unexpected policy %+v", p)
	}
	if p.RefusedDelay != 2*time.Second || p.OtherDelay != 5*time.Second {
		t.Errorf("unexpected delays %v/%v", p.RefusedDelay, p.OtherDelay)
	}
}
