package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/officebridge/officebridge/internal/config"
	"github.com/officebridge/officebridge/internal/executor"
	"github.com/officebridge/officebridge/internal/logging"
	"github.com/officebridge/officebridge/internal/metrics"
	"github.com/officebridge/officebridge/internal/process"
	"github.com/officebridge/officebridge/internal/rpc"
	"github.com/officebridge/officebridge/internal/stats"
	"github.com/officebridge/officebridge/internal/supervisor"
	"github.com/officebridge/officebridge/internal/uno"
)

// APIVersion is the protocol version reported by the info method.
const APIVersion = "3"

// Exit codes returned by Run.
const (
	ExitOK            = 0 // clean or intentional shutdown
	ExitWorkerDied    = 1 // worker exited unexpectedly
	ExitStartupFailed = 2 // could not spawn or connect to the worker
)

// Options configures a Controller. Config and Logger are required; the
// rest have working defaults and exist mostly for tests.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	// Collector receives lifecycle and request metrics if set.
	Collector *metrics.Collector

	// Runner overrides the office worker command.
	Runner process.Runner

	// DialConverter and DialComparer override how capability sessions
	// reach the worker.
	DialConverter uno.DialFunc
	DialComparer  uno.DialFunc
}

// Controller drives the whole service lifecycle: spawn the worker, connect
// the capability sessions, serve RPC, and tear everything down exactly once.
type Controller struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	version   string

	runner      process.Runner
	dialConvert uno.DialFunc
	dialCompare uno.DialFunc

	sup           *supervisor.Supervisor
	workerLog     *logging.WorkerLogHandler
	converter     *uno.Converter
	comparer      *uno.Comparer
	exec          *executor.Executor
	rpcServer     *rpc.Server
	metricsServer *metrics.Server
	latency       *stats.Tracker

	mu          sync.Mutex
	state       State
	served      int
	intentional bool

	stopReqOnce sync.Once
	stopReq     chan struct{}
	stopOnce    sync.Once
}

// New creates a Controller. Run does the actual work.
func New(opts Options) *Controller {
	return &Controller{
		cfg:         opts.Config,
		logger:      opts.Logger,
		collector:   opts.Collector,
		version:     opts.Version,
		runner:      opts.Runner,
		dialConvert: opts.DialConverter,
		dialCompare: opts.DialComparer,
		latency:     stats.NewTracker(),
		state:       StateStarting,
		stopReq:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Info("state_changed", "state", s.String())
	if c.collector != nil {
		c.collector.SetState(int(s))
	}
}

// RPCAddr returns the RPC server's bound address once serving.
func (c *Controller) RPCAddr() string {
	if c.rpcServer == nil {
		return ""
	}
	return c.rpcServer.Addr()
}

// LatencySummaries returns per-method latency snapshots.
func (c *Controller) LatencySummaries() []stats.Summary {
	return c.latency.Summaries()
}

// RequestStop asks the controller to shut down. Idempotent and non-blocking.
func (c *Controller) RequestStop() {
	c.stopReqOnce.Do(func() {
		c.mu.Lock()
		c.intentional = true
		c.mu.Unlock()
		close(c.stopReq)
	})
}

// Run executes the full lifecycle and blocks until shutdown. The returned
// value is the process exit code.
func (c *Controller) Run(ctx context.Context) int {
	c.setState(StateStarting)

	if err := c.startWorker(ctx); err != nil {
		c.logger.Error("startup_failed", "error", err)
		return ExitStartupFailed
	}

	if err := c.connectSessions(ctx); err != nil {
		c.logger.Error("bridge_connect_failed", "error", err)
		c.teardownWorker()
		return ExitStartupFailed
	}
	c.setState(StateReady)

	if err := c.startServers(); err != nil {
		c.logger.Error("startup_failed", "error", err)
		c.teardownWorker()
		return ExitStartupFailed
	}
	c.setState(StateServing)

	// Signal adapter: forward to the worker group and enqueue a stop.
	// All shutdown logic lives in stop(), not here.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sigDone := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		for {
			select {
			case sig := <-sigCh:
				c.logger.Info("signal_received", "signal", sig.String())
				if s, ok := sig.(syscall.Signal); ok {
					c.sup.Signal(s)
				}
				c.RequestStop()
			case <-sigDone:
				return nil
			}
		}
	})

	exitCode := c.waitForExit(ctx)

	signal.Stop(sigCh)
	close(sigDone)
	g.Wait()

	c.stop()
	return exitCode
}

// waitForExit blocks until the worker dies, a stop is requested, or the
// context is cancelled, and maps the cause to an exit code.
func (c *Controller) waitForExit(ctx context.Context) int {
	select {
	case <-c.sup.Done():
		c.mu.Lock()
		intentional := c.intentional
		c.mu.Unlock()
		if intentional {
			c.logger.Info("worker_exited_after_stop", "exit_code", c.sup.ExitCode())
			return ExitOK
		}
		c.logger.Error("worker_died",
			"exit_code", c.sup.ExitCode(),
			"uptime", c.sup.Uptime().Round(time.Second),
			"recent_output", c.workerLog.RecentLines(10),
		)
		return ExitWorkerDied

	case <-c.stopReq:
		return ExitOK

	case <-ctx.Done():
		c.mu.Lock()
		c.intentional = true
		c.mu.Unlock()
		return ExitOK
	}
}

// startWorker spawns the office process and writes the PID file.
func (c *Controller) startWorker(ctx context.Context) error {
	runner := c.runner
	if runner == nil {
		binary, err := process.FindExecutable(c.cfg.Executable)
		if err != nil {
			return err
		}
		runner = process.NewOfficeRunner(&process.OfficeConfig{
			BinaryPath:       binary,
			UnoInterface:     c.cfg.UnoInterface,
			UnoPort:          c.cfg.UnoPort,
			UserInstallation: c.cfg.UserInstallation,
		})
	}

	c.workerLog = logging.NewWorkerLogHandler(c.logger, c.cfg.Verbose)
	c.sup = supervisor.New(supervisor.Config{
		Runner: runner,
		Logger: c.logger,
		Stderr: c.workerLog,
		OnExit: func(exitCode int, uptime time.Duration) {
			if c.collector != nil {
				c.collector.WorkerExited(exitCode)
			}
		},
	})

	pid, err := c.sup.Start(ctx)
	if err != nil {
		return fmt.Errorf("spawn worker: %w", err)
	}
	if c.collector != nil {
		c.collector.WorkerStarted()
	}

	if c.cfg.PidFile != "" {
		if err := process.WritePidFile(c.cfg.PidFile, pid); err != nil {
			c.logger.Warn("pid_file_write_failed", "path", c.cfg.PidFile, "error", err)
		}
	}
	return nil
}

// connectSessions establishes the converter session first, then the
// comparer, each with the full retry schedule.
func (c *Controller) connectSessions(ctx context.Context) error {
	policy := c.retryPolicy()
	addr := fmt.Sprintf("%s:%d", c.cfg.UnoInterface, c.cfg.UnoPort)

	var converter *uno.Converter
	var err error
	if c.dialConvert != nil {
		converter, err = uno.NewConverterWithDialer(ctx, c.dialConvert, policy, c.logger)
	} else {
		converter, err = uno.NewConverter(ctx, addr, policy, c.logger)
	}
	if err != nil {
		return fmt.Errorf("converter session: %w", err)
	}
	c.converter = converter

	var comparer *uno.Comparer
	if c.dialCompare != nil {
		comparer, err = uno.NewComparerWithDialer(ctx, c.dialCompare, policy, c.logger)
	} else {
		comparer, err = uno.NewComparer(ctx, addr, policy, c.logger)
	}
	if err != nil {
		converter.Session().Dispose()
		return fmt.Errorf("comparer session: %w", err)
	}
	c.comparer = comparer

	c.logger.Info("bridge_connected", "addr", addr)
	return nil
}

func (c *Controller) retryPolicy() uno.RetryPolicy {
	policy := uno.RetryPolicy{
		Budget:       c.cfg.RetryBudget,
		RefusedCost:  c.cfg.RetryRefusedCost,
		RefusedDelay: c.cfg.RetryRefusedDelay,
		OtherCost:    c.cfg.RetryOtherCost,
		OtherDelay:   c.cfg.RetryOtherDelay,
	}
	if c.collector != nil {
		policy.OnRetry = c.collector.ConnectRetried
	}
	return policy
}

// startServers brings up the RPC front end and, if configured, metrics.
func (c *Controller) startServers() error {
	c.exec = executor.New(c.cfg.ConversionTimeout, c.logger)

	registry := rpc.NewRegistry()
	c.registerMethods(registry)

	c.rpcServer = rpc.NewServer(registry, c.logger)
	addr := fmt.Sprintf("%s:%d", c.cfg.Interface, c.cfg.Port)
	if err := c.rpcServer.Start(addr); err != nil {
		return err
	}

	if c.cfg.MetricsAddr != "" {
		c.metricsServer = metrics.NewServer(c.cfg.MetricsAddr, c.logger)
		if err := c.metricsServer.Start(); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c.rpcServer.Shutdown(shutdownCtx)
			return err
		}
	}
	return nil
}

// countRequest counts one served request against the stop-after quota.
// Crossing the quota requests shutdown exactly once; the response for the
// request that crossed it is still delivered.
func (c *Controller) countRequest() {
	c.mu.Lock()
	c.served++
	hit := c.cfg.StopAfter > 0 && c.served == c.cfg.StopAfter
	if hit {
		c.intentional = true
	}
	c.mu.Unlock()

	if hit {
		c.logger.Info("stop_after_reached", "served", c.cfg.StopAfter)
		c.RequestStop()
	}
}

// Served returns the number of successfully served convert/compare requests.
func (c *Controller) Served() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served
}

// onTimeout recovers from a request that exceeded the conversion timeout:
// the stuck capability's session is disposed so the blocked call unwinds,
// and the worker is terminated. Only the timed-out session is touched.
func (c *Controller) onTimeout(sess *uno.Session) {
	c.mu.Lock()
	c.intentional = true
	c.mu.Unlock()

	c.logger.Error("request_timeout_recovery", "capability", string(sess.Capability()))
	sess.Dispose()
	go c.sup.Terminate(c.cfg.GraceTimeout)
}

// teardownWorker is the startup-failure cleanup path.
func (c *Controller) teardownWorker() {
	c.mu.Lock()
	c.intentional = true
	c.mu.Unlock()

	if c.sup != nil {
		c.sup.Terminate(c.cfg.GraceTimeout)
	}
	if c.cfg.PidFile != "" {
		process.RemovePidFile(c.cfg.PidFile)
	}
}

// stop tears the service down in order: stop accepting RPC, drain in-flight
// requests, dispose the worker sessions, terminate the worker, remove the
// PID file. Safe to call any number of times and at any point of startup.
func (c *Controller) stop() {
	c.stopOnce.Do(func() {
		c.setState(StateStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if c.rpcServer != nil {
			if err := c.rpcServer.Shutdown(shutdownCtx); err != nil {
				c.logger.Warn("rpc_shutdown_error", "error", err)
			}
		}
		if c.metricsServer != nil {
			if err := c.metricsServer.Shutdown(shutdownCtx); err != nil {
				c.logger.Warn("metrics_shutdown_error", "error", err)
			}
		}

		if c.converter != nil {
			c.converter.Session().Dispose()
		}
		if c.comparer != nil {
			c.comparer.Session().Dispose()
		}

		if c.sup != nil {
			if err := c.sup.Terminate(c.cfg.GraceTimeout); err != nil {
				c.logger.Warn("worker_terminate_error", "error", err)
			}
		}

		if c.cfg.PidFile != "" {
			if err := process.RemovePidFile(c.cfg.PidFile); err != nil {
				c.logger.Warn("pid_file_remove_failed", "path", c.cfg.PidFile, "error", err)
			}
		}

		c.setState(StateStopped)
	})
}
