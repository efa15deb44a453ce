// Package main provides the officebridge CLI entry point.
//
// officebridge supervises a headless office worker process and fronts it
// with a JSON RPC API for document conversion and comparison.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/officebridge/officebridge/internal/config"
	"github.com/officebridge/officebridge/internal/logging"
	"github.com/officebridge/officebridge/internal/metrics"
	"github.com/officebridge/officebridge/internal/preflight"
	"github.com/officebridge/officebridge/internal/process"
	"github.com/officebridge/officebridge/internal/service"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/officebridge
var version = "dev"

var (
	bannerBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Foreground(lipgloss.Color("39"))

	bannerMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("officebridge %s (api %s)\n", version, service.APIVersion)
			return 0
		}
	}

	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return service.ExitStartupFailed
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, cfg.Quiet)
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return service.ExitStartupFailed
	}

	binary, err := process.FindExecutable(cfg.Executable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return service.ExitStartupFailed
	}
	cfg.Executable = binary

	// Worker profile directory: temp dir unless configured, removed at exit.
	if cfg.UserInstallation == "" {
		dir, err := os.MkdirTemp("", "officebridge-profile-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating profile dir: %v\n", err)
			return service.ExitStartupFailed
		}
		defer os.RemoveAll(dir)
		cfg.UserInstallation = dir
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printWorkerCommand(cfg)
		return 0
	}

	checks := preflight.RunAll(preflight.Config{
		Executable:       cfg.Executable,
		UserInstallation: cfg.UserInstallation,
		RPCAddr:          fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port),
		UnoAddr:          fmt.Sprintf("%s:%d", cfg.UnoInterface, cfg.UnoPort),
	})
	if !checks.Passed {
		preflight.PrintResults(checks)
		return service.ExitStartupFailed
	}

	logger.Info("starting",
		"version", version,
		"api_version", service.APIVersion,
		"executable", cfg.Executable,
		"rpc_addr", fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port),
		"uno_addr", fmt.Sprintf("%s:%d", cfg.UnoInterface, cfg.UnoPort),
	)

	if !cfg.Quiet {
		printBanner(cfg)
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector(metrics.CollectorConfig{
			Version:    version,
			APIVersion: service.APIVersion,
			Executable: filepath.Base(cfg.Executable),
		})
	}

	controller := service.New(service.Options{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		Collector: collector,
	})

	exitCode := controller.Run(context.Background())

	printSummary(controller)
	logger.Info("stopped", "exit_code", exitCode)
	return exitCode
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	title := "officebridge " + version + "\nSupervised document conversion RPC"
	fmt.Println(bannerBox.Render(title))
	fmt.Printf("  RPC:         http://%s:%d/rpc\n", cfg.Interface, cfg.Port)
	fmt.Printf("  Worker:      %s (uno %s:%d)\n", cfg.Executable, cfg.UnoInterface, cfg.UnoPort)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.ConversionTimeout > 0 {
		fmt.Printf("  Timeout:     %s per request\n", cfg.ConversionTimeout)
	}
	if cfg.StopAfter > 0 {
		fmt.Printf("  Stop after:  %d requests\n", cfg.StopAfter)
	}
	fmt.Println(bannerMuted.Render("  Press Ctrl+C to stop."))
	fmt.Println()
}

// printSummary prints per-method latency stats collected during the run.
func printSummary(controller *service.Controller) {
	summaries := controller.LatencySummaries()
	if len(summaries) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Request summary:")
	for _, s := range summaries {
		fmt.Printf("  %-8s %6d served  p50 %s  p95 %s  p99 %s  max %s\n",
			s.Method, s.Count,
			roundLatency(s.P50), roundLatency(s.P95), roundLatency(s.P99), roundLatency(s.Max))
	}
}

func roundLatency(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// printWorkerCommand prints the office worker command that would be run.
func printWorkerCommand(cfg *config.Config) {
	runner := process.NewOfficeRunner(&process.OfficeConfig{
		BinaryPath:       cfg.Executable,
		UnoInterface:     cfg.UnoInterface,
		UnoPort:          cfg.UnoPort,
		UserInstallation: cfg.UserInstallation,
	})

	fmt.Println("# Office worker command that would be run:")
	fmt.Println()
	fmt.Println(runner.CommandString())
}
