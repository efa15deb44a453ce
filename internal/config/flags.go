package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
// A -config YAML file, if given, is loaded first so that explicit flags
// override values from the file.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	// The config file has to be loaded before the remaining flags are
	// registered, so their defaults come from the file.
	if path := peekConfigPath(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("officebridge", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs, os.Stderr) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to a YAML configuration file")

	// RPC front end
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "Interface the RPC server binds to")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port the RPC server binds to")

	// Worker bridge endpoint
	fs.StringVar(&cfg.UnoInterface, "uno-interface", cfg.UnoInterface, "Interface the office worker accepts bridge connections on")
	fs.IntVar(&cfg.UnoPort, "uno-port", cfg.UnoPort, "Port the office worker accepts bridge connections on")

	// Worker process
	fs.StringVar(&cfg.Executable, "executable", cfg.Executable, "Path to the office executable (default: look in PATH)")
	fs.StringVar(&cfg.UserInstallation, "user-installation", cfg.UserInstallation, "Path to the office user profile directory")
	fs.StringVar(&cfg.PidFile, "pid-file", cfg.PidFile, "If set, write the worker PID to this file")
	fs.DurationVar(&cfg.GraceTimeout, "grace-timeout", cfg.GraceTimeout, "How long to wait for the worker to exit before force-killing it")

	// Request handling
	fs.DurationVar(&cfg.ConversionTimeout, "conversion-timeout", cfg.ConversionTimeout, "Terminate the worker and exit if a request does not complete in this time (0 = unbounded)")
	fs.IntVar(&cfg.StopAfter, "stop-after", cfg.StopAfter, "Terminate the worker and exit after this many requests (0 = unlimited)")

	// Retry policy
	fs.IntVar(&cfg.RetryBudget, "retry-budget", cfg.RetryBudget, "Total attempt budget for connecting to the worker")
	fs.IntVar(&cfg.RetryRefusedCost, "retry-refused-cost", cfg.RetryRefusedCost, "Budget cost of a connection-refused dial error")
	fs.DurationVar(&cfg.RetryRefusedDelay, "retry-refused-delay", cfg.RetryRefusedDelay, "Sleep after a connection-refused dial error")
	fs.IntVar(&cfg.RetryOtherCost, "retry-other-cost", cfg.RetryOtherCost, "Budget cost of any other dial error")
	fs.DurationVar(&cfg.RetryOtherDelay, "retry-other-delay", cfg.RetryOtherDelay, "Sleep after any other dial error")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Only log errors")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the office worker command and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// peekConfigPath scans args for -config without running the full flag parse.
func peekConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return arg[len("--config="):]
		case strings.HasPrefix(arg, "-config="):
			return arg[len("-config="):]
		}
	}
	return ""
}

// printUsage prints a categorized usage message.
func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `officebridge - RPC front end for a headless office worker process

Usage:
  officebridge [flags]

RPC Server:
`)
	printFlagCategory(fs, w, []string{"interface", "port"})

	fmt.Fprintf(w, "\nWorker Process:\n")
	printFlagCategory(fs, w, []string{"executable", "user-installation", "uno-interface", "uno-port", "pid-file", "grace-timeout"})

	fmt.Fprintf(w, "\nRequest Handling:\n")
	printFlagCategory(fs, w, []string{"conversion-timeout", "stop-after"})

	fmt.Fprintf(w, "\nStartup Retry Policy:\n")
	printFlagCategory(fs, w, []string{"retry-budget", "retry-refused-cost", "retry-refused-delay", "retry-other-cost", "retry-other-delay"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(fs, w, []string{"metrics", "v", "quiet", "log-format"})

	fmt.Fprintf(w, "\nDiagnostics:\n")
	printFlagCategory(fs, w, []string{"print-cmd", "config"})

	fmt.Fprintf(w, `
Examples:
  # Serve on the defaults (RPC on 127.0.0.1:2003, worker bridge on 127.0.0.1:2002)
  officebridge

  # Bounded request latency, auto-stop after 500 requests
  officebridge -conversion-timeout 30s -stop-after 500

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s\n    \t%s", f.Name, f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}
