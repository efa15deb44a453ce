// Package config provides configuration management for officebridge.
package config

import "time"

// Config holds all configuration options for the service.
type Config struct {
	// RPC front end
	Interface string `yaml:"interface"`
	Port      int    `yaml:"port"`

	// Worker bridge endpoint (the address handed to the office process)
	UnoInterface string `yaml:"uno_interface"`
	UnoPort      int    `yaml:"uno_port"`

	// Worker process
	Executable       string        `yaml:"executable"`        // "" = auto-discover
	UserInstallation string        `yaml:"user_installation"` // "" = temp dir
	PidFile          string        `yaml:"pid_file"`
	GraceTimeout     time.Duration `yaml:"grace_timeout"`

	// Request handling
	ConversionTimeout time.Duration `yaml:"conversion_timeout"` // 0 = unbounded
	StopAfter         int           `yaml:"stop_after"`         // 0 = unlimited

	// Bridge connect retry policy
	RetryBudget       int           `yaml:"retry_budget"`
	RetryRefusedCost  int           `yaml:"retry_refused_cost"`
	RetryRefusedDelay time.Duration `yaml:"retry_refused_delay"`
	RetryOtherCost    int           `yaml:"retry_other_cost"`
	RetryOtherDelay   time.Duration `yaml:"retry_other_delay"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"` // "" = disabled
	Verbose     bool   `yaml:"verbose"`
	Quiet       bool   `yaml:"quiet"`
	LogFormat   string `yaml:"log_format"` // json, text

	// Diagnostic modes
	PrintCmd bool `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// The retry defaults reproduce the connection schedule the office worker
// needs during its slow startup: a refused connection only means the accept
// port is not open yet and costs 1 attempt with a short sleep, while any
// other dial error costs 4 attempts with a longer sleep.
func DefaultConfig() *Config {
	return &Config{
		// RPC front end
		Interface: "127.0.0.1",
		Port:      2003,

		// Worker bridge endpoint
		UnoInterface: "127.0.0.1",
		UnoPort:      2002,

		// Worker process
		GraceTimeout: 5 * time.Second,

		// Request handling
		ConversionTimeout: 0, // Unbounded
		StopAfter:         0, // Unlimited

		// Retry policy
		RetryBudget:       20,
		RetryRefusedCost:  1,
		RetryRefusedDelay: 2 * time.Second,
		RetryOtherCost:    4,
		RetryOtherDelay:   5 * time.Second,

		// Observability
		MetricsAddr: "",
		Verbose:     false,
		LogFormat:   "json",
	}
}
