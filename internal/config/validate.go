package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
// It runs before any process is spawned.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("must be in [0, 65535] (got %d)", cfg.Port),
		})
	}

	if cfg.UnoPort < 0 || cfg.UnoPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "uno_port",
			Message: fmt.Sprintf("must be in [0, 65535] (got %d)", cfg.UnoPort),
		})
	}

	// The RPC server and the worker's accept port cannot share an address.
	// Port 0 means "pick an ephemeral port" and is exempt.
	if cfg.Port != 0 && cfg.Port == cfg.UnoPort {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("port and uno_port must be different (both %d)", cfg.Port),
		})
	}

	if cfg.ConversionTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "conversion_timeout",
			Message: "must not be negative",
		})
	}

	if cfg.StopAfter < 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_after",
			Message: "must not be negative",
		})
	}

	if cfg.GraceTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace_timeout",
			Message: "must be positive",
		})
	}

	// Retry policy: the budget has to be exhaustible.
	if cfg.RetryBudget < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry_budget",
			Message: "must be at least 1",
		})
	}
	if cfg.RetryRefusedCost < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry_refused_cost",
			Message: "must be at least 1",
		})
	}
	if cfg.RetryOtherCost < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry_other_cost",
			Message: "must be at least 1",
		})
	}
	if cfg.RetryRefusedDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry_refused_delay",
			Message: "must not be negative",
		})
	}
	if cfg.RetryOtherDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry_other_delay",
			Message: "must not be negative",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.Verbose && cfg.Quiet {
		errs = append(errs, ValidationError{
			Field:   "quiet",
			Message: "cannot combine -v and -quiet",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
