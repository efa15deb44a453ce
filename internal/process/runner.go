// Package process provides abstractions for running the office worker process.
package process

import (
	"context"
	"os/exec"
)

// Runner creates the executable command for the worker process.
// This interface keeps the supervisor decoupled from office specifics.
type Runner interface {
	// BuildCommand returns a ready-to-start command for the worker.
	// The command is NOT started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
