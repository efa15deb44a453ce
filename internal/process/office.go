package process

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecutableCandidates is the ordered list of binary names tried when no
// explicit executable path is configured. soffice comes first: starting
// through the libreoffice wrapper has been seen to spin at 100% CPU, and
// ooffice is kept as a legacy fallback.
var ExecutableCandidates = []string{"soffice", "libreoffice", "ooffice"}

// OfficeConfig holds configuration for the office worker process.
type OfficeConfig struct {
	// BinaryPath is the path to the office executable.
	BinaryPath string

	// UnoInterface and UnoPort form the bridge address the worker
	// accepts automation connections on.
	UnoInterface string
	UnoPort      int

	// UserInstallation is the private profile directory. A dedicated
	// profile keeps the worker from fighting a desktop instance over
	// the profile lock.
	UserInstallation string
}

// OfficeRunner implements Runner for the office worker.
type OfficeRunner struct {
	config *OfficeConfig
}

// NewOfficeRunner creates a runner for the given configuration.
func NewOfficeRunner(cfg *OfficeConfig) *OfficeRunner {
	return &OfficeRunner{config: cfg}
}

// Name returns "office".
func (r *OfficeRunner) Name() string {
	return "office"
}

// AcceptSpec returns the accept argument handed to the worker, declaring
// the socket it opens for automation connections.
func (r *OfficeRunner) AcceptSpec() string {
	return fmt.Sprintf(
		"socket,host=%s,port=%d,tcpNoDelay=1;urp;StarOffice.ComponentContext",
		r.config.UnoInterface, r.config.UnoPort,
	)
}

// BuildCommand creates an exec.Cmd for the worker with the full headless
// flag vector. Only --headless and --norestore are strictly needed for
// command line use; the rest are there to be safe.
func (r *OfficeRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if r.config.BinaryPath == "" {
		return nil, fmt.Errorf("office executable not configured")
	}
	cmd := exec.CommandContext(ctx, r.config.BinaryPath, r.buildArgs()...)
	return cmd, nil
}

// buildArgs constructs the worker command-line arguments.
func (r *OfficeRunner) buildArgs() []string {
	return []string{
		"--headless",
		"--invisible",
		"--nocrashreport",
		"--nodefault",
		"--nologo",
		"--nofirststartwizard",
		"--norestore",
		fmt.Sprintf("-env:UserInstallation=%s", FileURI(r.config.UserInstallation)),
		fmt.Sprintf("--accept=%s", r.AcceptSpec()),
	}
}

// Config returns the office configuration.
func (r *OfficeRunner) Config() *OfficeConfig {
	return r.config
}

// CommandString returns the command that would be executed (for -print-cmd).
func (r *OfficeRunner) CommandString() string {
	return r.config.BinaryPath + " " + strings.Join(r.buildArgs(), " ")
}

// FindExecutable resolves the office binary, trying the explicit path first
// and falling back to the candidate names in PATH.
func FindExecutable(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("office executable %q: %w", explicit, err)
		}
		return path, nil
	}

	for _, name := range ExecutableCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no office executable found (tried %s)",
		strings.Join(ExecutableCandidates, ", "))
}

// FileURI converts a filesystem path to a file:// URI as the worker
// expects for its UserInstallation environment setting.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
