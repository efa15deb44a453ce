// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Config holds the inputs the checks need.
type Config struct {
	// Executable is the resolved office binary path.
	Executable string

	// UserInstallation is the worker profile directory.
	UserInstallation string

	// RPCAddr and UnoAddr are the listen/connect addresses to probe.
	// The UNO port must be free because the worker binds it.
	RPCAddr string
	UnoAddr string
}

// RunAll executes all preflight checks.
func RunAll(cfg Config) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkExecutable(cfg.Executable))
	add(checkProfileDir(cfg.UserInstallation))
	add(checkPortFree("rpc_port", cfg.RPCAddr))
	add(checkPortFree("uno_port", cfg.UnoAddr))

	return result
}

// checkExecutable verifies the office binary exists and looks runnable.
func checkExecutable(path string) Check {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    "office_executable",
			Passed:  false,
			Message: fmt.Sprintf("not found: %s (%v)", path, err),
		}
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return Check{
			Name:    "office_executable",
			Passed:  false,
			Message: fmt.Sprintf("not a regular file: %s", resolved),
		}
	}

	return Check{
		Name:    "office_executable",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", resolved),
	}
}

// checkProfileDir verifies the user installation directory can be created
// and written to. The worker refuses to start with a read-only profile.
func checkProfileDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "profile_dir",
			Passed:  true,
			Warning: true,
			Message: "not set (worker will use its default profile)",
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "profile_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return Check{
			Name:    "profile_dir",
			Passed:  false,
			Message: fmt.Sprintf("not writable: %s (%v)", dir, err),
		}
	}
	os.Remove(probe)

	return Check{
		Name:    "profile_dir",
		Passed:  true,
		Message: fmt.Sprintf("writable at %s", dir),
	}
}

// checkPortFree verifies nothing is already bound to addr.
func checkPortFree(name, addr string) Check {
	// Ephemeral ports are always fine.
	if strings.HasSuffix(addr, ":0") {
		return Check{Name: name, Passed: true, Message: "ephemeral"}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s already in use (%v)", addr, err),
		}
	}
	ln.Close()

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("%s free", addr),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "office_executable":
		return "install LibreOffice (apt install libreoffice / brew install libreoffice) or pass --executable"
	case "profile_dir":
		return "pass --user-installation pointing at a writable directory"
	case "rpc_port", "uno_port":
		return "stop the conflicting process or pick different ports"
	default:
		return "see documentation"
	}
}
