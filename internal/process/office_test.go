package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig() *OfficeConfig {
	return &OfficeConfig{
		BinaryPath:       "/usr/bin/soffice",
		UnoInterface:     "127.0.0.1",
		UnoPort:          2002,
		UserInstallation: "/tmp/officebridge-profile",
	}
}

func TestAcceptSpec(t *testing.T) {
	r := NewOfficeRunner(testConfig())

	want := "socket,host=127.0.0.1,port=2002,tcpNoDelay=1;urp;StarOffice.ComponentContext"
	if got := r.AcceptSpec(); got != want {
		t.Errorf("AcceptSpec() = %q, want %q", got, want)
	}
}

func TestBuildArgs(t *testing.T) {
	r := NewOfficeRunner(testConfig())
	args := r.buildArgs()

	wantFlags := []string{
		"--headless",
		"--invisible",
		"--nocrashreport",
		"--nodefault",
		"--nologo",
		"--nofirststartwizard",
		"--norestore",
	}
	for i, want := range wantFlags {
		if args[i] != want {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want)
		}
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-env:UserInstallation=file:///tmp/officebridge-profile") {
		t.Errorf("missing user installation env arg: %s", joined)
	}
	if !strings.Contains(joined, "--accept=socket,host=127.0.0.1,port=2002") {
		t.Errorf("missing accept arg: %s", joined)
	}
}

func TestBuildCommand(t *testing.T) {
	r := NewOfficeRunner(testConfig())

	cmd, err := r.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}
	if cmd.Path != "/usr/bin/soffice" {
		t.Errorf("cmd.Path = %q", cmd.Path)
	}
	// Args[0] is the binary itself.
	if len(cmd.Args) != 10 {
		t.Errorf("len(cmd.Args) = %d, want 10", len(cmd.Args))
	}
}

func TestBuildCommandNoBinary(t *testing.T) {
	r := NewOfficeRunner(&OfficeConfig{UnoInterface: "127.0.0.1", UnoPort: 2002})
	if _, err := r.BuildCommand(context.Background()); err == nil {
		t.Error("expected error for empty binary path")
	}
}

func TestCommandString(t *testing.T) {
	r := NewOfficeRunner(testConfig())
	s := r.CommandString()
	if !strings.HasPrefix(s, "/usr/bin/soffice --headless") {
		t.Errorf("CommandString() = %q", s)
	}
}

func TestFindExecutable(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit path missing", func(t *testing.T) {
		if _, err := FindExecutable(filepath.Join(dir, "nope")); err == nil {
			t.Error("expected error for missing explicit executable")
		}
	})

	t.Run("explicit path found", func(t *testing.T) {
		bin := filepath.Join(dir, "soffice")
		if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		got, err := FindExecutable(bin)
		if err != nil {
			t.Fatalf("FindExecutable: %v", err)
		}
		if got != bin {
			t.Errorf("FindExecutable = %q, want %q", got, bin)
		}
	})

	t.Run("candidate lookup in PATH", func(t *testing.T) {
		pathDir := t.TempDir()
		bin := filepath.Join(pathDir, "libreoffice")
		if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		t.Setenv("PATH", pathDir)
		got, err := FindExecutable("")
		if err != nil {
			t.Fatalf("FindExecutable: %v", err)
		}
		if got != bin {
			t.Errorf("FindExecutable = %q, want %q", got, bin)
		}
	})

	t.Run("soffice wins over libreoffice", func(t *testing.T) {
		pathDir := t.TempDir()
		for _, name := range []string{"soffice", "libreoffice"} {
			if err := os.WriteFile(filepath.Join(pathDir, name), []byte("#!/bin/sh\n"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		t.Setenv("PATH", pathDir)
		got, err := FindExecutable("")
		if err != nil {
			t.Fatalf("FindExecutable: %v", err)
		}
		if got != filepath.Join(pathDir, "soffice") {
			t.Errorf("FindExecutable = %q, want soffice", got)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		if _, err := FindExecutable(""); err == nil {
			t.Error("expected error when no candidate exists")
		}
	})
}

func TestFileURI(t *testing.T) {
	if got := FileURI("/var/lib/officebridge"); got != "file:///var/lib/officebridge" {
		t.Errorf("FileURI = %q", got)
	}
}

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.pid")

	if err := WritePidFile(path, 4321); err != nil {
		t.Fatalf("WritePidFile: %v", err)
	}
	pid, err := ReadPidFile(path)
	if err != nil {
		t.Fatalf("ReadPidFile: %v", err)
	}
	if pid != 4321 {
		t.Errorf("pid = %d, want 4321", pid)
	}

	if err := RemovePidFile(path); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}
	// Removing again must stay silent.
	if err := RemovePidFile(path); err != nil {
		t.Errorf("second RemovePidFile: %v", err)
	}
}
