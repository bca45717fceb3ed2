package fio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubBinary writes an executable shell script standing in for fio.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fio")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestExecuteParsesOutput(t *testing.T) {
	exec := &Executor{Binary: stubBinary(t,
		`echo '{"jobs":[{"jobname":"seqread","read":{"io_bytes":4096}}]}'`)}
	config := mustParse(t, "[global]\nruntime=1\n[seqread]\nrw=read\n")

	result, err := exec.Execute(context.Background(), config, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if names := result.JobNames(); len(names) != 1 || names[0] != "seqread" {
		t.Errorf("JobNames() = %v, want [seqread]", names)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	exec := &Executor{Binary: stubBinary(t,
		`echo "permission denied" >&2; exit 1`)}
	config := mustParse(t, "[seqread]\nrw=read\n")

	result, err := exec.Execute(context.Background(), config, t.TempDir())
	if result != nil {
		t.Error("Execute() returned a partial result alongside the error")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %T (%v), want *ExecutionError", err, err)
	}
	if execErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", execErr.ExitCode)
	}
	if got := strings.TrimSpace(execErr.Stderr); got != "permission denied" {
		t.Errorf("Stderr = %q, want %q", got, "permission denied")
	}
}

func TestExecuteReceivesMaterializedConfig(t *testing.T) {
	// The stub echoes its config file back inside a JSON string-free check:
	// it greps for a marker option that only exists in the materialized
	// config.
	exec := &Executor{Binary: stubBinary(t,
		`grep -q "rw=randwrite" "$4" || { echo "missing config" >&2; exit 2; }
echo '{"jobs":[]}'`)}
	config := mustParse(t, "[randwrite]\nrw=randwrite\n")

	if _, err := exec.Execute(context.Background(), config, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	exec := &Executor{Binary: filepath.Join(t.TempDir(), "does-not-exist")}
	config := mustParse(t, "[seqread]\nrw=read\n")

	_, err := exec.Execute(context.Background(), config, t.TempDir())
	if err == nil {
		t.Fatal("Execute() expected error for missing binary")
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Error("missing binary must not be reported as an ExecutionError")
	}
}
