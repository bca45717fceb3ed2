package fio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const configName = "fio.ini"

// ExecutionError reports a non-zero fio exit together with the captured
// stdio so the caller can surface the diagnostics. It is not retried here.
type ExecutionError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("fio exited with code %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Executor invokes the external fio binary against a target directory.
type Executor struct {
	// Binary is the executable to invoke. Defaults to "fio" from PATH.
	Binary string
}

// NewExecutor returns an executor bound to the fio binary on PATH.
func NewExecutor() *Executor {
	return &Executor{Binary: "fio"}
}

// Execute materializes config into a scoped temporary directory, runs fio
// against dir and parses the JSON document from stdout. The temporary
// workspace is removed on every exit path; it is owned exclusively by this
// one execution and never shared.
func (e *Executor) Execute(ctx context.Context, config *Config, dir string) (*Result, error) {
	tmp, err := os.MkdirTemp("", "fiobench-*")
	if err != nil {
		return nil, fmt.Errorf("create temp workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	configPath := filepath.Join(tmp, configName)
	if err := os.WriteFile(configPath, []byte(config.Contents()), 0o644); err != nil {
		return nil, fmt.Errorf("materialize config: %w", err)
	}

	binary := e.Binary
	if binary == "" {
		binary = "fio"
	}

	cmd := exec.CommandContext(ctx, binary, "--output-format=json", "--directory", dir, configPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExecutionError{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("run %s: %w", binary, err)
	}
	return ParseResult(stdout.Bytes())
}
