// Package toolexec runs the external tools e-webapp shells out to
// (mksquashfs, appimagetool, npm, toolbox) behind a narrow interface so
// orchestration code can be tested with fakes.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrToolFailed matches every *ToolError via errors.Is.
var ErrToolFailed = errors.New("external tool failed")

// maxOutput bounds how much captured tool output ends up in error messages.
const maxOutput = 2048

// Command describes a single external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string   // working directory; empty means the caller's
	Env  []string // extra KEY=VALUE pairs appended to the inherited environment
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands and returns their combined output.
// A non-zero exit is reported as a *ToolError.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ToolError reports an external tool that failed to start, exited
// non-zero, or was killed by a timeout.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int // -1 when the process never produced an exit status
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	var msg string
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	} else {
		msg = fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap returns the underlying exec or context error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrToolFailed) match any ToolError.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolFailed
}

// ExitCode extracts the exit status of a failed tool from err.
func ExitCode(err error) (int, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode > 0 {
		return toolErr.ExitCode, true
	}
	return 0, false
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds every invocation; zero means no limit beyond ctx.
	Timeout time.Duration
	// Stdout, when set, receives a live copy of the tool's output.
	Stdout io.Writer
	Logger *zap.Logger
}

// NewExecRunner creates a runner with the given per-invocation timeout.
func NewExecRunner(timeout time.Duration, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{Timeout: timeout, Logger: logger}
}

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}

	var out bytes.Buffer
	if r.Stdout != nil {
		c.Stdout = io.MultiWriter(&out, r.Stdout)
		c.Stderr = io.MultiWriter(&out, r.Stdout)
	} else {
		c.Stdout = &out
		c.Stderr = &out
	}

	start := time.Now()
	logger.Debug("running tool", zap.String("cmd", cmd.String()), zap.String("dir", cmd.Dir))

	err := c.Run()
	if err == nil {
		logger.Debug("tool finished", zap.String("tool", cmd.Name), zap.Duration("elapsed", time.Since(start)))
		return out.Bytes(), nil
	}

	toolErr := &ToolError{
		Tool:     cmd.Name,
		Args:     cmd.Args,
		ExitCode: -1,
		Output:   truncate(out.String()),
		Err:      err,
	}

	// A killed process reports an ExitError too, so check the context first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = ctxErr
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
	}

	logger.Warn("tool failed",
		zap.String("cmd", cmd.String()),
		zap.Int("exit_code", toolErr.ExitCode),
		zap.Error(toolErr.Err),
	)
	return out.Bytes(), toolErr
}

// LookPath reports whether name is an executable on PATH.
func LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

// truncate keeps the tail of long tool output, where the error usually is.
func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return "..." + s[len(s)-maxOutput:]
}
