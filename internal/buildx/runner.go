package buildx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// ExitCommandNotFound is the status reported when the build tool binary
// cannot be started, matching what a POSIX shell returns.
const ExitCommandNotFound = 127

// Runner executes an assembled invocation.
type Runner interface {
	Run(ctx context.Context, inv model.Invocation) error
}

// ExecRunner runs the invocation as a child process. Output is streamed
// to Stdout/Stderr as it is produced, so the build tool's progress
// display and diagnostics reach the user unchanged.
type ExecRunner struct {
	// Stdin, Stdout and Stderr are attached to the child. Nil values fall
	// back to the current process's streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives start/finish records. Nil disables logging.
	Logger *zap.Logger
}

// NewExecRunner returns an ExecRunner wired to the process's own stdio.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// Run starts inv and waits for it to exit.
//
// A non-zero exit yields a *model.BuildFailedError whose Code is the
// child's exit status. If the executable cannot be started the Code is
// ExitCommandNotFound. Cancelling ctx kills the child; the resulting error
// is also a BuildFailedError.
func (r *ExecRunner) Run(ctx context.Context, inv model.Invocation) error {
	if inv.Executable == "" {
		return model.NewCLIError(model.ExitGeneralError, "command executable can not be empty")
	}

	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// nolint:gosec
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Stdin = orReader(r.Stdin, os.Stdin)
	cmd.Stdout = orWriter(r.Stdout, os.Stdout)
	cmd.Stderr = orWriter(r.Stderr, os.Stderr)

	logger.Debug("starting build tool", zap.String("command", inv.String()), zap.String("dir", inv.Dir))
	start := time.Now()

	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		logger.Debug("build tool finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code <= 0 {
			// Terminated by a signal (e.g. context cancellation).
			code = int(model.ExitGeneralError)
		}
		logger.Debug("build tool failed",
			zap.Int("exitCode", code), zap.Duration("elapsed", elapsed), zap.Error(ctx.Err()))
		return &model.BuildFailedError{Code: code, Command: inv.String(), Err: err}
	}

	logger.Debug("build tool could not be started", zap.Error(err))
	return &model.BuildFailedError{
		Code:    ExitCommandNotFound,
		Command: inv.String(),
		Err:     fmt.Errorf("failed to start %s: %w", inv.Executable, err),
	}
}

func orReader(r io.Reader, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// DryRunner prints the shell-quoted command line instead of running it.
type DryRunner struct {
	Out io.Writer
}

// Run writes inv as one line to Out.
func (d *DryRunner) Run(_ context.Context, inv model.Invocation) error {
	out := orWriter(d.Out, os.Stdout)
	_, err := fmt.Fprintln(out, inv.String())
	return err
}
