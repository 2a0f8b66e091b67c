// Package command runs external tools. Sensors and the actuator depend on
// the Runner interface so tests never execute a real privileged command.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/fanctl/internal/errors"
)

// Runner executes a program and returns its standard output.
// A non-zero exit status is reported as *ExitError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExitError is returned when a command ran but exited non-zero
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

type execRunner struct {
	timeout time.Duration
}

// NewExec returns a Runner backed by os/exec. Each call is bounded by
// timeout when it is positive.
func NewExec(timeout time.Duration) Runner {
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctx.Err() != nil {
		return stdout.Bytes(), errors.New().Wrap(errors.ErrTimeout, ctx.Err()).WithData(Format(name, args...))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), &ExitError{
			Command:  Format(name, args...),
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	return stdout.Bytes(), errors.New().Wrap(errors.ErrOperationFailed, err).WithData(Format(name, args...))
}

func (*execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Format renders a command line for logs
func Format(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
