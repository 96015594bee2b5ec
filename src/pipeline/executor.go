package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Executor runs a single stage command in the workspace.
type Executor struct {
	workspace string
}

// NewExecutor creates an executor rooted at workspace. Stage commands run
// with workspace as their working directory.
func NewExecutor(workspace string) *Executor {
	return &Executor{workspace: workspace}
}

// RunStage executes the stage command via `sh -c` and returns the combined
// stdout/stderr and the exit code. env entries are layered over the parent
// environment. A context deadline kills the command; that surfaces as a
// non-zero exit. err is non-nil only when the command could not be run at
// all (e.g. no shell), never for an ordinary non-zero exit.
func (e *Executor) RunStage(ctx context.Context, stage Stage, env map[string]string) (output string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", stage.Run)
	cmd.Dir = e.workspace

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range stage.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output = out.String()

	if runErr == nil {
		return output, 0, nil
	}

	// Deadline expiry fails the currently running stage.
	if ctx.Err() != nil {
		return output + "\n[run deadline exceeded]", -1, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}

	return output, -1, fmt.Errorf("failed to run stage %q: %w", stage.Name, runErr)
}
