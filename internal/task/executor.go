// Package task builds, launches, and streams training-task invocations.
package task

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// ErrLaunchFailed is returned when the task process cannot be started.
var ErrLaunchFailed = errors.New("task failed to launch")

// Executor launches training tasks as child processes with merged
// stdout/stderr and exposes their output as a line stream.
type Executor struct {
	// Translator maps request paths between filesystem views.
	Translator Translator

	// Timeout bounds one task execution. Zero disables the deadline.
	Timeout time.Duration

	// LineBuffer is the capacity of the output channel; a full buffer
	// applies backpressure to the child through the pipe.
	LineBuffer int

	Log *slog.Logger
}

// NewExecutor creates an Executor with the default line buffer.
func NewExecutor(tr Translator, timeout time.Duration, log *slog.Logger) *Executor {
	return &Executor{
		Translator: tr,
		Timeout:    timeout,
		LineBuffer: 256,
		Log:        log,
	}
}

// RunningTask is a live task process. Its line channel is owned by the
// caller that created it and closes only after the process has exited and
// all buffered output has been drained.
type RunningTask struct {
	lines chan string
	done  chan struct{}

	exitCode int
	waitErr  error
	scanErr  error
}

// Lines returns the task's merged output, one line at a time. The channel
// closing is the completion signal; there is no other "more output" probe.
func (t *RunningTask) Lines() <-chan string {
	return t.lines
}

// Wait blocks until the process has exited and its output has been fully
// drained, then returns the exit code.
func (t *RunningTask) Wait(ctx context.Context) (int, error) {
	select {
	case <-t.done:
		return t.exitCode, t.waitErr
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Run validates and launches the invocation described by spec. The child's
// working directory is the job base directory in the local view. A start
// failure returns ErrLaunchFailed and no RunningTask.
func (e *Executor) Run(ctx context.Context, spec Spec) (*RunningTask, error) {
	args, err := spec.BuildArgs(e.Translator)
	if err != nil {
		return nil, fmt.Errorf("invalid invocation: %w", err)
	}
	return e.launch(ctx, spec, args)
}

func (e *Executor) launch(ctx context.Context, spec Spec, args []string) (*RunningTask, error) {
	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if e.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = e.Translator.ToLocal(spec.BaseDir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	e.Log.Info("task launched",
		"job_id", spec.JobID, "task_id", spec.TaskID, "task", spec.TaskName, "pid", cmd.Process.Pid)

	t := &RunningTask{
		lines: make(chan string, e.LineBuffer),
		done:  make(chan struct{}),
	}

	scanDone := make(chan struct{})

	// Producer: drain the merged pipe into the bounded channel. The send
	// blocks when the consumer falls behind, which in turn blocks the
	// child on its stdout. The pipe must reach EOF on every path, or the
	// child wedges on a full pipe and Wait never returns.
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case t.lines <- scanner.Text():
			case <-runCtx.Done():
				// Consumer is gone and the child is being killed;
				// drain the rest so Wait can reap it.
				io.Copy(io.Discard, stdout)
				return
			}
		}
		if err := scanner.Err(); err != nil {
			// An over-long line stops the scanner mid-stream. Swallow
			// the remaining output and surface the truncation.
			t.scanErr = fmt.Errorf("output stream truncated: %w", err)
			e.Log.Warn("task output scan aborted",
				"job_id", spec.JobID, "task_id", spec.TaskID, "error", err)
			io.Copy(io.Discard, stdout)
		}
	}()

	// Waiter: the pipe must be drained before Wait closes it.
	go func() {
		defer cancel()
		<-scanDone
		close(t.lines)

		err := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			t.exitCode = 0
		case errors.As(err, &exitErr):
			t.exitCode = exitErr.ExitCode()
		default:
			t.exitCode = -1
			t.waitErr = err
		}
		if t.waitErr == nil && t.scanErr != nil {
			t.waitErr = t.scanErr
		}

		if deadlineErr := runCtx.Err(); errors.Is(deadlineErr, context.DeadlineExceeded) {
			e.Log.Warn("task killed on deadline",
				"job_id", spec.JobID, "task_id", spec.TaskID, "timeout", e.Timeout)
		}
		e.Log.Info("task exited",
			"job_id", spec.JobID, "task_id", spec.TaskID, "exit_code", t.exitCode)
		close(t.done)
	}()

	return t, nil
}
