package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testExecutor() *Executor {
	return NewExecutor(Translator{}, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLaunch_StreamsAllLinesInOrder(t *testing.T) {
	e := testExecutor()

	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "echo one; echo two; echo three"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	var lines []string
	for line := range rt.Lines() {
		lines = append(lines, line)
	}

	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %v, want %v", len(lines), lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	code, err := rt.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestLaunch_MergesStderr(t *testing.T) {
	e := testExecutor()

	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "echo out; echo err 1>&2"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	seen := map[string]bool{}
	for line := range rt.Lines() {
		seen[line] = true
	}
	if !seen["out"] || !seen["err"] {
		t.Errorf("expected both stdout and stderr lines, got %v", seen)
	}
	rt.Wait(context.Background())
}

func TestLaunch_NonZeroExitCode(t *testing.T) {
	e := testExecutor()

	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "exit 3"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	for range rt.Lines() {
	}
	code, err := rt.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestLaunch_StartFailure(t *testing.T) {
	e := testExecutor()

	_, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"definitely-not-a-binary-xyz"})
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("launch error = %v, want ErrLaunchFailed", err)
	}
}

func TestLaunch_DeadlineKillsProcess(t *testing.T) {
	e := testExecutor()
	e.Timeout = 100 * time.Millisecond

	start := time.Now()
	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "sleep 30"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	for range rt.Lines() {
	}
	code, _ := rt.Wait(context.Background())
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("task outlived its deadline by %v", elapsed)
	}
	if code == 0 {
		t.Errorf("exit code = 0 for a killed task")
	}
}

func TestLaunch_LinesCloseOnlyAfterDrain(t *testing.T) {
	e := testExecutor()

	// Output written just before exit must still be delivered.
	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "for i in 1 2 3 4 5; do echo line$i; done"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	// Give the process time to exit before we start reading.
	time.Sleep(200 * time.Millisecond)

	count := 0
	for range rt.Lines() {
		count++
	}
	if count != 5 {
		t.Errorf("drained %d lines, want 5", count)
	}
	rt.Wait(context.Background())
}

func TestLaunch_OverlongLineDoesNotWedgeTask(t *testing.T) {
	e := testExecutor()

	// A single line past the scanner cap stops the line stream; the rest
	// of the output must still be swallowed so the child can exit.
	rt, err := e.launch(context.Background(), Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "echo before; head -c 2000000 /dev/zero | tr '\\0' x; echo; echo after"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	var lines []string
	for line := range rt.Lines() {
		lines = append(lines, line)
	}
	if len(lines) == 0 || lines[0] != "before" {
		t.Fatalf("lines = %v, want to start with %q", lines, "before")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := rt.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Wait hung after over-long line")
	}
	if err == nil {
		t.Error("expected a truncation error from Wait")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestLaunch_AbandonedConsumerStillReapsChild(t *testing.T) {
	e := testExecutor()
	e.LineBuffer = 1

	ctx, cancel := context.WithCancel(context.Background())
	rt, err := e.launch(ctx, Spec{BaseDir: t.TempDir()},
		[]string{"sh", "-c", "while :; do echo line; done"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	// Read a couple of lines, then walk away like a disconnected client.
	<-rt.Lines()
	<-rt.Lines()
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	code, err := rt.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Wait hung after the consumer stopped reading")
	}
	if code == 0 {
		t.Errorf("exit code = 0 for a killed task")
	}
}

func TestRun_RejectsInvalidSpec(t *testing.T) {
	e := testExecutor()

	_, err := e.Run(context.Background(), Spec{JobID: "nope"})
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
