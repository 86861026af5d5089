package admission

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return New(store, testLogger())
}

func TestAcquire_DeniedAtZero(t *testing.T) {
	c := newTestController(t)

	if err := c.Acquire(); !errors.Is(err, ErrDenied) {
		t.Fatalf("Acquire on empty pool = %v, want ErrDenied", err)
	}

	// A denied acquire must not mutate the count.
	slots, err := c.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 0 {
		t.Errorf("slots after denied acquire = %d, want 0", slots)
	}
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	c := newTestController(t)
	if err := c.Seed(3, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Acquire(); err != nil {
			t.Fatalf("Acquire #%d failed: %v", i, err)
		}
	}
	if err := c.Acquire(); !errors.Is(err, ErrDenied) {
		t.Fatalf("Acquire past capacity = %v, want ErrDenied", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Release(); err != nil {
			t.Fatalf("Release #%d failed: %v", i, err)
		}
	}

	slots, err := c.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 3 {
		t.Errorf("slots after N acquires + N releases = %d, want 3", slots)
	}
}

func TestAcquireRelease_Concurrent(t *testing.T) {
	c := newTestController(t)
	if err := c.Seed(100, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Acquire(); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			if err := c.Release(); err != nil {
				t.Errorf("Release failed: %v", err)
			}
		}()
	}
	wg.Wait()

	slots, err := c.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 100 {
		t.Errorf("slots after concurrent round trips = %d, want 100 (lost update)", slots)
	}
}

func TestStatus(t *testing.T) {
	c := newTestController(t)

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != StatusOccupied {
		t.Errorf("Status on empty pool = %s, want %s", status, StatusOccupied)
	}

	if err := c.Seed(1, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	status, err = c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != StatusAvailable {
		t.Errorf("Status with one slot = %s, want %s", status, StatusAvailable)
	}
}

func TestSeed_KeepsPersistedValue(t *testing.T) {
	c := newTestController(t)
	if err := c.Seed(4, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := c.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// A non-forced reseed must not clobber the live count.
	if err := c.Seed(4, false); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	slots, err := c.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 3 {
		t.Errorf("slots after non-forced reseed = %d, want 3", slots)
	}
}

func TestFileStore_RecoversAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	c := New(store, testLogger())
	if err := c.Seed(5, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := c.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Simulated restart: fresh store and controller on the same directory.
	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore after restart failed: %v", err)
	}
	c2 := New(store2, testLogger())

	slots, err := c2.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 4 {
		t.Errorf("slots after restart = %d, want 4", slots)
	}
}

func TestFileStore_MissingFileLoadsZero(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	count, exists, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if count != 0 || exists {
		t.Errorf("Load on missing file = (%d, %v), want (0, false)", count, exists)
	}
}

func TestFileStore_PersistedZeroExists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Save(0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	count, exists, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if count != 0 || !exists {
		t.Errorf("Load on persisted zero = (%d, %v), want (0, true)", count, exists)
	}
}

func TestSeed_KeepsPersistedZeroAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	c := New(store, testLogger())
	if err := c.Seed(2, true); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Acquire(); err != nil {
			t.Fatalf("Acquire #%d failed: %v", i, err)
		}
	}

	// Simulated crash with every slot held: a non-forced reseed must not
	// hand the surviving tasks' slots back out.
	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore after restart failed: %v", err)
	}
	c2 := New(store2, testLogger())
	if err := c2.Seed(2, false); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	slots, err := c2.Slots()
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if slots != 0 {
		t.Errorf("slots after restart with all slots held = %d, want 0", slots)
	}
}
