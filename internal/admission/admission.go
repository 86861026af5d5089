// Package admission gates task execution against a durable pool of worker slots.
package admission

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDenied is returned by Acquire when no worker slot is free.
var ErrDenied = errors.New("no worker slot available")

// Status values reported by Controller.Status.
const (
	StatusAvailable = "available"
	StatusOccupied  = "occupied"
)

// Store persists the slot count across daemon restarts. Load reports
// whether a record exists at all: a persisted 0 (every slot held) and a
// missing record must not look alike, or a restart would re-seed slots
// that live tasks still hold.
type Store interface {
	Load() (count int, exists bool, err error)
	Save(count int) error
}

// Controller owns the worker-slot counter. All mutations go through its
// mutex and are written to the Store before the lock is released, so
// concurrent Acquire/Release calls can never lose updates.
type Controller struct {
	mu    sync.Mutex
	store Store
	log   *slog.Logger
}

// New creates a Controller backed by the given store.
func New(store Store, log *slog.Logger) *Controller {
	return &Controller{store: store, log: log}
}

// Seed initializes the slot capacity. When force is false, any existing
// record is kept — including a persisted 0 — so a restart does not reset
// slots held by tasks that survived the daemon.
func (c *Controller) Seed(slots int, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force {
		current, exists, err := c.store.Load()
		if err != nil {
			return fmt.Errorf("failed to load slot count: %w", err)
		}
		if exists {
			c.log.Info("keeping persisted slot count", "slots", current)
			return nil
		}
	}

	if err := c.store.Save(slots); err != nil {
		return fmt.Errorf("failed to seed slot count: %w", err)
	}
	c.log.Info("seeded slot count", "slots", slots)
	return nil
}

// Acquire takes one slot. It returns ErrDenied when the count is zero
// or below; the count is never mutated on a denied acquire.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, _, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load slot count: %w", err)
	}
	if count <= 0 {
		return ErrDenied
	}
	if err := c.store.Save(count - 1); err != nil {
		return fmt.Errorf("failed to save slot count: %w", err)
	}
	c.log.Debug("slot acquired", "remaining", count-1)
	return nil
}

// Release returns one slot to the pool.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, _, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load slot count: %w", err)
	}
	if err := c.store.Save(count + 1); err != nil {
		return fmt.Errorf("failed to save slot count: %w", err)
	}
	c.log.Debug("slot released", "remaining", count+1)
	return nil
}

// Status reports StatusAvailable iff at least one slot is free.
func (c *Controller) Status() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, _, err := c.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load slot count: %w", err)
	}
	if count > 0 {
		return StatusAvailable, nil
	}
	return StatusOccupied, nil
}

// Slots returns the current free-slot count.
func (c *Controller) Slots() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count, _, err := c.store.Load()
	return count, err
}
