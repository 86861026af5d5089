// Package billing periodically reports host statistics to a remote billing
// endpoint.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"mlrunner/pkg/api"
)

// StatusSource reports the current slot status for the snapshot.
type StatusSource interface {
	Status() (string, error)
}

// Reporter POSTs one HostSnapshot per interval. Failed submissions are
// logged and skipped; billing never disturbs the job path.
type Reporter struct {
	url      string
	interval time.Duration
	runnerID string
	source   StatusSource
	client   *http.Client
	log      *slog.Logger
	started  time.Time
}

// New creates a Reporter. An empty url disables reporting: Run returns
// immediately.
func New(url string, interval time.Duration, runnerID string, source StatusSource, log *slog.Logger) *Reporter {
	return &Reporter{
		url:      url,
		interval: interval,
		runnerID: runnerID,
		source:   source,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		started:  time.Now(),
	}
}

// Run submits snapshots until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	if r.url == "" {
		r.log.Info("billing reporting disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.report(ctx); err != nil {
				r.log.Warn("billing submission failed", "error", err)
			}
		}
	}
}

func (r *Reporter) report(ctx context.Context) error {
	body, err := json.Marshal(r.snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("billing endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (r *Reporter) snapshot() api.HostSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status, err := r.source.Status()
	if err != nil {
		status = "unknown"
	}

	return api.HostSnapshot{
		RunnerID:   r.runnerID,
		Timestamp:  time.Now().Unix(),
		UptimeSecs: int64(time.Since(r.started).Seconds()),
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		SlotStatus: status,
	}
}
