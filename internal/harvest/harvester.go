// Package harvest reads the result document a task run leaves behind and
// converts it into a structured outcome.
package harvest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mlrunner/pkg/api"
)

// Result document locations relative to the harvested directory. The task
// contract requires documents to be published by temp-write + rename, so a
// file that exists is complete.
const (
	successDoc = "success/results.json"
	errorDoc   = "error/results.json"
)

// pollInterval is how often the harvester re-checks for a result document
// within its grace window.
const pollInterval = 100 * time.Millisecond

// document is the on-disk result schema shared by both variants; the error
// variant simply carries no metrics.
type document struct {
	TaskID          string            `json:"task_id"`
	Metrics         map[string]any    `json:"metrics"`
	Files           map[string]string `json:"files"`
	PkgName         string            `json:"pkg_name"`
	PretrainedModel string            `json:"pretrained_model,omitempty"`
}

// Harvester locates and decodes result documents.
type Harvester struct {
	// Grace is how long to keep polling for a document after the task
	// process exits before concluding there is none.
	Grace time.Duration

	Log *slog.Logger
}

// New creates a Harvester with the given grace window.
func New(grace time.Duration, log *slog.Logger) *Harvester {
	return &Harvester{Grace: grace, Log: log}
}

// Harvest looks for exactly one of the two result documents under dir and
// returns the decoded outcome. A missing document after the grace window is
// the valid "none" terminal state, logged but not an error.
func (h *Harvester) Harvest(ctx context.Context, dir string) (api.Outcome, error) {
	deadline := time.Now().Add(h.Grace)
	for {
		outcome, found, err := h.tryHarvest(dir)
		if err != nil {
			return api.Outcome{}, err
		}
		if found {
			return outcome, nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return api.Outcome{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	h.Log.Warn("no result document found", "dir", dir)
	return api.Outcome{Status: api.OutcomeNone}, nil
}

func (h *Harvester) tryHarvest(dir string) (api.Outcome, bool, error) {
	doc, err := readDocument(filepath.Join(dir, successDoc))
	if err == nil {
		outcome, err := h.decode(doc, api.OutcomeSuccess)
		return outcome, err == nil, err
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return api.Outcome{}, false, err
	}

	doc, err = readDocument(filepath.Join(dir, errorDoc))
	if err == nil {
		doc.Metrics = nil
		outcome, err := h.decode(doc, api.OutcomeError)
		return outcome, err == nil, err
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return api.Outcome{}, false, err
	}

	return api.Outcome{}, false, nil
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("corrupt result document %s: %w", path, err)
	}
	return doc, nil
}

func (h *Harvester) decode(doc document, status string) (api.Outcome, error) {
	outcome := api.Outcome{
		Status:          status,
		TaskID:          doc.TaskID,
		PkgName:         doc.PkgName,
		PretrainedModel: doc.PretrainedModel,
		Metrics:         []api.Metric{},
		Files:           []api.FileBlob{},
	}

	for name, value := range doc.Metrics {
		outcome.Metrics = append(outcome.Metrics, api.Metric{Name: name, Value: value})
	}
	// Map order is random; keep output stable for callers and tests.
	sort.Slice(outcome.Metrics, func(i, j int) bool {
		return outcome.Metrics[i].Name < outcome.Metrics[j].Name
	})

	for name, encoded := range doc.Files {
		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return api.Outcome{}, fmt.Errorf("file %s: invalid base64: %w", name, err)
		}
		outcome.Files = append(outcome.Files, api.FileBlob{
			Name:      name,
			Extension: extensionOf(name),
			Size:      len(content),
			Content:   content,
		})
	}
	sort.Slice(outcome.Files, func(i, j int) bool {
		return outcome.Files[i].Name < outcome.Files[j].Name
	})

	return outcome, nil
}

// extensionOf returns the substring after the final dot, or "" when the
// name has no extension.
func extensionOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}
