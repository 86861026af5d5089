// Package environment provisions per-job workspaces: directory layout plus
// dataset/model content materialized from their source repositories.
package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mlrunner/pkg/api"
)

// SetupError wraps a materialization failure during Setup. The job's
// directories have already been torn down when it is returned.
type SetupError struct {
	JobID string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("environment setup failed for job %s: %v", e.JobID, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// PrepareError wraps a re-fetch or upload-copy failure during Prepare.
// No cleanup has happened; the environment may be retried.
type PrepareError struct {
	JobID string
	Err   error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("environment prepare failed for job %s: %v", e.JobID, e.Err)
}

func (e *PrepareError) Unwrap() error { return e.Err }

// Materializer populates a local directory with the content of a named
// repository reference, optionally at a specific branch.
type Materializer interface {
	Clone(ctx context.Context, ref, branch, dest string) error
	Fetch(ctx context.Context, ref, branch, dest string) error
}

// Remover tears down a job's directories. Satisfied by lifecycle.Control.
type Remover interface {
	Remove(jobID string) error
}

// Dirs is the directory layout of one job workspace.
type Dirs struct {
	Base    string
	Dataset string
	Model   string
}

// Manager computes and creates job workspaces under a results root.
type Manager struct {
	root         string
	materializer Materializer
	remover      Remover
	log          *slog.Logger
}

// NewManager creates a Manager rooted at root.
func NewManager(root string, m Materializer, r Remover, log *slog.Logger) *Manager {
	return &Manager{root: root, materializer: m, remover: r, log: log}
}

// PrepareDirectories computes the job layout and creates any missing
// directories. Existing directories are left untouched, so repeated calls
// are safe.
func (m *Manager) PrepareDirectories(jobID, datasetName, modelName string) (Dirs, error) {
	dirs := Dirs{
		Base:    filepath.Join(m.root, jobID),
		Dataset: filepath.Join(m.root, jobID, datasetName),
		Model:   filepath.Join(m.root, jobID, modelName),
	}
	for _, dir := range []string{dirs.Dataset, dirs.Model} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Dirs{}, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// Setup clones the dataset and model into a fresh job workspace. On any
// materialization failure the job's directories are removed before the
// error surfaces, so a failed setup never leaves a half-populated tree.
func (m *Manager) Setup(ctx context.Context, jobID string, dataset, model api.RepoRef) error {
	dirs, err := m.PrepareDirectories(jobID, dataset.Name, model.Name)
	if err != nil {
		return &SetupError{JobID: jobID, Err: err}
	}

	if err := m.materializer.Clone(ctx, dataset.Name, dataset.Branch, dirs.Dataset); err != nil {
		m.teardown(jobID)
		return &SetupError{JobID: jobID, Err: fmt.Errorf("dataset %s: %w", dataset.Name, err)}
	}
	if err := m.materializer.Clone(ctx, model.Name, model.Branch, dirs.Model); err != nil {
		m.teardown(jobID)
		return &SetupError{JobID: jobID, Err: fmt.Errorf("model %s: %w", model.Name, err)}
	}

	m.log.Info("environment ready", "job_id", jobID, "base_dir", dirs.Base)
	return nil
}

// Prepare refreshes a workspace ahead of a task run. Uploaded datasets are
// copied from the caller-supplied source path; default datasets are
// re-fetched. The model is always re-fetched. Failures are wrapped and
// surfaced without cleanup so the environment can be retried.
func (m *Manager) Prepare(ctx context.Context, jobID string, dataset, model api.RepoRef, datasetType, uploadSrc string) error {
	dirs, err := m.PrepareDirectories(jobID, dataset.Name, model.Name)
	if err != nil {
		return &PrepareError{JobID: jobID, Err: err}
	}

	switch datasetType {
	case api.DatasetTypeUpload:
		if err := copyFile(uploadSrc, dirs.Dataset); err != nil {
			return &PrepareError{JobID: jobID, Err: fmt.Errorf("uploaded dataset: %w", err)}
		}
	case api.DatasetTypeDefault:
		if err := m.materializer.Fetch(ctx, dataset.Name, dataset.Branch, dirs.Dataset); err != nil {
			return &PrepareError{JobID: jobID, Err: fmt.Errorf("dataset %s: %w", dataset.Name, err)}
		}
	default:
		return &PrepareError{JobID: jobID, Err: fmt.Errorf("unknown dataset type %q", datasetType)}
	}

	if err := m.materializer.Fetch(ctx, model.Name, model.Branch, dirs.Model); err != nil {
		return &PrepareError{JobID: jobID, Err: fmt.Errorf("model %s: %w", model.Name, err)}
	}

	return nil
}

// teardown removes the job's directories after a failed setup; the failure
// that triggered it takes precedence over any removal error.
func (m *Manager) teardown(jobID string) {
	if err := m.remover.Remove(jobID); err != nil {
		m.log.Error("failed to tear down environment", "job_id", jobID, "error", err)
	}
}

// copyFile copies src into the directory dstDir, keeping its base name.
func copyFile(src, dstDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}
