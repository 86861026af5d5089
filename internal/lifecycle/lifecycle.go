// Package lifecycle implements out-of-band stop/remove operations for jobs:
// stopping correlated containers via the Docker API and deleting job
// workspaces from disk.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
)

// stopTimeoutSecs is how long a container gets to exit before the daemon
// kills it.
const stopTimeoutSecs = 5

// ContainerAPI is the slice of the Docker client the lifecycle layer needs.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

// Control performs stop/remove operations keyed by job id.
type Control struct {
	docker ContainerAPI
	root   string
	log    *slog.Logger
}

// New creates a Control deleting workspaces under root.
func New(docker ContainerAPI, root string, log *slog.Logger) *Control {
	return &Control{docker: docker, root: root, log: log}
}

// Stop stops and removes every container whose ancestor image is the job's
// id. A job with no matching containers is a no-op success. Per-container
// failures are aggregated; one bad container does not abort the rest.
func (c *Control) Stop(ctx context.Context, jobID string) error {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("ancestor", jobID)),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers for job %s: %w", jobID, err)
	}
	if len(containers) == 0 {
		c.log.Info("no containers to stop", "job_id", jobID)
		return nil
	}

	timeout := stopTimeoutSecs
	var errs []error
	for _, cont := range containers {
		if err := c.docker.ContainerStop(ctx, cont.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", cont.ID, err))
			continue
		}
		if err := c.docker.ContainerRemove(ctx, cont.ID, container.RemoveOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", cont.ID, err))
			continue
		}
		c.log.Info("container stopped and removed", "job_id", jobID, "container_id", cont.ID)
	}
	return errors.Join(errs...)
}

// RemoveImage deletes the job's environment image from the host.
func (c *Control) RemoveImage(ctx context.Context, jobID string) error {
	if _, err := c.docker.ImageRemove(ctx, jobID, image.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", jobID, err)
	}
	return nil
}

// Remove deletes the job's directory tree. Removing an absent workspace is
// a no-op success, so calling it twice is safe.
func (c *Control) Remove(jobID string) error {
	dir := filepath.Join(c.root, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	c.log.Info("workspace removed", "job_id", jobID, "dir", dir)
	return nil
}
