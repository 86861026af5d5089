package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// GitMaterializer clones and fetches repository references with the git CLI.
// Transient failures (network, remote hiccups) are retried with constant
// backoff before surfacing.
type GitMaterializer struct {
	// Remote is the base URL references resolve against, e.g. "https://gitlab.com".
	Remote string

	// MaxRetries bounds retry attempts per operation.
	MaxRetries uint64

	// RetryInterval is the delay between attempts.
	RetryInterval time.Duration

	Log *slog.Logger
}

// NewGitMaterializer creates a materializer against the given remote base URL.
func NewGitMaterializer(remote string, log *slog.Logger) *GitMaterializer {
	return &GitMaterializer{
		Remote:        strings.TrimRight(remote, "/"),
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		Log:           log,
	}
}

// Clone clones ref into dest. A branch, when given, is cloned shallowly on
// its own. Cloning into a directory that already holds a checkout fails;
// Setup owns that by tearing the workspace down on error.
func (g *GitMaterializer) Clone(ctx context.Context, ref, branch, dest string) error {
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, g.repoURL(ref), dest)

	return g.retry(ctx, "clone", ref, func() error {
		return g.git(ctx, "", args...)
	})
}

// Fetch refreshes an existing checkout in dest, checking out the branch
// when one is given.
func (g *GitMaterializer) Fetch(ctx context.Context, ref, branch, dest string) error {
	if _, err := os.Stat(filepath.Join(dest, ".git")); err != nil {
		// No checkout yet; fall back to a clone.
		return g.Clone(ctx, ref, branch, dest)
	}

	return g.retry(ctx, "fetch", ref, func() error {
		if err := g.git(ctx, dest, "fetch", "origin"); err != nil {
			return err
		}
		if branch != "" {
			if err := g.git(ctx, dest, "checkout", branch); err != nil {
				return err
			}
			return g.git(ctx, dest, "reset", "--hard", "origin/"+branch)
		}
		return g.git(ctx, dest, "merge", "--ff-only", "FETCH_HEAD")
	})
}

func (g *GitMaterializer) repoURL(ref string) string {
	return fmt.Sprintf("%s/%s.git", g.Remote, strings.Trim(ref, "/"))
}

func (g *GitMaterializer) retry(ctx context.Context, op, ref string, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.RetryInterval), g.MaxRetries),
		ctx,
	)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err != nil {
			g.Log.Warn("git operation failed", "op", op, "ref", ref, "attempt", attempt, "error", err)
		}
		return err
	}, policy)
}

func (g *GitMaterializer) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
