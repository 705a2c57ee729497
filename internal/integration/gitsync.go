package integration

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitSync stages, commits and pushes the tick files of one working tree.
// Every call shells out to `git -C <dir>` so it works with whatever
// credentials and remotes the user has configured.
type GitSync struct {
	dir    string
	runner func(ctx context.Context, dir string, args ...string) (string, error)
}

// NewGitSync creates a GitSync for the working tree containing dir.
func NewGitSync(dir string) *GitSync {
	return &GitSync{dir: dir, runner: runGit}
}

// Dir returns the working tree the sync operates on.
func (g *GitSync) Dir() string { return g.dir }

// IsRepo reports whether dir is inside a git working tree.
func (g *GitSync) IsRepo(ctx context.Context) bool {
	out, err := g.runner(ctx, g.dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Stage adds paths to the index.
func (g *GitSync) Stage(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.runner(ctx, g.dir, args...); err != nil {
		return fmt.Errorf("staging %s: %w", strings.Join(paths, ", "), err)
	}
	return nil
}

// Commit records the staged changes. A commit with nothing staged is a no-op.
func (g *GitSync) Commit(ctx context.Context, message string) error {
	if _, err := g.runner(ctx, g.dir, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}
	if _, err := g.runner(ctx, g.dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Pull fetches and rebases the current branch onto its upstream.
func (g *GitSync) Pull(ctx context.Context) error {
	if _, err := g.runner(ctx, g.dir, "pull", "--rebase", "--autostash"); err != nil {
		return fmt.Errorf("pulling: %w", err)
	}
	return nil
}

// Push publishes the current branch to its upstream.
func (g *GitSync) Push(ctx context.Context) error {
	if _, err := g.runner(ctx, g.dir, "push"); err != nil {
		return fmt.Errorf("pushing: %w", err)
	}
	return nil
}

// HasConflicts reports whether the working tree has unmerged paths.
func (g *GitSync) HasConflicts(ctx context.Context) (bool, error) {
	out, err := g.runner(ctx, g.dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false, fmt.Errorf("checking for conflicts: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return stdout.String(), fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}
