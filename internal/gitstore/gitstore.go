// Package gitstore drives the version-control collaborator that persists
// fixture content trees.
package gitstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Store provides the version-control operations the fixture writer needs.
type Store interface {
	// Init initializes a repository at dir, creating it if necessary.
	Init(ctx context.Context, dir string) error
	// Add stages a path (relative to dir) for the next commit. The path
	// must exist on disk.
	Add(ctx context.Context, dir, path string) error
	// Commit records staged changes. With allowEmpty, a commit is created
	// even when nothing changed.
	Commit(ctx context.Context, dir, message string, allowEmpty bool) error
	// Revision returns the current revision identifier of dir.
	Revision(ctx context.Context, dir string) (string, error)
	// CheckoutBranch creates or resets branch and checks it out.
	CheckoutBranch(ctx context.Context, dir, branch string) error
	// HardClean discards every uncommitted change and untracked file.
	HardClean(ctx context.Context, dir string) error
}

// ShellStore implements Store by shelling out to the git command.
type ShellStore struct{}

// NewShellStore creates a git-backed store.
func NewShellStore() *ShellStore {
	return &ShellStore{}
}

// Init initializes a repository at dir, creating the directory if needed.
func (s *ShellStore) Init(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	return s.run(exec.CommandContext(ctx, "git", "init", "-q", dir))
}

// Add stages path for the next commit. Staging a path that does not exist is
// reported immediately with the offending path rather than delegated to git.
func (s *ShellStore) Add(ctx context.Context, dir, path string) error {
	full := filepath.Join(dir, path)
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("cannot stage %s: %w", full, err)
	}
	return s.run(exec.CommandContext(ctx, "git", "-C", dir, "add", path))
}

// Commit records staged changes with the given message.
func (s *ShellStore) Commit(ctx context.Context, dir, message string, allowEmpty bool) error {
	args := []string{
		"-C", dir,
		"-c", "user.name=pkgfix",
		"-c", "user.email=pkgfix@localhost",
		"commit", "-q", "-m", message,
	}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	return s.run(exec.CommandContext(ctx, "git", args...))
}

// Revision returns the current HEAD commit hash.
func (s *ShellStore) Revision(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CheckoutBranch creates or resets branch at the current HEAD and checks it
// out. On a freshly initialized repository (no commits yet) the branch is
// simply switched to so the first commit lands on it.
func (s *ShellStore) CheckoutBranch(ctx context.Context, dir, branch string) error {
	if err := s.run(exec.CommandContext(ctx, "git", "-C", dir, "checkout", "-q", "-B", branch)); err == nil {
		return nil
	}
	// checkout -B fails before the first commit; fall back to renaming the
	// unborn branch.
	return s.run(exec.CommandContext(ctx, "git", "-C", dir, "branch", "-M", branch))
}

// HardClean resets the working tree and removes untracked files.
func (s *ShellStore) HardClean(ctx context.Context, dir string) error {
	if err := s.run(exec.CommandContext(ctx, "git", "-C", dir, "reset", "-q", "--hard", "HEAD")); err != nil {
		return err
	}
	return s.run(exec.CommandContext(ctx, "git", "-C", dir, "clean", "-fdxq"))
}

// run executes a command and returns an error carrying stderr on failure.
func (s *ShellStore) run(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(cmd.Args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
