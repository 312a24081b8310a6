// Package pkgmgr drives the package-manager command line under test.
package pkgmgr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client provides the package-manager operations exercised by scenarios. The
// core never inspects manager output; failures propagate unchanged.
type Client interface {
	// Init initializes the manager root with a named repository source.
	Init(ctx context.Context, repoName, repoURL, kind string) error
	// Install installs a package by identity, optionally syncing archives.
	Install(ctx context.Context, pkg string, syncArchives bool) error
	// Update refreshes the manager's view of its repositories.
	Update(ctx context.Context) error
	// Upgrade upgrades a package by name.
	Upgrade(ctx context.Context, pkg string) error
	// Pin pins a package name to a target (path or version).
	Pin(ctx context.Context, name, target string) error
}

// ShellClient implements Client by shelling out to the manager binary with
// an explicit root, so tests never touch the user's real configuration.
type ShellClient struct {
	binary string
	root   string
}

// NewShellClient creates a client for the given manager binary and root
// directory.
func NewShellClient(binary, root string) *ShellClient {
	return &ShellClient{binary: binary, root: root}
}

// Init initializes the root against a named repository source.
func (c *ShellClient) Init(ctx context.Context, repoName, repoURL, kind string) error {
	return c.run(ctx, "init", "--no-setup", "--kind", kind, repoName, repoURL)
}

// Install installs a package by identity.
func (c *ShellClient) Install(ctx context.Context, pkg string, syncArchives bool) error {
	args := []string{"install", "--yes", pkg}
	if syncArchives {
		args = append(args, "--sync-archives")
	}
	return c.run(ctx, args...)
}

// Update refreshes repository state.
func (c *ShellClient) Update(ctx context.Context) error {
	return c.run(ctx, "update")
}

// Upgrade upgrades a package by name.
func (c *ShellClient) Upgrade(ctx context.Context, pkg string) error {
	return c.run(ctx, "upgrade", "--yes", pkg)
}

// Pin pins a package name to a target.
func (c *ShellClient) Pin(ctx context.Context, name, target string) error {
	return c.run(ctx, "pin", "add", "--yes", name, target)
}

func (c *ShellClient) run(ctx context.Context, args ...string) error {
	full := append([]string{"--root", c.root}, args...)
	cmd := exec.CommandContext(ctx, c.binary, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", c.binary, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
