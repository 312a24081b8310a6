//go:build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkgfix/pkgfix/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
)

// Harness provides a self-contained fixture environment: the pkgfix binary
// built from the working tree, a shell shim standing in for the package
// manager, and a config file pointing everything at temp directories.
type Harness struct {
	t *testing.T

	Binary      string
	ConfigPath  string
	RepoDir     string
	ContentsDir string
	ManagerRoot string

	shimLog string
}

// NewHarness builds the binary (once per test run), installs the manager
// shim and writes a configuration for a single-repository fixture with the
// given seed and packages.
func NewHarness(t *testing.T, seed int, packages ...string) *Harness {
	t.Helper()
	requireGit(t)

	root := t.TempDir()
	h := &Harness{
		t:           t,
		RepoDir:     filepath.Join(root, "repo"),
		ContentsDir: filepath.Join(root, "contents"),
		ManagerRoot: filepath.Join(root, "manager"),
		shimLog:     filepath.Join(root, "manager-shim.log"),
	}

	h.Binary = buildBinary(t)
	shim := h.writeShim(filepath.Join(root, "bin"))
	h.ConfigPath = h.writeConfig(filepath.Join(root, "config.yaml"), shim, seed, packages)
	return h
}

// Run executes the pkgfix binary with the harness config and returns its
// combined streams and exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int) {
	h.t.Helper()
	full := append([]string{"--config", h.ConfigPath, "--log-level", "debug"}, args...)
	cmd := exec.CommandContext(ctx, h.Binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("failed to run %s %v: %v", h.Binary, full, err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), exitCode
}

// MustRun executes pkgfix and fails the test on a non-zero exit.
func (h *Harness) MustRun(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode := h.Run(ctx, args...)
	if exitCode != 0 {
		h.t.Fatalf("pkgfix %v failed with exit code %d\nstdout: %s\nstderr: %s",
			args, exitCode, stdout, stderr)
	}
	return stdout, stderr
}

// FileExists reports whether a path exists in the harness environment.
func (h *Harness) FileExists(path string) bool {
	h.t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

// ReadShimLog reads and parses the manager shim's invocation log.
func (h *Harness) ReadShimLog() []ShimLogEntry {
	h.t.Helper()
	content, err := os.ReadFile(h.shimLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		h.t.Fatalf("failed to read shim log: %v", err)
	}

	var entries []ShimLogEntry
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Parse: "2024-01-01T12:00:00+00:00 --root /tmp/x install --yes foo.1"
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}

		entries = append(entries, ShimLogEntry{
			Timestamp: parts[0],
			Args:      strings.Fields(parts[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		h.t.Fatalf("failed to scan shim log: %v", err)
	}
	return entries
}

// ClearShimLog truncates the shim invocation log.
func (h *Harness) ClearShimLog() {
	h.t.Helper()
	if err := os.WriteFile(h.shimLog, nil, 0644); err != nil {
		h.t.Fatalf("failed to clear shim log: %v", err)
	}
}

// writeShim installs the package-manager stand-in. The shim logs every
// invocation and simulates the manager's filesystem effects: init and update
// mirror the repository under the manager root, install lays a package's
// content tree out into lib/<name> and bin.
func (h *Harness) writeShim(binDir string) string {
	h.t.Helper()
	if err := os.MkdirAll(binDir, 0755); err != nil {
		h.t.Fatalf("failed to create shim dir: %v", err)
	}

	script := fmt.Sprintf(`#!/bin/sh
set -e
echo "$(date -Iseconds) $*" >> %q

REPO=%q
CONTENTS=%q
ROOT=%q
MIRROR="$ROOT/repo/fixture"

# Lay a content tree out the way an install does: nested files under
# lib/<name>, top-level files under the shared bin directory. The install
# manifest and version-control internals stay behind.
materialize() {
    src="$1"
    name="$2"
    libdir="$ROOT/lib/$name"
    bindir="$ROOT/bin"
    rm -rf "$libdir"
    mkdir -p "$libdir" "$bindir"
    (cd "$src" && find . -type f ! -path './.git/*' ! -name "$name.install" | while read -r f; do
        rel="${f#./}"
        case "$rel" in
        */*)
            mkdir -p "$libdir/$(dirname "$rel")"
            cp "$f" "$libdir/$rel"
            ;;
        *)
            cp "$f" "$bindir/$rel"
            ;;
        esac
    done)
}

# Arguments always start with: --root <root> <command> ...
shift 2
cmd="$1"

case "$cmd" in
init|update)
    rm -rf "$MIRROR"
    mkdir -p "$MIRROR"
    cp -R "$REPO"/. "$MIRROR"/
    ;;
install)
    # install --yes <pkg> [--sync-archives]
    pkg="$3"
    materialize "$CONTENTS/$pkg" "${pkg%%%%.*}"
    ;;
upgrade)
    # upgrade --yes <name>
    name="$3"
    materialize "$(ls -d "$CONTENTS/$name".* | head -n 1)" "$name"
    ;;
esac
exit 0
`, h.shimLog, h.RepoDir, h.ContentsDir, h.ManagerRoot)

	path := filepath.Join(binDir, "manager-shim")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		h.t.Fatalf("failed to write shim: %v", err)
	}
	return path
}

func (h *Harness) writeConfig(path, shim string, seed int, packages []string) string {
	h.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "seed: %d\n", seed)
	b.WriteString("repository:\n  name: \"fixture\"\n  kind: \"local\"\n")
	fmt.Fprintf(&b, "paths:\n  repo_dir: %q\n  contents_dir: %q\n  manager_root: %q\n",
		h.RepoDir, h.ContentsDir, h.ManagerRoot)
	b.WriteString("packages:\n")
	for _, pkg := range packages {
		fmt.Fprintf(&b, "  - %q\n", pkg)
	}
	fmt.Fprintf(&b, "manager:\n  binary: %q\n", shim)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		h.t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// buildBinary compiles cmd/pkgfix once for the whole test run.
func buildBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		projectRoot, err := testutil.FindProjectRoot()
		if err != nil {
			buildErr = fmt.Errorf("failed to locate project root: %w", err)
			return
		}

		out := filepath.Join(os.TempDir(), fmt.Sprintf("pkgfix-integration-%d", os.Getpid()))
		cmd := exec.Command("go", "build", "-o", out, "./cmd/pkgfix")
		cmd.Dir = projectRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build failed: %w: %s", err, output)
			return
		}
		builtBinary = out
	})
	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}
	return builtBinary
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in PATH")
	}
}

// ShimLogEntry represents one parsed manager invocation.
type ShimLogEntry struct {
	Timestamp string
	Args      []string
}

// String returns a human-readable representation.
func (e ShimLogEntry) String() string {
	return fmt.Sprintf("%s: %s", e.Timestamp, strings.Join(e.Args, " "))
}

// HasArgs checks if the entry starts with the given arguments.
func (e ShimLogEntry) HasArgs(args ...string) bool {
	if len(e.Args) < len(args) {
		return false
	}
	for i, arg := range args {
		if e.Args[i] != arg {
			return false
		}
	}
	return true
}

// ContainsArg checks if the entry contains a specific argument anywhere.
func (e ShimLogEntry) ContainsArg(arg string) bool {
	for _, a := range e.Args {
		if a == arg {
			return true
		}
	}
	return false
}
