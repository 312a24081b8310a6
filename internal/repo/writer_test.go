package repo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkgfix/pkgfix/internal/archive"
	"github.com/pkgfix/pkgfix/internal/gen"
)

// mockStore implements gitstore.Store without spawning git. Init drops a
// fake .git directory so rewrite detection behaves like the real store.
type mockStore struct {
	inits    []string
	added    []string
	commits  []string
	branches []string
	cleaned  []string
}

func (m *mockStore) Init(_ context.Context, dir string) error {
	m.inits = append(m.inits, dir)
	return os.MkdirAll(filepath.Join(dir, ".git"), 0755)
}

func (m *mockStore) Add(_ context.Context, dir, path string) error {
	full := filepath.Join(dir, path)
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("cannot stage %s: %w", full, err)
	}
	m.added = append(m.added, path)
	return nil
}

func (m *mockStore) Commit(_ context.Context, dir, message string, _ bool) error {
	m.commits = append(m.commits, message)
	return nil
}

func (m *mockStore) Revision(_ context.Context, _ string) (string, error) {
	return fmt.Sprintf("rev-%d", len(m.commits)), nil
}

func (m *mockStore) CheckoutBranch(_ context.Context, dir, branch string) error {
	m.branches = append(m.branches, branch)
	return nil
}

func (m *mockStore) HardClean(_ context.Context, dir string) error {
	m.cleaned = append(m.cleaned, dir)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func buildSpec(t *testing.T, id gen.Identity, seed int, kind gen.URLKind, urlPath string) *gen.PackageSpec {
	t.Helper()
	spec, err := gen.BuildPackage(id, seed, kind, urlPath, archive.NewTarGz())
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestWritePackage_MetadataLayout(t *testing.T) {
	repoRoot := t.TempDir()
	contentsRoot := t.TempDir()
	store := &mockStore{}
	w := NewWriter(store, testLogger())

	id := gen.Identity{Name: "foo", Version: "1"}
	spec := buildSpec(t, id, 2, gen.URLGit, filepath.Join(contentsRoot, "foo.1"))

	if err := w.WritePackage(context.Background(), repoRoot, contentsRoot, spec); err != nil {
		t.Fatal(err)
	}

	pkgDir := filepath.Join(repoRoot, "packages", "foo.1")
	for _, name := range []string{"opam", "descr", "url"} {
		if _, err := os.Stat(filepath.Join(pkgDir, name)); err != nil {
			t.Errorf("missing metadata file %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "archives", "foo.1.tar.gz")); err != nil {
		t.Errorf("missing archive: %v", err)
	}

	// Content tree: initialized once, committed on the fixture branch.
	if len(store.inits) != 1 {
		t.Errorf("expected 1 init, got %d", len(store.inits))
	}
	if len(store.branches) != 1 || store.branches[0] != gen.FixtureBranch {
		t.Errorf("branches = %v, want [%s]", store.branches, gen.FixtureBranch)
	}
	if len(store.added) != len(spec.Contents) {
		t.Errorf("staged %d paths, want %d", len(store.added), len(spec.Contents))
	}
	if len(store.commits) != 1 {
		t.Errorf("expected 1 commit, got %d", len(store.commits))
	}
}

func TestWritePackage_MinimalSeedZero(t *testing.T) {
	repoRoot := t.TempDir()
	contentsRoot := t.TempDir()
	w := NewWriter(&mockStore{}, testLogger())

	id := gen.Identity{Name: "foo", Version: "1"}
	spec := buildSpec(t, id, 0, gen.URLLocal, "")

	if err := w.WritePackage(context.Background(), repoRoot, contentsRoot, spec); err != nil {
		t.Fatal(err)
	}

	pkgDir := filepath.Join(repoRoot, "packages", "foo.1")
	if _, err := os.Stat(filepath.Join(pkgDir, "opam")); err != nil {
		t.Errorf("opam file missing: %v", err)
	}
	for _, name := range []string{"descr", "url"} {
		if _, err := os.Stat(filepath.Join(pkgDir, name)); !os.IsNotExist(err) {
			t.Errorf("seed 0 package should not carry %s", name)
		}
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "archives", "foo.1.tar.gz")); !os.IsNotExist(err) {
		t.Error("seed 0 package should not carry an archive")
	}
}

func TestWritePackage_PrefixPlacement(t *testing.T) {
	repoRoot := t.TempDir()
	contentsRoot := t.TempDir()
	w := NewWriter(&mockStore{}, testLogger())

	id := gen.Identity{Name: "foo", Version: "2"}
	spec := buildSpec(t, id, 0, gen.URLLocal, "")

	if err := w.WritePackage(context.Background(), repoRoot, contentsRoot, spec); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(repoRoot, "packages", "prefix-foo", "foo.2", "opam")); err != nil {
		t.Errorf("prefixed package not placed under prefix directory: %v", err)
	}
}

func TestWritePackage_OverwritesPreviousState(t *testing.T) {
	repoRoot := t.TempDir()
	contentsRoot := t.TempDir()
	store := &mockStore{}
	w := NewWriter(store, testLogger())
	ctx := context.Background()

	id := gen.Identity{Name: "foo", Version: "1"}

	// First write with URL and archive.
	rich := buildSpec(t, id, 2, gen.URLLocal, "/tmp/x")
	if err := w.WritePackage(ctx, repoRoot, contentsRoot, rich); err != nil {
		t.Fatal(err)
	}

	// Second write with the minimal seed: url/descr/archive must be gone.
	minimal := buildSpec(t, id, 0, gen.URLLocal, "")
	if err := w.WritePackage(ctx, repoRoot, contentsRoot, minimal); err != nil {
		t.Fatal(err)
	}

	pkgDir := filepath.Join(repoRoot, "packages", "foo.1")
	for _, name := range []string{"descr", "url"} {
		if _, err := os.Stat(filepath.Join(pkgDir, name)); !os.IsNotExist(err) {
			t.Errorf("stale %s survived overwrite", name)
		}
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "archives", "foo.1.tar.gz")); !os.IsNotExist(err) {
		t.Error("stale archive survived overwrite")
	}

	// The content repository is initialized only once across rewrites.
	if len(store.inits) != 1 {
		t.Errorf("expected 1 init across rewrites, got %d", len(store.inits))
	}
	if len(store.commits) != 2 {
		t.Errorf("expected 2 commits, got %d", len(store.commits))
	}
}

func TestReadPackage_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   gen.Identity
		seed int
		kind gen.URLKind
	}{
		{name: "minimal", id: gen.Identity{Name: "foo", Version: "1"}, seed: 0, kind: gen.URLLocal},
		{name: "no archive", id: gen.Identity{Name: "foo", Version: "1"}, seed: 1, kind: gen.URLGit},
		{name: "full local", id: gen.Identity{Name: "foo", Version: "2"}, seed: 4, kind: gen.URLLocal},
		{name: "full git", id: gen.Identity{Name: "bar", Version: "7"}, seed: 5, kind: gen.URLGit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repoRoot := t.TempDir()
			contentsRoot := t.TempDir()
			w := NewWriter(&mockStore{}, testLogger())

			written := buildSpec(t, tc.id, tc.seed, tc.kind, filepath.Join(contentsRoot, tc.id.String()))
			if err := w.WritePackage(context.Background(), repoRoot, contentsRoot, written); err != nil {
				t.Fatal(err)
			}

			read, err := w.ReadPackage(repoRoot, contentsRoot, tc.id)
			if err != nil {
				t.Fatal(err)
			}

			if read.ID != written.ID {
				t.Errorf("ID = %v, want %v", read.ID, written.ID)
			}
			if read.Maintainer != written.Maintainer {
				t.Errorf("maintainer = %q, want %q", read.Maintainer, written.Maintainer)
			}
			if !reflect.DeepEqual(read.Description, written.Description) {
				t.Errorf("description = %v, want %v", read.Description, written.Description)
			}
			if !reflect.DeepEqual(read.URL, written.URL) {
				t.Errorf("url = %+v, want %+v", read.URL, written.URL)
			}
			if !reflect.DeepEqual(read.Prefix, written.Prefix) {
				t.Errorf("prefix = %v, want %v", read.Prefix, written.Prefix)
			}
			if !reflect.DeepEqual(read.Contents, written.Contents) {
				t.Errorf("contents differ:\n got %v\nwant %v", read.Contents, written.Contents)
			}
			if !bytes.Equal(read.Archive, written.Archive) {
				t.Error("archive bytes differ")
			}
		})
	}
}

func TestReadPackage_Missing(t *testing.T) {
	w := NewWriter(&mockStore{}, testLogger())
	_, err := w.ReadPackage(t.TempDir(), t.TempDir(), gen.Identity{Name: "nope", Version: "1"})
	if err == nil {
		t.Fatal("expected error for missing package")
	}
}
