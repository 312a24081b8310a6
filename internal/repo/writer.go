// Package repo persists generated package specifications into a repository
// tree plus per-package content trees, and checks the observable file state
// of both against what was generated.
package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkgfix/pkgfix/internal/gen"
	"github.com/pkgfix/pkgfix/internal/gitstore"
)

// Writer persists package specifications. Metadata and archives are plain
// files under the repository root; content trees are committed through the
// version-control collaborator on the fixture branch.
type Writer struct {
	store  gitstore.Store
	logger *slog.Logger
}

// NewWriter creates a writer backed by the given content store.
func NewWriter(store gitstore.Store, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// PackageDir returns the metadata directory for a package, honoring its
// optional prefix.
func PackageDir(repoRoot string, spec *gen.PackageSpec) string {
	if spec.Prefix != nil {
		return filepath.Join(repoRoot, "packages", *spec.Prefix, spec.ID.String())
	}
	return filepath.Join(repoRoot, "packages", spec.ID.String())
}

// ArchivePath returns the archive blob location for a package.
func ArchivePath(repoRoot string, id gen.Identity) string {
	return filepath.Join(repoRoot, "archives", id.String()+".tar.gz")
}

// WritePackage persists spec under repoRoot and its content tree under
// contentsRoot. Pre-existing files at the target paths are removed first, so
// writing is an idempotent overwrite, never a merge.
func (w *Writer) WritePackage(ctx context.Context, repoRoot, contentsRoot string, spec *gen.PackageSpec) error {
	w.logger.Info("writing package",
		"package", spec.ID.String(),
		"repo", repoRoot,
		"contents", contentsRoot)

	if err := w.writeMetadata(repoRoot, spec); err != nil {
		return err
	}
	if err := w.writeArchive(repoRoot, spec); err != nil {
		return err
	}
	return w.writeContents(ctx, contentsRoot, spec)
}

func (w *Writer) writeMetadata(repoRoot string, spec *gen.PackageSpec) error {
	pkgDir := PackageDir(repoRoot, spec)
	if err := os.RemoveAll(pkgDir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", pkgDir, err)
	}
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", pkgDir, err)
	}

	files := map[string]string{
		opamFileName: renderOpam(spec),
	}
	if spec.Description != nil {
		files[descrFileName] = *spec.Description + "\n"
	}
	if spec.URL != nil {
		files[urlFileName] = renderURL(spec.URL)
	}

	for name, content := range files {
		path := filepath.Join(pkgDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func (w *Writer) writeArchive(repoRoot string, spec *gen.PackageSpec) error {
	path := ArchivePath(repoRoot, spec.ID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear %s: %w", path, err)
	}
	if spec.Archive == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archives directory: %w", err)
	}
	if err := os.WriteFile(path, spec.Archive, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeContents rewrites the package's content tree and commits it on the
// fixture branch. The tree's version-control history is kept across
// rewrites; everything else is replaced.
func (w *Writer) writeContents(ctx context.Context, contentsRoot string, spec *gen.PackageSpec) error {
	dir := filepath.Join(contentsRoot, spec.ID.String())

	fresh, err := clearWorkingTree(dir)
	if err != nil {
		return err
	}
	if fresh {
		if err := w.store.Init(ctx, dir); err != nil {
			return err
		}
		if err := w.store.CheckoutBranch(ctx, dir, gen.FixtureBranch); err != nil {
			return err
		}
	}

	if err := gen.WriteContents(dir, spec.Contents); err != nil {
		return err
	}
	for _, entry := range spec.Contents {
		if err := w.store.Add(ctx, dir, filepath.FromSlash(entry.Path)); err != nil {
			return err
		}
	}

	message := fmt.Sprintf("fixture content for %s", spec.ID)
	if err := w.store.Commit(ctx, dir, message, true); err != nil {
		return err
	}

	revision, err := w.store.Revision(ctx, dir)
	if err != nil {
		return err
	}
	w.logger.Debug("content committed", "package", spec.ID.String(), "revision", revision)
	return nil
}

// clearWorkingTree removes everything under dir except version-control
// internals. It reports whether dir had no repository yet.
func clearWorkingTree(dir string) (fresh bool, err error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	fresh = true
	for _, entry := range entries {
		if entry.Name() == ".git" {
			fresh = false
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return false, fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	return fresh, nil
}

// ReadPackage reads a persisted package back into a specification. It is the
// inverse of WritePackage for every persisted field.
func (w *Writer) ReadPackage(repoRoot, contentsRoot string, id gen.Identity) (*gen.PackageSpec, error) {
	pkgDir, prefix, err := findPackageDir(repoRoot, id)
	if err != nil {
		return nil, err
	}

	spec := &gen.PackageSpec{ID: id, Prefix: prefix}

	opamData, err := os.ReadFile(filepath.Join(pkgDir, opamFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata for %s: %w", id, err)
	}
	fields, err := parseFields(string(opamData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata for %s: %w", id, err)
	}
	spec.Maintainer = fields["maintainer"]

	if data, err := os.ReadFile(filepath.Join(pkgDir, descrFileName)); err == nil {
		descr := string(data)
		if len(descr) > 0 && descr[len(descr)-1] == '\n' {
			descr = descr[:len(descr)-1]
		}
		spec.Description = &descr
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if data, err := os.ReadFile(filepath.Join(pkgDir, urlFileName)); err == nil {
		u, err := parseURL(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse url for %s: %w", id, err)
		}
		spec.URL = u
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	contents, err := readContents(filepath.Join(contentsRoot, id.String()))
	if err != nil {
		return nil, err
	}
	spec.Contents = contents

	if data, err := os.ReadFile(ArchivePath(repoRoot, id)); err == nil {
		spec.Archive = data
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return spec, nil
}

// findPackageDir locates a package's metadata directory, directly under
// packages/ or below a prefix directory.
func findPackageDir(repoRoot string, id gen.Identity) (dir string, prefix *string, err error) {
	direct := filepath.Join(repoRoot, "packages", id.String())
	if _, err := os.Stat(direct); err == nil {
		return direct, nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(repoRoot, "packages", "*", id.String()))
	if err != nil {
		return "", nil, err
	}
	if len(matches) == 0 {
		return "", nil, fmt.Errorf("package %s not found under %s", id, repoRoot)
	}
	p := filepath.Base(filepath.Dir(matches[0]))
	return matches[0], &p, nil
}

// readContents loads a content tree back into sorted entries, skipping
// version-control internals.
func readContents(dir string) ([]gen.ContentEntry, error) {
	var entries []gen.ContentEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, gen.ContentEntry{Path: filepath.ToSlash(rel), Body: body})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read content tree %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
