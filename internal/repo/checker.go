package repo

import (
	"log/slog"
	"path/filepath"

	"github.com/pkgfix/pkgfix/internal/attr"
	"github.com/pkgfix/pkgfix/internal/check"
	"github.com/pkgfix/pkgfix/internal/gen"
)

// Side labels used in divergence reports.
const (
	sideRepository = "repository"
	sideMirror     = "mirror"
	sideContents   = "contents"
	sideInstalled  = "installed"
)

// Checker verifies observable file state against generated state.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a checker.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{logger: logger}
}

// CheckRepository compares the repository's package-metadata and archive
// subtrees against the corresponding subtrees the package manager
// materialized under mirrorRoot. It returns nil when both sides hold the
// same file set, or a check.SyncErrorSet listing every divergence.
func (c *Checker) CheckRepository(repoRoot, mirrorRoot string) error {
	c.logger.Info("checking repository state", "repo", repoRoot, "mirror", mirrorRoot)

	repoIdx, err := repositoryIndex(repoRoot)
	if err != nil {
		return err
	}
	mirrorIdx, err := repositoryIndex(mirrorRoot)
	if err != nil {
		return err
	}

	if errs := check.Compare(sideRepository, repoIdx, sideMirror, mirrorIdx); len(errs) > 0 {
		return errs
	}
	c.logger.Info("repository state consistent",
		"repo", repoRoot, "attributes", len(repoIdx))
	return nil
}

// repositoryIndex fingerprints a repository root: every file inside a
// package directory, keyed by package directory plus inner path, merged with
// the archive files keyed by name. Loose administrative files are ignored.
func repositoryIndex(root string) (attr.Index, error) {
	packagesDir := filepath.Join(root, "packages")
	idx, err := attr.Build(packagesDir, attr.PackageDirs(packagesDir))
	if err != nil {
		return nil, err
	}

	archives, err := attr.Build(filepath.Join(root, "archives"), nil)
	if err != nil {
		return nil, err
	}
	if err := idx.Merge(archives); err != nil {
		return nil, err
	}
	return idx, nil
}

// CheckPackageContents compares the files the manager installed for one
// package (its library directory plus the shared binary directory under
// installedRoot) against the package's recorded content tree, ignoring
// version-control internals and the install manifest.
func (c *Checker) CheckPackageContents(contentsRoot, installedRoot string, id gen.Identity) error {
	c.logger.Info("checking package contents",
		"package", id.String(), "installed", installedRoot)

	installed, err := attr.Build(filepath.Join(installedRoot, "lib", id.Name), nil)
	if err != nil {
		return err
	}
	binaries, err := attr.Build(filepath.Join(installedRoot, "bin"), nil)
	if err != nil {
		return err
	}
	if err := installed.Merge(binaries); err != nil {
		return err
	}

	contentDir := filepath.Join(contentsRoot, id.String())
	recorded, err := attr.Build(contentDir,
		attr.ExcludeNames(contentDir, ".git", gen.InstallManifestName(id.Name)))
	if err != nil {
		return err
	}

	if errs := check.Compare(sideContents, recorded, sideInstalled, installed); len(errs) > 0 {
		return errs
	}
	c.logger.Info("package contents consistent",
		"package", id.String(), "attributes", len(recorded))
	return nil
}
