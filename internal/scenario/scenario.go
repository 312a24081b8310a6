// Package scenario drives end-to-end fixture scenarios: generate packages,
// point a package manager at the repository and verify the observable state
// after each manager operation.
package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkgfix/pkgfix/internal/archive"
	"github.com/pkgfix/pkgfix/internal/config"
	"github.com/pkgfix/pkgfix/internal/gen"
	"github.com/pkgfix/pkgfix/internal/pkgmgr"
	"github.com/pkgfix/pkgfix/internal/repo"
)

// Runner wires the generator, repository writer, consistency checker and the
// package-manager collaborator into complete scenarios. All methods run
// sequentially and abort on the first failure.
type Runner struct {
	cfg     *config.Config
	writer  *repo.Writer
	checker *repo.Checker
	mgr     pkgmgr.Client
	packer  archive.Archiver
	logger  *slog.Logger
	dryRun  bool
}

// NewRunner creates a scenario runner.
func NewRunner(cfg *config.Config, writer *repo.Writer, checker *repo.Checker, mgr pkgmgr.Client, packer archive.Archiver, logger *slog.Logger, dryRun bool) *Runner {
	return &Runner{
		cfg:     cfg,
		writer:  writer,
		checker: checker,
		mgr:     mgr,
		packer:  packer,
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Generate builds every configured package from seed and writes it into the
// fixture repository.
func (r *Runner) Generate(ctx context.Context, seed int) error {
	ids, err := r.cfg.Identities()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if r.dryRun {
			r.logger.Info("dry-run: would generate package",
				"package", id.String(), "seed", seed)
			continue
		}
		spec, err := gen.BuildPackage(id, seed, r.cfg.URLKind(), r.cfg.ContentsDir(id), r.packer)
		if err != nil {
			return fmt.Errorf("failed to generate %s: %w", id.String(), err)
		}
		if err := r.writer.WritePackage(ctx, r.cfg.Paths.RepoDir, r.cfg.Paths.ContentsDir, spec); err != nil {
			return fmt.Errorf("failed to write %s: %w", id.String(), err)
		}
	}

	r.logger.Info("repository generated",
		"repo", r.cfg.Paths.RepoDir, "packages", len(ids), "seed", seed)
	return nil
}

// Init generates the configured packages, initializes the manager root
// against the repository and verifies the manager's mirror.
func (r *Runner) Init(ctx context.Context, seed int) error {
	if err := r.Generate(ctx, seed); err != nil {
		return err
	}

	if r.dryRun {
		r.logger.Info("dry-run: would initialize manager root",
			"repository", r.cfg.Repository.Name, "kind", r.cfg.Repository.Kind)
		return nil
	}

	if err := r.mgr.Init(ctx, r.cfg.Repository.Name, r.cfg.Paths.RepoDir, r.cfg.Repository.Kind); err != nil {
		return fmt.Errorf("manager init failed: %w", err)
	}
	return r.checkRepository()
}

// Install installs one package and verifies its installed contents against
// the recorded content tree.
func (r *Runner) Install(ctx context.Context, pkg string) error {
	id, err := gen.ParseIdentity(pkg)
	if err != nil {
		return err
	}

	if r.dryRun {
		r.logger.Info("dry-run: would install package", "package", id.String())
		return nil
	}

	if err := r.mgr.Install(ctx, id.String(), r.cfg.Manager.SyncArchives); err != nil {
		return fmt.Errorf("manager install failed: %w", err)
	}
	return r.checkContents(id)
}

// Update regenerates the configured packages from a new seed, refreshes the
// manager's repository view and verifies the mirror picked up the change.
func (r *Runner) Update(ctx context.Context, seed int) error {
	if err := r.Generate(ctx, seed); err != nil {
		return err
	}

	if r.dryRun {
		r.logger.Info("dry-run: would update manager repositories")
		return nil
	}

	if err := r.mgr.Update(ctx); err != nil {
		return fmt.Errorf("manager update failed: %w", err)
	}
	return r.checkRepository()
}

// Upgrade runs an update from the new seed, upgrades one package and
// verifies its installed contents.
func (r *Runner) Upgrade(ctx context.Context, pkg string, seed int) error {
	id, err := gen.ParseIdentity(pkg)
	if err != nil {
		return err
	}

	if err := r.Update(ctx, seed); err != nil {
		return err
	}

	if r.dryRun {
		r.logger.Info("dry-run: would upgrade package", "package", id.String())
		return nil
	}

	if err := r.mgr.Upgrade(ctx, id.Name); err != nil {
		return fmt.Errorf("manager upgrade failed: %w", err)
	}
	return r.checkContents(id)
}

// Pin pins one package to its content tree, reinstalls it and verifies the
// installed contents.
func (r *Runner) Pin(ctx context.Context, pkg string) error {
	id, err := gen.ParseIdentity(pkg)
	if err != nil {
		return err
	}

	if r.dryRun {
		r.logger.Info("dry-run: would pin package",
			"package", id.String(), "target", r.cfg.ContentsDir(id))
		return nil
	}

	if err := r.mgr.Pin(ctx, id.Name, r.cfg.ContentsDir(id)); err != nil {
		return fmt.Errorf("manager pin failed: %w", err)
	}
	if err := r.mgr.Install(ctx, id.String(), r.cfg.Manager.SyncArchives); err != nil {
		return fmt.Errorf("manager install failed: %w", err)
	}
	return r.checkContents(id)
}

func (r *Runner) checkRepository() error {
	return r.checker.CheckRepository(r.cfg.Paths.RepoDir, r.cfg.MirrorDir())
}

func (r *Runner) checkContents(id gen.Identity) error {
	return r.checker.CheckPackageContents(r.cfg.Paths.ContentsDir, r.cfg.Paths.ManagerRoot, id)
}
