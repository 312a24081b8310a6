package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkgfix/pkgfix/internal/archive"
	"github.com/pkgfix/pkgfix/internal/check"
	"github.com/pkgfix/pkgfix/internal/config"
	"github.com/pkgfix/pkgfix/internal/gen"
	"github.com/pkgfix/pkgfix/internal/gitstore"
	"github.com/pkgfix/pkgfix/internal/pkgmgr"
	"github.com/pkgfix/pkgfix/internal/repo"
	"github.com/pkgfix/pkgfix/internal/scenario"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	seedFlag  int
	dumpDiffs bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pkgfix",
	Short: "Generate and verify synthetic package-repository fixtures",
	Long: `pkgfix builds reproducible package-repository fixtures from an integer seed
and verifies that the observable state of the repository, of a package
manager's mirror and of installed package contents matches what the
generator produced.

Fixture repositories follow the opam layout: package metadata under
packages/, source archives under archives/, and per-package content trees
committed to a dedicated fixture branch.`,
	SilenceUsage: true,
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate the configured fixture packages",
	Long: `Gen derives every configured package from the seed and writes it into the
fixture repository: metadata files, the content tree (committed on the
fixture branch) and, where the seed calls for one, a source archive.

Generation is idempotent; rerunning with the same seed reproduces the
repository byte for byte.`,
	RunE: runGen,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify observable file state against generated state",
}

var checkRepoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Compare the fixture repository with the manager's mirror",
	RunE:  runCheckRepo,
}

var checkContentsCmd = &cobra.Command{
	Use:   "contents <package>",
	Short: "Compare a package's installed files with its content tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckContents,
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run an end-to-end package-manager scenario",
	Long: `Scenario commands drive the configured package manager against the fixture
repository and verify the resulting state after every step.`,
}

var scenarioInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the repository and initialize the manager root",
	RunE:  runScenarioInit,
}

var scenarioInstallCmd = &cobra.Command{
	Use:   "install <package>",
	Short: "Install one package and verify its contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenarioInstall,
}

var scenarioUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Regenerate the repository from a new seed and update the manager",
	RunE:  runScenarioUpdate,
}

var scenarioUpgradeCmd = &cobra.Command{
	Use:   "upgrade <package>",
	Short: "Update, upgrade one package and verify its contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenarioUpgrade,
}

var scenarioPinCmd = &cobra.Command{
	Use:   "pin <package>",
	Short: "Pin one package to its content tree and verify its contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenarioPin,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pkgfix %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pkgfix/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	genCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be generated without writing anything")
	genCmd.Flags().IntVar(&seedFlag, "seed", -1, "override the configured seed")

	checkCmd.PersistentFlags().BoolVar(&dumpDiffs, "dump", false, "print the content of divergent files")

	scenarioCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would be done without touching the manager")
	scenarioCmd.PersistentFlags().IntVar(&seedFlag, "seed", -1, "override the seed (update/upgrade default to the configured seed plus one)")

	checkCmd.AddCommand(checkRepoCmd)
	checkCmd.AddCommand(checkContentsCmd)

	scenarioCmd.AddCommand(scenarioInitCmd)
	scenarioCmd.AddCommand(scenarioInstallCmd)
	scenarioCmd.AddCommand(scenarioUpdateCmd)
	scenarioCmd.AddCommand(scenarioUpgradeCmd)
	scenarioCmd.AddCommand(scenarioPinCmd)

	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(versionCmd)
}

func runGen(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return newRunner(cfg, logger).Generate(ctx, resolveSeed(cfg, 0))
}

func runCheckRepo(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	checker := repo.NewChecker(logger)
	return reportCheck(checker.CheckRepository(cfg.Paths.RepoDir, cfg.MirrorDir()))
}

func runCheckContents(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	id, err := gen.ParseIdentity(args[0])
	if err != nil {
		return err
	}

	checker := repo.NewChecker(logger)
	return reportCheck(checker.CheckPackageContents(cfg.Paths.ContentsDir, cfg.Paths.ManagerRoot, id))
}

func runScenarioInit(cmd *cobra.Command, args []string) error {
	return withRunner(func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error {
		return r.Init(ctx, resolveSeed(cfg, 0))
	})
}

func runScenarioInstall(cmd *cobra.Command, args []string) error {
	return withRunner(func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error {
		return r.Install(ctx, args[0])
	})
}

func runScenarioUpdate(cmd *cobra.Command, args []string) error {
	return withRunner(func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error {
		return r.Update(ctx, resolveSeed(cfg, 1))
	})
}

func runScenarioUpgrade(cmd *cobra.Command, args []string) error {
	return withRunner(func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error {
		return r.Upgrade(ctx, args[0], resolveSeed(cfg, 1))
	})
}

func runScenarioPin(cmd *cobra.Command, args []string) error {
	return withRunner(func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error {
		return r.Pin(ctx, args[0])
	})
}

// withRunner bootstraps logger, config and collaborators, then runs one
// scenario step with signal-driven cancellation.
func withRunner(run func(ctx context.Context, cfg *config.Config, r *scenario.Runner) error) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return run(ctx, cfg, newRunner(cfg, logger))
}

func newRunner(cfg *config.Config, logger *slog.Logger) *scenario.Runner {
	store := gitstore.NewShellStore()
	writer := repo.NewWriter(store, logger)
	checker := repo.NewChecker(logger)
	mgr := pkgmgr.NewShellClient(cfg.Manager.Binary, cfg.Paths.ManagerRoot)
	return scenario.NewRunner(cfg, writer, checker, mgr, archive.NewTarGz(), logger, dryRun)
}

// resolveSeed picks the seed for a command: the --seed flag when given,
// otherwise the configured seed plus bump.
func resolveSeed(cfg *config.Config, bump int) int {
	if seedFlag >= 0 {
		return seedFlag
	}
	return cfg.Seed + bump
}

// reportCheck optionally dumps divergent file contents before returning the
// check result.
func reportCheck(err error) error {
	var set check.SyncErrorSet
	if dumpDiffs && errors.As(err, &set) {
		set.Dump(os.Stderr)
	}
	return err
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/pkgfix/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"seed", cfg.Seed,
		"repository", cfg.Repository.Name,
		"kind", cfg.Repository.Kind,
		"repo_dir", cfg.Paths.RepoDir,
		"manager_root", cfg.Paths.ManagerRoot)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
