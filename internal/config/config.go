package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pkgfix/pkgfix/internal/gen"
)

// Config represents the complete pkgfix configuration.
type Config struct {
	Seed       int              `yaml:"seed"`
	Repository RepositoryConfig `yaml:"repository"`
	Paths      PathsConfig      `yaml:"paths"`
	Packages   []string         `yaml:"packages"`
	Manager    ManagerConfig    `yaml:"manager"`
}

// RepositoryConfig names the fixture repository and selects how package
// sources are addressed.
type RepositoryConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "local" or "git"
}

// PathsConfig configures local filesystem roots.
type PathsConfig struct {
	RepoDir     string `yaml:"repo_dir"`
	ContentsDir string `yaml:"contents_dir"`
	ManagerRoot string `yaml:"manager_root"`
}

// ManagerConfig configures the package-manager collaborator.
type ManagerConfig struct {
	Binary       string `yaml:"binary"`
	SyncArchives bool   `yaml:"sync_archives"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields.
func (c *Config) expandEnv() {
	c.Paths.RepoDir = os.ExpandEnv(c.Paths.RepoDir)
	c.Paths.ContentsDir = os.ExpandEnv(c.Paths.ContentsDir)
	c.Paths.ManagerRoot = os.ExpandEnv(c.Paths.ManagerRoot)
	c.Manager.Binary = os.ExpandEnv(c.Manager.Binary)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repository.Kind == "" {
		c.Repository.Kind = string(gen.URLLocal)
	}
	if c.Manager.Binary == "" {
		c.Manager.Binary = "opam"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Seed < 0 {
		return fmt.Errorf("seed must not be negative: %d", c.Seed)
	}

	if c.Repository.Name == "" {
		return fmt.Errorf("repository.name is required")
	}
	switch gen.URLKind(c.Repository.Kind) {
	case gen.URLLocal, gen.URLGit:
		// valid
	default:
		return fmt.Errorf("invalid repository.kind: %s (must be local or git)", c.Repository.Kind)
	}

	if c.Paths.RepoDir == "" {
		return fmt.Errorf("paths.repo_dir is required")
	}
	if c.Paths.ContentsDir == "" {
		return fmt.Errorf("paths.contents_dir is required")
	}
	if c.Paths.ManagerRoot == "" {
		return fmt.Errorf("paths.manager_root is required")
	}

	// Ensure paths are absolute
	for name, path := range map[string]string{
		"paths.repo_dir":     c.Paths.RepoDir,
		"paths.contents_dir": c.Paths.ContentsDir,
		"paths.manager_root": c.Paths.ManagerRoot,
	} {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("%s must be an absolute path: %s", name, path)
		}
	}

	if len(c.Packages) == 0 {
		return fmt.Errorf("at least one package identity is required")
	}
	for _, pkg := range c.Packages {
		if _, err := gen.ParseIdentity(pkg); err != nil {
			return fmt.Errorf("invalid packages entry: %w", err)
		}
	}

	return nil
}

// URLKind returns the configured repository kind as a generation URL kind.
func (c *Config) URLKind() gen.URLKind {
	return gen.URLKind(c.Repository.Kind)
}

// Identities returns the configured package identities.
func (c *Config) Identities() ([]gen.Identity, error) {
	ids := make([]gen.Identity, 0, len(c.Packages))
	for _, pkg := range c.Packages {
		id, err := gen.ParseIdentity(pkg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PackagesDir returns the repository's package-metadata subtree.
func (c *Config) PackagesDir() string {
	return filepath.Join(c.Paths.RepoDir, "packages")
}

// ArchivesDir returns the repository's archive subtree.
func (c *Config) ArchivesDir() string {
	return filepath.Join(c.Paths.RepoDir, "archives")
}

// ContentsDir returns the content tree root for one package.
func (c *Config) ContentsDir(id gen.Identity) string {
	return filepath.Join(c.Paths.ContentsDir, id.String())
}

// MirrorDir returns the subtree where the package manager materializes its
// copy of the repository.
func (c *Config) MirrorDir() string {
	return filepath.Join(c.Paths.ManagerRoot, "repo", c.Repository.Name)
}

// LibDir returns the directory the manager installs a package's library
// files into.
func (c *Config) LibDir(name string) string {
	return filepath.Join(c.Paths.ManagerRoot, "lib", name)
}

// BinDir returns the directory the manager installs binaries into.
func (c *Config) BinDir() string {
	return filepath.Join(c.Paths.ManagerRoot, "bin")
}
