package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FixtureBranch is the branch fixture content is committed on. Version
// controlled URL descriptors reference it so the package manager fetches the
// generated state rather than whatever the default branch holds.
const FixtureBranch = "fixture"

// Identity names a package by name and version.
type Identity struct {
	Name    string
	Version string
}

// String returns the canonical "<name>.<version>" form.
func (id Identity) String() string {
	return id.Name + "." + id.Version
}

// ParseIdentity parses the "<name>.<version>" form, splitting at the first
// dot so versions may themselves contain dots.
func ParseIdentity(s string) (Identity, error) {
	name, version, ok := strings.Cut(s, ".")
	if !ok || name == "" || version == "" {
		return Identity{}, fmt.Errorf("invalid package identity %q (want <name>.<version>)", s)
	}
	return Identity{Name: name, Version: version}, nil
}

// URLKind selects how a package's source location is fetched.
type URLKind string

const (
	// URLGit marks a version-controlled source; the descriptor carries the
	// fixture branch as its revision.
	URLGit URLKind = "git"
	// URLLocal marks a plain local directory source.
	URLLocal URLKind = "local"
)

// URL describes where a package's source content lives.
type URL struct {
	Kind     URLKind
	Location string
	Ref      string // set only for URLGit
	Checksum string
}

// PackageSpec is the complete in-memory specification of one synthetic
// package. Except for the identity, every field is a pure function of
// (identity, seed). Optional fields are nil when the seed rules say the
// package does not carry them.
type PackageSpec struct {
	ID          Identity
	Maintainer  string
	Description *string
	URL         *URL
	Prefix      *string
	Contents    []ContentEntry
	Archive     []byte
}

// Packer packs a directory into a compressed archive file. Satisfied by
// archive.TarGz; generation treats it as a black box producing bytes.
type Packer interface {
	Pack(srcDir, outPath string) error
}

// BuildPackage derives the full package specification for (id, seed).
//
// Seed 0 is the minimal-package sentinel: no URL, no description, no
// archive. Seeds 1 and 3 additionally skip the archive while keeping URL and
// description. The prefix is absent exactly when the version string is "1".
// Building is side-effect free in memory except for archive packing, which
// materializes the contents under a temporary directory handed to the packer
// and removes it again on every path.
func BuildPackage(id Identity, seed int, urlKind URLKind, urlPath string, packer Packer) (*PackageSpec, error) {
	spec := &PackageSpec{
		ID:         id,
		Maintainer: fmt.Sprintf("test-%d", seed),
		Contents:   BuildContents(id, seed),
	}

	if seed != 0 {
		descr := fmt.Sprintf("Synthetic package %s generated from seed %d", id, seed)
		spec.Description = &descr

		u := &URL{
			Kind:     urlKind,
			Location: urlPath,
			Checksum: fmt.Sprintf("checksum-%d", seed),
		}
		if urlKind == URLGit {
			u.Ref = FixtureBranch
		}
		spec.URL = u
	}

	if seed != 0 && seed != 1 && seed != 3 {
		blob, err := buildArchive(id, spec.Contents, packer)
		if err != nil {
			return nil, fmt.Errorf("building archive for %s: %w", id, err)
		}
		spec.Archive = blob
	}

	if id.Version != "1" {
		prefix := "prefix-" + id.Name
		spec.Prefix = &prefix
	}

	return spec, nil
}

// buildArchive materializes the content entries under a temporary root,
// packs them, and reads the blob back. The temporary root is removed before
// returning, on failure as well as success.
func buildArchive(id Identity, contents []ContentEntry, packer Packer) ([]byte, error) {
	if packer == nil {
		return nil, fmt.Errorf("no packer configured")
	}
	tmp, err := os.MkdirTemp("", "pkgfix-archive-")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(tmp)
	}()

	srcDir := filepath.Join(tmp, id.String())
	if err := WriteContents(srcDir, contents); err != nil {
		return nil, err
	}

	outPath := filepath.Join(tmp, id.String()+".tar.gz")
	if err := packer.Pack(srcDir, outPath); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// WriteContents writes content entries under root, creating parent
// directories as needed.
func WriteContents(root string, contents []ContentEntry) error {
	for _, entry := range contents {
		path := filepath.Join(root, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, entry.Body, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
