package gen

import (
	"fmt"
	"sort"
)

// ContentEntry is one file belonging to a package's content tree, addressed
// by its path relative to the tree root.
type ContentEntry struct {
	Path string
	Body []byte
}

// InstallManifestName returns the name of the install manifest entry for a
// package. The manifest is metadata describing the payload, not payload
// itself, and is excluded from installed-content checks.
func InstallManifestName(name string) string {
	return name + ".install"
}

// BuildContents returns the content set for a package: three data files with
// seed-derived lengths plus the install manifest, sorted by path. The
// character stream is reset from the seed on every call, so repeated calls
// with the same (identity, seed) return byte-identical entries.
func BuildContents(id Identity, seed int) []ContentEntry {
	c := NewContext(seed)
	entries := []ContentEntry{
		{Path: "a/a", Body: []byte(c.String(1 + 2*seed))},
		{Path: "a/b", Body: []byte(c.String(1 + 3*seed))},
		{Path: "c", Body: []byte(c.String(1 + seed))},
		{Path: InstallManifestName(id.Name), Body: installManifest()},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// installManifest declares a/a and a/b as library files and c as a binary.
func installManifest() []byte {
	return []byte(fmt.Sprintf("lib: [ %q %q ]\nbin: [ %q ]\n", "a/a", "a/b", "c"))
}
