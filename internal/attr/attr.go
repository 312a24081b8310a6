// Package attr reduces directory trees to comparable fingerprint maps.
//
// An Index maps directory-relative paths to content fingerprints. Because
// keys are always expressed relative to the scanned (or rebased) root, two
// indexes built from physically distinct trees are directly comparable.
package attr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Record is an opaque fingerprint of one file, derived from its content. Two
// records are equal iff their digests are equal; ordering by digest keeps
// diagnostic output stable.
type Record struct {
	Path   string // originating file path on disk
	Digest string // SHA256 hash of content, hex encoded
}

// Equal reports whether two records fingerprint identical content.
func (r Record) Equal(other Record) bool {
	return r.Digest == other.Digest
}

// Less orders records by digest.
func (r Record) Less(other Record) bool {
	return r.Digest < other.Digest
}

// Index maps a relative-path key to the fingerprint of the file behind it.
type Index map[string]Record

// Filter decides per file whether it enters an index and against which base
// directory its key is computed. Returning ok=false excludes the file.
type Filter func(path string) (base string, ok bool)

// Build performs a full recursive scan of the tree under root. With a nil
// filter every file is included, keyed relative to root itself. A missing
// root yields an empty index, so freshly initialized trees compare cleanly
// against empty ones.
func Build(root string, filter Filter) (Index, error) {
	idx := make(Index)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return idx, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		base := root
		if filter != nil {
			b, ok := filter(path)
			if !ok {
				return nil
			}
			base = b
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		key := filepath.ToSlash(rel)

		digest, err := fileDigest(path)
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", path, err)
		}

		if existing, dup := idx[key]; dup {
			return fmt.Errorf("duplicate attribute key %q (%s and %s)", key, existing.Path, path)
		}
		idx[key] = Record{Path: path, Digest: digest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Merge adds every record of other into idx. A key present on both sides is
// an error: indexes to be merged must cover disjoint trees.
func (idx Index) Merge(other Index) error {
	for key, record := range other {
		if existing, dup := idx[key]; dup {
			return fmt.Errorf("duplicate attribute key %q (%s and %s)", key, existing.Path, record.Path)
		}
		idx[key] = record
	}
	return nil
}

// Keys returns the index's keys in sorted order.
func (idx Index) Keys() []string {
	keys := make([]string, 0, len(idx))
	for key := range idx {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Exclude returns a filter that rebases every file against root and drops
// files for which drop returns true, given the slash-separated relative path.
func Exclude(root string, drop func(rel string) bool) Filter {
	return func(path string) (string, bool) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", false
		}
		if drop(filepath.ToSlash(rel)) {
			return "", false
		}
		return root, true
	}
}

// ExcludeNames returns a filter rebasing against root that drops any file
// with one of the given names as a path element. Used to keep
// version-control internals and install manifests out of content indexes.
func ExcludeNames(root string, names ...string) Filter {
	return Exclude(root, func(rel string) bool {
		for _, element := range strings.Split(rel, "/") {
			if slices.Contains(names, element) {
				return true
			}
		}
		return false
	})
}

// PackageDirs returns the repository-level filter: only files inside a
// package directory below root are included, keyed by their containing
// package directory plus the path inside it. Loose files directly under root
// (repository administrativia) are excluded.
func PackageDirs(root string) Filter {
	return Exclude(root, func(rel string) bool {
		return !strings.Contains(rel, "/")
	})
}

// fileDigest computes the SHA256 hash of a file's content.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
