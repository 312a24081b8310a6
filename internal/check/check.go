// Package check compares two labeled attribute indexes and reports every
// divergence together.
package check

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkgfix/pkgfix/internal/attr"
)

// SyncError records one attribute key present on exactly one side of a
// comparison. Source is the label of the side that holds the key.
type SyncError struct {
	Source string
	Key    string
	Path   string
}

// Error implements the error interface.
func (e SyncError) Error() string {
	return fmt.Sprintf("%s: attribute %q present only on this side (file %s)", e.Source, e.Key, e.Path)
}

// SyncErrorSet is the aggregated failure of a consistency check. It is never
// returned empty: callers get either nil or the full list of divergences.
type SyncErrorSet []SyncError

// Error lists every divergence, one per line, so multi-file drift is
// diagnosable in one pass.
func (s SyncErrorSet) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d attribute(s) out of sync:", len(s))
	for _, e := range s {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Dump writes each divergent file's content to w for human inspection.
// Unreadable files are reported inline rather than aborting the dump.
func (s SyncErrorSet) Dump(w io.Writer) {
	for _, e := range s {
		fmt.Fprintf(w, "--- %s: %s (%s)\n", e.Source, e.Key, e.Path)
		data, err := os.ReadFile(e.Path)
		if err != nil {
			fmt.Fprintf(w, "<unreadable: %v>\n", err)
			continue
		}
		fmt.Fprintf(w, "%s\n", data)
	}
}

// Compare computes the symmetric difference of the two indexes' key sets and
// returns one SyncError per key found on only one side, labeled with that
// side. It returns nil when the key sets are identical.
//
// This is deliberately a presence check: a key present on both sides is
// never reported, even when the fingerprints behind it differ. Other
// invariants are engineered around this, so do not silently strengthen it to
// content comparison.
func Compare(labelA string, a attr.Index, labelB string, b attr.Index) SyncErrorSet {
	var errs SyncErrorSet
	for _, key := range a.Keys() {
		if _, ok := b[key]; !ok {
			errs = append(errs, SyncError{Source: labelA, Key: key, Path: a[key].Path})
		}
	}
	for _, key := range b.Keys() {
		if _, ok := a[key]; !ok {
			errs = append(errs, SyncError{Source: labelB, Key: key, Path: b[key].Path})
		}
	}
	return errs
}
