package repo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkgfix/pkgfix/internal/gen"
)

// Metadata file names inside a package directory.
const (
	opamFileName  = "opam"
	descrFileName = "descr"
	urlFileName   = "url"
)

// renderOpam renders the package's core metadata record.
func renderOpam(spec *gen.PackageSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "opam-version: %q\n", "2.0")
	fmt.Fprintf(&b, "name: %q\n", spec.ID.Name)
	fmt.Fprintf(&b, "version: %q\n", spec.ID.Version)
	fmt.Fprintf(&b, "maintainer: %q\n", spec.Maintainer)
	return b.String()
}

// renderURL renders a URL descriptor. Version-controlled locations carry
// their revision as a fragment.
func renderURL(u *gen.URL) string {
	var b strings.Builder
	switch u.Kind {
	case gen.URLGit:
		fmt.Fprintf(&b, "git: %q\n", u.Location+"#"+u.Ref)
	default:
		fmt.Fprintf(&b, "src: %q\n", u.Location)
	}
	fmt.Fprintf(&b, "checksum: %q\n", u.Checksum)
	return b.String()
}

// parseFields splits a metadata file into its key/quoted-value fields.
func parseFields(data string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed metadata line %q", line)
		}
		value, err := strconv.Unquote(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("malformed metadata value in line %q: %w", line, err)
		}
		fields[strings.TrimSpace(key)] = value
	}
	return fields, nil
}

// parseURL reads a URL descriptor back.
func parseURL(data string) (*gen.URL, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}

	u := &gen.URL{Checksum: fields["checksum"]}
	switch {
	case fields["git"] != "":
		u.Kind = gen.URLGit
		location, ref, _ := strings.Cut(fields["git"], "#")
		u.Location = location
		u.Ref = ref
	case fields["src"] != "":
		u.Kind = gen.URLLocal
		u.Location = fields["src"]
	default:
		return nil, fmt.Errorf("url descriptor carries neither git nor src field")
	}
	return u, nil
}
