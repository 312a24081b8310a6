package gen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestContextString_LengthAndAlphabet(t *testing.T) {
	c := NewContext(42)
	s := c.String(100)
	if len(s) != 100 {
		t.Fatalf("expected 100 characters, got %d", len(s))
	}
	for i, ch := range []byte(s) {
		if ch < alphabetStart || ch >= alphabetStart+alphabetSize {
			t.Errorf("character %d (%q) outside alphabet", i, ch)
		}
	}
}

func TestContextString_Deterministic(t *testing.T) {
	a := NewContext(7).String(64)
	b := NewContext(7).String(64)
	if a != b {
		t.Errorf("same seed produced different streams: %q vs %q", a, b)
	}

	c := NewContext(8).String(64)
	if a == c {
		t.Error("different seeds produced the same stream")
	}
}

func TestContextReset(t *testing.T) {
	c := NewContext(5)
	first := c.String(32)
	c.Reset()
	second := c.String(32)
	if first != second {
		t.Errorf("reset did not rewind the stream: %q vs %q", first, second)
	}
}

func TestParseIdentity(t *testing.T) {
	for _, tc := range []struct {
		in      string
		name    string
		version string
		wantErr bool
	}{
		{in: "foo.1", name: "foo", version: "1"},
		{in: "foo.1.0", name: "foo", version: "1.0"},
		{in: "foo", wantErr: true},
		{in: ".1", wantErr: true},
		{in: "foo.", wantErr: true},
	} {
		id, err := ParseIdentity(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseIdentity(%q): expected error, got %v", tc.in, id)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIdentity(%q): %v", tc.in, err)
			continue
		}
		if id.Name != tc.name || id.Version != tc.version {
			t.Errorf("ParseIdentity(%q) = %v, want {%s %s}", tc.in, id, tc.name, tc.version)
		}
	}
}

func TestBuildContents_LengthsAndOrder(t *testing.T) {
	id := Identity{Name: "foo", Version: "1"}

	for _, seed := range []int{0, 1, 5, 42} {
		entries := BuildContents(id, seed)
		if len(entries) != 4 {
			t.Fatalf("seed %d: expected 4 entries, got %d", seed, len(entries))
		}

		wantPaths := []string{"a/a", "a/b", "c", "foo.install"}
		wantLens := map[string]int{
			"a/a": 1 + 2*seed,
			"a/b": 1 + 3*seed,
			"c":   1 + seed,
		}
		for i, entry := range entries {
			if entry.Path != wantPaths[i] {
				t.Errorf("seed %d: entry %d path = %q, want %q", seed, i, entry.Path, wantPaths[i])
			}
			if want, ok := wantLens[entry.Path]; ok && len(entry.Body) != want {
				t.Errorf("seed %d: entry %q length = %d, want %d", seed, entry.Path, len(entry.Body), want)
			}
		}
	}
}

func TestBuildContents_Deterministic(t *testing.T) {
	id := Identity{Name: "foo", Version: "2"}
	a := BuildContents(id, 9)
	b := BuildContents(id, 9)
	for i := range a {
		if a[i].Path != b[i].Path || !bytes.Equal(a[i].Body, b[i].Body) {
			t.Errorf("entry %d differs between identical builds", i)
		}
	}
}

func TestBuildContents_InstallManifest(t *testing.T) {
	entries := BuildContents(Identity{Name: "bar", Version: "1"}, 0)
	var manifest []byte
	for _, entry := range entries {
		if entry.Path == "bar.install" {
			manifest = entry.Body
		}
	}
	if manifest == nil {
		t.Fatal("install manifest entry missing")
	}
	want := "lib: [ \"a/a\" \"a/b\" ]\nbin: [ \"c\" ]\n"
	if string(manifest) != want {
		t.Errorf("manifest = %q, want %q", manifest, want)
	}
}

// fakePacker writes a marker file so archive bytes are observable without a
// real compressor.
type fakePacker struct {
	packed []string
	err    error
}

func (p *fakePacker) Pack(srcDir, outPath string) error {
	p.packed = append(p.packed, srcDir)
	if p.err != nil {
		return p.err
	}
	return os.WriteFile(outPath, []byte("blob:"+filepath.Base(srcDir)), 0644)
}

func TestBuildPackage_SeedSentinels(t *testing.T) {
	id := Identity{Name: "foo", Version: "1"}

	for _, tc := range []struct {
		seed        int
		wantURL     bool
		wantDescr   bool
		wantArchive bool
	}{
		{seed: 0, wantURL: false, wantDescr: false, wantArchive: false},
		{seed: 1, wantURL: true, wantDescr: true, wantArchive: false},
		{seed: 2, wantURL: true, wantDescr: true, wantArchive: true},
		{seed: 3, wantURL: true, wantDescr: true, wantArchive: false},
		{seed: 4, wantURL: true, wantDescr: true, wantArchive: true},
	} {
		t.Run(fmt.Sprintf("seed-%d", tc.seed), func(t *testing.T) {
			spec, err := BuildPackage(id, tc.seed, URLLocal, "/tmp/contents/foo.1", &fakePacker{})
			if err != nil {
				t.Fatal(err)
			}
			if got := spec.URL != nil; got != tc.wantURL {
				t.Errorf("URL present = %v, want %v", got, tc.wantURL)
			}
			if got := spec.Description != nil; got != tc.wantDescr {
				t.Errorf("description present = %v, want %v", got, tc.wantDescr)
			}
			if got := spec.Archive != nil; got != tc.wantArchive {
				t.Errorf("archive present = %v, want %v", got, tc.wantArchive)
			}
			if want := fmt.Sprintf("test-%d", tc.seed); spec.Maintainer != want {
				t.Errorf("maintainer = %q, want %q", spec.Maintainer, want)
			}
			if spec.URL != nil && spec.URL.Checksum != fmt.Sprintf("checksum-%d", tc.seed) {
				t.Errorf("checksum = %q", spec.URL.Checksum)
			}
		})
	}
}

func TestBuildPackage_PrefixRule(t *testing.T) {
	packer := &fakePacker{}

	spec, err := BuildPackage(Identity{Name: "foo", Version: "1"}, 0, URLLocal, "", packer)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Prefix != nil {
		t.Errorf("version 1: expected no prefix, got %q", *spec.Prefix)
	}

	spec, err = BuildPackage(Identity{Name: "foo", Version: "2"}, 0, URLLocal, "", packer)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Prefix == nil || *spec.Prefix != "prefix-foo" {
		t.Errorf("version 2: expected prefix-foo, got %v", spec.Prefix)
	}
}

func TestBuildPackage_GitURLCarriesFixtureBranch(t *testing.T) {
	spec, err := BuildPackage(Identity{Name: "foo", Version: "1"}, 2, URLGit, "/tmp/contents/foo.1", &fakePacker{})
	if err != nil {
		t.Fatal(err)
	}
	if spec.URL == nil {
		t.Fatal("expected URL")
	}
	if spec.URL.Ref != FixtureBranch {
		t.Errorf("ref = %q, want %q", spec.URL.Ref, FixtureBranch)
	}

	spec, err = BuildPackage(Identity{Name: "foo", Version: "1"}, 2, URLLocal, "/tmp/contents/foo.1", &fakePacker{})
	if err != nil {
		t.Fatal(err)
	}
	if spec.URL.Ref != "" {
		t.Errorf("local URL should carry no ref, got %q", spec.URL.Ref)
	}
}

func TestBuildPackage_PackerFailureAborts(t *testing.T) {
	packer := &fakePacker{err: fmt.Errorf("disk full")}
	_, err := BuildPackage(Identity{Name: "foo", Version: "1"}, 2, URLLocal, "", packer)
	if err == nil {
		t.Fatal("expected error from failing packer")
	}
	if len(packer.packed) != 1 {
		t.Fatalf("expected exactly one pack attempt, got %d", len(packer.packed))
	}
	// The temp root handed to the packer must be gone again.
	if _, statErr := os.Stat(packer.packed[0]); !os.IsNotExist(statErr) {
		t.Errorf("temporary pack directory still exists: %s", packer.packed[0])
	}
}

func TestBuildPackage_Deterministic(t *testing.T) {
	id := Identity{Name: "foo", Version: "2"}
	a, err := BuildPackage(id, 5, URLLocal, "/tmp/x", &fakePacker{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildPackage(id, 5, URLLocal, "/tmp/x", &fakePacker{})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Contents {
		if !bytes.Equal(a.Contents[i].Body, b.Contents[i].Body) {
			t.Errorf("content entry %q differs between identical builds", a.Contents[i].Path)
		}
	}
	if *a.Description != *b.Description {
		t.Error("descriptions differ between identical builds")
	}
}
