package testutil

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// updateGolden controls whether golden files should be updated.
// Use: go test ./... -run Golden -update
var updateGolden = flag.Bool("update", false, "update golden files")

// GoldenDir is where golden files live, relative to the package under test.
const GoldenDir = "testdata/golden"

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// GoldenPath returns the file backing the named golden.
func GoldenPath(name string) string {
	return filepath.Join(GoldenDir, name+".golden")
}

// CompareGolden compares got against testdata/golden/<name>.golden, failing
// with a diff on mismatch. With -update it rewrites the file instead.
func CompareGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	path := GoldenPath(name)

	if *updateGolden {
		UpdateGolden(t, name, got)
		t.Logf("Updated golden: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("Golden file missing: %s\n\nGot:\n%q\n\nRun with -update to create:\n  go test ./... -run %s -update",
				path, got, t.Name())
		}
		t.Fatalf("Failed to read golden file: %v", err)
	}

	if !bytes.Equal(got, expected) {
		diff := unifiedDiff(string(expected), string(got), path)
		t.Fatalf("Golden mismatch for %s:\n%s\n\nRun with -update to refresh:\n  go test ./... -run %s -update",
			name, diff, t.Name())
	}
}

// UpdateGolden writes data to the golden file, creating testdata/golden.
func UpdateGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(GoldenDir, 0o755); err != nil {
		t.Fatalf("Failed to create golden directory: %v", err)
	}
	if err := os.WriteFile(GoldenPath(name), data, 0o644); err != nil {
		t.Fatalf("Failed to write golden file: %v", err)
	}
}

// unifiedDiff produces a line diff between two strings. CR bytes are shown
// as \r so wire-format differences stay visible.
func unifiedDiff(expected, got, path string) string {
	var buf bytes.Buffer

	show := func(s string) string { return strings.ReplaceAll(s, "\r", `\r`) }
	expectedLines := strings.Split(expected, "\n")
	gotLines := strings.Split(got, "\n")

	fmt.Fprintf(&buf, "--- %s (expected)\n", path)
	fmt.Fprintf(&buf, "+++ %s (got)\n", path)

	n := max(len(expectedLines), len(gotLines))
	for i := 0; i < n; i++ {
		var exp, g string
		if i < len(expectedLines) {
			exp = expectedLines[i]
		}
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if exp == g {
			continue
		}
		fmt.Fprintf(&buf, "@@ line %d @@\n", i+1)
		if i < len(expectedLines) {
			fmt.Fprintf(&buf, "-%s\n", show(exp))
		}
		if i < len(gotLines) {
			fmt.Fprintf(&buf, "+%s\n", show(g))
		}
	}
	return buf.String()
}
