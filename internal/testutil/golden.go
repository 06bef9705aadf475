// Package testutil holds shared test helpers.
package testutil

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// update rewrites golden files instead of comparing: go test ./... -update
var update = flag.Bool("update", false, "update golden files")

// TB is the part of testing.TB the golden helpers use.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// AssertGolden compares got with testdata/<name>. Line endings are
// normalised so files checked out with CRLF on Windows still match.
func AssertGolden(t TB, got, name string) {
	t.Helper()

	path := filepath.Join("testdata", name)

	if *update {
		writeGolden(t, path, got)
		return
	}

	want, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("golden file %s does not exist; run with -update to create it", path)
		return
	}

	if err != nil {
		t.Fatalf("read golden file %s: %v", path, err)
		return
	}

	if normalise(got) != normalise(string(want)) {
		t.Errorf("output mismatch for %s\n\ngot:\n%s\nwant:\n%s\nrun with -update to refresh golden files", path, got, want)
	}
}

func writeGolden(t TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(path), err)
		return
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // fixtures are world-readable
		t.Fatalf("write golden file %s: %v", path, err)
		return
	}

	t.Logf("updated golden file: %s", path)
}

func normalise(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
