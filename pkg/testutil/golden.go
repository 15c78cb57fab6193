// Package testutil provides golden file testing utilities.
package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

// CompareGolden compares the actual output with the golden file content.
// If the -update flag is provided, it updates the golden file with the actual output.
func CompareGolden(t *testing.T, goldenPath string, actual string) {
	t.Helper()

	if *update {
		writeGoldenFile(t, goldenPath, []byte(actual))
		return
	}

	expected := readGoldenFile(t, goldenPath)
	if actual != string(expected) {
		t.Errorf("Golden file mismatch for %s\nExpected:\n%s\nActual:\n%s", goldenPath, expected, actual)
	}
}

// CompareGoldenJSON compares two JSON documents ignoring formatting.
// With -update the golden file is rewritten indented.
func CompareGoldenJSON(t *testing.T, goldenPath string, actual []byte) {
	t.Helper()

	if *update {
		var buf bytes.Buffer
		if err := json.Indent(&buf, actual, "", "  "); err != nil {
			t.Fatalf("Actual output is not JSON: %v\n%s", err, actual)
		}
		buf.WriteByte('\n')
		writeGoldenFile(t, goldenPath, buf.Bytes())
		return
	}

	expected := readGoldenFile(t, goldenPath)

	var want, got bytes.Buffer
	if err := json.Compact(&want, expected); err != nil {
		t.Fatalf("Golden file %s is not JSON: %v", goldenPath, err)
	}
	if err := json.Compact(&got, actual); err != nil {
		t.Fatalf("Actual output is not JSON: %v\n%s", err, actual)
	}
	if !bytes.Equal(want.Bytes(), got.Bytes()) {
		t.Errorf("Golden file mismatch for %s\nExpected:\n%s\nActual:\n%s", goldenPath, expected, actual)
	}
}

// readGoldenFile reads the content of a golden file.
func readGoldenFile(t *testing.T, goldenPath string) []byte {
	t.Helper()

	content, err := os.ReadFile(goldenPath)
	if err != nil {
		t.Fatalf("Failed to read golden file %s: %v", goldenPath, err)
	}
	return content
}

// writeGoldenFile replaces the golden file with content.
func writeGoldenFile(t *testing.T, goldenPath string, content []byte) {
	t.Helper()

	dir := filepath.Dir(goldenPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(goldenPath, content, 0o644); err != nil {
		t.Fatalf("Failed to update golden file %s: %v", goldenPath, err)
	}
	t.Logf("Updated golden file: %s", goldenPath)
}
