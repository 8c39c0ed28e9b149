package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

func TestCleanupRemovesExcludedLines(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	path := filepath.Join(dir, "output_rules.txt")
	if err := afero.WriteFile(fs, path, []byte("||a.com^\n**excluded-rule\n0.0.0.0 b.com\n"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	stats, err := Cleanup(fs, path, "**")
	if err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got, want := string(data), "||a.com^\n0.0.0.0 b.com\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if stats.Removed != 1 || stats.Kept != 2 {
		t.Errorf("stats = %+v, want 2 kept 1 removed", stats)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the output file in %s, found %d entries", dir, len(entries))
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "output_rules.txt")
	content := "**x\n||a.example^\n*single-star\n**y\n127.0.0.1 b.example\n"
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	if _, err := Cleanup(fs, path, "**"); err != nil {
		t.Fatalf("first Cleanup returned error: %v", err)
	}
	first, _ := afero.ReadFile(fs, path)

	stats, err := Cleanup(fs, path, "**")
	if err != nil {
		t.Fatalf("second Cleanup returned error: %v", err)
	}
	second, _ := afero.ReadFile(fs, path)

	if string(first) != "||a.example^\n*single-star\n127.0.0.1 b.example\n" {
		t.Errorf("first pass output = %q", first)
	}
	if string(first) != string(second) {
		t.Errorf("second pass changed output: %q -> %q", first, second)
	}
	if stats.Removed != 0 {
		t.Errorf("second pass removed %d lines, want 0", stats.Removed)
	}
}

func TestCleanupMissingFile(t *testing.T) {
	_, err := Cleanup(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing.txt"), "**")
	if err == nil {
		t.Fatal("expected error for missing output")
	}
	if !errors.Is(err, serrors.ErrCleanupIO) {
		t.Errorf("expected ErrCleanupIO, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist cause, got %v", err)
	}
}

func TestCleanupFailureLeavesOriginal(t *testing.T) {
	base := afero.NewMemMapFs()
	original := "||a.com^\n**excluded-rule\n"
	if err := afero.WriteFile(base, "/out/output_rules.txt", []byte(original), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	_, err := Cleanup(afero.NewReadOnlyFs(base), "/out/output_rules.txt", "**")
	if !errors.Is(err, serrors.ErrCleanupIO) {
		t.Fatalf("expected ErrCleanupIO, got %v", err)
	}

	data, err := afero.ReadFile(base, "/out/output_rules.txt")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != original {
		t.Errorf("original changed after failed cleanup: %q", data)
	}
}
