package rules

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

// CleanupStats summarises one cleanup pass.
type CleanupStats struct {
	Kept    int
	Removed int
}

// Cleanup rewrites the file at path without the lines that begin with
// marker, preserving the order of the rest. Kept lines go to a sibling temp
// file which is then renamed over the original, so the original is either
// fully replaced or left untouched.
func Cleanup(fs afero.Fs, path string, marker string) (CleanupStats, error) {
	stats := CleanupStats{}

	info, err := fs.Stat(path)
	if err != nil {
		return stats, serrors.Wrap(serrors.ErrCleanupIO, err, "stat %s", path)
	}

	input, err := fs.Open(path)
	if err != nil {
		return stats, serrors.Wrap(serrors.ErrCleanupIO, err, "open %s", path)
	}
	defer func() {
		_ = input.Close()
	}()

	temp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".clean-*")
	if err != nil {
		return stats, serrors.Wrap(serrors.ErrCleanupIO, err, "create temp file for %s", path)
	}
	tempName := temp.Name()
	discard := func() {
		_ = temp.Close()
		_ = fs.Remove(tempName)
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(temp)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, marker) {
			stats.Removed++
			continue
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			discard()
			return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "write %s", tempName)
		}
		stats.Kept++
	}
	if err := scanner.Err(); err != nil {
		discard()
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "read %s", path)
	}
	if err := writer.Flush(); err != nil {
		discard()
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "flush %s", tempName)
	}
	if err := temp.Sync(); err != nil {
		discard()
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "sync %s", tempName)
	}
	if err := temp.Close(); err != nil {
		_ = fs.Remove(tempName)
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "close %s", tempName)
	}
	if err := fs.Chmod(tempName, info.Mode().Perm()); err != nil {
		_ = fs.Remove(tempName)
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "chmod %s", tempName)
	}

	_ = input.Close()
	if err := fs.Rename(tempName, path); err != nil {
		_ = fs.Remove(tempName)
		return CleanupStats{}, serrors.Wrap(serrors.ErrCleanupIO, err, "replace %s", path)
	}

	return stats, nil
}
