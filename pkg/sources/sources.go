// Package sources loads the ordered list of remote rule-list locations.
package sources

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

// ArtifactPattern matches every temporary artifact name.
const ArtifactPattern = "temp_rules_*.txt"

// Source describes one configured rule-list location. Index is its position
// in the list and names its per-cycle temporary artifact.
type Source struct {
	Index    int
	ID       string
	Location string
}

// ArtifactName is the deterministic scratch file name for this source.
func (s Source) ArtifactName() string {
	return fmt.Sprintf("temp_rules_%d.txt", s.Index)
}

// Load reads the source list file with Parse.
func Load(fs afero.Fs, path string) ([]Source, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrConfigLoad, err, "open source list %s", path)
	}
	defer func() {
		_ = file.Close()
	}()

	list, err := Parse(file)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrConfigLoad, err, "read source list %s", path)
	}
	return list, nil
}

// Parse builds sources from r, one location per line. Surrounding whitespace
// is trimmed, a leading byte order mark is dropped and blank lines are
// skipped. The location itself is not validated.
func Parse(r io.Reader) ([]Source, error) {
	list := make([]Source, 0)

	scanner := bufio.NewScanner(r)
	for first := true; scanner.Scan(); first = false {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		location := strings.TrimSpace(line)
		if location == "" {
			continue
		}
		index := len(list)
		list = append(list, Source{
			Index:    index,
			ID:       fmt.Sprintf("source_%d", index),
			Location: location,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan source list: %w", err)
	}

	return list, nil
}
