package rules

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

const maxLineBytes = 4 << 20

// QualifyingPrefixes are the line prefixes that mark a filter rule.
var QualifyingPrefixes = []string{"||", "0.0.0.0", "127.0.0.1", "::"}

// Stats summarises one normalization pass.
type Stats struct {
	TotalLines int
	Qualifying int
	Duplicates int
	Unique     int
}

// Qualifies reports whether line begins with a qualifying prefix.
func Qualifies(line string) bool {
	for _, prefix := range QualifyingPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// NormalizeLine returns the rule for line, or false if the line is not a rule.
// Every '#' is removed and leading spaces and tabs are stripped; the rest of
// the line is kept verbatim.
func NormalizeLine(line string) (string, bool) {
	if !Qualifies(line) {
		return "", false
	}
	rule := strings.TrimLeft(strings.ReplaceAll(line, "#", ""), " \t")
	return rule, true
}

// Normalize scans r line by line and collects the unique rules it contains.
// A leading byte order mark is dropped and trailing CR is stripped from each
// line. Bytes are not decoded, so invalid UTF-8 is kept as is.
func Normalize(r io.Reader) (*RuleSet, Stats, error) {
	set := NewRuleSet()
	stats := Stats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if stats.TotalLines == 0 {
			line = stripBOM(line)
		}
		stats.TotalLines++
		rule, ok := NormalizeLine(line)
		if !ok {
			continue
		}
		stats.Qualifying++
		if !set.Add(rule) {
			stats.Duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan artifact: %w", err)
	}

	stats.Unique = set.Len()
	return set, stats, nil
}

func stripBOM(line string) string {
	return strings.TrimPrefix(line, "\ufeff")
}

// NormalizeFile runs Normalize over the artifact at path.
func NormalizeFile(fs afero.Fs, path string) (*RuleSet, Stats, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, Stats{}, serrors.Wrap(serrors.ErrArtifactIO, err, "open artifact %s", path)
	}
	defer func() {
		_ = file.Close()
	}()

	set, stats, err := Normalize(file)
	if err != nil {
		return nil, stats, serrors.Wrap(serrors.ErrArtifactIO, err, "read artifact %s", path)
	}
	return set, stats, nil
}
