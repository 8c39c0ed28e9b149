// Package inspect reports on the content of an output artifact without
// modifying it.
package inspect

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"github.com/spf13/afero"
)

// Rule kinds reported by Scan.
const (
	KindAdblock  = "adblock"
	KindHostsV4  = "hosts_0.0.0.0"
	KindLoopback = "hosts_127.0.0.1"
	KindHostsV6  = "hosts_::"
	KindOther    = "other"
)

// maxInvalidSamples bounds how many malformed hosts a report keeps.
const maxInvalidSamples = 20

// Invalid is a line whose host does not parse as a domain name.
type Invalid struct {
	Line int
	Host string
}

// Report summarises an output artifact.
type Report struct {
	Lines      int
	Kinds      map[string]int
	Duplicates int
	Excluded   int
	Malformed  int
	Samples    []Invalid
}

// File scans the artifact at path.
func File(fs afero.Fs, path, marker string) (Report, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Scan(file, marker)
}

// Scan classifies every line of r. Lines starting with marker are counted as
// excluded and not classified further.
func Scan(r io.Reader, marker string) (Report, error) {
	report := Report{Kinds: make(map[string]int)}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		report.Lines++

		if marker != "" && strings.HasPrefix(line, marker) {
			report.Excluded++
			continue
		}
		if _, ok := seen[line]; ok {
			report.Duplicates++
		} else {
			seen[line] = struct{}{}
		}

		kind, host := Classify(line)
		report.Kinds[kind]++
		if kind == KindOther {
			continue
		}
		if _, ok := dns.IsDomainName(host); !ok || host == "" {
			report.Malformed++
			if len(report.Samples) < maxInvalidSamples {
				report.Samples = append(report.Samples, Invalid{Line: report.Lines, Host: host})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("scan: %w", err)
	}
	return report, nil
}

// Classify returns the rule kind of line and the host it targets.
func Classify(line string) (string, string) {
	switch {
	case strings.HasPrefix(line, "||"):
		host := line[2:]
		if i := strings.IndexAny(host, "^$/"); i >= 0 {
			host = host[:i]
		}
		return KindAdblock, host
	case strings.HasPrefix(line, "0.0.0.0"):
		return KindHostsV4, hostsField(line)
	case strings.HasPrefix(line, "127.0.0.1"):
		return KindLoopback, hostsField(line)
	case strings.HasPrefix(line, "::"):
		return KindHostsV6, hostsField(line)
	default:
		return KindOther, ""
	}
}

func hostsField(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// Write prints report to w in a stable order.
func (r Report) Write(w io.Writer) error {
	kinds := make([]string, 0, len(r.Kinds))
	for kind := range r.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "lines: %d\n", r.Lines)
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %s: %d\n", kind, r.Kinds[kind])
	}
	fmt.Fprintf(&b, "duplicates: %d\n", r.Duplicates)
	fmt.Fprintf(&b, "excluded: %d\n", r.Excluded)
	fmt.Fprintf(&b, "malformed hosts: %d\n", r.Malformed)
	for _, sample := range r.Samples {
		fmt.Fprintf(&b, "  line %d: %q\n", sample.Line, sample.Host)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
