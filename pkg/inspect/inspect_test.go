package inspect

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		kind string
		host string
	}{
		{"||ads.example.com^", KindAdblock, "ads.example.com"},
		{"||ads.example.com^$third-party", KindAdblock, "ads.example.com"},
		{"||cdn.example.com/path", KindAdblock, "cdn.example.com"},
		{"0.0.0.0 tracker.example", KindHostsV4, "tracker.example"},
		{"127.0.0.1\tlocal.example", KindLoopback, "local.example"},
		{":: ipv6.example", KindHostsV6, "ipv6.example"},
		{"0.0.0.0", KindHostsV4, ""},
		{"example.com", KindOther, ""},
	}

	for _, tt := range tests {
		kind, host := Classify(tt.line)
		if kind != tt.kind || host != tt.host {
			t.Errorf("Classify(%q) = (%q, %q), want (%q, %q)", tt.line, kind, host, tt.kind, tt.host)
		}
	}
}

func TestScan(t *testing.T) {
	input := strings.Join([]string{
		"||ads.example.com^",
		"||ads.example.com^",
		"0.0.0.0 tracker.example",
		"0.0.0.0 bad..host",
		"**excluded",
		"127.0.0.1",
		"plain text",
	}, "\n") + "\n"

	report, err := Scan(strings.NewReader(input), "**")
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if report.Lines != 7 {
		t.Errorf("Lines = %d, want 7", report.Lines)
	}
	if report.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", report.Excluded)
	}
	if report.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", report.Duplicates)
	}
	if report.Kinds[KindAdblock] != 2 || report.Kinds[KindHostsV4] != 2 || report.Kinds[KindLoopback] != 1 || report.Kinds[KindOther] != 1 {
		t.Errorf("Kinds = %v", report.Kinds)
	}
	if report.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", report.Malformed)
	}
	if len(report.Samples) != 2 || report.Samples[0].Line != 4 || report.Samples[0].Host != "bad..host" {
		t.Errorf("Samples = %+v", report.Samples)
	}
}

func TestFileAndWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/output_rules.txt", []byte("||a.example^\n:: b.example\n"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	report, err := File(fs, "/output_rules.txt", "**")
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}

	var out strings.Builder
	if err := report.Write(&out); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	want := "lines: 2\n  adblock: 1\n  hosts_::: 1\nduplicates: 0\nexcluded: 0\nmalformed hosts: 0\n"
	if out.String() != want {
		t.Errorf("Write output = %q, want %q", out.String(), want)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(afero.NewMemMapFs(), "/missing.txt", "**"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
