package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kelomina/ADGHRuleTool/internal/testutil"
	"github.com/kelomina/ADGHRuleTool/pkg/config"
	"github.com/kelomina/ADGHRuleTool/pkg/version"
)

type fixture struct {
	dir        string
	configPath string
	outputPath string
}

// newFixture writes a source list naming locations and a config pointing
// every path into a temp dir.
func newFixture(t *testing.T, extra string, locations ...string) fixture {
	t.Helper()
	t.Setenv(config.ConfigEnvVar, "")

	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "adghruletool.toml"),
		outputPath: filepath.Join(dir, "output_rules.txt"),
	}

	sourceFile := filepath.Join(dir, "rule.txt")
	if err := os.WriteFile(sourceFile, []byte(strings.Join(locations, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	content := fmt.Sprintf(`
[sources]
file = %q

[output]
path = %q
scratch_dir = %q

[fetch]
retry_interval = "1ms"
timeout = "5s"

[logging]
level = "debug"
file = %q
%s
`, sourceFile, f.outputPath, dir, filepath.Join(dir, "adghruletool.log"), extra)
	if err := os.WriteFile(f.configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), &out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestOnceCommand(t *testing.T) {
	stub := testutil.StartListStub(t, map[string]testutil.Response{
		"/adguard.txt": {Body: "! title\n||ads.example.com^\n# comment\n||ads.example.com^\n"},
		"/down.txt":    {Status: 500},
		"/hosts.txt":   {Body: "0.0.0.0 tracker.example\n127.0.0.1 local.example #note\n", FailFirst: 1},
	})
	f := newFixture(t, "", stub.Location("/adguard.txt"), stub.Location("/down.txt"), stub.Location("/hosts.txt"))

	out, err := execute(context.Background(), "--config", f.configPath, "once")
	if err != nil {
		t.Fatalf("once returned error: %v\n%s", err, out)
	}

	data, err := os.ReadFile(f.outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "||ads.example.com^\n0.0.0.0 tracker.example\n127.0.0.1 local.example note\n"
	if string(data) != want {
		t.Errorf("output = %q, want %q", data, want)
	}
	if !strings.Contains(out, "fetched 2 of 3 sources, 3 rules") {
		t.Errorf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "failed: source_1") {
		t.Errorf("summary does not name the failing source: %q", out)
	}
	if got := stub.Requests("/down.txt"); got != 5 {
		t.Errorf("down requests = %d, want 5", got)
	}

	leftovers, _ := filepath.Glob(filepath.Join(f.dir, "temp_rules_*.txt"))
	if len(leftovers) != 0 {
		t.Errorf("temporary artifacts left behind: %v", leftovers)
	}
}

func TestOnceClosesLogFile(t *testing.T) {
	stub := testutil.StartListStub(t, map[string]testutil.Response{
		"/list.txt": {Body: "||closed.example^\n"},
	})
	f := newFixture(t, "", stub.Location("/list.txt"))

	if out, err := execute(context.Background(), "--config", f.configPath, "once"); err != nil {
		t.Fatalf("once returned error: %v\n%s", err, out)
	}
	slog.Info("written after once returned")

	data, err := os.ReadFile(filepath.Join(f.dir, "adghruletool.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "cycle finished") {
		t.Errorf("log file is missing the cycle summary: %q", data)
	}
	if strings.Contains(string(data), "written after once returned") {
		t.Errorf("log file still open after once returned: %q", data)
	}
}

func TestOnceMissingSourceList(t *testing.T) {
	f := newFixture(t, "")
	if err := os.Remove(filepath.Join(f.dir, "rule.txt")); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(context.Background(), "--config", f.configPath, "once"); err == nil {
		t.Fatal("expected error for missing source list")
	}
	if _, err := os.Stat(f.outputPath); !os.IsNotExist(err) {
		t.Errorf("output should not be created when the source list is missing, stat error: %v", err)
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv(config.ConfigEnvVar, "")
	if _, err := execute(context.Background(), "--config", filepath.Join(t.TempDir(), "missing.toml"), "once"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	stub := testutil.StartListStub(t, map[string]testutil.Response{
		"/list.txt": {Body: "||run.example^\n"},
	})
	f := newFixture(t, "", stub.Location("/list.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "--config", f.configPath, "run")
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(f.outputPath)
		if string(data) == "||run.example^\n" {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("first cycle never completed, output = %q", data)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error on cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestCleanCommand(t *testing.T) {
	t.Setenv(config.ConfigEnvVar, "")
	path := filepath.Join(t.TempDir(), "output_rules.txt")
	if err := os.WriteFile(path, []byte("||a.com^\n**excluded-rule\n0.0.0.0 b.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(context.Background(), "clean", path)
	if err != nil {
		t.Fatalf("clean returned error: %v", err)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- test temp dir.
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "||a.com^\n0.0.0.0 b.com\n" {
		t.Errorf("cleaned output = %q", data)
	}
	if !strings.Contains(out, "kept 2 lines, removed 1") {
		t.Errorf("unexpected clean summary: %q", out)
	}
}

func TestInspectCommand(t *testing.T) {
	t.Setenv(config.ConfigEnvVar, "")
	path := filepath.Join(t.TempDir(), "output_rules.txt")
	if err := os.WriteFile(path, []byte("||a.com^\n0.0.0.0 b..com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(context.Background(), "inspect", path)
	if err != nil {
		t.Fatalf("inspect returned error: %v", err)
	}
	if !strings.Contains(out, "lines: 2") || !strings.Contains(out, "malformed hosts: 1") {
		t.Errorf("unexpected inspect output: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(context.Background(), "version")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if strings.TrimSpace(out) != "adghruletool "+version.Version {
		t.Errorf("version output = %q", out)
	}
}
