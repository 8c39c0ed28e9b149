// Package cycle drives the fetch, wait and cleanup loop over all sources.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/clock"
	"github.com/kelomina/ADGHRuleTool/pkg/metrics"
	"github.com/kelomina/ADGHRuleTool/pkg/rules"
	"github.com/kelomina/ADGHRuleTool/pkg/sources"
)

// DefaultInterval is the wait between two cycles.
const DefaultInterval = 6 * time.Hour

const defaultMarker = "**"

// Fetcher downloads a source into a local artifact.
type Fetcher interface {
	Fetch(ctx context.Context, source sources.Source, destination string) error
}

// Options configures a Scheduler.
type Options struct {
	Sources         []sources.Source
	Fetcher         Fetcher
	Output          *rules.Output
	Fs              afero.Fs
	ScratchDir      string
	Interval        time.Duration
	ExclusionMarker string
	Clock           clock.Clock
	Log             *slog.Logger
	Metrics         *metrics.Metrics
}

// Scheduler runs cycles sequentially. Only one cycle is in flight at a time.
type Scheduler struct {
	sources    []sources.Source
	fetcher    Fetcher
	output     *rules.Output
	fs         afero.Fs
	scratchDir string
	interval   time.Duration
	marker     string
	clock      clock.Clock
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	cycles int64
	last   *Report
}

// New creates a Scheduler. Fetcher and Output are required.
func New(opts Options) (*Scheduler, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("cycle: fetcher is required")
	}
	if opts.Output == nil {
		return nil, errors.New("cycle: output is required")
	}

	s := &Scheduler{
		sources:    opts.Sources,
		fetcher:    opts.Fetcher,
		output:     opts.Output,
		fs:         opts.Fs,
		scratchDir: opts.ScratchDir,
		interval:   opts.Interval,
		marker:     opts.ExclusionMarker,
		clock:      opts.Clock,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.scratchDir == "" {
		s.scratchDir = "."
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.marker == "" {
		s.marker = defaultMarker
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Run executes cycles until ctx is cancelled. Each cycle is followed by the
// inter-cycle wait and then a cleanup pass over the output. Cancellation
// returns nil; a failure to reset the output is returned as is.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.Wait(ctx); err != nil {
			return nil
		}
		if err := s.Cleanup(); err != nil {
			s.log.Error("cleanup failed", "path", s.output.Path(), "error", err)
		}
	}
}

// RunOnce performs a single fetch cycle. Per-source failures are collected
// in the report and never abort the cycle. The returned error is non-nil only
// when the output cannot be reset or ctx is cancelled mid-cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	s.cycles++
	report := Report{Cycle: s.cycles, Started: s.clock.Now(), Sources: len(s.sources)}
	s.mu.Unlock()

	s.log.Info("cycle started", "cycle", report.Cycle, "sources", report.Sources)

	s.removeStaleArtifacts()
	if err := s.output.Reset(); err != nil {
		s.log.Error("failed to reset output", "path", s.output.Path(), "error", err)
		return report, err
	}

	for _, source := range s.sources {
		if err := ctx.Err(); err != nil {
			s.log.Info("cycle interrupted", "cycle", report.Cycle, "error", err)
			return s.finish(report), err
		}
		appended, err := s.process(ctx, source)
		report.record(SourceResult{ID: source.ID, Location: source.Location, Rules: appended}, err)
	}

	report = s.finish(report)
	s.log.Info("cycle finished",
		"cycle", report.Cycle,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"rules", report.Rules,
		"took", report.Finished.Sub(report.Started).String())
	return report, nil
}

// Wait blocks for the configured interval or until ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.log.Info("waiting for next cycle", "interval", s.interval.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.interval):
		return nil
	}
}

// Cleanup removes every line starting with the exclusion marker from the
// output artifact.
func (s *Scheduler) Cleanup() error {
	stats, err := rules.Cleanup(s.fs, s.output.Path(), s.marker)
	s.metrics.CleanupDone(stats.Removed, err)
	if err != nil {
		return err
	}
	s.log.Info("cleanup finished", "path", s.output.Path(), "kept", stats.Kept, "removed", stats.Removed)
	return nil
}

// LastReport returns the report of the most recent cycle, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) finish(report Report) Report {
	report.Finished = s.clock.Now()
	s.metrics.CycleDone(report.Finished, report.Finished.Sub(report.Started))

	s.mu.Lock()
	stored := report
	s.last = &stored
	s.mu.Unlock()
	return report
}

// process fetches, normalizes and appends one source. The temporary
// artifact is gone when it returns.
func (s *Scheduler) process(ctx context.Context, source sources.Source) (int, error) {
	artifact := filepath.Join(s.scratchDir, source.ArtifactName())

	if err := s.fetcher.Fetch(ctx, source, artifact); err != nil {
		s.log.Error("failed to download source", "source", source.ID, "url", source.Location, "error", err)
		return 0, fmt.Errorf("%s: %w", source.ID, err)
	}
	defer s.removeArtifact(artifact)

	set, stats, err := rules.NormalizeFile(s.fs, artifact)
	if err != nil {
		s.log.Error("failed to normalize source", "source", source.ID, "error", err)
		return 0, fmt.Errorf("%s: %w", source.ID, err)
	}

	appended, err := s.output.Append(set)
	s.metrics.RulesAppended(appended)
	if err != nil {
		s.log.Error("failed to append rules", "source", source.ID, "path", s.output.Path(), "error", err)
		return appended, fmt.Errorf("%s: %w", source.ID, err)
	}

	s.log.Info("source processed",
		"source", source.ID,
		"lines", stats.TotalLines,
		"qualifying", stats.Qualifying,
		"unique", stats.Unique,
		"appended", appended)
	return appended, nil
}

func (s *Scheduler) removeArtifact(path string) {
	if err := s.fs.Remove(path); err != nil {
		s.log.Warn("failed to remove temporary artifact", "path", path, "error", err)
	}
}

// removeStaleArtifacts deletes temp_rules_*.txt files a previous run left
// behind, for example after a crash mid-cycle.
func (s *Scheduler) removeStaleArtifacts() {
	matches, err := afero.Glob(s.fs, filepath.Join(s.scratchDir, sources.ArtifactPattern))
	if err != nil {
		s.log.Warn("failed to list stale artifacts", "dir", s.scratchDir, "error", err)
		return
	}
	for _, path := range matches {
		if err := s.fs.Remove(path); err != nil {
			s.log.Warn("failed to remove stale artifact", "path", path, "error", err)
			continue
		}
		s.log.Debug("removed stale artifact", "path", path)
	}
}
