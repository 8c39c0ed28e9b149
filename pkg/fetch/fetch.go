// Package fetch retrieves the raw content of one rule-list source into a
// temporary artifact, optionally through a forward proxy, with a fixed
// number of attempts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/metrics"
	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
	"github.com/kelomina/ADGHRuleTool/pkg/sources"
	"github.com/kelomina/ADGHRuleTool/pkg/version"
)

// Defaults applied by New when an option is left at its zero value.
const (
	DefaultAttempts      = 5
	DefaultRetryInterval = 3 * time.Second
	DefaultTimeout       = 60 * time.Second
	DefaultMaxBytes      = int64(256 << 20)
)

// Options configures a Fetcher.
type Options struct {
	Proxy         string
	Attempts      int
	RetryInterval time.Duration
	Timeout       time.Duration
	UserAgent     string
	MaxBytes      int64

	// Transport replaces the proxy-aware default transport. Used by tests.
	Transport http.RoundTripper
	Fs        afero.Fs
	Log       *slog.Logger
	Metrics   *metrics.Metrics
}

// Fetcher downloads sources one at a time.
type Fetcher struct {
	client        *http.Client
	fs            afero.Fs
	attempts      int
	retryInterval time.Duration
	userAgent     string
	maxBytes      int64
	log           *slog.Logger
	metrics       *metrics.Metrics
}

// New builds a Fetcher. It fails only when the proxy URL cannot be parsed.
func New(opts Options) (*Fetcher, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.Proxy = http.ProxyFromEnvironment
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("parse proxy %s: %w", opts.Proxy, err)
			}
			base.Proxy = http.ProxyURL(proxyURL)
		}
		transport = base
	}

	f := &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   orDuration(opts.Timeout, DefaultTimeout),
		},
		fs:            fs,
		attempts:      opts.Attempts,
		retryInterval: orDuration(opts.RetryInterval, DefaultRetryInterval),
		userAgent:     opts.UserAgent,
		maxBytes:      opts.MaxBytes,
		log:           log,
		metrics:       opts.Metrics,
	}
	if f.attempts < 1 {
		f.attempts = DefaultAttempts
	}
	if f.userAgent == "" {
		f.userAgent = version.UserAgent()
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f, nil
}

// Fetch writes the body of source into destination. On success the complete
// artifact is left in place. When every attempt fails, or ctx is cancelled,
// destination is removed and the returned error carries ErrSourceFetch.
func (f *Fetcher) Fetch(ctx context.Context, source sources.Source, destination string) error {
	started := time.Now()
	file, err := f.fs.OpenFile(destination, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return serrors.Wrap(serrors.ErrArtifactIO, err, "create artifact %s", destination)
	}

	var written int64
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(f.attempts-1), retry.NewConstant(f.retryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		f.metrics.FetchAttempt(source.ID)
		n, err := f.attempt(ctx, file, source.Location)
		if err != nil {
			f.log.Warn("download failed", "source", source.ID, "url", source.Location, "attempt", attempt, "max_attempts", f.attempts, "error", err)
			if ctx.Err() != nil || errors.Is(err, errArtifactWrite) {
				return err
			}
			return retry.RetryableError(err)
		}
		written = n
		return nil
	})

	if err == nil {
		if syncErr := file.Sync(); syncErr != nil {
			err = fmt.Errorf("%w: %w", errArtifactWrite, syncErr)
		}
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", errArtifactWrite, closeErr)
	}

	if err != nil {
		if removeErr := f.fs.Remove(destination); removeErr != nil && !os.IsNotExist(removeErr) {
			f.log.Error("failed to remove partial artifact", "path", destination, "error", removeErr)
		}
		f.metrics.FetchDone(source.ID, 0, time.Since(started), err)
		if errors.Is(err, errArtifactWrite) {
			return serrors.Wrap(serrors.ErrArtifactIO, err, "write artifact %s", destination)
		}
		return serrors.Wrap(serrors.ErrSourceFetch, err, "fetch %s after %d attempts", source.Location, attempt)
	}

	f.metrics.FetchDone(source.ID, written, time.Since(started), nil)
	f.log.Debug("downloaded source", "source", source.ID, "url", source.Location, "bytes", written, "attempts", attempt)
	return nil
}

var errArtifactWrite = errors.New("artifact write failed")

// attempt performs one GET and copies the body into file, which is emptied
// first so bytes from an earlier failed attempt never survive.
func (f *Fetcher) attempt(ctx context.Context, file afero.File, location string) (int64, error) {
	if err := file.Truncate(0); err != nil {
		return 0, fmt.Errorf("%w: %w", errArtifactWrite, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", errArtifactWrite, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn("failed to close blocklist response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	n, err := copyBody(file, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > f.maxBytes {
		return n, fmt.Errorf("response exceeds %d bytes", f.maxBytes)
	}
	return n, nil
}

// copyBody tags destination write failures so they are not retried.
func copyBody(dst io.Writer, src io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			total += int64(nw)
			if writeErr != nil {
				return total, fmt.Errorf("%w: %w", errArtifactWrite, writeErr)
			}
			if nw != nr {
				return total, fmt.Errorf("%w: %w", errArtifactWrite, io.ErrShortWrite)
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
