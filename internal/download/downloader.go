package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/jsoc"
	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
)

// DefaultMaxAttempts is the per-file retry budget used by the pipeline.
const DefaultMaxAttempts = 25

// Outcome describes one file that landed under its canonical name.
type Outcome struct {
	RecordName string
	RemoteURL  string
	LocalPath  string
	Attempts   int
	Bytes      int64
	Duration   time.Duration
}

// Downloader fetches export manifests into a fresh local directory, one
// file at a time.
type Downloader struct {
	transport  Transport
	logger     *zap.Logger
	metrics    *metrics.PipelineMetrics
	retryDelay time.Duration
	now        func() time.Time
	exists     func(string) bool
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRetryDelay sets the base delay between attempts. The n-th retry waits
// n times this value.
func WithRetryDelay(d time.Duration) Option {
	return func(dl *Downloader) {
		if d >= 0 {
			dl.retryDelay = d
		}
	}
}

// WithClock replaces time.Now for dated-directory naming.
func WithClock(now func() time.Time) Option {
	return func(dl *Downloader) { dl.now = now }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(dl *Downloader) { dl.metrics = m }
}

// New creates a Downloader.
func New(transport Transport, logger *zap.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		transport: transport,
		logger:    logger,
		now:       time.Now,
		exists:    PathExists,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PrepareDestination applies the directory policy to dir and creates the
// chosen directory.
func (d *Downloader) PrepareDestination(dir string) (string, error) {
	target := DatedDirectory(filepath.Clean(dir), d.now(), d.exists)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create download directory %s: %w", target, err)
	}
	return target, nil
}

// DownloadAll fetches every manifest entry into a fresh directory derived
// from dir and returns the outcomes in manifest order together with the
// directory actually used. When any entry runs out of attempts the whole
// batch is abandoned: files already placed by this call are removed and no
// outcomes are returned.
func (d *Downloader) DownloadAll(ctx context.Context, manifest jsoc.Manifest, dir string, maxAttempts int) ([]Outcome, string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	target, err := d.PrepareDestination(dir)
	if err != nil {
		return nil, "", err
	}

	d.logger.Info("Downloading export",
		zap.String("directory", target),
		zap.Int("files", len(manifest)),
		zap.Int("max_attempts", maxAttempts))

	outcomes := make([]Outcome, 0, len(manifest))
	for i, entry := range manifest {
		out, err := d.downloadOne(ctx, entry, target, maxAttempts)
		if err != nil {
			d.discard(outcomes)
			d.metrics.RecordError("download")
			return nil, target, err
		}
		d.logger.Debug("File downloaded",
			zap.Int("index", i),
			zap.String("record", entry.RecordName),
			zap.String("path", out.LocalPath),
			zap.Int("attempts", out.Attempts))
		outcomes = append(outcomes, out)
	}

	d.logger.Info("Export downloaded",
		zap.String("directory", target),
		zap.Int("files", len(outcomes)))
	return outcomes, target, nil
}

func (d *Downloader) downloadOne(ctx context.Context, entry jsoc.ManifestEntry, dir string, maxAttempts int) (Outcome, error) {
	name := entry.SuggestedFilename
	if name == "" {
		name = filepath.Base(entry.RemoteURL)
	}
	canonical := filepath.Join(dir, name)
	// A name is free only when neither it nor its staging file exists.
	staged := NextAvailableName(canonical, func(p string) bool {
		return d.exists(p) || d.exists(p+PartSuffix)
	})
	part := staged + PartSuffix

	timer := metrics.NewTimer()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		n, err := d.attempt(ctx, entry.RemoteURL, part)
		if err == nil {
			// The staged name may have been taken while the transfer ran.
			final := staged
			if d.exists(final) {
				final = NextAvailableName(canonical, d.exists)
			}
			if err := os.Rename(part, final); err != nil {
				_ = os.Remove(part)
				return Outcome{}, fmt.Errorf("move %s into place: %w", part, err)
			}
			d.metrics.RecordDownloadAttempt("success")
			d.metrics.RecordDownload(n, timer.Duration())
			return Outcome{
				RecordName: entry.RecordName,
				RemoteURL:  entry.RemoteURL,
				LocalPath:  final,
				Attempts:   attempt,
				Bytes:      n,
				Duration:   timer.Duration(),
			}, nil
		}

		lastErr = err
		d.metrics.RecordDownloadAttempt("failure")
		d.logger.Warn("Download attempt failed",
			zap.String("record", entry.RecordName),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			_ = os.Remove(part)
			return Outcome{}, ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = os.Remove(part)
			return Outcome{}, ctx.Err()
		case <-time.After(d.retryDelay * time.Duration(attempt)):
		}
	}

	_ = os.Remove(part)
	d.logger.Error("File missing, download aborted",
		zap.String("record", entry.RecordName),
		zap.String("url", entry.RemoteURL),
		zap.Int("attempts", maxAttempts))
	return Outcome{}, &DownloadExhaustedError{
		Record:   entry.RecordName,
		URL:      entry.RemoteURL,
		Attempts: maxAttempts,
		Err:      lastErr,
	}
}

// attempt truncates the staging file and streams the remote file into it.
func (d *Downloader) attempt(ctx context.Context, remoteURL, part string) (int64, error) {
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := d.transport.Fetch(ctx, remoteURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (d *Downloader) discard(outcomes []Outcome) {
	for _, o := range outcomes {
		if err := os.Remove(o.LocalPath); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("Failed to remove partial batch file",
				zap.String("path", o.LocalPath), zap.Error(err))
		}
	}
}
