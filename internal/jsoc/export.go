package jsoc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
	"go.uber.org/zap"
)

// Archive export status codes as reported by jsoc_fetch.
const (
	StatusComplete   = 0
	StatusQueued     = 1
	StatusProcessing = 2
	StatusTooLarge   = 3
	StatusBadRequest = 4
	StatusExpired    = 5
	StatusNotFound   = 6
	StatusNotReady   = 7
)

// ManifestEntry is one downloadable file of a materialised export.
type ManifestEntry struct {
	RecordName        string
	RemoteURL         string
	SuggestedFilename string
}

// Manifest is the ordered list of files produced by one export.
type Manifest []ManifestEntry

// RecordNames returns the record name of every entry, in manifest order.
func (m Manifest) RecordNames() []string {
	names := make([]string, len(m))
	for i, e := range m {
		names[i] = e.RecordName
	}
	return names
}

// Export protocols. The archive Rice-compresses FITS output unless asked
// not to; the frame loader only reads uncompressed images.
const (
	ProtocolFITS     = "FITS,**NONE**"
	ProtocolFITSRice = "FITS,compress Rice"
)

// ExportOptions describes one bulk export request.
type ExportOptions struct {
	Request  string
	Notify   string
	Method   string
	Protocol string
}

// ExportStatus is the archive's view of an export request.
type ExportStatus struct {
	RequestID string
	Status    int
	Wait      time.Duration
	Message   string
	Manifest  Manifest
}

// Archive is the remote side of an export job.
type Archive interface {
	SubmitExport(ctx context.Context, opts ExportOptions) (ExportStatus, error)
	ExportStatus(ctx context.Context, requestID string) (ExportStatus, error)
}

// State is the lifecycle position of an ExportJob.
type State int

const (
	StateCreated State = iota
	StateSubmitted
	StateReady
	StateConsumed
	StateExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubmitted:
		return "submitted"
	case StateReady:
		return "ready"
	case StateConsumed:
		return "consumed"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultPollInterval is used when the archive gives no wait hint.
const DefaultPollInterval = 5 * time.Second

// ExportJob owns one outstanding export request and its polling.
type ExportJob struct {
	archive      Archive
	opts         ExportOptions
	logger       *zap.Logger
	metrics      *metrics.PipelineMetrics
	pollInterval time.Duration

	mu          sync.Mutex
	state       State
	requestID   string
	manifest    Manifest
	submittedAt time.Time
}

// JobOption configures an ExportJob.
type JobOption func(*ExportJob)

// WithPollInterval sets the minimum delay between two status checks.
func WithPollInterval(d time.Duration) JobOption {
	return func(j *ExportJob) {
		if d > 0 {
			j.pollInterval = d
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.PipelineMetrics) JobOption {
	return func(j *ExportJob) { j.metrics = m }
}

// NewExportJob creates a job in StateCreated.
func NewExportJob(archive Archive, opts ExportOptions, logger *zap.Logger, options ...JobOption) *ExportJob {
	if opts.Method == "" {
		opts.Method = "url"
	}
	if opts.Protocol == "" {
		opts.Protocol = ProtocolFITS
	}
	j := &ExportJob{
		archive:      archive,
		opts:         opts,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		state:        StateCreated,
	}
	for _, o := range options {
		o(j)
	}
	return j
}

// State returns the current state.
func (j *ExportJob) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// RequestID returns the archive request id, empty before Submit.
func (j *ExportJob) RequestID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.requestID
}

// Submit issues the export request.
func (j *ExportJob) Submit(ctx context.Context) error {
	j.mu.Lock()
	if j.state != StateCreated {
		state := j.state
		j.mu.Unlock()
		return fmt.Errorf("export job already submitted (state %s)", state)
	}
	j.mu.Unlock()

	j.logger.Info("Submitting export request",
		zap.String("request", j.opts.Request),
		zap.String("method", j.opts.Method),
		zap.String("protocol", j.opts.Protocol))

	st, err := j.archive.SubmitExport(ctx, j.opts)
	if err != nil {
		return fmt.Errorf("failed to submit export %q: %w", j.opts.Request, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.requestID = st.RequestID
	j.submittedAt = time.Now()
	j.state = StateSubmitted
	return j.applyLocked(st)
}

// AwaitReady polls the archive until the export is materialised. It fails
// with ExportTimeoutError once timeout has elapsed, including while a status
// call is still in flight, and with the context's error if ctx is cancelled
// first. A timed-out job stays submitted and may be awaited again.
func (j *ExportJob) AwaitReady(ctx context.Context, timeout time.Duration) error {
	j.mu.Lock()
	switch j.state {
	case StateReady, StateConsumed:
		j.mu.Unlock()
		return nil
	case StateSubmitted:
	default:
		state := j.state
		j.mu.Unlock()
		return &JobNotReadyError{State: state}
	}
	requestID := j.requestID
	j.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.metrics.RecordExport("timeout", timeout)
		return &ExportTimeoutError{RequestID: requestID, Timeout: timeout}
	}

	for attempt := 1; ; attempt++ {
		st, err := j.archive.ExportStatus(pollCtx, requestID)
		delay := j.pollInterval
		if err != nil {
			if pollCtx.Err() != nil {
				return timedOut()
			}
			// Status polling tolerates transient archive failures until the deadline.
			j.logger.Warn("Export status check failed",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			j.mu.Lock()
			err = j.applyLocked(st)
			state := j.state
			j.mu.Unlock()
			if err != nil {
				return err
			}
			if state == StateReady {
				return nil
			}
			if st.Wait > delay {
				delay = st.Wait
			}
			j.logger.Debug("Export pending",
				zap.String("request_id", requestID),
				zap.Int("status", st.Status),
				zap.Duration("next_check", delay))
		}

		wait := time.NewTimer(delay)
		select {
		case <-pollCtx.Done():
			wait.Stop()
			return timedOut()
		case <-wait.C:
		}
	}
}

// applyLocked folds an archive status into the job. Callers hold j.mu.
func (j *ExportJob) applyLocked(st ExportStatus) error {
	if st.RequestID != "" {
		j.requestID = st.RequestID
	}
	switch st.Status {
	case StatusComplete:
		if j.state == StateSubmitted {
			j.manifest = append(Manifest(nil), st.Manifest...)
			j.state = StateReady
			wait := time.Since(j.submittedAt)
			j.metrics.RecordExport("ready", wait)
			j.logger.Info("Export ready",
				zap.String("request_id", j.requestID),
				zap.Int("files", len(j.manifest)),
				zap.Duration("wait", wait))
		}
		return nil
	case StatusQueued, StatusProcessing, StatusNotFound, StatusNotReady:
		return nil
	case StatusExpired:
		j.state = StateExpired
		j.metrics.RecordExport("expired", time.Since(j.submittedAt))
		return &ExportFailedError{RequestID: j.requestID, Status: st.Status, Message: st.Message}
	default:
		j.state = StateFailed
		j.metrics.RecordExport("failed", time.Since(j.submittedAt))
		return &ExportFailedError{RequestID: j.requestID, Status: st.Status, Message: st.Message}
	}
}

// Manifest returns the materialised manifest. It fails with
// JobNotReadyError until the job is ready.
func (j *ExportJob) Manifest() (Manifest, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateReady && j.state != StateConsumed {
		return nil, &JobNotReadyError{State: j.state}
	}
	return append(Manifest(nil), j.manifest...), nil
}

// RecordNames returns the record names of the manifest.
func (j *ExportJob) RecordNames() ([]string, error) {
	m, err := j.Manifest()
	if err != nil {
		return nil, err
	}
	return m.RecordNames(), nil
}

// Consume hands the manifest over for download and marks the job consumed.
func (j *ExportJob) Consume() (Manifest, error) {
	m, err := j.Manifest()
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	j.state = StateConsumed
	j.mu.Unlock()
	return m, nil
}

// IsTerminal reports whether err ends the job for good (as opposed to a
// timeout, which the caller may retry).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrExportFailed) || errors.Is(err, ErrJobNotReady)
}
