package jsoc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedRecord is matched by every MalformedRecordError.
	ErrMalformedRecord = errors.New("malformed record name")
	// ErrJobNotReady is matched by every JobNotReadyError.
	ErrJobNotReady = errors.New("export job not ready")
	// ErrExportTimeout is matched by every ExportTimeoutError.
	ErrExportTimeout = errors.New("export request timed out")
	// ErrExportFailed is matched by every ExportFailedError.
	ErrExportFailed = errors.New("export request failed")
)

// MalformedRecordError reports a record name without a parseable time segment.
type MalformedRecordError struct {
	Record string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %q: %s", e.Record, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// JobNotReadyError reports a manifest access on a job that has not reached StateReady.
type JobNotReadyError struct {
	State State
}

func (e *JobNotReadyError) Error() string {
	return fmt.Sprintf("export job not ready: state is %s", e.State)
}

func (e *JobNotReadyError) Is(target error) bool { return target == ErrJobNotReady }

// ExportTimeoutError reports that the archive did not materialise an export in time.
type ExportTimeoutError struct {
	RequestID string
	Timeout   time.Duration
}

func (e *ExportTimeoutError) Error() string {
	return fmt.Sprintf("export %s not ready after %s", e.RequestID, e.Timeout)
}

func (e *ExportTimeoutError) Is(target error) bool { return target == ErrExportTimeout }

// ExportFailedError reports an export the archive rejected or let expire.
type ExportFailedError struct {
	RequestID string
	Status    int
	Message   string
}

func (e *ExportFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("export %s failed with archive status %d", e.RequestID, e.Status)
	}
	return fmt.Sprintf("export %s failed with archive status %d: %s", e.RequestID, e.Status, e.Message)
}

func (e *ExportFailedError) Is(target error) bool { return target == ErrExportFailed }
