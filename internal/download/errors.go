package download

import (
	"errors"
	"fmt"
)

// ErrDownloadExhausted is matched by every DownloadExhaustedError.
var ErrDownloadExhausted = errors.New("download attempts exhausted")

// DownloadExhaustedError names the record that could not be fetched within
// the retry budget. Err is the fault of the last attempt.
type DownloadExhaustedError struct {
	Record   string
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadExhaustedError) Error() string {
	return fmt.Sprintf("file missing, download aborted: record %s not fetched after %d attempts: %v",
		e.Record, e.Attempts, e.Err)
}

func (e *DownloadExhaustedError) Is(target error) bool { return target == ErrDownloadExhausted }

func (e *DownloadExhaustedError) Unwrap() error { return e.Err }

// HTTPStatusError is a transfer answered with a non-200 status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}
