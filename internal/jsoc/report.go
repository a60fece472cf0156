package jsoc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FrameInfoDir is the report sub-directory of an output directory.
const FrameInfoDir = "frame_info_files"

// Report is the pre-flight view of an export: every record time and the
// epochs missing between them.
type Report struct {
	RequestName string
	RecordTimes []time.Time
	Missing     []time.Time
}

// NewReport parses the record names of a manifest and detects gaps.
func NewReport(request string, records []string, step time.Duration) (*Report, error) {
	times, err := ParseTimestamps(records)
	if err != nil {
		return nil, err
	}
	return &Report{
		RequestName: RequestName(request),
		RecordTimes: times,
		Missing:     FindGaps(times, step),
	}, nil
}

// Write stores <name>_rec_times.txt and, when gaps exist,
// <name>_missing_frames_rec_times.txt under dir. It returns the written paths.
func (r *Report) Write(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	recPath := filepath.Join(dir, r.RequestName+"_rec_times.txt")
	if err := WriteLines(recPath, FormatTimes(r.RecordTimes)); err != nil {
		return nil, err
	}
	paths := []string{recPath}

	if len(r.Missing) > 0 {
		missingPath := filepath.Join(dir, r.RequestName+"_missing_frames_rec_times.txt")
		if err := WriteLines(missingPath, FormatTimes(r.Missing)); err != nil {
			return nil, err
		}
		paths = append(paths, missingPath)
	}
	return paths, nil
}

// WriteLines writes one entry per line, creating or truncating path.
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
