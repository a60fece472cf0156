package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/jsoc"
)

// One day of 45 s cadence, both ends included.
const DefaultExpectedFileCount = 1921

// Query checker and generator output files.
const (
	CompleteQueriesFile   = "queries_with_complete_data.txt"
	IncompleteQueriesFile = "incomplete_data_queries.json"
	QueriesToCheckFile    = "queries_to_check.txt"
)

// Incomplete is the shortfall of one query.
type Incomplete struct {
	FilesMissing int `json:"files_missing"`
}

// QueryCheck is the outcome of CheckQueries.
type QueryCheck struct {
	Complete   []string
	Incomplete map[string]Incomplete
}

// CheckQueries exports every query and compares the manifest size with
// expected. Queries whose export fails or expires count as missing every
// file. Results are written to CompleteQueriesFile and
// IncompleteQueriesFile under dir.
func (p *Pipeline) CheckQueries(ctx context.Context, queries []string, expected int, dir string) (*QueryCheck, error) {
	if expected <= 0 {
		expected = DefaultExpectedFileCount
	}
	check := &QueryCheck{Incomplete: map[string]Incomplete{}}

	for _, query := range queries {
		manifest, err := p.Export(ctx, query)
		n := len(manifest)
		if err != nil {
			if !jsoc.IsTerminal(err) {
				return nil, fmt.Errorf("check %s: %w", query, err)
			}
			p.logger.Warn("Export failed, counting query as empty",
				zap.String("query", query),
				zap.Error(err))
			n = 0
		}

		if n == expected {
			check.Complete = append(check.Complete, query)
			p.logger.Info("Query complete", zap.String("query", query))
			continue
		}
		check.Incomplete[query] = Incomplete{FilesMissing: expected - n}
		p.logger.Info("Query incomplete",
			zap.String("query", query),
			zap.Int("files", n),
			zap.Int("expected", expected))
	}

	if err := check.Write(dir); err != nil {
		return nil, err
	}
	return check, nil
}

// Write stores the check results under dir.
func (c *QueryCheck) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	complete := strings.Join(c.Complete, "\n")
	if err := os.WriteFile(filepath.Join(dir, CompleteQueriesFile), []byte(complete), 0o644); err != nil {
		return fmt.Errorf("failed to write complete queries: %w", err)
	}

	data, err := json.MarshalIndent(c.Incomplete, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, IncompleteQueriesFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write incomplete queries: %w", err)
	}
	return nil
}

// ReadLines returns the trimmed, non-empty lines of path.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// QueriesFromDates turns YYYYMMDD dates into one-day Dopplergram queries.
func QueriesFromDates(dates []string) ([]string, error) {
	queries := make([]string, 0, len(dates))
	for _, d := range dates {
		date, err := jsoc.ParseQueryDate(d)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
		queries = append(queries, jsoc.OneDayQuery(date))
	}
	return queries, nil
}

// WriteQueriesFromDates reads the dates in datesPath and writes the
// matching queries to QueriesToCheckFile under dir, returning its path.
func WriteQueriesFromDates(datesPath, dir string) (string, []string, error) {
	dates, err := ReadLines(datesPath)
	if err != nil {
		return "", nil, err
	}
	queries, err := QueriesFromDates(dates)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	out := filepath.Join(dir, QueriesToCheckFile)
	if err := os.WriteFile(out, []byte(strings.Join(queries, "\n")), 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, queries, nil
}
