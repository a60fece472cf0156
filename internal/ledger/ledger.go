// Package ledger persists the outcome of a download batch as an Arrow IPC
// stream so later tooling can inspect what was fetched from where.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/YoungMasterGandalf/thesis-work/internal/download"
)

// FileSuffix is appended to the request name to form the ledger file name.
const FileSuffix = "_downloads.arrow"

// Column names of the ledger schema.
const (
	ColRecord     = "record"
	ColURL        = "url"
	ColLocalPath  = "local_path"
	ColAttempts   = "attempts"
	ColBytes      = "bytes"
	ColDurationMS = "duration_ms"
)

// Schema is the layout of one ledger row.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: ColRecord, Type: arrow.BinaryTypes.String},
	{Name: ColURL, Type: arrow.BinaryTypes.String},
	{Name: ColLocalPath, Type: arrow.BinaryTypes.String},
	{Name: ColAttempts, Type: arrow.PrimitiveTypes.Int32},
	{Name: ColBytes, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColDurationMS, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
}, nil)

// Path returns where the ledger of requestName lives inside dir.
func Path(dir, requestName string) string {
	return filepath.Join(dir, requestName+FileSuffix)
}

// Build converts outcomes into one Arrow record. The caller releases it.
func Build(pool memory.Allocator, outcomes []download.Outcome) (arrow.Record, error) {
	rb := NewRowBuilder(Schema, pool)
	defer rb.Release()

	for _, o := range outcomes {
		row := map[string]interface{}{
			ColRecord:    o.RecordName,
			ColURL:       o.RemoteURL,
			ColLocalPath: o.LocalPath,
			ColAttempts:  o.Attempts,
			ColBytes:     o.Bytes,
		}
		if o.Duration > 0 {
			row[ColDurationMS] = o.Duration.Milliseconds()
		}
		if err := rb.AddRow(row); err != nil {
			return nil, err
		}
	}
	return rb.Build(), nil
}

// Write stores outcomes at path as an Arrow IPC stream.
func Write(path string, outcomes []download.Outcome) error {
	pool := memory.NewGoAllocator()
	rec, err := Build(pool, outcomes)
	if err != nil {
		return err
	}
	defer rec.Release()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := ipc.NewWriter(f, ipc.WithSchema(Schema), ipc.WithAllocator(pool))
	if err := w.Write(rec); err != nil {
		w.Close()
		f.Close()
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close ledger writer: %w", err)
	}
	return f.Close()
}

// Read loads every outcome stored at path.
func Read(path string) ([]download.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer r.Release()

	if !r.Schema().Equal(Schema) {
		return nil, fmt.Errorf("ledger %s: unexpected schema %s", path, r.Schema())
	}

	var out []download.Outcome
	for r.Next() {
		out = append(out, decode(r.Record())...)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return out, nil
}

func decode(rec arrow.Record) []download.Outcome {
	records := rec.Column(0).(*array.String)
	urls := rec.Column(1).(*array.String)
	paths := rec.Column(2).(*array.String)
	attempts := rec.Column(3).(*array.Int32)
	sizes := rec.Column(4).(*array.Int64)
	durations := rec.Column(5).(*array.Int64)

	out := make([]download.Outcome, rec.NumRows())
	for i := range out {
		out[i] = download.Outcome{
			RecordName: records.Value(i),
			RemoteURL:  urls.Value(i),
			LocalPath:  paths.Value(i),
			Attempts:   int(attempts.Value(i)),
			Bytes:      sizes.Value(i),
		}
		if durations.IsValid(i) {
			out[i].Duration = msToDuration(durations.Value(i))
		}
	}
	return out
}
