package ledger

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// RowBuilder appends loosely typed rows to an Arrow record.
type RowBuilder struct {
	schema  *arrow.Schema
	builder *array.RecordBuilder
}

// NewRowBuilder creates a builder for schema.
func NewRowBuilder(schema *arrow.Schema, pool memory.Allocator) *RowBuilder {
	return &RowBuilder{
		schema:  schema,
		builder: array.NewRecordBuilder(pool, schema),
	}
}

// AddRow appends one row. Missing or nil values become nulls.
func (rb *RowBuilder) AddRow(values map[string]interface{}) error {
	for i, field := range rb.schema.Fields() {
		value, ok := values[field.Name]
		if !ok || value == nil {
			rb.builder.Field(i).AppendNull()
			continue
		}
		if err := appendValue(rb.builder.Field(i), field.Type, value); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// Build returns the accumulated rows as a record and resets the builder.
func (rb *RowBuilder) Build() arrow.Record {
	return rb.builder.NewRecord()
}

func (rb *RowBuilder) Release() {
	rb.builder.Release()
}

func appendValue(b array.Builder, dt arrow.DataType, value interface{}) error {
	switch dt.ID() {
	case arrow.STRING:
		sb := b.(*array.StringBuilder)
		if s, ok := value.(string); ok {
			sb.Append(s)
		} else {
			sb.Append(fmt.Sprintf("%v", value))
		}
	case arrow.INT32:
		ib := b.(*array.Int32Builder)
		switch v := value.(type) {
		case int:
			ib.Append(int32(v))
		case int32:
			ib.Append(v)
		case int64:
			ib.Append(int32(v))
		default:
			return fmt.Errorf("cannot store %T as int32", value)
		}
	case arrow.INT64:
		ib := b.(*array.Int64Builder)
		switch v := value.(type) {
		case int:
			ib.Append(int64(v))
		case int32:
			ib.Append(int64(v))
		case int64:
			ib.Append(v)
		default:
			return fmt.Errorf("cannot store %T as int64", value)
		}
	default:
		return fmt.Errorf("unsupported arrow type %s", dt)
	}
	return nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
