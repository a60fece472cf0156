// Package logging builds the pipeline's zap logger and the event helpers the
// stages report through.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PipelineLogger is a zap.Logger that remembers the context fields it was
// derived with.
type PipelineLogger struct {
	*zap.Logger
	fields map[string]interface{}
}

// Config selects level, encoding and destinations.
type Config struct {
	Level       string            `yaml:"level" json:"level"`
	Format      string            `yaml:"format" json:"format"` // "json" or "console"
	OutputPath  string            `yaml:"output_path" json:"output_path"`
	Fields      map[string]string `yaml:"fields" json:"fields"`
	Development bool              `yaml:"development" json:"development"`
}

// NewLogger builds a logger from config. An unknown level falls back to info.
func NewLogger(config Config) (*PipelineLogger, error) {
	zapConfig := zap.NewProductionConfig()
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(config.Level); err == nil {
		level = parsed
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapConfig.Encoding = "json"
	if config.Format == "console" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// Batch jobs are inspected from their log directory after the fact, so
	// a configured file is written in addition to stderr.
	zapConfig.OutputPaths = []string{"stderr"}
	if config.OutputPath != "" {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, config.OutputPath)
	}

	fields := make(map[string]interface{}, len(config.Fields))
	for k, v := range config.Fields {
		fields[k] = v
	}
	zapConfig.InitialFields = fields

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &PipelineLogger{Logger: logger, fields: fields}, nil
}

// NewNopLogger discards everything.
func NewNopLogger() *PipelineLogger {
	return Wrap(zap.NewNop())
}

// Wrap adopts an existing zap logger.
func Wrap(logger *zap.Logger) *PipelineLogger {
	return &PipelineLogger{Logger: logger, fields: map[string]interface{}{}}
}

// Fields returns a copy of the context fields.
func (l *PipelineLogger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// WithField returns a child logger carrying key.
func (l *PipelineLogger) WithField(key string, value interface{}) *PipelineLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger carrying every entry of fields. The
// parent is left untouched.
func (l *PipelineLogger) WithFields(fields map[string]interface{}) *PipelineLogger {
	merged := l.Fields()
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		merged[k] = v
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &PipelineLogger{Logger: l.Logger.With(zapFields...), fields: merged}
}

// WithRun tags every entry with the run id.
func (l *PipelineLogger) WithRun(id string) *PipelineLogger {
	return l.WithField("run_id", id)
}

// LogPipelineEvent records that a stage reached a milestone.
func (l *PipelineLogger) LogPipelineEvent(event string, fields ...zap.Field) {
	l.Info("Pipeline event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// LogStageDuration records how long a stage took.
func (l *PipelineLogger) LogStageDuration(stage string, d time.Duration) {
	l.Info("Stage finished",
		zap.String("stage", stage),
		zap.Duration("duration", d),
		zap.String("type", "performance"))
}

// LogMissingFrames warns about records absent from an export. Nothing is
// logged when missing is empty.
func (l *PipelineLogger) LogMissingFrames(request string, missing []string) {
	if len(missing) == 0 {
		return
	}
	l.Warn("Data quality issue",
		zap.String("type", "data_quality"),
		zap.String("request_name", request),
		zap.String("issue", "missing frames"),
		zap.Int("count", len(missing)),
		zap.Strings("missing", missing))
}

func (l *PipelineLogger) Sync() error {
	return l.Logger.Sync()
}
