package helio

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
)

// FrameProjector turns a source frame into a gap-free tangent-plane grid
// centred on the drifted origin.
type FrameProjector struct {
	reprojector Reprojector
	logger      *zap.Logger
	metrics     *metrics.PipelineMetrics
}

// NewFrameProjector wraps a reprojector. logger and m may be nil.
func NewFrameProjector(r Reprojector, logger *zap.Logger, m *metrics.PipelineMetrics) *FrameProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameProjector{reprojector: r, logger: logger, metrics: m}
}

// Project reprojects frame around the origin shifted by elapsedSeconds and
// replaces undefined samples with the median of the defined ones.
func (p *FrameProjector) Project(frame *Frame, spec OriginSpec, elapsedSeconds float64, shape Shape, scale Scale) (*Grid, error) {
	origin, err := ShiftedOrigin(spec, elapsedSeconds, frame.Observation)
	if err != nil {
		return nil, err
	}

	grid, err := p.reprojector.Reproject(frame, origin, shape, scale)
	if err != nil {
		return nil, fmt.Errorf("reproject: %w", err)
	}
	if grid.Rows != shape.Rows || grid.Cols != shape.Cols {
		return nil, fmt.Errorf("reprojector returned %dx%d grid, want %dx%d",
			grid.Rows, grid.Cols, shape.Rows, shape.Cols)
	}

	imputed, err := ImputeMedian(grid)
	if err != nil {
		return nil, err
	}
	if imputed > 0 {
		p.metrics.RecordImputed(imputed)
		p.logger.Debug("Imputed undefined samples",
			zap.String("frame", frame.Path),
			zap.Int("samples", imputed),
			zap.Float64("origin_lon", origin.Longitude))
	}
	return grid, nil
}

// ImputeMedian replaces every NaN or Inf sample of g in place with the
// median of the finite samples and returns how many were replaced.
func ImputeMedian(g *Grid) (int, error) {
	defined := make(stats.Float64Data, 0, len(g.Data))
	for _, v := range g.Data {
		if isDefined(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return 0, ErrNoDefinedSamples
	}
	if len(defined) == len(g.Data) {
		return 0, nil
	}

	median, err := stats.Median(defined)
	if err != nil {
		return 0, fmt.Errorf("median of defined samples: %w", err)
	}
	replaced := 0
	for i, v := range g.Data {
		if !isDefined(v) {
			g.Data[i] = median
			replaced++
		}
	}
	return replaced, nil
}

func isDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
