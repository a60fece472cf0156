package helio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
)

// FrameExtension selects the files AssembleFolder picks up. Collision
// copies written by the downloader (name.fits.1, name.fits.2) count too.
const FrameExtension = ".fits"

// IsFrameFile reports whether name is a frame or a numbered copy of one.
func IsFrameFile(name string) bool {
	if strings.HasSuffix(name, FrameExtension) {
		return true
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 || !strings.HasSuffix(name[:i], FrameExtension) {
		return false
	}
	n, err := strconv.Atoi(name[i+1:])
	return err == nil && n > 0
}

// Params controls one assembly run.
type Params struct {
	Origin   OriginSpec
	Shape    Shape
	Scale    Scale
	TimeStep float64 // seconds between consecutive frames
	Workers  int     // frames processed concurrently; <= 1 means sequential
}

// Assembler builds datacubes from frame series.
type Assembler struct {
	loader    FrameLoader
	projector *FrameProjector
	logger    *zap.Logger
	metrics   *metrics.PipelineMetrics
}

// NewAssembler creates an Assembler. logger and m may be nil.
func NewAssembler(loader FrameLoader, reprojector Reprojector, logger *zap.Logger, m *metrics.PipelineMetrics) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		loader:    loader,
		projector: NewFrameProjector(reprojector, logger, m),
		logger:    logger,
		metrics:   m,
	}
}

// ListFrames returns the sorted paths of the frame files directly in dir.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames in %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsFrameFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// AssembleFolder assembles every frame file in dir.
func (a *Assembler) AssembleFolder(ctx context.Context, dir string, p Params) (*Datacube, *Header, error) {
	paths, err := ListFrames(dir)
	if err != nil {
		return nil, nil, err
	}
	return a.Assemble(ctx, paths, p)
}

// Assemble projects, detrends and stacks the frames at paths. Frames are
// ordered by path and slice k of the cube always holds the k-th frame,
// whatever order the workers finish in.
func (a *Assembler) Assemble(ctx context.Context, paths []string, p Params) (*Datacube, *Header, error) {
	if len(paths) == 0 {
		return nil, nil, ErrEmptySeries
	}
	if err := p.Shape.Validate(); err != nil {
		return nil, nil, err
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	n := len(sorted)
	center := CenterIndex(n)
	cube := NewDatacube(n, p.Shape)
	times := make([]time.Time, n)

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	a.logger.Info("Assembling datacube",
		zap.Int("frames", n),
		zap.Int("center_index", center),
		zap.Int("rows", p.Shape.Rows),
		zap.Int("cols", p.Shape.Cols),
		zap.Int("workers", workers))
	total := metrics.NewTimer()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, path := range sorted {
		k, path := k, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obs, grid, err := a.processFrame(k, path, ElapsedSeconds(k, center, p.TimeStep), p)
			if err != nil {
				return err
			}
			times[k] = obs.Time
			return cube.SetSlice(k, grid)
		})
	}
	if err := g.Wait(); err != nil {
		a.metrics.RecordError("assemble")
		return nil, nil, err
	}

	header := NewCubeHeader(p, times[0], times[n-1])
	a.logger.Info("Datacube assembled",
		zap.Int("frames", n),
		zap.Duration("duration", total.Duration()))
	return cube, header, nil
}

func (a *Assembler) processFrame(k int, path string, elapsed float64, p Params) (Observation, *Grid, error) {
	wrap := func(stage string, err error) error {
		return &FrameError{Index: k, Path: path, Stage: stage, Err: err}
	}

	t := metrics.NewTimer()
	frame, err := a.loader.Load(path)
	if err != nil {
		return Observation{}, nil, wrap("load", err)
	}
	a.metrics.RecordFrameStage("load", t.Duration())

	t = metrics.NewTimer()
	projected, err := a.projector.Project(frame, p.Origin, elapsed, p.Shape, p.Scale)
	if err != nil {
		return Observation{}, nil, wrap("project", err)
	}
	a.metrics.RecordFrameStage("project", t.Duration())

	t = metrics.NewTimer()
	residual, err := Detrend(projected)
	if err != nil {
		return Observation{}, nil, wrap("detrend", err)
	}
	a.metrics.RecordFrameStage("detrend", t.Duration())

	a.logger.Debug("Frame processed",
		zap.Int("index", k),
		zap.String("path", path),
		zap.Float64("elapsed_seconds", elapsed))
	return frame.Observation, residual, nil
}
