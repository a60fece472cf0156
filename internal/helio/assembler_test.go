package helio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var seriesStart = time.Date(2011, 2, 13, 0, 0, 0, 0, time.UTC)

// fakeLoader serves frames whose observation time is derived from the
// position of the path in a fixed list.
type fakeLoader struct {
	order map[string]int
	fail  string
}

func newFakeLoader(paths []string) *fakeLoader {
	l := &fakeLoader{order: make(map[string]int, len(paths))}
	for i, p := range paths {
		l.order[p] = i
	}
	return l
}

func (l *fakeLoader) Load(path string) (*Frame, error) {
	if path == l.fail {
		return nil, errors.New("truncated file")
	}
	i, ok := l.order[path]
	if !ok {
		return nil, fmt.Errorf("unknown frame %s", path)
	}
	return &Frame{
		Path:        path,
		Data:        NewGrid(1, 1),
		Observation: Observation{Time: seriesStart.Add(time.Duration(i) * 45 * time.Second)},
	}, nil
}

// recordingReprojector returns a plane tilted by the origin longitude and
// remembers the origin it was asked for per observation time. Earlier frames
// take longer so concurrent runs finish out of order.
type recordingReprojector struct {
	mu      sync.Mutex
	origins map[time.Time]Coordinate
	slow    bool
	holes   bool
}

func (r *recordingReprojector) Reproject(frame *Frame, origin Coordinate, shape Shape, _ Scale) (*Grid, error) {
	if r.slow {
		k := int(frame.Observation.Time.Sub(seriesStart) / (45 * time.Second))
		time.Sleep(time.Duration(5-k) * 4 * time.Millisecond)
	}
	r.mu.Lock()
	r.origins[origin.Observation.Time] = origin
	r.mu.Unlock()

	g := NewGrid(shape.Rows, shape.Cols)
	for i := 0; i < shape.Rows; i++ {
		for j := 0; j < shape.Cols; j++ {
			g.Set(i, j, origin.Longitude+float64(i)-float64(j))
		}
	}
	if r.holes {
		g.Set(0, 0, math.NaN())
	}
	return g, nil
}

func seriesPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/data/hmi.v_45s.20110213_%06d_TAI.2.Dopplergram.fits", i*45)
	}
	return paths
}

func testParams(workers int) Params {
	return Params{
		// one degree per second of drift on a 1 Mm equator
		Origin:   OriginSpec{Longitude: 180, Latitude: 0, BodyRadius: 1, DriftVelocity: 1e6 * math.Pi / 180},
		Shape:    Shape{Rows: 4, Cols: 5},
		Scale:    Scale{X: 0.03, Y: 0.03},
		TimeStep: 45,
		Workers:  workers,
	}
}

func TestAssemble_FiveFrames(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			paths := seriesPaths(5)
			rp := &recordingReprojector{origins: map[time.Time]Coordinate{}, slow: workers > 1}
			a := NewAssembler(newFakeLoader(paths), rp, zap.NewNop(), nil)

			// reversed input must not change frame order
			reversed := []string{paths[4], paths[3], paths[2], paths[1], paths[0]}
			cube, header, err := a.Assemble(context.Background(), reversed, testParams(workers))
			require.NoError(t, err)

			assert.Equal(t, 5, cube.Frames)
			assert.Equal(t, 4, cube.Rows)
			assert.Equal(t, 5, cube.Cols)

			wantLon := []float64{90, 135, 180, 225, 270}
			for k, lon := range wantLon {
				origin := rp.origins[seriesStart.Add(time.Duration(k)*45*time.Second)]
				assert.InDelta(t, lon, origin.Longitude, 1e-9, "frame %d", k)
			}

			for _, v := range cube.Data {
				assert.InDelta(t, 0, v, 1e-8, "planar projections detrend to zero")
			}

			first, ok := header.Get(KeyFirstRecord)
			require.True(t, ok)
			assert.Equal(t, "2011-02-13T00:00:00.000", first.Value)
			last, ok := header.Get(KeyLastRecord)
			require.True(t, ok)
			assert.Equal(t, "2011-02-13T00:03:00.000", last.Value)
		})
	}
}

func TestAssemble_HeaderKeys(t *testing.T) {
	paths := seriesPaths(2)
	a := NewAssembler(newFakeLoader(paths), &recordingReprojector{origins: map[time.Time]Coordinate{}}, nil, nil)

	_, header, err := a.Assemble(context.Background(), paths, testParams(1))
	require.NoError(t, err)

	var keys []string
	for _, e := range header.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"T_REC_FI", "T_REC_LA", "CRLN_REF", "CRLT_REF", "DAXIS1", "DAXIS2", "DAXIS3", "RSUN_MM"}, keys)

	daxis1, _ := header.Get(KeyScaleX)
	assert.InDelta(t, 0.03*math.Pi/180, daxis1.Value, 1e-15)
	daxis3, _ := header.Get(KeyTimeStep)
	assert.Equal(t, 45.0, daxis3.Value)
}

func TestAssemble_ImputesBeforeDetrend(t *testing.T) {
	paths := seriesPaths(1)
	rp := &recordingReprojector{origins: map[time.Time]Coordinate{}, holes: true}
	a := NewAssembler(newFakeLoader(paths), rp, nil, nil)

	cube, _, err := a.Assemble(context.Background(), paths, testParams(1))
	require.NoError(t, err)
	for _, v := range cube.Data {
		assert.False(t, math.IsNaN(v))
	}
}

func TestAssemble_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		a := NewAssembler(newFakeLoader(nil), &recordingReprojector{origins: map[time.Time]Coordinate{}}, nil, nil)
		_, _, err := a.Assemble(context.Background(), nil, testParams(1))
		assert.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("load_failure_names_frame", func(t *testing.T) {
		paths := seriesPaths(3)
		loader := newFakeLoader(paths)
		loader.fail = paths[1]
		a := NewAssembler(loader, &recordingReprojector{origins: map[time.Time]Coordinate{}}, nil, nil)

		_, _, err := a.Assemble(context.Background(), paths, testParams(2))
		var frameErr *FrameError
		require.ErrorAs(t, err, &frameErr)
		assert.Equal(t, 1, frameErr.Index)
		assert.Equal(t, "load", frameErr.Stage)
	})

	t.Run("polar_origin", func(t *testing.T) {
		paths := seriesPaths(3)
		a := NewAssembler(newFakeLoader(paths), &recordingReprojector{origins: map[time.Time]Coordinate{}}, nil, nil)
		p := testParams(1)
		p.Origin.Latitude = 90
		_, _, err := a.Assemble(context.Background(), paths, p)
		assert.ErrorIs(t, err, ErrPolarOrigin)
	})

	t.Run("cancelled", func(t *testing.T) {
		paths := seriesPaths(3)
		a := NewAssembler(newFakeLoader(paths), &recordingReprojector{origins: map[time.Time]Coordinate{}}, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := a.Assemble(ctx, paths, testParams(1))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.fits", "a.fits", "a.fits.1", "notes.txt", "c.fits.part", "c.fits.1.part"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.fits"), 0o755))

	paths, err := ListFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.fits"),
		filepath.Join(dir, "a.fits.1"),
		filepath.Join(dir, "b.fits"),
	}, paths)
}

func TestIsFrameFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.fits":        true,
		"a.fits.1":      true,
		"a.fits.12":     true,
		"a.fits.0":      false,
		"a.fits.part":   false,
		"a.fits.1.part": false,
		"a.fits.x":      false,
		"a.txt.1":       false,
		"fits":          false,
	} {
		assert.Equal(t, want, IsFrameFile(name), name)
	}
}
