package postel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
)

// 101x101 synthetic disk image, 10"/px, centred on pixel 51 (1-based).
func testGeometry() helio.ObserverGeometry {
	return helio.ObserverGeometry{
		CarringtonLon: 100,
		CarringtonLat: 0,
		RadiusArcsec:  400,
		CDelt1:        10,
		CDelt2:        10,
		CRPix1:        51,
		CRPix2:        51,
	}
}

// each sample encodes its own position as col + 1000*row
func testFrame() *helio.Frame {
	g := helio.NewGrid(101, 101)
	for i := 0; i < g.Rows; i++ {
		for j := 0; j < g.Cols; j++ {
			g.Set(i, j, float64(j)+1000*float64(i))
		}
	}
	return &helio.Frame{Path: "synthetic.fits", Data: g}
}

func originAt(lon, lat float64, geom helio.ObserverGeometry) helio.Coordinate {
	return helio.Coordinate{
		Longitude:   lon,
		Latitude:    lat,
		Observation: helio.Observation{Geometry: geom},
	}
}

func TestInverseARC(t *testing.T) {
	lon, lat := InverseARC(0, 0, 250, 30)
	assert.Equal(t, 250.0, lon)
	assert.Equal(t, 30.0, lat)

	lon, lat = InverseARC(12, 0, 250, 0)
	assert.InDelta(t, 262, lon, 1e-9)
	assert.InDelta(t, 0, lat, 1e-9)

	lon, lat = InverseARC(0, -7, 250, 0)
	assert.InDelta(t, 250, lon, 1e-9)
	assert.InDelta(t, -7, lat, 1e-9)

	// distance from the centre is preserved along any azimuth
	lon, lat = InverseARC(3, 4, 0, 45)
	c := math.Acos(math.Sin(45*deg2rad)*math.Sin(lat*deg2rad) +
		math.Cos(45*deg2rad)*math.Cos(lat*deg2rad)*math.Cos(lon*deg2rad))
	assert.InDelta(t, 5, c*rad2deg, 1e-9)
}

func TestCarringtonToHelioprojective(t *testing.T) {
	g := testGeometry()

	tx, ty, ok := CarringtonToHelioprojective(100, 0, g)
	require.True(t, ok)
	assert.InDelta(t, 0, tx, 1e-9)
	assert.InDelta(t, 0, ty, 1e-9)

	tx, _, ok = CarringtonToHelioprojective(130, 0, g)
	require.True(t, ok)
	assert.InDelta(t, 200, tx, 1e-9)

	_, ty, ok = CarringtonToHelioprojective(100, 30, g)
	require.True(t, ok)
	assert.InDelta(t, 200, ty, 1e-9)

	_, _, ok = CarringtonToHelioprojective(280, 0, g)
	assert.False(t, ok, "far side")

	g.Distance = 1.5e11
	tx, _, ok = CarringtonToHelioprojective(130, 0, g)
	require.True(t, ok)
	assert.InDelta(t, 200, tx, 1.0, "finite distance stays close to orthographic")
	_, _, ok = CarringtonToHelioprojective(189.99, 0, g)
	assert.False(t, ok, "limb shrinks for a finite observer")
}

func TestCarringtonToPixel_Rotation(t *testing.T) {
	g := testGeometry()
	col, row, ok := CarringtonToPixel(130, 0, g)
	require.True(t, ok)
	assert.InDelta(t, 70, col, 1e-9)
	assert.InDelta(t, 50, row, 1e-9)

	g.CRota2 = 90
	col, row, ok = CarringtonToPixel(130, 0, g)
	require.True(t, ok)
	assert.InDelta(t, 50, col, 1e-9)
	assert.InDelta(t, 30, row, 1e-9)
}

func TestReproject(t *testing.T) {
	r := New()
	frame := testFrame()
	geom := testGeometry()
	shape := helio.Shape{Rows: 3, Cols: 3}
	scale := helio.Scale{X: 0.001, Y: 0.001}

	tests := []struct {
		name     string
		lon, lat float64
		want     float64
	}{
		{"disk_centre", 100, 0, 50050},
		{"west_of_centre", 130, 0, 50070},
		{"north_of_centre", 100, 30, 70050},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Reproject(frame, originAt(tt.lon, tt.lat, geom), shape, scale)
			require.NoError(t, err)
			assert.Equal(t, shape, out.Shape())
			assert.InDelta(t, tt.want, out.At(1, 1), 0.5)
		})
	}
}

func TestReproject_FarSideIsUndefined(t *testing.T) {
	out, err := New().Reproject(testFrame(), originAt(280, 0, testGeometry()), helio.Shape{Rows: 2, Cols: 2}, helio.Scale{X: 1, Y: 1})
	require.NoError(t, err)
	for _, v := range out.Data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestReproject_Errors(t *testing.T) {
	_, err := New().Reproject(&helio.Frame{}, originAt(0, 0, testGeometry()), helio.Shape{Rows: 1, Cols: 1}, helio.Scale{})
	assert.ErrorIs(t, err, errNoData)

	_, err = New().Reproject(testFrame(), originAt(0, 0, helio.ObserverGeometry{}), helio.Shape{Rows: 1, Cols: 1}, helio.Scale{})
	assert.ErrorIs(t, err, errNoGeometry)
}

func TestBilinear(t *testing.T) {
	g := &helio.Grid{Rows: 2, Cols: 2, Data: []float64{0, 1, 2, 3}}
	assert.InDelta(t, 1.5, Bilinear(g, 0.5, 0.5), 1e-12)
	assert.Equal(t, 3.0, Bilinear(g, 1, 1))
	assert.Equal(t, 1.0, Bilinear(g, 0, 1))
	assert.True(t, math.IsNaN(Bilinear(g, -0.1, 0)))
	assert.True(t, math.IsNaN(Bilinear(g, 0, 1.01)))
}
