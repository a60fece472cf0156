package helio

import (
	"fmt"
	"math"
	"time"
)

// Shape is the pixel size of a projected frame.
type Shape struct {
	Rows int
	Cols int
}

// Pixels returns Rows*Cols.
func (s Shape) Pixels() int { return s.Rows * s.Cols }

// Validate rejects empty shapes.
func (s Shape) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("invalid shape %dx%d", s.Rows, s.Cols)
	}
	return nil
}

// Scale is the angular size of an output pixel in degrees along x (columns)
// and y (rows).
type Scale struct {
	X float64
	Y float64
}

// Radians converts the scale to rad/px.
func (s Scale) Radians() (x, y float64) {
	return s.X * math.Pi / 180, s.Y * math.Pi / 180
}

// OriginSpec is the base point of the projection series in Carrington
// coordinates together with the drift applied to it.
type OriginSpec struct {
	Longitude     float64 // degrees
	Latitude      float64 // degrees
	BodyRadius    float64 // megametres
	DriftVelocity float64 // metres per second along the circle of latitude
}

// ObserverGeometry is the pointing and observer state recorded with an
// image. Angles are in degrees, image scales in arcsec/px, distances in
// metres and reference pixels are 1-based.
type ObserverGeometry struct {
	CarringtonLon float64
	CarringtonLat float64
	Distance      float64
	RadiusArcsec  float64
	CDelt1        float64
	CDelt2        float64
	CRPix1        float64
	CRPix2        float64
	CRVal1        float64
	CRVal2        float64
	CRota2        float64
}

// Observation is the time and geometry context of a source frame.
type Observation struct {
	Time     time.Time
	Geometry ObserverGeometry
}

// Coordinate is a Carrington position bound to the observation it is
// expressed for.
type Coordinate struct {
	Longitude   float64
	Latitude    float64
	Observation Observation
}

// Frame is one source image loaded from the archive.
type Frame struct {
	Path        string
	Data        *Grid
	Observation Observation
}

// Grid is a row-major 2-D array of samples.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zeroed rows x cols grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the sample at row i, column j.
func (g *Grid) At(i, j int) float64 { return g.Data[i*g.Cols+j] }

// Set stores v at row i, column j.
func (g *Grid) Set(i, j int, v float64) { g.Data[i*g.Cols+j] = v }

// Shape returns the grid dimensions.
func (g *Grid) Shape() Shape { return Shape{Rows: g.Rows, Cols: g.Cols} }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// Reprojector resamples a source frame onto a tangent-plane grid of the
// given shape and scale centred at origin. Samples that fall outside the
// visible disk are NaN.
type Reprojector interface {
	Reproject(frame *Frame, origin Coordinate, shape Shape, scale Scale) (*Grid, error)
}

// FrameLoader reads one source frame from disk.
type FrameLoader interface {
	Load(path string) (*Frame, error)
}
