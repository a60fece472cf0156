// Package postel resamples full-disk solar images onto azimuthal
// equidistant (ARC, "Postel") tangent-plane grids in Carrington coordinates.
package postel

import (
	"errors"
	"math"

	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
)

const (
	deg2rad    = math.Pi / 180
	rad2deg    = 180 / math.Pi
	arcsecPerD = 3600
)

var (
	errNoData     = errors.New("frame has no image data")
	errNoGeometry = errors.New("frame has no plate scale or solar radius")
)

// Reprojector implements helio.Reprojector with orthographic disk geometry
// and bilinear sampling. It keeps no state between calls.
type Reprojector struct{}

// New returns a Reprojector.
func New() *Reprojector { return &Reprojector{} }

// Reproject implements helio.Reprojector. Output row i and column j are
// offset from the grid centre by i*scale.Y and j*scale.X degrees of arc
// along the solar surface. Samples behind the limb or outside the source
// image are NaN.
func (r *Reprojector) Reproject(frame *helio.Frame, origin helio.Coordinate, shape helio.Shape, scale helio.Scale) (*helio.Grid, error) {
	if frame.Data == nil || len(frame.Data.Data) == 0 {
		return nil, errNoData
	}
	geom := origin.Observation.Geometry
	if geom.CDelt1 == 0 || geom.CDelt2 == 0 || geom.RadiusArcsec <= 0 {
		return nil, errNoGeometry
	}

	out := helio.NewGrid(shape.Rows, shape.Cols)
	ci := float64(shape.Rows-1) / 2
	cj := float64(shape.Cols-1) / 2
	for i := 0; i < shape.Rows; i++ {
		y := (float64(i) - ci) * scale.Y
		for j := 0; j < shape.Cols; j++ {
			x := (float64(j) - cj) * scale.X
			lon, lat := InverseARC(x, y, origin.Longitude, origin.Latitude)
			col, row, ok := CarringtonToPixel(lon, lat, geom)
			if !ok {
				out.Set(i, j, math.NaN())
				continue
			}
			out.Set(i, j, Bilinear(frame.Data, row, col))
		}
	}
	return out, nil
}

// InverseARC maps plane offsets x, y (degrees) of an azimuthal equidistant
// projection centred at lon0, lat0 back to longitude and latitude in
// degrees. Longitude grows with x and latitude with y.
func InverseARC(x, y, lon0, lat0 float64) (lon, lat float64) {
	xr, yr := x*deg2rad, y*deg2rad
	rho := math.Hypot(xr, yr)
	if rho == 0 {
		return lon0, lat0
	}
	phi0 := lat0 * deg2rad
	sinC, cosC := math.Sincos(rho)

	lat = math.Asin(clamp(cosC*math.Sin(phi0)+yr*sinC*math.Cos(phi0)/rho, -1, 1))
	dl := math.Atan2(xr*sinC, rho*math.Cos(phi0)*cosC-yr*math.Sin(phi0)*sinC)
	return lon0 + dl*rad2deg, lat * rad2deg
}

// CarringtonToPixel locates a Carrington position in the source image and
// returns 0-based column and row. ok is false on the far side of the disk.
func CarringtonToPixel(lon, lat float64, g helio.ObserverGeometry) (col, row float64, ok bool) {
	tx, ty, ok := CarringtonToHelioprojective(lon, lat, g)
	if !ok {
		return 0, 0, false
	}
	dx, dy := tx-g.CRVal1, ty-g.CRVal2

	sinR, cosR := math.Sincos(g.CRota2 * deg2rad)
	u := (cosR*dx + sinR*dy) / g.CDelt1
	v := (-sinR*dx + cosR*dy) / g.CDelt2
	return g.CRPix1 - 1 + u, g.CRPix2 - 1 + v, true
}

// CarringtonToHelioprojective returns the apparent position of a surface
// point in arcseconds from disk centre as seen by the observer in g.
func CarringtonToHelioprojective(lon, lat float64, g helio.ObserverGeometry) (tx, ty float64, ok bool) {
	phi := (lon - g.CarringtonLon) * deg2rad
	theta := lat * deg2rad
	b0 := g.CarringtonLat * deg2rad

	sinT, cosT := math.Sincos(theta)
	sinP, cosP := math.Sincos(phi)
	sinB, cosB := math.Sincos(b0)

	// heliocentric cartesian in units of the solar radius, z towards the observer
	x := cosT * sinP
	y := sinT*cosB - cosT*cosP*sinB
	z := sinT*sinB + cosT*cosP*cosB

	rsun := g.RadiusArcsec / arcsecPerD * deg2rad
	if g.Distance <= 0 || rsun >= math.Pi/2 {
		if z < 0 {
			return 0, 0, false
		}
		return x * g.RadiusArcsec, y * g.RadiusArcsec, true
	}

	// observer distance in solar radii
	d := 1 / math.Sin(rsun)
	if z < 1/d {
		return 0, 0, false
	}
	dz := d - z
	tx = math.Atan2(x, dz) * rad2deg * arcsecPerD
	ty = math.Asin(y/math.Sqrt(x*x+y*y+dz*dz)) * rad2deg * arcsecPerD
	return tx, ty, true
}

// Bilinear samples g at a fractional row and column. Positions outside the
// grid yield NaN.
func Bilinear(g *helio.Grid, row, col float64) float64 {
	if math.IsNaN(row) || math.IsNaN(col) ||
		row < 0 || col < 0 || row > float64(g.Rows-1) || col > float64(g.Cols-1) {
		return math.NaN()
	}
	r0, c0 := int(math.Floor(row)), int(math.Floor(col))
	r1, c1 := r0+1, c0+1
	if r1 > g.Rows-1 {
		r1 = r0
	}
	if c1 > g.Cols-1 {
		c1 = c0
	}
	fr, fc := row-float64(r0), col-float64(c0)

	top := g.At(r0, c0)*(1-fc) + g.At(r0, c1)*fc
	bottom := g.At(r1, c0)*(1-fc) + g.At(r1, c1)*fc
	return top*(1-fr) + bottom*fr
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
