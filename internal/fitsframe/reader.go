// Package fitsframe reads single Dopplergram images and writes assembled
// datacubes as FITS files.
package fitsframe

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
)

var (
	// ErrNoImage means the file has no two-dimensional image HDU.
	ErrNoImage = errors.New("no 2-D image HDU")
	// ErrCompressedImage means the image is stored tile-compressed
	// (ZIMAGE), which the loader cannot decode. Export with
	// jsoc.ProtocolFITS to get plain images.
	ErrCompressedImage = errors.New("tile-compressed image HDU")
)

// Header keys of the observer geometry.
const (
	KeyCarringtonLon = "CRLN_OBS"
	KeyCarringtonLat = "CRLT_OBS"
	KeyDistance      = "DSUN_OBS"
	KeyRadius        = "RSUN_OBS"
	KeyCDelt1        = "CDELT1"
	KeyCDelt2        = "CDELT2"
	KeyCRPix1        = "CRPIX1"
	KeyCRPix2        = "CRPIX2"
	KeyCRVal1        = "CRVAL1"
	KeyCRVal2        = "CRVAL2"
	KeyCRota2        = "CROTA2"
)

// observation time keys in order of preference
var timeKeys = []string{"T_OBS", "DATE-OBS", "T_REC"}

var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006.01.02_15:04:05.999999999",
}

// Loader reads frames from uncompressed FITS files. It implements
// helio.FrameLoader.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a Loader. logger may be nil.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load implements helio.FrameLoader.
func (l *Loader) Load(path string) (*helio.Frame, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits %s: %w", path, err)
	}
	defer f.Close()

	img, err := firstImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	hdr := img.Header()

	grid, err := readGrid(img)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	obsTime, err := observationTime(hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug("Frame loaded",
		zap.String("path", path),
		zap.Int("rows", grid.Rows),
		zap.Int("cols", grid.Cols),
		zap.Time("observed", obsTime))

	return &helio.Frame{
		Path: path,
		Data: grid,
		Observation: helio.Observation{
			Time:     obsTime,
			Geometry: geometry(hdr),
		},
	}, nil
}

func firstImage(f *fitsio.File) (fitsio.Image, error) {
	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		if len(img.Header().Axes()) == 2 {
			return img, nil
		}
	}
	for _, hdu := range f.HDUs() {
		if card := hdu.Header().Get("ZIMAGE"); card != nil {
			if v, ok := card.Value.(bool); ok && v {
				return nil, ErrCompressedImage
			}
		}
	}
	return nil, ErrNoImage
}

// readGrid decodes the pixel array, applies BSCALE/BZERO and maps BLANK
// pixels of integer images to NaN.
func readGrid(img fitsio.Image) (*helio.Grid, error) {
	hdr := img.Header()
	axes := hdr.Axes()
	cols, rows := axes[0], axes[1]
	n := rows * cols

	scale := cardFloat(hdr, "BSCALE", 1)
	zero := cardFloat(hdr, "BZERO", 0)
	blankCard := hdr.Get("BLANK")
	var blank int64
	hasBlank := false
	if blankCard != nil {
		if v, ok := toFloat(blankCard.Value); ok {
			blank, hasBlank = int64(v), true
		}
	}

	out := helio.NewGrid(rows, cols)
	intPixel := func(k int, v int64) {
		if hasBlank && v == blank {
			out.Data[k] = math.NaN()
			return
		}
		out.Data[k] = zero + scale*float64(v)
	}

	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		raw := make([]byte, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			intPixel(k, int64(v))
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			intPixel(k, int64(v))
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			intPixel(k, int64(v))
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			intPixel(k, v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			out.Data[k] = zero + scale*float64(v)
		}
	case -64:
		raw := make([]float64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			out.Data[k] = zero + scale*v
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

func observationTime(hdr *fitsio.Header) (time.Time, error) {
	for _, key := range timeKeys {
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		s, ok := card.Value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if t, err := ParseObservationTime(s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no usable observation time in %v", timeKeys)
}

// ParseObservationTime accepts ISO 8601 stamps and archive labels such as
// 2011.02.13_00:00:45.00_TAI. The scale suffix is dropped, the clock
// reading is kept.
func ParseObservationTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"_TAI", "_UTC", "_UT"} {
		s = strings.TrimSuffix(s, suffix)
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func geometry(hdr *fitsio.Header) helio.ObserverGeometry {
	return helio.ObserverGeometry{
		CarringtonLon: cardFloat(hdr, KeyCarringtonLon, 0),
		CarringtonLat: cardFloat(hdr, KeyCarringtonLat, 0),
		Distance:      cardFloat(hdr, KeyDistance, 0),
		RadiusArcsec:  cardFloat(hdr, KeyRadius, 0),
		CDelt1:        cardFloat(hdr, KeyCDelt1, 0),
		CDelt2:        cardFloat(hdr, KeyCDelt2, 0),
		CRPix1:        cardFloat(hdr, KeyCRPix1, 0),
		CRPix2:        cardFloat(hdr, KeyCRPix2, 0),
		CRVal1:        cardFloat(hdr, KeyCRVal1, 0),
		CRVal2:        cardFloat(hdr, KeyCRVal2, 0),
		CRota2:        cardFloat(hdr, KeyCRota2, 0),
	}
}

func cardFloat(hdr *fitsio.Header, key string, def float64) float64 {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	if v, ok := toFloat(card.Value); ok {
		return v
	}
	return def
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	default:
		return 0, false
	}
}
