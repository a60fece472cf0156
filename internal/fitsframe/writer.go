package fitsframe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
)

// Extension is appended to output names that lack it.
const Extension = ".fits"

// OutputPath joins dir and filename, adding Extension when filename does not
// already end with it.
func OutputPath(dir, filename string) string {
	if !strings.HasSuffix(filename, Extension) {
		filename += Extension
	}
	return filepath.Join(dir, filename)
}

// WriteDatacube stores cube as a 64-bit float primary image with axes
// (cols, rows, frames) followed by the header entries. dir is created if
// needed and an existing file of the same name is replaced. It returns the
// written path.
func WriteDatacube(dir, filename string, cube *helio.Datacube, header *helio.Header) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}
	path := OutputPath(dir, filename)

	tmp := path + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := encodeDatacube(w, cube, header); err != nil {
		w.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("encode datacube %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func encodeDatacube(w *os.File, cube *helio.Datacube, header *helio.Header) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()

	im := fitsio.NewImage(-64, []int{cube.Cols, cube.Rows, cube.Frames})
	defer im.Close()

	if header != nil {
		cards := make([]fitsio.Card, 0, header.Len())
		for _, e := range header.Entries() {
			cards = append(cards, fitsio.Card{Name: e.Key, Value: e.Value, Comment: e.Comment})
		}
		if err := im.Header().Append(cards...); err != nil {
			return err
		}
	}
	if err := im.Write(cube.Data); err != nil {
		return err
	}
	return f.Write(im)
}

// ReadDatacube loads a cube written by WriteDatacube.
func ReadDatacube(path string) (*helio.Datacube, *fitsio.Header, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open fits %s: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, nil, ErrNoImage
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 3 {
		return nil, nil, fmt.Errorf("%s: expected 3 axes, got %d", path, len(axes))
	}
	cube := helio.NewDatacube(axes[2], helio.Shape{Rows: axes[1], Cols: axes[0]})
	if err := img.Read(&cube.Data); err != nil {
		return nil, nil, err
	}
	return cube, hdr, nil
}
