package helio

import "fmt"

// Datacube stacks equally shaped frames. Data is laid out [frame][row][col].
type Datacube struct {
	Frames int
	Rows   int
	Cols   int
	Data   []float64
}

// NewDatacube allocates a zeroed cube.
func NewDatacube(frames int, shape Shape) *Datacube {
	return &Datacube{
		Frames: frames,
		Rows:   shape.Rows,
		Cols:   shape.Cols,
		Data:   make([]float64, frames*shape.Pixels()),
	}
}

// Slice returns frame k as a view into the cube.
func (c *Datacube) Slice(k int) []float64 {
	n := c.Rows * c.Cols
	return c.Data[k*n : (k+1)*n]
}

// SetSlice copies g into frame k.
func (c *Datacube) SetSlice(k int, g *Grid) error {
	if k < 0 || k >= c.Frames {
		return fmt.Errorf("slice %d out of range [0, %d)", k, c.Frames)
	}
	if g.Rows != c.Rows || g.Cols != c.Cols {
		return fmt.Errorf("slice %d is %dx%d, cube frames are %dx%d", k, g.Rows, g.Cols, c.Rows, c.Cols)
	}
	copy(c.Slice(k), g.Data)
	return nil
}

// At returns the sample of frame k at row i, column j.
func (c *Datacube) At(k, i, j int) float64 {
	return c.Data[(k*c.Rows+i)*c.Cols+j]
}
