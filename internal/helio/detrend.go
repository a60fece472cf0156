package helio

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// surfaceTerms is the number of coefficients of the quadratic surface
// c0 + c1*i + c2*j + c3*i*j + c4*i^2 + c5*j^2.
const surfaceTerms = 6

var errSVDFailed = errors.New("singular value decomposition did not converge")

// Detrend fits a quadratic surface to frame by least squares and returns the
// residual frame - surface. i is the row index and j the column index; the
// surface is evaluated on the same grid it was fitted on.
//
// Coordinates are centred and scaled before the fit. That changes the
// coefficients but not the fitted surface, since the quadratic polynomials
// span the same space in either coordinate system. Rank-deficient problems
// (a single row or column) get the minimum-norm solution.
func Detrend(frame *Grid) (*Grid, error) {
	n := frame.Rows * frame.Cols
	if n < surfaceTerms {
		return nil, &UnderdeterminedFitError{Pixels: n, Coefficients: surfaceTerms}
	}

	ci, si := axisNormalization(frame.Rows)
	cj, sj := axisNormalization(frame.Cols)

	design := mat.NewDense(n, surfaceTerms, nil)
	values := mat.NewVecDense(n, nil)
	row := make([]float64, surfaceTerms)
	for i := 0; i < frame.Rows; i++ {
		for j := 0; j < frame.Cols; j++ {
			k := i*frame.Cols + j
			surfaceRow(row, (float64(i)-ci)/si, (float64(j)-cj)/sj)
			design.SetRow(k, row)
			values.SetVec(k, frame.Data[k])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return nil, errSVDFailed
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(n))
	if rank == 0 {
		return nil, &UnderdeterminedFitError{Pixels: n, Coefficients: surfaceTerms}
	}

	var coef mat.VecDense
	svd.SolveVecTo(&coef, values, rank)

	var fitted mat.VecDense
	fitted.MulVec(design, &coef)

	out := NewGrid(frame.Rows, frame.Cols)
	for k := range out.Data {
		out.Data[k] = frame.Data[k] - fitted.AtVec(k)
	}
	return out, nil
}

func surfaceRow(dst []float64, i, j float64) {
	dst[0] = 1
	dst[1] = i
	dst[2] = j
	dst[3] = i * j
	dst[4] = i * i
	dst[5] = j * j
}

// axisNormalization maps indices 0..n-1 onto roughly [-1, 1].
func axisNormalization(n int) (center, scale float64) {
	center = float64(n-1) / 2
	scale = center
	if scale < 1 {
		scale = 1
	}
	return center, scale
}
