package daveig

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// updateVW replaces the leading basisSize columns of v (and, if w is
// non-nil, w) by v*hVecs (resp. w*hVecs) restricted to the first
// restartSize columns of hVecs, the Num_update_VWXR_dprimme step that
// folds the Ritz-vector change of basis into both bases at once so A need
// not be reapplied.
func updateVW(v, w, hVecs *mat.Dense, restartSize int) {
	rows, _ := v.Dims()
	hvRows, _ := hVecs.Dims()
	nv := mat.NewDense(rows, restartSize, nil)
	hv := hVecs.Slice(0, hvRows, 0, restartSize)
	nv.Mul(v, hv)
	v.Reset()
	v.ReuseAs(rows, restartSize)
	v.Copy(nv)

	if w != nil {
		nw := mat.NewDense(rows, restartSize, nil)
		nw.Mul(w, hv)
		w.Reset()
		w.ReuseAs(rows, restartSize)
		w.Copy(nw)
	}
}

// extractBlock computes, for the ievSize candidate columns starting at
// column `left` of hVecs, the Ritz vectors X = V*hVecs[:,left:left+ievSize]
// and residual vectors Res = W*hVecs[:,left:left+ievSize] -
// hVals[left+i]*X[:,i], together with their norms (blockNorms). V and W
// must already be the pre-restart bases (called before updateVW mutates
// them in place).
func extractBlock(v, w, hVecs *mat.Dense, hVals []float64, left, ievSize int) (x, res *mat.Dense, blockNorms []float64) {
	rows, _ := v.Dims()
	if ievSize == 0 {
		return mat.NewDense(rows, 0, nil), mat.NewDense(rows, 0, nil), nil
	}
	hvRows, _ := hVecs.Dims()
	hv := hVecs.Slice(0, hvRows, left, left+ievSize)
	x = mat.NewDense(rows, ievSize, nil)
	x.Mul(v, hv)
	res = mat.NewDense(rows, ievSize, nil)
	res.Mul(w, hv)

	blockNorms = make([]float64, ievSize)
	col := make([]float64, rows)
	for i := 0; i < ievSize; i++ {
		lambda := hVals[left+i]
		mat.Col(col, i, x)
		var n float64
		for r := 0; r < rows; r++ {
			d := res.At(r, i) - lambda*col[r]
			res.Set(r, i, d)
			n += d * d
		}
		blockNorms[i] = math.Sqrt(n)
	}
	return x, res, blockNorms
}

// computeSubmatrix replaces dst (a k x k buffer, k = cols(c)) with
// c' * a * c, the compute_submatrix_dprimme step used throughout the
// projection restart to fold a change of basis into a projected matrix.
// dst must not alias a or c. Both matrix products are issued directly
// through blas64.Gemm rather than mat.Dense.Mul: a and c are always
// freshly-allocated, fully-owned buffers at every call site (never
// aliased slices), so their RawMatrix views are safe to hand to the BLAS
// kernel spec §1 calls out as an external collaborator specified only at
// its interface.
func computeSubmatrix(a, c, dst *mat.Dense) {
	rows, _ := a.Dims()
	_, k := c.Dims()
	tmp := mat.NewDense(rows, k, nil)
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, a.RawMatrix(), c.RawMatrix(), 0, tmp.RawMatrix())
	dst.Reset()
	dst.ReuseAs(k, k)
	blas64.Gemm(blas.Trans, blas.NoTrans, 1, c.RawMatrix(), tmp.RawMatrix(), 0, dst.RawMatrix())
}
