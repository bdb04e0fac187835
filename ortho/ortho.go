// Package ortho implements the orthonormalisation primitive the restart
// subsystem relies on: classical Gram-Schmidt with one reorthogonalization
// pass and random re-draws on breakdown, following original_source's
// ortho_dprimme convention. The random trial-vector fill uses math/rand the
// way the teacher's exactdiag/mat/gradientdescent.go fills its starting
// vectors.
package ortho

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MaxRedraws bounds how many times a breakdown column is redrawn before
// Columns gives up and reports failure.
const MaxRedraws = 10

// breakdownTol is how small ||v|| after projecting out the existing basis
// can get before a column is considered linearly dependent and redrawn.
const breakdownTol = 1e-14

// Columns orthonormalizes m's columns in [lo, hi) against the surrounding
// columns [0, lo) and [hi, n) — both assumed already orthonormal — and
// against each other, using classical Gram-Schmidt with one
// reorthogonalization pass per column. Columns that turn out to be
// (numerically) linearly dependent on what came before are replaced with a
// fresh random vector and re-orthogonalized, up to MaxRedraws times,
// matching ortho_dprimme's random re-draw on breakdown.
func Columns(m *mat.Dense, lo, hi, n int) error {
	rows, _ := m.Dims()
	v := make([]float64, rows)
	for j := lo; j < hi; j++ {
		mat.Col(v, j, m)
		ok := false
		for attempt := 0; attempt < MaxRedraws; attempt++ {
			projectOut(v, m, j, hi, n)
			projectOut(v, m, j, hi, n) // reorthogonalize once, classical GS + 1 pass
			nrm := norm(v)
			if nrm > breakdownTol {
				scale(v, 1/nrm)
				ok = true
				break
			}
			randomFill(v)
		}
		if !ok {
			return errBreakdown{column: j}
		}
		m.SetCol(j, v)
	}
	return nil
}

type errBreakdown struct{ column int }

func (e errBreakdown) Error() string {
	return "ortho: could not find an independent vector after redraws"
}

// projectOut subtracts from v its component along every column of m before
// column j (the already-orthonormal prefix and the columns of the current
// block already processed) and along the trailing kept columns [hi, n).
func projectOut(v []float64, m *mat.Dense, j, hi, n int) {
	rows, _ := m.Dims()
	col := make([]float64, rows)
	for k := 0; k < j; k++ {
		mat.Col(col, k, m)
		c := dot(v, col)
		for i := range v {
			v[i] -= c * col[i]
		}
	}
	for k := hi; k < n; k++ {
		mat.Col(col, k, m)
		c := dot(v, col)
		for i := range v {
			v[i] -= c * col[i]
		}
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func scale(a []float64, c float64) {
	for i := range a {
		a[i] *= c
	}
}

func randomFill(a []float64) {
	for i := range a {
		a[i] = rand.Float64() - 0.5
	}
}
