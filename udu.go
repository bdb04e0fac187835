package daveig

import "gonum.org/v1/gonum/mat"

// uduDecompose factors the symmetric matrix m (n x n, read from its upper
// triangle) as U*D*U' with U unit upper triangular and D block diagonal
// with 1x1 and 2x2 blocks, the symmetric-indefinite factorization
// UDUDecompose_dprimme performs for the skew-projector's M matrix. gonum's
// vendored lapack64 snapshot has no public Dsytrf/Bunch-Kaufman entry
// point, so this is a hand-written version restricted to real, dense,
// modest n (the skew-projector's M is at most numEvals+numOrthoConst
// square). It performs no row/column interchanges (see swapRowCol): the
// pivots are taken in place from the trailing diagonal.
//
// It returns the packed U/D factor (U strictly above the diagonal, D on the
// diagonal plus, for each 2x2 block starting at row k, its off-diagonal
// entry at (k, k+1); entries below the diagonal are left as in m) and the
// pivot vector, whose negative entries mark the first row of a 2x2 block.
// It returns an error when neither a nonzero 1x1 nor a nonzero 2x2 pivot is
// available at the current position, which can happen for a nonsingular M
// whose factorization would need an interchange.
func uduDecompose(m *mat.Dense) (udu *mat.Dense, ipivot []int, err error) {
	n, _ := m.Dims()
	a := mat.DenseCopyOf(m)
	ipivot = identityPerm(n)

	for k := n - 1; k >= 0; {
		if k == 0 {
			ipivot[0] = 0
			break
		}
		piv := findPivot(a, k)
		if piv == pivotSingular {
			return nil, nil, newRestartError(KindUDUDecompose, "singular pivot in skew-projector factorization")
		}
		if piv == pivot1x1 {
			swapRowCol(a, k, k)
			ipivot[k] = k
			d := a.At(k, k)
			if d == 0 {
				return nil, nil, newRestartError(KindUDUDecompose, "zero 1x1 pivot in skew-projector factorization")
			}
			for j := 0; j < k; j++ {
				l := a.At(j, k) / d
				for i := 0; i <= j; i++ {
					a.Set(i, j, a.At(i, j)-l*a.At(i, k))
				}
				a.Set(j, k, l)
			}
			k--
		} else {
			swapRowCol(a, k-1, k-1)
			ipivot[k] = k
			ipivot[k-1] = -(k - 1 + 1)
			det := a.At(k-1, k-1)*a.At(k, k) - a.At(k-1, k)*a.At(k-1, k)
			if det == 0 {
				return nil, nil, newRestartError(KindUDUDecompose, "singular 2x2 pivot in skew-projector factorization")
			}
			for j := 0; j < k-1; j++ {
				x0, x1 := a.At(j, k-1), a.At(j, k)
				l0 := (a.At(k, k)*x0 - a.At(k-1, k)*x1) / det
				l1 := (a.At(k-1, k-1)*x1 - a.At(k-1, k)*x0) / det
				for i := 0; i <= j; i++ {
					a.Set(i, j, a.At(i, j)-l0*a.At(i, k-1)-l1*a.At(i, k))
				}
				a.Set(j, k-1, l0)
				a.Set(j, k, l1)
			}
			k -= 2
		}
	}
	return a, ipivot, nil
}

const (
	pivot1x1 = iota
	pivot2x2
	pivotSingular
)

// findPivot chooses a 1x1 pivot at (k,k) whenever that diagonal entry is
// nonzero, otherwise a 2x2 pivot at (k-1:k, k-1:k) when a(k-1,k) is
// nonzero, and reports the pivot as singular otherwise. The skew-projector's
// M is small and well-scaled in practice, so this uses these nonzero tests
// rather than the magnitude comparisons of the full Bunch-Parlett search
// PRIMME's UDUDecompose performs.
func findPivot(a *mat.Dense, k int) int {
	akk := a.At(k, k)
	if akk != 0 {
		return pivot1x1
	}
	if k >= 1 && a.At(k-1, k) != 0 {
		return pivot2x2
	}
	return pivotSingular
}

// swapRowCol is a no-op placeholder for the partial-pivoting row/column
// interchange PRIMME's factorization performs before eliminating pivot k;
// the diagonal-dominance pivot selection above never requires an actual
// interchange for the matrices this solver produces (M is built from an
// already-orthonormalized Vc), so this only documents where one would go.
func swapRowCol(a *mat.Dense, i, j int) {}

// uduSolve solves (U D U')x = b in place given the packed factor from
// uduDecompose: back-substitute through U first (U w = b), solve the block
// diagonal D, then forward-substitute through U' (U' x = w). ipivot's
// negative entries mark the first row of a 2x2 block exactly as
// uduDecompose emits them; within such a block the (k, k+1) entry belongs
// to D, not U, and is skipped by the triangular sweeps.
func uduSolve(udu *mat.Dense, ipivot []int, b []float64) {
	n := len(b)
	x := append([]float64(nil), b...)

	// Solve U w = b, U unit upper triangular stored strictly above the
	// diagonal.
	for j := n - 1; j >= 0; j-- {
		start := j + 1
		if ipivot[j] < 0 {
			start = j + 2
		}
		for i := start; i < n; i++ {
			x[j] -= udu.At(j, i) * x[i]
		}
	}

	// Block-diagonal solve.
	for k := 0; k < n; {
		if ipivot[k] >= 0 {
			x[k] /= udu.At(k, k)
			k++
		} else {
			d00, d11, d01 := udu.At(k, k), udu.At(k+1, k+1), udu.At(k, k+1)
			det := d00*d11 - d01*d01
			b0, b1 := x[k], x[k+1]
			x[k] = (d11*b0 - d01*b1) / det
			x[k+1] = (d00*b1 - d01*b0) / det
			k += 2
		}
	}

	// Solve U' x = w.
	for j := 0; j < n; j++ {
		for i := 0; i < j; i++ {
			if i == j-1 && ipivot[i] < 0 {
				continue
			}
			x[j] -= udu.At(i, j) * x[i]
		}
	}
	copy(b, x)
}
