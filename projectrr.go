package daveig

import "gonum.org/v1/gonum/mat"

// restartRR implements Rayleigh-Ritz projection restart (spec §4.4.1).
// st.HVecs on entry is basisSize_old x basisSize_old and its first
// layout.RestartSize columns (already selected and ordered by softlock/
// hardlock/dtr, with layout.IndexOfPreviousVecs.. holding the block
// finalizeLayout reinserted from st.PreviousHVecs) span the subspace to
// retain.
//
// Only that previously-retained block is not already diagonal in the
// current H: columns selected fresh this restart were exact eigenvectors
// of H when selected and stay so under the surrounding permutation, while
// the previously-retained columns were reorthonormalized against a basis
// that has since changed, so the small numPrevRetained x numPrevRetained
// Rayleigh quotient they induce is no longer diagonal. restartRR therefore
// only re-solves the projected eigenproblem on that small block
// (spec §4.4.1's block-diagonal partial diagonalization) and leaves the
// rest of the retained subspace as plain copies of the existing Ritz
// values/vectors.
//
// It returns foldedVecs, the basisSize_old x restartSize matrix the
// caller must fold into V/W via updateVW. As a side effect it also sets
// st.H to the new restartSize x restartSize (block-)diagonal matrix,
// st.HVals to the refreshed Ritz values, and st.HVecs to the restartSize x
// restartSize identity; the small orthogonal block that diagonalized the
// previously-retained block is applied through foldedVecs, not kept in
// st.HVecs.
func restartRR(st *State, layout restartLayout) (foldedVecs *mat.Dense, err error) {
	restartSize := layout.RestartSize
	lo, hi := layout.IndexOfPreviousVecs, layout.IndexOfPreviousVecs+layout.NumPrevRetained

	selected := sliceCols(st.HVecs, restartSize)

	vals := make([]float64, restartSize)
	copy(vals, st.HVals[:restartSize])
	newVecs := identityHVecsPkg(restartSize)

	if hi > lo {
		prevCols := sliceColsRange(selected, lo, hi)
		width := hi - lo
		block := mat.NewDense(width, width, nil)
		computeSubmatrix(st.H, prevCols, block)

		sym := symDenseFrom(block, width)
		var eig mat.EigenSym
		if ok := eig.Factorize(sym, true); !ok {
			return nil, newRestartError(KindRestartH, "eigendecomposition of restarted H failed to converge")
		}
		blockVecs := new(mat.Dense)
		eig.VectorsTo(blockVecs)
		blockVals := eig.Values(nil)

		for i := 0; i < width; i++ {
			vals[lo+i] = blockVals[i]
			for j := 0; j < width; j++ {
				newVecs.Set(lo+i, lo+j, blockVecs.At(i, j))
			}
		}
	}

	selRows, _ := selected.Dims()
	folded := mat.NewDense(selRows, restartSize, nil)
	folded.Mul(selected, newVecs)

	// The off-diagonal coupling between the previously-retained block and
	// the rest of the retained subspace is zero: the fresh candidate
	// columns are exact eigenvectors of H, so they remain H-orthogonal to
	// every other retained Ritz direction regardless of the block's
	// internal rotation. The new H is therefore exactly diagonal.
	st.H = diagDense(vals)
	st.HVecs = identityHVecsPkg(restartSize)
	st.HVals = vals
	return folded, nil
}

// sliceCols returns the first width columns of m as a *mat.Dense copy,
// suitable for passing to computeSubmatrix (which must not alias its
// operands).
func sliceCols(m *mat.Dense, width int) *mat.Dense {
	return sliceColsRange(m, 0, width)
}

// sliceColsRange returns columns [lo, hi) of m as a *mat.Dense copy.
func sliceColsRange(m *mat.Dense, lo, hi int) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.NewDense(rows, hi-lo, nil)
	copyCols(out, m, lo, hi-lo)
	return out
}

// symDenseFrom builds a *mat.SymDense of the given size from m's lower
// triangle (m is expected to already be numerically symmetric; H is
// Hermitian-as-real by construction of the projected eigenproblem).
func symDenseFrom(m *mat.Dense, n int) *mat.SymDense {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	return sym
}

// diagDense builds a dense diagonal matrix from vals.
func diagDense(vals []float64) *mat.Dense {
	n := len(vals)
	m := mat.NewDense(n, n, nil)
	for i, v := range vals {
		m.Set(i, i, v)
	}
	return m
}

// identityHVecsPkg returns the n x n identity matrix, used to reset
// st.HVecs to the trivial coefficient matrix once a projection restart
// has folded its change of basis into V/W/H directly.
func identityHVecsPkg(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
