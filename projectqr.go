package daveig

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// restartQR implements refined and harmonic projection restart (spec
// §4.4.2). Both targeting modes replace each retained Ritz pair by the
// "refined" pair: the coefficient vector c minimising ||(H - theta*I)c||
// subject to ||c||=1, found as the right singular vector of (H - theta*I)
// associated with its smallest singular value, and the refined Ritz value
// theta' = c'*H*c. Harmonic targeting only changes which theta values are
// handed in (the outer iteration computes harmonic Ritz values from the
// shifted problem, spec §1 Non-goals) — once restartSize candidates and
// their target shifts are fixed, the subspace-level refinement step is
// identical, matching restart_d.c's switch on RestartProjection falling
// through from harmonic into the refined case.
//
// On entry st.H is the pre-restart projected matrix, st.HVals holds the
// restartSize target values already selected (by softlock/hardlock/dtr and,
// for closest-shift targeting, cfg.TargetShifts), and hVecs holds an
// orthonormal coefficient basis spanning the retained subspace (its columns
// need not individually be eigenvectors — QR restart does not require
// them to be). It returns foldedVecs, the basisSize_old x restartSize
// matrix the caller must fold into V/W via updateVW (mirroring restartRR);
// st.H/st.HVals/st.HVecs are updated the same way restartRR updates them.
func restartQR(st *State, restartSize int) (foldedVecs *mat.Dense, err error) {
	selected := sliceCols(st.HVecs, restartSize)
	h := mat.NewDense(restartSize, restartSize, nil)
	computeSubmatrix(st.H, selected, h)

	newVecs := mat.NewDense(restartSize, restartSize, nil)
	newVals := make([]float64, restartSize)
	newSVals := make([]float64, restartSize)

	shifted := mat.NewDense(restartSize, restartSize, nil)
	for i := 0; i < restartSize; i++ {
		theta := st.HVals[i]
		shifted.Copy(h)
		for d := 0; d < restartSize; d++ {
			shifted.Set(d, d, shifted.At(d, d)-theta)
		}

		var svd mat.SVD
		if ok := svd.Factorize(shifted, mat.SVDThinV); !ok {
			return nil, newRestartError(KindRestartH, "SVD of shifted projected matrix failed during refined restart")
		}
		vals := svd.Values(nil)
		minIdx := 0
		for k, v := range vals {
			if v < vals[minIdx] {
				minIdx = k
			}
		}
		var v mat.Dense
		svd.VTo(&v)
		c := make([]float64, restartSize)
		for r := 0; r < restartSize; r++ {
			c[r] = v.At(r, minIdx)
		}

		// refined Ritz value theta' = c' H c
		hc := make([]float64, restartSize)
		for r := 0; r < restartSize; r++ {
			var s float64
			for k := 0; k < restartSize; k++ {
				s += h.At(r, k) * c[k]
			}
			hc[r] = s
		}
		var cHc float64
		for r := 0; r < restartSize; r++ {
			cHc += c[r] * hc[r]
		}
		newVecs.SetCol(i, c)
		newVals[i] = cHc
		newSVals[i] = vals[minIdx]
	}

	// Re-orthonormalize the refined coefficient vectors: they minimise
	// independent residuals, not a joint eigenproblem, so they are not
	// automatically orthogonal to each other.
	if err := orthonormalizeCoefficientVectors(newVecs, 0, restartSize, restartSize); err != nil {
		return nil, err
	}

	selRows, _ := selected.Dims()
	folded := mat.NewDense(selRows, restartSize, nil)
	folded.Mul(selected, newVecs)

	st.H = computeSubmatrixCopy(h, newVecs)
	st.HVecs = identityHVecsPkg(restartSize)
	st.HVals = newVals
	// hU is reset to the identity alongside hVecs: once the refined change
	// of basis is folded into V/W and refreshShiftedQR refactors Q/R, the
	// restarted columns are themselves the singular directions. hSVals keeps
	// each column's minimal shifted singular value, the residual bound
	// refined extraction just minimised.
	st.HU = identityHVecsPkg(restartSize)
	st.HSVals = newSVals
	return folded, nil
}

// computeSubmatrixCopy returns c' * a * c as a freshly allocated matrix
// (computeSubmatrix requires its dst argument distinct from a and c).
func computeSubmatrixCopy(a, c *mat.Dense) *mat.Dense {
	_, k := c.Dims()
	dst := mat.NewDense(k, k, nil)
	computeSubmatrix(a, c, dst)
	return dst
}

// restartProjection is the dispatcher spec §4.4 describes: it routes to
// Rayleigh-Ritz or refined/harmonic projection restart according to
// cfg.Projection, after softlock/hardlock/dtr and finalizeLayout have
// already chosen the layout and reordered hVecs/hVals/flags accordingly.
// Only restartRR needs the full layout (to locate the previously-retained
// block); restartQR's per-column refinement does not distinguish it.
func restartProjection(cfg *Config, st *State, layout restartLayout) (*mat.Dense, error) {
	switch cfg.Projection {
	case ProjectionRR:
		return restartRR(st, layout)
	case ProjectionRefined, ProjectionHarmonic:
		return restartQR(st, layout.RestartSize)
	default:
		return nil, newRestartError(KindRestartH, "unknown projection mode")
	}
}

// closestShiftIndex returns the index of the entry of shifts closest to the
// running Ritz value theta (the first one on ties). The restart path does
// not call it: the shift in effect during a restart comes from
// st.TargetShiftIndex (see currentShift).
func closestShiftIndex(shifts []float64, theta float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, s := range shifts {
		d := math.Abs(theta - s)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}
