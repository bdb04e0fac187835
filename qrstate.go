package daveig

import "gonum.org/v1/gonum/mat"

// refreshShiftedQR restores the spec §3 invariant "Q*R = (A-tau*B)*V" (and,
// for harmonic extraction, "QV = Q'*V") after a restart has folded foldedVecs
// into the basis. B is the identity throughout — generalised eigenproblems
// beyond the shift-and-project formulation are out of scope (spec §1
// Non-goals) — so the shifted operator collapses to W - tau*V, and since
// restart never reapplies the operator (spec §1 "THE CORE"), the shifted
// image of the new basis is recovered from the pre-restart W and V alone:
//
//	(A - tau*I) * (V_old * foldedVecs) = (W_old - tau*V_old) * foldedVecs
//
// st.V and st.W must still be the pre-restart bases (the caller must invoke
// this before updateVW overwrites them in place, mirroring the ordering
// restartHardLocking's extractBlock already relies on). On exit st.Q and
// st.R hold the thin QR factors of the restarted shifted basis, and, for
// harmonic projection, st.QV = Q'*V_new; for Rayleigh-Ritz projection this
// is a no-op (Q/R/QV are only maintained for refined/harmonic, spec §3).
func refreshShiftedQR(cfg *Config, st *State, foldedVecs *mat.Dense, restartSize int) error {
	if cfg.Projection != ProjectionRefined && cfg.Projection != ProjectionHarmonic {
		return nil
	}

	tau := currentShift(cfg, st)
	rows, oldSize := st.V.Dims()

	shiftedOld := mat.NewDense(rows, oldSize, nil)
	for c := 0; c < oldSize; c++ {
		for r := 0; r < rows; r++ {
			shiftedOld.Set(r, c, st.W.At(r, c)-tau*st.V.At(r, c))
		}
	}
	shiftedNew := mat.NewDense(rows, restartSize, nil)
	shiftedNew.Mul(shiftedOld, foldedVecs)

	var qrFact mat.QR
	qrFact.Factorize(shiftedNew)
	fullQ := new(mat.Dense)
	qrFact.QTo(fullQ)
	fullR := new(mat.Dense)
	qrFact.RTo(fullR)

	q := mat.NewDense(rows, restartSize, nil)
	copyCols(q, fullQ, 0, restartSize)
	r := mat.NewDense(restartSize, restartSize, nil)
	for i := 0; i < restartSize; i++ {
		for j := 0; j < restartSize; j++ {
			r.Set(i, j, fullR.At(i, j))
		}
	}

	st.Q = q
	st.R = r

	if cfg.Projection == ProjectionHarmonic {
		newV := mat.NewDense(rows, restartSize, nil)
		newV.Mul(st.V, foldedVecs)
		qv := mat.NewDense(restartSize, restartSize, nil)
		qv.Mul(q.T(), newV)
		st.QV = qv
	}
	return nil
}

// currentShift returns the target shift tau in effect given
// st.TargetShiftIndex, clamped to cfg.TargetShifts' length (spec §4.4.2:
// "tau = targetShifts[min(numTargetShifts-1, numConverged)]" — the
// coordinator keeps st.TargetShiftIndex equal to that clamped index as
// numConverged advances). Returns 0 (no shift) when no shifts are
// configured, the smallest/largest targeting case where Q/R are unused.
func currentShift(cfg *Config, st *State) float64 {
	if len(cfg.TargetShifts) == 0 {
		return 0
	}
	idx := st.TargetShiftIndex
	if idx >= len(cfg.TargetShifts) {
		idx = len(cfg.TargetShifts) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return cfg.TargetShifts[idx]
}
