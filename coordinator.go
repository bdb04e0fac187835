package daveig

// Restart is the restart subsystem's single entry point (spec §4.1): given
// the outer iteration's current projected-subspace state, it compresses the
// basis back down to a smaller size, preserving every invariant the outer
// loop depends on for its next block of matrix-vector products. It returns
// the new basis size (st.BasisSize is updated in place to match) and an
// error if the restart subsystem could not complete (e.g. the projected
// eigendecomposition failed to converge, or the skew-projector's Gram
// matrix turned out to be singular).
//
// Restart assumes the outer iteration has already, for the current
// st.BasisSize: applied the operator to get W=A*V, formed/updated H=V'*A*V
// (and, for refined/harmonic targeting, Q/R and QV), solved the projected
// eigenproblem for st.HVecs/st.HVals (and st.HSVals/st.HU when applicable),
// and ranked and flagged candidates into st.IEV/st.Flags/st.BlockNorms.
// Those are all external collaborators' responsibilities (spec §1
// Non-goals); Restart only consumes their output.
func Restart(cfg *Config, st *State, ws *Workspace) (int, error) {
	ws.Reset()

	if st.BasisSize == 0 {
		return 0, newRestartError(KindRestartH, "cannot restart an empty basis")
	}

	// Special case (spec §4.1): once the active subspace plus locked and
	// orthogonality-constraint vectors has consumed the whole problem
	// dimension, there is no room left to restart into — whatever is still
	// unconverged is accepted outright (up to cfg.NumEvals pairs) and the
	// basis is left untouched.
	if st.BasisSize+st.NumLocked+cfg.NumOrthoConst >= cfg.N {
		flipRemainingToConverged(cfg, st)
		st.NumPrevRetained = 0
		return st.BasisSize, nil
	}

	if st.BasisSize <= cfg.MaxBasisSize-cfg.MaxBlockSize {
		return st.BasisSize, nil
	}

	restartSize0 := min(st.BasisSize, cfg.MinRestartSize)
	if cfg.Scheme == SchemeDTR {
		numFree := st.NumPrevRetained + max(3, cfg.MaxBlockSize)
		restartSize0 = dtr(cfg, st, numFree)
	}

	var layout restartLayout
	var err error
	if cfg.Locking {
		layout, err = restartHardLocking(cfg, st, restartSize0)
	} else {
		layout, err = restartSoftLocking(cfg, st, restartSize0)
	}
	if err != nil {
		return 0, err
	}

	if layout.RestartSize > st.BasisSize {
		layout.RestartSize = st.BasisSize
	}
	if layout.RestartSize < 1 {
		layout.RestartSize = 1
	}

	if err := finalizeLayout(st, &layout); err != nil {
		return 0, err
	}

	if cfg.Target.shiftSensitive() {
		applyPrevRitzValsPerm(st, layout.RestartPerm, layout.RestartSize)
	}

	updateTargetShiftIndex(cfg, st)

	foldedVecs, err := restartProjection(cfg, st, layout)
	if err != nil {
		return 0, err
	}

	if err := refreshShiftedQR(cfg, st, foldedVecs, layout.RestartSize); err != nil {
		return 0, err
	}

	updateVW(st.V, st.W, foldedVecs, layout.RestartSize)

	if layout.NumGuessesDrawn > 0 {
		if err := appendGuesses(cfg, st, layout.RestartSize, layout.NumGuessesDrawn); err != nil {
			return 0, err
		}
	}

	prevVecs, numPrevRetained := snapshotPreviousVecs(layout)
	st.PreviousHVecs = prevVecs
	st.NumPrevRetained = numPrevRetained
	st.BasisSize = layout.RestartSize
	return layout.RestartSize, nil
}

// applyPrevRitzValsPerm keeps st.PrevRitzVals, the previous restart's
// retained Ritz values, in step with the permutation the current restart
// just chose, for targets where the ordering of Ritz values is not simply
// ascending (Target.shiftSensitive). Nothing else in this package reads
// st.PrevRitzVals; it is carried for the outer iteration.
func applyPrevRitzValsPerm(st *State, perm []int, restartSize int) {
	if !st.hasPrevRitzVals() {
		return
	}
	n := min(restartSize, len(perm), st.NumPrevRitzVals)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		p := perm[i]
		if p < len(st.PrevRitzVals) {
			vals[i] = st.PrevRitzVals[p]
		}
	}
	st.PrevRitzVals = vals
	st.NumPrevRitzVals = n
}

func (st *State) hasPrevRitzVals() bool {
	return st.PrevRitzVals != nil && st.NumPrevRitzVals > 0
}

// updateTargetShiftIndex advances st.TargetShiftIndex to
// min(len(cfg.TargetShifts)-1, st.NumConverged), the boundary-crossing rule
// spec §4.4.2 describes for tau: the shift in effect moves to the next entry
// each time NumConverged grows, until the last shift in the list is reached
// and kept from then on. A no-op when no target shifts are configured.
func updateTargetShiftIndex(cfg *Config, st *State) {
	if len(cfg.TargetShifts) == 0 {
		return
	}
	idx := st.NumConverged
	if last := len(cfg.TargetShifts) - 1; idx > last {
		idx = last
	}
	st.TargetShiftIndex = idx
}
