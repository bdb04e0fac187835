package daveig

import "gonum.org/v1/gonum/mat"

// restartLayout is the column layout spec §4.1/§4.2 builds before
// dispatching into projection restart: which original basis column becomes
// which new column (RestartPerm), where the previously-retained coefficient
// block (carried over via st.PreviousHVecs/st.NumPrevRetained) sits in that
// new layout, and the secondary permutation (HVecsPerm) spec §4.2 step 12
// describes for keeping prevRitzVals in step once arbitrary vectors have
// been shifted.
type restartLayout struct {
	RestartSize         int
	IndexOfPreviousVecs int
	NumPrevRetained     int
	RestartPerm         []int
	HVecsPerm           []int

	// NumGuessesDrawn counts the slots drawGuesses reserved at the tail of
	// the restarted basis for initial guesses; the coordinator fills them
	// from st.Guesses after the fold (hard-locking only).
	NumGuessesDrawn int
}

// orderedIndices lists every index in [0,basisSize) not marked in excluded,
// in st.IEV's rank order first (the outer iteration's priority ranking),
// followed by whatever is left over in plain index order. Both
// restartSoftLocking and restartHardLocking use it to build the pool
// selectCandidates sweeps, matching the priority ordering restart_d.c's
// IEV-driven loops use throughout spec §4.2/§4.3.
func orderedIndices(st *State, basisSize int, excluded []bool) []int {
	used := make([]bool, basisSize)
	copy(used, excluded)
	indices := make([]int, 0, basisSize)
	for _, idx := range st.IEV {
		if idx >= 0 && idx < basisSize && !used[idx] {
			indices = append(indices, idx)
			used[idx] = true
		}
	}
	for i := 0; i < basisSize; i++ {
		if !used[i] {
			indices = append(indices, i)
			used[i] = true
		}
	}
	return indices
}

// selectCandidates implements spec §4.2 steps 2-6 (and, composed with a
// locked-vector suffix by restartHardLocking, §4.3's analogous layout):
// given the pool of still-active column indices (the whole basis under
// soft-locking, or the unlocked remainder under hard-locking) in the order
// the coordinator wants them swept, and a baseline restart size chosen by
// the coordinator's size selection, it grows the baseline by
// st.NumPrevRetained previously-retained coefficient vectors and selects a
// trailing candidate block of UNCONVERGED columns (padded by any
// UNCONVERGED arbitrary vectors, i.e. an original column index below
// st.NumArbitraryVecs), producing restartPerm so the final layout reads
// [locked/converged | overflow unconverged | previous-retained | candidates].
// Every already-converged (non-Unconverged) column in indices is guaranteed
// a retained slot — restartSize is grown to fit them all if the baseline
// was too small, since a soft/hard-converged pair must never be silently
// discarded by a restart.
func selectCandidates(cfg *Config, st *State, indices []int, restartSize0 int) restartLayout {
	basisSize := len(indices)

	numPrevRetained := min(cfg.MaxBasisSize, restartSize0+st.NumPrevRetained) - restartSize0
	if numPrevRetained < 0 {
		numPrevRetained = 0
	}
	if numPrevRetained > basisSize-restartSize0 {
		numPrevRetained = basisSize - restartSize0
	}
	restartSize := restartSize0 + numPrevRetained

	locked := make([]int, 0, basisSize)
	unconverged := make([]int, 0, basisSize)
	for _, idx := range indices {
		if st.Flags[idx] != Unconverged {
			locked = append(locked, idx)
		} else {
			unconverged = append(unconverged, idx)
		}
	}
	if restartSize < len(locked) {
		restartSize = len(locked)
	}
	if restartSize > basisSize {
		restartSize = basisSize
	}

	ievSize := cfg.MaxBlockSize
	if v := cfg.NumEvals - len(locked) + 1; v < ievSize {
		ievSize = v
	}
	if v := cfg.MaxBasisSize - restartSize; v < ievSize {
		ievSize = v
	}
	if ievSize < 0 {
		ievSize = 0
	}

	numArbUnconverged := 0
	for _, idx := range unconverged {
		if idx < st.NumArbitraryVecs {
			numArbUnconverged++
		}
	}

	numCandidates := max(ievSize, numArbUnconverged)
	if numCandidates > restartSize-len(locked) {
		numCandidates = restartSize - len(locked)
	}
	if numCandidates > len(unconverged) {
		numCandidates = len(unconverged)
	}
	if numCandidates < 0 {
		numCandidates = 0
	}

	candidates := append([]int(nil), unconverged[:numCandidates]...)
	overflow := append([]int(nil), unconverged[numCandidates:]...)
	nonCandidates := append(append([]int(nil), locked...), overflow...)

	left := restartSize - numCandidates
	frontCount := left
	if frontCount > len(nonCandidates) {
		frontCount = len(nonCandidates)
	}
	restartPerm := make([]int, 0, basisSize)
	restartPerm = append(restartPerm, nonCandidates[:frontCount]...)
	restartPerm = append(restartPerm, candidates...)
	restartPerm = append(restartPerm, nonCandidates[frontCount:]...)

	indexOfPreviousVecs := left - numPrevRetained
	if indexOfPreviousVecs < 0 {
		indexOfPreviousVecs = 0
	}

	return restartLayout{
		RestartSize:         restartSize,
		IndexOfPreviousVecs: indexOfPreviousVecs,
		NumPrevRetained:     numPrevRetained,
		RestartPerm:         restartPerm,
	}
}

// insertPreviousVecs implements spec §4.2 step 9: copies st.PreviousHVecs
// (zero-padded up to basisSize rows, since the active basis may have grown
// by block expansion since it was recorded) into
// hVecs[:, IndexOfPreviousVecs:IndexOfPreviousVecs+NumPrevRetained],
// replacing whatever restartPerm happened to place there.
func insertPreviousVecs(st *State, layout *restartLayout, basisSize int) {
	if layout.NumPrevRetained == 0 || st.PreviousHVecs == nil {
		return
	}
	prevRows, prevCols := st.PreviousHVecs.Dims()
	width := layout.NumPrevRetained
	if width > prevCols {
		width = prevCols
	}
	limit := prevRows
	if limit > basisSize {
		limit = basisSize
	}
	col := make([]float64, basisSize)
	for j := 0; j < width; j++ {
		for r := range col {
			col[r] = 0
		}
		for r := 0; r < limit; r++ {
			col[r] = st.PreviousHVecs.At(r, j)
		}
		st.HVecs.SetCol(layout.IndexOfPreviousVecs+j, col)
	}
}

// shiftArbitraryVecsAhead implements spec §4.2 step 12: within the
// candidate region, arbitrary vectors (an original column index below
// st.NumArbitraryVecs) are moved to sit immediately after the
// previously-retained block, and the block is grown to absorb them, so
// projection restart resolves them jointly with the previously-retained
// coefficient vectors (restart_d.c's "*numPrevRetained += j" after its
// equivalent hVecsPerm shift).
func shiftArbitraryVecsAhead(st *State, layout *restartLayout) {
	left := layout.IndexOfPreviousVecs + layout.NumPrevRetained
	n := layout.RestartSize
	if left >= n || st.NumArbitraryVecs == 0 {
		return
	}

	arb := make([]int, 0, n-left)
	rest := make([]int, 0, n-left)
	for i := left; i < n; i++ {
		if layout.RestartPerm[i] < st.NumArbitraryVecs {
			arb = append(arb, i)
		} else {
			rest = append(rest, i)
		}
	}
	if len(arb) == 0 {
		return
	}

	full := identityPerm(n)
	pos := left
	for _, src := range arb {
		full[pos] = src
		pos++
	}
	for _, src := range rest {
		full[pos] = src
		pos++
	}

	rows, _ := st.HVecs.Dims()
	scratch := mat.NewDense(rows, n, nil)
	permuteColumns(st.HVecs, full, scratch)
	permuteFloatsInPlace(st.HVals, full, make([]float64, n))
	flags := make([]Flag, n)
	for i, p := range full {
		flags[i] = st.Flags[p]
	}
	copy(st.Flags, flags)

	newRestartPerm := append([]int(nil), layout.RestartPerm...)
	for i := 0; i < n; i++ {
		newRestartPerm[i] = layout.RestartPerm[full[i]]
	}
	layout.RestartPerm = newRestartPerm
	layout.NumPrevRetained += len(arb)
}

// finalizeLayout implements spec §4.2 steps 8-10 and 12: permutes
// hVals/hVecs/flags by layout.RestartPerm (already the full permutation
// soft/hard-locking built, including any locked-vector suffix), reinserts
// st.PreviousHVecs at its chosen position, shifts arbitrary vectors into
// the previously-retained block (growing it, see shiftArbitraryVecsAhead —
// the insertion must run first so its width is the carried-over count, not
// the grown one), and reorthonormalizes the grown block against all the
// kept columns around it.
func finalizeLayout(st *State, layout *restartLayout) error {
	basisSize := st.BasisSize

	scratch := mat.NewDense(basisSize, len(layout.RestartPerm), nil)
	permuteColumns(st.HVecs, layout.RestartPerm, scratch)
	permuteFloatsInPlace(st.HVals, layout.RestartPerm, make([]float64, len(layout.RestartPerm)))
	flags := make([]Flag, len(layout.RestartPerm))
	for i, p := range layout.RestartPerm {
		flags[i] = st.Flags[p]
	}
	copy(st.Flags, flags)

	insertPreviousVecs(st, layout, basisSize)
	shiftArbitraryVecsAhead(st, layout)

	if layout.NumPrevRetained > 0 {
		lo, hi := layout.IndexOfPreviousVecs, layout.IndexOfPreviousVecs+layout.NumPrevRetained
		if err := orthonormalizeCoefficientVectors(st.HVecs, lo, hi, layout.RestartSize); err != nil {
			return err
		}
	}

	layout.HVecsPerm = invertPerm(layout.RestartPerm)
	return nil
}

// snapshotPreviousVecs implements the carry-forward half of spec §4.2's
// previously-retained-vectors mechanism: the fresh candidate columns this
// restart just selected (those beyond the previously-retained block) become
// the next restart's previousHVecs, so a caller invoking Restart again
// before the outer iteration re-solves the full projected eigenproblem
// still exercises the block-diagonal reinsertion restartRR performs (spec
// §4.4.1).
func snapshotPreviousVecs(layout restartLayout) (*mat.Dense, int) {
	left := layout.IndexOfPreviousVecs + layout.NumPrevRetained
	carry := layout.RestartSize - left
	if carry <= 0 {
		return nil, 0
	}
	m := mat.NewDense(layout.RestartSize, carry, nil)
	for j := 0; j < carry; j++ {
		m.Set(left+j, j, 1)
	}
	return m, carry
}

// flipRemainingToConverged implements spec §4.1's special case: once the
// active subspace plus locked/constraint vectors has exhausted the global
// problem dimension, there is no more room to search, so whatever is still
// UNCONVERGED is flagged CONVERGED, up to cfg.NumEvals pairs.
func flipRemainingToConverged(cfg *Config, st *State) {
	numConverged := 0
	for i := 0; i < st.BasisSize; i++ {
		if st.Flags[i] != Unconverged {
			numConverged++
		}
	}
	for i := 0; i < st.BasisSize && numConverged < cfg.NumEvals; i++ {
		if st.Flags[i] == Unconverged {
			st.Flags[i] = Converged
			numConverged++
		}
	}
	st.NumConverged = numConverged
}
