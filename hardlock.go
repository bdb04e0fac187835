package daveig

import (
	"sort"

	"github.com/fumin/daveig/ortho"
	"gonum.org/v1/gonum/mat"
)

// restartHardLocking implements hard-locking restart (spec §4.3): every
// converged Ritz pair listed in st.IEV is moved out of the active basis into st.Evecs/
// st.Evals (growing the locked store) and, if the skew-projector is active,
// st.EvecsHat/st.M/st.UDU/st.Ipivot are refreshed to include it. The active
// basis is then laid out from the remaining unconverged candidates exactly
// as soft-locking does (selectCandidates), with the locked columns appended
// at the tail of the permutation so they end up discarded rather than
// retained, and topped up from st.Guesses if the block would otherwise
// shrink below MaxBlockSize.
func restartHardLocking(cfg *Config, st *State, restartSize0 int) (restartLayout, error) {
	basisSize := st.BasisSize
	used := make([]bool, basisSize)
	lockedIdx := make([]int, 0, basisSize)
	for _, idx := range st.IEV {
		if idx >= 0 && idx < basisSize && st.Flags[idx] != Unconverged {
			lockedIdx = append(lockedIdx, idx)
			used[idx] = true
		}
	}
	remaining := orderedIndices(st, basisSize, used)

	if err := lockVectors(cfg, st, lockedIdx); err != nil {
		return restartLayout{}, err
	}
	st.NumLocked += len(lockedIdx)

	restartSize0 = min(restartSize0, len(remaining))
	layout := selectCandidates(cfg, st, remaining, restartSize0)
	layout.RestartPerm = append(layout.RestartPerm, lockedIdx...)
	layout.RestartSize, layout.NumGuessesDrawn = drawGuesses(cfg, st, layout.RestartSize)

	// Drawn guesses enter the basis as raw directions, not Ritz vectors of
	// the restarted H, so the arbitrary-vector count grows with them and
	// the next restart treats them as columns still needing joint
	// resolution with the previously-retained block.
	st.NumArbitraryVecs += layout.NumGuessesDrawn

	return layout, nil
}

// lockVectors computes the Ritz vectors for lockedIdx (via extractBlock,
// using the pre-restart V/W so the caller must invoke this before
// updateVW), appends them to st.Evecs/st.Evals/st.ResNorms, and, if a
// preconditioner is configured, refreshes the skew-projector to include
// them.
func lockVectors(cfg *Config, st *State, lockedIdx []int) error {
	if len(lockedIdx) == 0 {
		return nil
	}
	rows, _ := st.V.Dims()
	oldCols := 0
	if st.Evecs != nil {
		_, oldCols = st.Evecs.Dims()
	}
	newCols := oldCols + len(lockedIdx)
	grown := mat.NewDense(rows, newCols, nil)
	if st.Evecs != nil {
		copyCols(grown, st.Evecs, 0, oldCols)
	}

	vals := make([]float64, 0, len(lockedIdx))
	norms := make([]float64, 0, len(lockedIdx))
	for i, idx := range lockedIdx {
		x, _, blockNorms := extractBlock(st.V, st.W, st.HVecs, st.HVals, idx, 1)
		col := make([]float64, rows)
		mat.Col(col, 0, x)
		grown.SetCol(oldCols+i, col)
		vals = append(vals, st.HVals[idx])
		norms = append(norms, blockNorms[0])
	}

	st.Evecs = grown
	st.Evals = append(st.Evals, vals...)
	st.ResNorms = append(st.ResNorms, norms...)
	st.NumConvergedStored += len(lockedIdx)
	st.EvecsPerm = sortedEvecsPerm(cfg, st.Evals)

	if cfg.Preconditioner != nil {
		evecsHat := mat.NewDense(rows, newCols, nil)
		cfg.Preconditioner.Apply(evecsHat, grown)
		if err := updateSkewProjector(st, evecsHat); err != nil {
			return err
		}
	}
	return nil
}

// sortedEvecsPerm recomputes the user-visible ordering of the locked store:
// the store itself grows in lock order, and EvecsPerm maps that to the
// target-sorted order the caller reads results in.
func sortedEvecsPerm(cfg *Config, evals []float64) []int {
	perm := identityPerm(len(evals))
	sort.Slice(perm, func(i, j int) bool {
		if cfg.Target == TargetLargest {
			return evals[perm[i]] > evals[perm[j]]
		}
		return evals[perm[i]] < evals[perm[j]]
	})
	return perm
}

// drawGuesses reserves slots at the tail of the restarted basis, up to a
// full cfg.MaxBlockSize block, for initial guesses still waiting in
// st.Guesses when hard-locking shrinks the candidate set below a full
// block. It only sizes the reservation; appendGuesses fills the slots once
// the fold has produced the new basis.
func drawGuesses(cfg *Config, st *State, restartSize int) (newSize, drawn int) {
	if st.Guesses == nil || st.NumGuesses == 0 {
		return restartSize, 0
	}
	need := cfg.MaxBlockSize - (restartSize % cfg.MaxBlockSize)
	if need == cfg.MaxBlockSize {
		return restartSize, 0
	}
	if need > st.NumGuesses {
		need = st.NumGuesses
	}
	return restartSize + need, need
}

// appendGuesses fills the drawGuesses-reserved tail columns of the restarted
// basis with initial guesses: each guess is copied into its slot,
// orthonormalized against the columns before it, handed to the operator for
// its W column, and wired into H. The operator application here is for
// brand-new directions the basis has never contained, not a recomputation of
// kept columns.
func appendGuesses(cfg *Config, st *State, restartSize, drawn int) error {
	if cfg.Operator == nil {
		return newRestartError(KindRestartH, "initial guesses drawn but no operator configured to extend W")
	}
	rows, _ := st.V.Dims()
	lo := restartSize - drawn
	col := make([]float64, rows)
	for k := 0; k < drawn; k++ {
		mat.Col(col, k, st.Guesses)
		st.V.SetCol(lo+k, col)
	}
	consumeGuesses(st, drawn)

	if err := ortho.Columns(st.V, lo, restartSize, restartSize); err != nil {
		return newRestartError(KindRestartH, "orthonormalizing drawn initial guesses failed: "+err.Error())
	}

	fresh := mat.NewDense(rows, drawn, nil)
	copyCols(fresh, st.V, lo, drawn)
	w := mat.NewDense(rows, drawn, nil)
	cfg.Operator.Apply(w, fresh)
	for k := 0; k < drawn; k++ {
		mat.Col(col, k, w)
		st.W.SetCol(lo+k, col)
	}

	for j := lo; j < restartSize; j++ {
		for i := 0; i < restartSize; i++ {
			var hij float64
			for r := 0; r < rows; r++ {
				hij += st.V.At(r, i) * st.W.At(r, j)
			}
			st.H.Set(i, j, hij)
			st.H.Set(j, i, hij)
		}
		st.HVals[j] = st.H.At(j, j)
		st.Flags[j] = Unconverged
	}
	return nil
}

// consumeGuesses pops the first drawn columns off the guess pool.
func consumeGuesses(st *State, drawn int) {
	rows, cols := st.Guesses.Dims()
	left := cols - drawn
	if left <= 0 || st.NumGuesses <= drawn {
		st.Guesses = nil
		st.NumGuesses = 0
		return
	}
	rest := mat.NewDense(rows, left, nil)
	copyCols(rest, st.Guesses, drawn, left)
	st.Guesses = rest
	st.NumGuesses -= drawn
}
