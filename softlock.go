package daveig

import "math"

// restartSoftLocking implements soft-locking restart (spec §4.2): converged
// Ritz pairs are kept inside the active basis (not moved to a separate
// locked store) but excluded from the count of candidates still being
// pursued, so the restart size must cover every soft-converged pair plus
// enough unconverged candidates to keep the block full.
//
// Before selecting candidates it re-examines every pair previously flagged
// Converged among the first NumEvals: a Ritz value that has drifted from
// the eval recorded at convergence by more than that pair's recorded
// residual norm can no longer be trusted and is flipped back to
// Unconverged. If such a drift is found but no unconverged pair exists
// anywhere in the basis to re-target the block at, the basis is internally
// inconsistent (every column claims converged yet at least one is not) and
// the restart fails with a pseudolocking-inconsistency error rather than
// silently restarting on bad flags.
//
// It returns the layout selectCandidates built (see layout.go); actually
// permuting st.HVecs/st.HVals/st.Flags is left to finalizeLayout, called
// once by Restart after DTR (if any) has had a chance to adjust restartSize0.
func restartSoftLocking(cfg *Config, st *State, restartSize0 int) (restartLayout, error) {
	drifted := make([]int, 0, st.BasisSize)
	for i := 0; i < st.BasisSize && i < cfg.NumEvals; i++ {
		if st.Flags[i] != Converged {
			continue
		}
		if i >= len(st.Evals) || i >= len(st.ResNorms) {
			continue
		}
		if math.Abs(st.HVals[i]-st.Evals[i]) > st.ResNorms[i] {
			drifted = append(drifted, i)
		}
	}
	if len(drifted) > 0 {
		hasUnconverged := false
		for i := 0; i < st.BasisSize; i++ {
			if st.Flags[i] == Unconverged {
				hasUnconverged = true
				break
			}
		}
		if !hasUnconverged {
			return restartLayout{}, newRestartError(KindPseudoLockInconsistency,
				"converged Ritz value drifted beyond its recorded residual norm with no unconverged pair left to re-target")
		}
		for _, i := range drifted {
			st.Flags[i] = Unconverged
		}
	}

	indices := orderedIndices(st, st.BasisSize, make([]bool, st.BasisSize))
	layout := selectCandidates(cfg, st, indices, restartSize0)

	numConverged := 0
	for i := 0; i < layout.RestartSize; i++ {
		if st.Flags[layout.RestartPerm[i]] != Unconverged {
			numConverged++
		}
	}
	st.NumConverged = numConverged

	return layout, nil
}
