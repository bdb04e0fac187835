package daveig

import "testing"

func TestShiftArbitraryVecsAheadMovesArbitraryIntoLead(t *testing.T) {
	t.Parallel()
	// Candidate region is [2, 5); positions 3 and 4 hold arbitrary vectors
	// (original columns 0 and 1), position 2 a plain candidate (column 4).
	// After the shift the arbitrary vectors must sit immediately after the
	// previously-retained block, ahead of the plain candidate.
	basisSize := 5
	st := &State{
		BasisSize:        basisSize,
		HVecs:            identityHVecs(basisSize),
		HVals:            []float64{0, 1, 2, 3, 4},
		Flags:            make([]Flag, basisSize),
		NumArbitraryVecs: 2,
	}
	layout := &restartLayout{
		RestartSize:         basisSize,
		IndexOfPreviousVecs: 1,
		NumPrevRetained:     1,
		RestartPerm:         []int{2, 3, 4, 0, 1},
	}

	shiftArbitraryVecsAhead(st, layout)

	wantPerm := []int{2, 3, 0, 1, 4}
	for i, p := range layout.RestartPerm {
		if p != wantPerm[i] {
			t.Fatalf("RestartPerm = %v, want %v", layout.RestartPerm, wantPerm)
		}
	}
	if layout.NumPrevRetained != 3 {
		t.Fatalf("NumPrevRetained = %d, want 3 (grown by the 2 shifted arbitrary vectors, so projection restart resolves them with the previous-retained block)", layout.NumPrevRetained)
	}
	wantVals := []float64{0, 1, 3, 4, 2}
	for i, v := range st.HVals {
		if v != wantVals[i] {
			t.Fatalf("HVals = %v, want %v", st.HVals, wantVals)
		}
	}
	// HVecs columns follow the same positional move: the identity columns
	// originally at positions 3, 4, 2 now sit at 2, 3, 4.
	if st.HVecs.At(3, 2) != 1 || st.HVecs.At(4, 3) != 1 || st.HVecs.At(2, 4) != 1 {
		t.Fatalf("HVecs columns were not moved with the permutation")
	}
}

func TestSnapshotPreviousVecsMarksFreshCandidates(t *testing.T) {
	t.Parallel()
	layout := restartLayout{
		RestartSize:         5,
		IndexOfPreviousVecs: 2,
		NumPrevRetained:     1,
	}
	prev, carry := snapshotPreviousVecs(layout)
	if carry != 2 {
		t.Fatalf("carry = %d, want 2 (columns beyond the previous-retained block)", carry)
	}
	rows, cols := prev.Dims()
	if rows != 5 || cols != 2 {
		t.Fatalf("snapshot dims = %dx%d, want 5x2", rows, cols)
	}
	if prev.At(3, 0) != 1 || prev.At(4, 1) != 1 {
		t.Fatalf("snapshot does not select the fresh candidate columns: %v", prev)
	}
}

func TestSnapshotPreviousVecsEmptyWhenNoFreshCandidates(t *testing.T) {
	t.Parallel()
	prev, carry := snapshotPreviousVecs(restartLayout{
		RestartSize:         3,
		IndexOfPreviousVecs: 0,
		NumPrevRetained:     3,
	})
	if prev != nil || carry != 0 {
		t.Fatalf("snapshot = (%v, %d), want (nil, 0) when the whole restart is previous vectors", prev, carry)
	}
}
