package daveig

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestRestartHardLockingMovesConvergedToEvecs(t *testing.T) {
	t.Parallel()
	rows, basisSize := 4, 4
	cfg := &Config{MaxBlockSize: 2, MaxBasisSize: 4, NumEvals: 3}
	v := mat.NewDense(rows, basisSize, nil)
	w := mat.NewDense(rows, basisSize, nil)
	for i := 0; i < rows; i++ {
		v.Set(i, i, 1)
		w.Set(i, i, float64(i + 1))
	}
	st := &State{
		BasisSize: basisSize,
		V:         v,
		W:         w,
		H:         identityHVecs(basisSize),
		HVecs:     identityHVecs(basisSize),
		HVals:     []float64{1, 2, 3, 4},
		Flags:     []Flag{Converged, Unconverged, Unconverged, Unconverged},
		IEV:       []int{0, 1, 2, 3},
	}

	layout, err := restartHardLocking(cfg, st, basisSize)
	if err != nil {
		t.Fatalf("restartHardLocking: %v", err)
	}
	if layout.RestartSize != basisSize-1 {
		t.Fatalf("restartSize = %d, want %d", layout.RestartSize, basisSize-1)
	}
	if len(layout.RestartPerm) != basisSize {
		t.Fatalf("len(RestartPerm) = %d, want %d", len(layout.RestartPerm), basisSize)
	}
	if st.NumLocked != 1 {
		t.Fatalf("NumLocked = %d, want 1", st.NumLocked)
	}
	if st.Evecs == nil {
		t.Fatal("Evecs is nil, want the locked vector to have been stored")
	}
	_, cols := st.Evecs.Dims()
	if cols != 1 {
		t.Fatalf("Evecs has %d columns, want 1", cols)
	}
	if len(st.Evals) != 1 || st.Evals[0] != 1 {
		t.Fatalf("Evals = %v, want [1]", st.Evals)
	}
	if len(st.EvecsPerm) != 1 || st.EvecsPerm[0] != 0 {
		t.Fatalf("EvecsPerm = %v, want [0]", st.EvecsPerm)
	}
	for _, p := range layout.RestartPerm[layout.RestartSize:] {
		if p != 0 {
			t.Fatalf("discarded tail of RestartPerm = %v, want the locked column (0) last", layout.RestartPerm)
		}
	}
}

// scaledPreconditioner is an Operator standing in for K^-1; it scales each
// column by a fixed factor so the resulting skew projector has a
// hand-checkable effect on a probe vector.
type scaledPreconditioner struct{ factor float64 }

func (p scaledPreconditioner) Apply(dst, x *mat.Dense) {
	rows, cols := x.Dims()
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			dst.Set(r, c, p.factor*x.At(r, c))
		}
	}
}

func TestRestartHardLockingMaintainsSkewProjector(t *testing.T) {
	t.Parallel()
	rows, basisSize := 4, 4
	cfg := &Config{MaxBlockSize: 2, MaxBasisSize: 4, NumEvals: 3, Preconditioner: scaledPreconditioner{factor: 2}}
	v := mat.NewDense(rows, basisSize, nil)
	w := mat.NewDense(rows, basisSize, nil)
	for i := 0; i < rows; i++ {
		v.Set(i, i, 1)
		w.Set(i, i, float64(i+1))
	}
	st := &State{
		BasisSize: basisSize,
		V:         v,
		W:         w,
		H:         identityHVecs(basisSize),
		HVecs:     identityHVecs(basisSize),
		HVals:     []float64{1, 2, 3, 4},
		Flags:     []Flag{Converged, Unconverged, Unconverged, Unconverged},
		IEV:       []int{0, 1, 2, 3},
	}

	if _, err := restartHardLocking(cfg, st, basisSize); err != nil {
		t.Fatalf("restartHardLocking: %v", err)
	}
	if !st.skewActive() {
		t.Fatal("skewActive() = false, want true after locking a vector with a preconditioner configured")
	}
	if st.M == nil || st.UDU == nil {
		t.Fatal("M/UDU not populated by updateSkewProjector")
	}

	// x = the locked Ritz vector itself; the skew projector must annihilate
	// it, since Vc spans (and is orthonormal against) that direction.
	x := make([]float64, rows)
	x[0] = 1
	ApplySkewProjector(st, x)
	for i, xi := range x {
		if xi > 1e-9 || xi < -1e-9 {
			t.Fatalf("ApplySkewProjector(x)[%d] = %v, want ~0 for x in Evecs' span", i, xi)
		}
	}
}

func TestRestartHardLockingDrawsInitialGuesses(t *testing.T) {
	t.Parallel()
	rows, basisSize := 6, 6
	diag := OperatorFunc(func(dst, x *mat.Dense) {
		xr, cols := x.Dims()
		dst.Reset()
		dst.ReuseAs(xr, cols)
		for c := 0; c < cols; c++ {
			for r := 0; r < xr; r++ {
				dst.Set(r, c, float64(r+1)*x.At(r, c))
			}
		}
	})
	cfg := &Config{
		N:              100,
		MaxBasisSize:   basisSize,
		MinRestartSize: 2,
		MaxBlockSize:   3,
		NumEvals:       3,
		Target:         TargetSmallest,
		Projection:     ProjectionRR,
		Scheme:         SchemeThick,
		Locking:        true,
		Operator:       diag,
	}
	v := identityHVecs(rows)
	w := mat.NewDense(rows, basisSize, nil)
	h := mat.NewDense(basisSize, basisSize, nil)
	for i := 0; i < rows; i++ {
		w.Set(i, i, float64(i+1))
		h.Set(i, i, float64(i+1))
	}
	guess := mat.NewDense(rows, 1, nil)
	guess.Set(5, 0, 1)
	st := &State{
		BasisSize:  basisSize,
		V:          v,
		W:          w,
		H:          h,
		HVecs:      identityHVecs(basisSize),
		HVals:      []float64{1, 2, 3, 4, 5, 6},
		Flags:      []Flag{Converged, Unconverged, Unconverged, Unconverged, Unconverged, Unconverged},
		IEV:        []int{0, 1, 2, 3, 4, 5},
		Guesses:    guess,
		NumGuesses: 1,
	}
	ws := NewWorkspace(cfg)

	restartSize, err := Restart(cfg, st, ws)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restartSize != 3 {
		t.Fatalf("restartSize = %d, want 3 (2 retained + 1 drawn guess)", restartSize)
	}
	if st.NumGuesses != 0 || st.Guesses != nil {
		t.Fatalf("guess pool not consumed: NumGuesses=%d Guesses=%v", st.NumGuesses, st.Guesses)
	}
	if st.NumLocked != 1 {
		t.Fatalf("NumLocked = %d, want 1", st.NumLocked)
	}

	// The drawn guess (e5, eigenvector of the diagonal operator with
	// eigenvalue 6) occupies the last restarted column: V's column is e5,
	// its Ritz value is 6, and it is flagged unconverged.
	if got := st.V.At(5, 2); got < 1-1e-12 || got > 1+1e-12 {
		t.Fatalf("V[5,2] = %v, want 1 (the drawn guess)", got)
	}
	if st.HVals[2] != 6 {
		t.Fatalf("HVals[2] = %v, want 6", st.HVals[2])
	}
	if st.Flags[2] != Unconverged {
		t.Fatalf("Flags[2] = %v, want Unconverged", st.Flags[2])
	}
}
