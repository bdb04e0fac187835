package daveig

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// buildDiagonalProblem constructs a toy State/Config pair for a basis
// already in Ritz form: V is the nLocal x basisSize identity-like basis
// (V'AV = H with H diagonal and HVecs the identity), so Restart's output
// can be checked against exact arithmetic.
func buildDiagonalProblem(basisSize int, vals []float64) (*Config, *State) {
	rows := basisSize
	v := identityHVecs(rows)
	w := mat.NewDense(rows, basisSize, nil)
	for i := 0; i < rows; i++ {
		w.Set(i, i, vals[i])
	}
	h := mat.NewDense(basisSize, basisSize, nil)
	for i := 0; i < basisSize; i++ {
		h.Set(i, i, vals[i])
	}

	cfg := &Config{
		N:              rows + 100,
		MaxBasisSize:   basisSize,
		MinRestartSize: 2,
		MaxBlockSize:   1,
		NumEvals:       2,
		Target:         TargetSmallest,
		Projection:     ProjectionRR,
		Scheme:         SchemeThick,
	}
	st := &State{
		BasisSize: basisSize,
		V:         v,
		W:         w,
		H:         h,
		HVecs:     identityHVecs(basisSize),
		HVals:     append([]float64(nil), vals...),
		Flags:     make([]Flag, basisSize),
		IEV:       []int{0, 1, 2, 3, 4, 5}[:basisSize],
	}
	return cfg, st
}

func TestRestartSoftLockingEndToEnd(t *testing.T) {
	t.Parallel()
	cfg, st := buildDiagonalProblem(6, []float64{1, 2, 3, 4, 5, 6})
	ws := NewWorkspace(cfg)

	restartSize, err := Restart(cfg, st, ws)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restartSize < cfg.MinRestartSize {
		t.Fatalf("restartSize = %d, want >= MinRestartSize %d", restartSize, cfg.MinRestartSize)
	}
	if st.BasisSize != restartSize {
		t.Fatalf("st.BasisSize = %d, want %d", st.BasisSize, restartSize)
	}

	rows, cols := st.V.Dims()
	if cols != restartSize {
		t.Fatalf("V has %d columns, want %d", cols, restartSize)
	}
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		mat.Col(col, j, st.V)
		var n float64
		for _, x := range col {
			n += x * x
		}
		if math.Abs(n-1) > 1e-6 {
			t.Fatalf("V column %d has squared norm %v, want ~1", j, n)
		}
	}

	// The two smallest eigenvalues (1 and 2) must still be present among
	// the restarted Ritz values.
	found1, found2 := false, false
	for _, v := range st.HVals {
		if math.Abs(v-1) < 1e-6 {
			found1 = true
		}
		if math.Abs(v-2) < 1e-6 {
			found2 = true
		}
	}
	if !found1 || !found2 {
		t.Fatalf("HVals = %v, want the two smallest eigenvalues 1 and 2 retained", st.HVals)
	}
}

func TestRestartIdempotentOnAlreadyMinimalBasis(t *testing.T) {
	t.Parallel()
	cfg, st := buildDiagonalProblem(2, []float64{1, 2})
	cfg.MinRestartSize = 2
	ws := NewWorkspace(cfg)

	restartSize, err := Restart(cfg, st, ws)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restartSize != 2 {
		t.Fatalf("restartSize = %d, want 2 (basis was already minimal)", restartSize)
	}
}

func TestRestartRejectsEmptyBasis(t *testing.T) {
	t.Parallel()
	cfg := &Config{MaxBasisSize: 4}
	st := &State{BasisSize: 0}
	ws := NewWorkspace(cfg)
	if _, err := Restart(cfg, st, ws); err == nil {
		t.Fatal("Restart on an empty basis should return an error")
	}
}
