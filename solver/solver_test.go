package solver

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fumin/daveig"
	"github.com/fumin/daveig/sparse"
	"gonum.org/v1/gonum/mat"
)

// diagonalOperator is a daveig.Operator applying A = diag(vals).
type diagonalOperator struct{ vals []float64 }

func (d diagonalOperator) Apply(dst, x *mat.Dense) {
	rows, cols := x.Dims()
	dst.Reset()
	dst.ReuseAs(rows, cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			dst.Set(r, c, d.vals[r]*x.At(r, c))
		}
	}
}

func TestSolveFindsSmallestEigenvalues(t *testing.T) {
	t.Parallel()
	n := 20
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	op := diagonalOperator{vals: vals}

	block := 4
	init := mat.NewDense(n, block, nil)
	for i := 0; i < block; i++ {
		init.Set(i, i, 1)
	}

	cfg := daveig.Config{
		N:              n,
		MaxBasisSize:   12,
		MinRestartSize: block,
		MaxBlockSize:   block,
		NumEvals:       3,
		Target:         daveig.TargetSmallest,
		Projection:     daveig.ProjectionRR,
		Scheme:         daveig.SchemeThick,
		Operator:       op,
	}
	res, err := Solve(Options{
		Config:    cfg,
		Tol:       1e-8,
		MaxOuter:  200,
		LogEvery:  time.Hour,
		InitBlock: init,
	})
	if err != nil {
		t.Fatalf("Solve: %+v", err)
	}
	if len(res.Evals) != 3 {
		t.Fatalf("len(Evals) = %d, want 3", len(res.Evals))
	}
	want := []float64{1, 2, 3}
	got := append([]float64(nil), res.Evals...)
	for i := 0; i < len(got); i++ {
		for j := i + 1; j < len(got); j++ {
			if got[j] < got[i] {
				got[i], got[j] = got[j], got[i]
			}
		}
	}
	for i, w := range want {
		if math.Abs(got[i]-w) > 1e-6 {
			t.Fatalf("Evals = %v, want the smallest three eigenvalues %v", got, want)
		}
	}
}

func TestSolveWithLaplacianOperator(t *testing.T) {
	t.Parallel()
	side := 6
	dim := side * side
	coo := sparse.NewCOO(dim, dim)
	idx := func(y, x int) int { return y*side + x }
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			i := idx(y, x)
			coo.Set(i, i, 4)
			if y > 0 {
				coo.Set(i, idx(y-1, x), -1)
			}
			if y < side-1 {
				coo.Set(i, idx(y+1, x), -1)
			}
			if x > 0 {
				coo.Set(i, idx(y, x-1), -1)
			}
			if x < side-1 {
				coo.Set(i, idx(y, x+1), -1)
			}
		}
	}
	coo.Finalize()

	block := 4
	init := mat.NewDense(dim, block, nil)
	for i := 0; i < block; i++ {
		init.Set(i, i, 1)
	}

	cfg := daveig.Config{
		N:              dim,
		MaxBasisSize:   20,
		MinRestartSize: block,
		MaxBlockSize:   block,
		NumEvals:       2,
		Target:         daveig.TargetSmallest,
		Projection:     daveig.ProjectionRR,
		Scheme:         daveig.SchemeThick,
		Operator:       coo,
	}
	res, err := Solve(Options{
		Config:    cfg,
		Tol:       1e-7,
		MaxOuter:  300,
		LogEvery:  time.Hour,
		InitBlock: init,
	})
	if err != nil {
		t.Fatalf("Solve: %+v", err)
	}
	if len(res.Evals) != 2 {
		t.Fatalf("len(Evals) = %d, want 2", len(res.Evals))
	}
	for _, v := range res.Evals {
		if v <= 0 {
			t.Fatalf("Evals = %v, want strictly positive (Laplacian is positive definite)", res.Evals)
		}
	}
}

func TestSolveCheckpointsAndCleansUpOnConvergence(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "checkpoint.db")

	n := 10
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	op := diagonalOperator{vals: vals}

	block := 2
	init := mat.NewDense(n, block, nil)
	for i := 0; i < block; i++ {
		init.Set(i, i, 1)
	}

	cfg := daveig.Config{
		N:              n,
		MaxBasisSize:   8,
		MinRestartSize: block,
		MaxBlockSize:   block,
		NumEvals:       2,
		Target:         daveig.TargetSmallest,
		Projection:     daveig.ProjectionRR,
		Scheme:         daveig.SchemeThick,
		Operator:       op,
	}
	if _, err := Solve(Options{
		Config:         cfg,
		Tol:            1e-8,
		MaxOuter:       200,
		LogEvery:       time.Hour,
		InitBlock:      init,
		CheckpointPath: path,
	}); err != nil {
		t.Fatalf("Solve: %+v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("checkpoint file should be removed after convergence, stat err = %v", err)
	}
}
