package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/fumin/daveig"
	"github.com/fumin/daveig/solver"
	"github.com/fumin/daveig/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	gridN    = flag.Int("n", 8, "side length of the 2D Laplacian grid")
	numEvals = flag.Int("k", 4, "number of eigenpairs to find")
	tol      = flag.Float64("tol", 1e-8, "residual norm convergence tolerance")
)

func main() {
	flag.Parse()
	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	n := *gridN
	dim := n * n
	lap := laplacian2D(n)

	block := min(2*(*numEvals), dim)
	initBlock := mat.NewDense(dim, block, nil)
	for i := 0; i < block; i++ {
		initBlock.Set(i, i, 1)
	}

	cfg := daveig.Config{
		N:              dim,
		MaxBasisSize:   min(dim, 8*(*numEvals)+20),
		MinRestartSize: *numEvals,
		MaxBlockSize:   block,
		NumEvals:       *numEvals,
		Target:         daveig.TargetSmallest,
		Projection:     daveig.ProjectionRR,
		Scheme:         daveig.SchemeDTR,
		MachEps:        2.2e-16,
		Operator:       lap,
	}

	res, err := solver.Solve(solver.Options{
		Config:    cfg,
		Tol:       *tol,
		MaxOuter:  500,
		LogEvery:  time.Second,
		InitBlock: initBlock,
	})
	if err != nil {
		return errors.Wrap(err, "")
	}

	for i, v := range res.Evals {
		fmt.Printf("%d %.10f\n", i, v)
	}
	return nil
}

// laplacian2D builds the n x n grid's 5-point Laplacian (Dirichlet
// boundary) as a sparse.COO operator.
func laplacian2D(n int) *sparse.COO {
	dim := n * n
	m := sparse.NewCOO(dim, dim)
	idx := func(y, x int) int { return y*n + x }
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := idx(y, x)
			m.Set(i, i, 4)
			if y > 0 {
				m.Set(i, idx(y-1, x), -1)
			}
			if y < n-1 {
				m.Set(i, idx(y+1, x), -1)
			}
			if x > 0 {
				m.Set(i, idx(y, x-1), -1)
			}
			if x < n-1 {
				m.Set(i, idx(y, x+1), -1)
			}
		}
	}
	m.Finalize()
	return m
}
