// Package svds reformulates the singular value problem as an eigenproblem
// on either A'A/AA' (whichever is smaller) and solves it with the
// daveig/solver package, the two-stage pipeline primme_svds_z.c's front end
// describes: a first stage on the normal-equations operator, then an
// optional augmented-matrix refinement stage (Options.Augmented) applied to
// every triplet the first stage returned. Composite error codes follow the
// original's convention of offsetting by stage, expressed here as
// daveig.WithStage(err, 1 or 2), so that RestartError.Code() reads
// 100*stage + kind.
package svds

import (
	"math"

	"github.com/fumin/daveig"
	"github.com/fumin/daveig/solver"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Options configures a Solve call. A*x is computed with A.Apply and A'*x
// with AT.Apply; callers of a COO-backed operator can build the
// transpose operator once and reuse it across calls.
type Options struct {
	A            daveig.Operator
	AT           daveig.Operator
	M, N         int // A is M x N
	NumSVals     int
	Tol          float64
	MaxOuter     int
	Augmented    bool // run the stage-two augmented-matrix refinement
}

// Result holds the converged singular triplets.
type Result struct {
	SVals []float64
	U, V  *mat.Dense // M x NumSVals, N x NumSVals
}

// Solve computes the NumSVals largest singular triplets of A.
func Solve(opts Options) (*Result, error) {
	normalOp, dim, wide := normalEquationsOperator(opts)

	block := min(opts.NumSVals, dim)
	initBlock := mat.NewDense(dim, block, nil)
	for i := 0; i < block; i++ {
		initBlock.Set(i%dim, i, 1)
	}

	cfg := daveig.Config{
		N:              dim,
		MaxBasisSize:   min(dim, 6*opts.NumSVals+10),
		MinRestartSize: opts.NumSVals,
		MaxBlockSize:   block,
		NumEvals:       opts.NumSVals,
		Target:         daveig.TargetLargest,
		Projection:     daveig.ProjectionRR,
		Scheme:         daveig.SchemeThick,
		Operator:       normalOp,
	}
	res, err := solver.Solve(solver.Options{
		Config:    cfg,
		Tol:       opts.Tol * opts.Tol, // residual on A'A/AA' scales like sigma^2
		MaxOuter:  opts.MaxOuter,
		InitBlock: initBlock,
	})
	if err != nil {
		return nil, daveig.WithStage(errors.Wrap(err, "stage one (normal equations) eigensolve failed"), 1)
	}

	svals := make([]float64, opts.NumSVals)
	for i, v := range res.Evals {
		if v < 0 {
			v = 0
		}
		svals[i] = math.Sqrt(v)
	}

	u, v, err := recoverSingularVectors(opts, res.Evecs, svals, wide)
	if err != nil {
		return nil, daveig.WithStage(errors.Wrap(err, "recovering singular vectors"), 1)
	}

	if opts.Augmented {
		if err := refineAugmented(opts, svals, u, v); err != nil {
			return nil, daveig.WithStage(errors.Wrap(err, "stage two (augmented matrix) refinement failed"), 2)
		}
	}

	return &Result{SVals: svals, U: u, V: v}, nil
}

// normalEquationsOperator picks A'A (dim=N) or AA' (dim=M), whichever is
// smaller, as PRIMME SVDS does to keep the first stage's projected problem
// as small as possible; wide reports whether AA' (the M-dimensional
// problem) was chosen.
func normalEquationsOperator(opts Options) (daveig.Operator, int, bool) {
	if opts.M <= opts.N {
		op := daveig.OperatorFunc(func(dst, x *mat.Dense) {
			_, cols := x.Dims()
			tmp := mat.NewDense(opts.N, cols, nil)
			opts.AT.Apply(tmp, x)
			dst.Reset()
			dst.ReuseAs(opts.M, cols)
			opts.A.Apply(dst, tmp)
		})
		return op, opts.M, true
	}
	op := daveig.OperatorFunc(func(dst, x *mat.Dense) {
		_, cols := x.Dims()
		tmp := mat.NewDense(opts.M, cols, nil)
		opts.A.Apply(tmp, x)
		dst.Reset()
		dst.ReuseAs(opts.N, cols)
		opts.AT.Apply(dst, tmp)
	})
	return op, opts.N, false
}

// recoverSingularVectors derives the missing side of each singular triplet
// from the normal-equations eigenvector: if the solved problem was AA'
// (wide), evecs are the left vectors U and V = A'U/sigma; otherwise evecs
// are V and U = A*V/sigma.
func recoverSingularVectors(opts Options, evecs *mat.Dense, svals []float64, wide bool) (u, v *mat.Dense, err error) {
	n := len(svals)
	if wide {
		u = evecs
		v = mat.NewDense(opts.N, n, nil)
		opts.AT.Apply(v, u)
		scaleCols(v, svals)
		return u, v, nil
	}
	v = evecs
	u = mat.NewDense(opts.M, n, nil)
	opts.A.Apply(u, v)
	scaleCols(u, svals)
	return u, v, nil
}

func scaleCols(m *mat.Dense, svals []float64) {
	rows, cols := m.Dims()
	for j := 0; j < cols; j++ {
		s := svals[j]
		if s == 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			m.Set(i, j, m.At(i, j)/s)
		}
	}
}

// refineAugmented polishes each triplet in place on u/v by one averaged
// power step with the augmented matrix [[0 A];[A' 0]] scaled by 1/sigma:
// u <- (u + A*v/sigma)/2 and v <- (v + A'*u/sigma)/2, each renormalized.
// It runs on every triplet without checking residuals first; it is this
// package's stand-in for the stage-two refinement of primme_svds_z.c.
func refineAugmented(opts Options, svals []float64, u, v *mat.Dense) error {
	for k, s := range svals {
		uk := make([]float64, opts.M)
		vk := make([]float64, opts.N)
		mat.Col(uk, k, u)
		mat.Col(vk, k, v)

		av := mat.NewDense(opts.M, 1, nil)
		opts.A.Apply(av, mat.NewDense(opts.N, 1, vk))
		atu := mat.NewDense(opts.N, 1, nil)
		opts.AT.Apply(atu, mat.NewDense(opts.M, 1, uk))

		for i := range uk {
			uk[i] = (uk[i] + av.At(i, 0)/maxFloat(s, 1e-300)) / 2
		}
		for i := range vk {
			vk[i] = (vk[i] + atu.At(i, 0)/maxFloat(s, 1e-300)) / 2
		}
		normalize(uk)
		normalize(vk)
		u.SetCol(k, uk)
		v.SetCol(k, vk)
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func normalize(x []float64) {
	var n float64
	for _, v := range x {
		n += v * v
	}
	n = math.Sqrt(n)
	if n == 0 {
		return
	}
	for i := range x {
		x[i] /= n
	}
}
