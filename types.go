// Package daveig implements the restart subsystem of a thick-restart
// Davidson/Jacobi-Davidson eigensolver for large, sparse, Hermitian (or
// real-symmetric) operators: given the current projected-subspace state
// (basis V, its image W=A*V, the projected matrix H, and — depending on
// extraction mode — a shifted-QR factorization and a skew-projector
// Gram factorization), Restart compresses that state back down to a
// smaller basis while preserving the invariants the outer iteration
// relies on.
package daveig

import "gonum.org/v1/gonum/mat"

// Flag records the convergence status of a Ritz pair.
type Flag int

const (
	Unconverged Flag = iota
	Converged
	Locked
)

// Target selects which part of the spectrum is being approximated.
type Target int

const (
	TargetSmallest Target = iota
	TargetLargest
	TargetClosestShift
	TargetClosestGreater
	TargetHarmonicInterior
)

// shiftSensitive reports whether prevRitzVals must track hVals permutations,
// i.e. the target is not a plain extremal (smallest/largest) request.
func (t Target) shiftSensitive() bool {
	return t != TargetSmallest && t != TargetLargest
}

// Projection selects the Rayleigh-Ritz extraction used to turn the
// projected eigenproblem on H into Ritz pairs.
type Projection int

const (
	ProjectionRR Projection = iota
	ProjectionRefined
	ProjectionHarmonic
)

// Scheme selects how the restart size is picked when the basis is full.
type Scheme int

const (
	SchemeThick Scheme = iota
	SchemeDTR
)

// Operator applies the matrix-free operator A (or A-tau*B, or a
// preconditioner K^-1) to a block of vectors. dst receives the result and
// has as many columns as x; callers pass a dst that does not alias x, and
// implementations such as sparse.COO rely on that.
type Operator interface {
	Apply(dst, x *mat.Dense)
}

// OperatorFunc adapts a function to an Operator.
type OperatorFunc func(dst, x *mat.Dense)

func (f OperatorFunc) Apply(dst, x *mat.Dense) { f(dst, x) }

// Reducer performs the caller's global reduction across whatever
// distributed-memory communication pattern the outer driver uses; the
// default (Config.Reduce nil) is the identity, correct for a single
// process. The restart subsystem does not call it: every sum it forms,
// including those inside orthonormalization, is node-local.
type Reducer func(buf []float64)

func localReduce(buf []float64) {}

// Config carries the dimensions and algorithmic choices that the restart
// subsystem needs but does not own. It is immutable for the duration of a
// solve; Stats-like mutable counters live on State instead.
type Config struct {
	N             int // global problem dimension
	NumOrthoConst int // number of external orthogonality constraints

	MaxBasisSize   int
	MinRestartSize int
	MaxBlockSize   int
	NumEvals       int

	Target     Target
	Projection Projection
	Scheme     Scheme
	Locking    bool

	MachEps float64

	// TargetShifts holds the shift sequence for closest-to/closest-greater
	// targeting; TargetShifts[min(len-1, numConverged)] is the shift in
	// effect once numConverged eigenpairs have been found.
	TargetShifts []float64

	Operator       Operator
	Preconditioner Operator // nil disables the skew preconditioner / evecsHat path
	Reduce         Reducer
}

func (c *Config) reduce() Reducer {
	if c.Reduce != nil {
		return c.Reduce
	}
	return localReduce
}

// State bundles the mutable bases and projected objects the restart
// subsystem borrows for the duration of a Restart call. All matrices are
// owned by the outer iteration for the lifetime of the solve; Restart
// mutates them in place and never retains a reference beyond the call.
type State struct {
	BasisSize int

	V *mat.Dense // nLocal x basisSize, orthonormal columns
	W *mat.Dense // nLocal x basisSize, W = A*V

	H *mat.Dense // basisSize x basisSize, H = V'*A*V

	// Present only when Projection is Refined or Harmonic.
	Q *mat.Dense // nLocal x basisSize, thin Q of (A-tau*B)*V
	R *mat.Dense // basisSize x basisSize, upper triangular

	// Present only when Projection is Harmonic.
	QV *mat.Dense // basisSize x basisSize, QV = Q'*V

	HVecs  *mat.Dense // basisSize x basisSize, coefficient eigenvectors of H
	HVals  []float64  // Ritz values
	HSVals []float64  // singular values of R (refined/harmonic only)
	HU     *mat.Dense // left singular vectors of R, or eigenvectors of QV/R

	Flags      []Flag
	IEV        []int
	BlockNorms []float64

	// Locked/soft-converged eigenvectors and their values.
	Evecs     *mat.Dense // nLocal x (NumOrthoConst+numLocked or numConvergedStored)
	EvecsPerm []int
	Evals     []float64
	ResNorms  []float64

	// Skew-projector maintenance state; present iff Config.Preconditioner != nil.
	EvecsHat *mat.Dense // K^-1 * Evecs
	M        *mat.Dense // Evecs' * EvecsHat
	UDU      *mat.Dense // symmetric-indefinite factorization of M
	Ipivot   []int

	PreviousHVecs   *mat.Dense
	NumPrevRetained int

	PrevRitzVals    []float64
	NumPrevRitzVals int

	NumConverged       int
	NumLocked          int
	NumConvergedStored int

	TargetShiftIndex int
	NumArbitraryVecs int
	NumGuesses       int

	// Guesses holds remaining initial-guess vectors to be drawn into the
	// block during hard-locking restarts; consumed front-to-back.
	Guesses *mat.Dense
}

func (s *State) skewActive() bool { return s.EvecsHat != nil }
