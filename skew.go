package daveig

import "gonum.org/v1/gonum/mat"

// updateSkewProjector refreshes the skew-projector bookkeeping: M = Vc' K^-1
// Vc where Vc is the locked eigenvector store st.Evecs and K is the (fixed,
// externally supplied) preconditioner. Hard-locking restart calls it
// whenever it locks new vectors and cfg.Preconditioner is set, whatever the
// projection mode; unpreconditioned runs leave st.EvecsHat nil and never
// call this (see State.skewActive).
//
// evecsHat must already hold K^-1 * st.Evecs (the previously locked
// eigenvectors plus the ones just appended), computed by the caller via
// cfg.Preconditioner.Apply — applying
// the preconditioner is an external collaborator's job, not the restart
// subsystem's (spec §1 Non-goals).
func updateSkewProjector(st *State, evecsHat *mat.Dense) error {
	vc := st.Evecs
	rows, cols := vc.Dims()
	hrows, _ := evecsHat.Dims()
	if hrows != rows {
		return newRestartError(KindPseudoLockInconsistency, "evecsHat row count does not match Evecs")
	}

	m := mat.NewDense(cols, cols, nil)
	m.Mul(vc.T(), evecsHat)
	// M is symmetric up to floating-point noise (K is assumed
	// self-adjoint); average with its transpose to keep uduDecompose's
	// upper-triangle read well-defined.
	symmetrize(m)

	udu, ipivot, err := uduDecompose(m)
	if err != nil {
		return err
	}

	st.EvecsHat = evecsHat
	st.M = m
	st.UDU = udu
	st.Ipivot = ipivot
	return nil
}

// symmetrize overwrites m with (m + m')/2.
func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, avg)
			m.Set(j, i, avg)
		}
	}
}

// ApplySkewProjector computes x - EvecsHat*M^-1*(Vc'*x), the skew projection
// (I - K^-1*Vc*M^-1*Vc')*x applied to a candidate direction when a skew
// projector is active, in place on x. It is
// a no-op when no preconditioner was configured (State.EvecsHat nil).
// Exported so the outer iteration's correction-equation solver — spec §1
// Non-goals, daveig/solver's expandBlock — can apply the same projection
// daveig.Restart keeps current via updateSkewProjector, rather than
// reimplementing it against the plain Evecs store.
func ApplySkewProjector(st *State, x []float64) {
	if !st.skewActive() {
		return
	}
	rows, cols := st.Evecs.Dims()
	c := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			s += st.Evecs.At(i, j) * x[i]
		}
		c[j] = s
	}
	uduSolve(st.UDU, st.Ipivot, c)
	for i := 0; i < rows; i++ {
		var s float64
		for j := 0; j < cols; j++ {
			s += st.EvecsHat.At(i, j) * c[j]
		}
		x[i] -= s
	}
}
