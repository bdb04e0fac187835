package daveig

import "github.com/pkg/errors"

// ErrorKind classifies a restart failure the way spec §7 requires: the
// restart subsystem reports only numeric failures of its small dense
// subproblems, never convergence state.
type ErrorKind int

const (
	// KindNone is the zero value; never attached to a returned error.
	KindNone ErrorKind = iota
	// KindRestartH is an eigendecomposition failure inside the inserted
	// submatrix solve (Rayleigh-Ritz or refined/harmonic projection restart).
	KindRestartH
	// KindUDUDecompose is a factorization failure of the skew-projector
	// Gram matrix M.
	KindUDUDecompose
	// KindPseudoLockInconsistency is the soft-locking consistency audit
	// failure: a flag claims Converged but the eigenvalue has drifted
	// beyond resNorms with no unconverged pair left to re-target.
	KindPseudoLockInconsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindRestartH:
		return "restart_h_failure"
	case KindUDUDecompose:
		return "ududecompose_failure"
	case KindPseudoLockInconsistency:
		return "pseudolock_inconsistency"
	default:
		return "none"
	}
}

// RestartError is the error type surfaced to the outer loop for numeric
// failures. Stage distinguishes, for the SVD front end, the first
// eigenvalue pass from the second augmented-matrix pass (see daveig/svds);
// Stage is 0 for plain eigensolves.
type RestartError struct {
	Kind  ErrorKind
	Stage int
	msg   string
}

func (e *RestartError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.Kind.String()
}

// Code returns the composite code described in spec §7: the hundreds digit
// encodes the stage, the units the underlying kind.
func (e *RestartError) Code() int {
	return e.Stage*100 + int(e.Kind)
}

func newRestartError(kind ErrorKind, msg string) error {
	return errors.WithStack(&RestartError{Kind: kind, msg: msg})
}

// AsRestartError extracts the *RestartError from err, if any, unwrapping
// any github.com/pkg/errors stack annotation along the way.
func AsRestartError(err error) (*RestartError, bool) {
	var re *RestartError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// WithStage rewrites a RestartError's Stage in place, used by daveig/svds
// to tag errors from its second (augmented-matrix) pass as stage 2 without
// losing the original Kind.
func WithStage(err error, stage int) error {
	if re, ok := AsRestartError(err); ok {
		re.Stage = stage
	}
	return err
}
