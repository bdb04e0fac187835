package daveig

import (
	"github.com/fumin/daveig/ortho"
	"gonum.org/v1/gonum/mat"
)

// orthonormalizeCoefficientVectors reorthonormalizes the freshly inserted
// coefficient columns [lo, hi) of hVecs against every other kept column —
// the union of the leading retained columns [0, lo) and the trailing
// candidate columns [hi, n) — and against each other, replacing linearly
// dependent columns with random re-draws. The inserted previous-iteration
// block is generically non-orthogonal to both sides: restartPerm places
// dense candidate eigenvector columns after it, so projecting out only the
// prefix would fold a non-orthonormal coefficient matrix into V.
//
// hVecs' remaining columns (the already-orthonormal kept set) are not
// touched.
func orthonormalizeCoefficientVectors(hVecs *mat.Dense, lo, hi, n int) error {
	if lo >= hi {
		return nil
	}
	if err := ortho.Columns(hVecs, lo, hi, n); err != nil {
		return newRestartError(KindRestartH, "reorthonormalization of retained coefficient vectors failed: "+err.Error())
	}
	return nil
}
