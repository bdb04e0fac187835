package daveig

import "gonum.org/v1/gonum/mat"

// permuteFloatsInPlace reorders vals[0:len(perm)] so that the value at
// position i becomes vals[perm[i]] from before the call, i.e. it applies
// the permutation the way permute_vecs_dprimme does for a 1xk "matrix".
func permuteFloatsInPlace(vals []float64, perm []int, scratch []float64) {
	k := len(perm)
	tmp := scratch[:k]
	for i, p := range perm {
		tmp[i] = vals[p]
	}
	copy(vals, tmp)
}

// permuteColumns reorders the first len(perm) columns of m in place so
// that column i becomes the column that was at perm[i].
func permuteColumns(m *mat.Dense, perm []int, scratch *mat.Dense) {
	rows, _ := m.Dims()
	k := len(perm)
	scratch.Reset()
	scratch.ReuseAs(rows, k)
	col := make([]float64, rows)
	for i, p := range perm {
		mat.Col(col, p, m)
		scratch.SetCol(i, col)
	}
	for i := 0; i < k; i++ {
		mat.Col(col, i, scratch)
		m.SetCol(i, col)
	}
}

// invertPerm returns the permutation q such that q[perm[i]] = i for all i,
// i.e. hVecsPerm's usual relationship to restartPerm before restartPerm is
// finally discarded.
func invertPerm(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// identityPerm returns [0, 1, ..., n-1].
func identityPerm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}
