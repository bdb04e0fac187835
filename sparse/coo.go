// Package sparse provides a coordinate-format sparse matrix, the concrete
// Operator a caller plugs into the restart subsystem's outer iteration when
// the operator A is given explicitly rather than as a black-box
// matrix-vector product. Adapted from the teacher's exactdiag/mat COO type,
// retargeted from complex64 amplitudes to the real float64 entries a
// Hermitian-as-real eigensolver operates on.
package sparse

import (
	"cmp"
	"slices"

	"github.com/fumin/daveig"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type entry struct {
	v        float64
	row, col int
}

// COO is a coordinate-format sparse matrix. Entries are kept sorted by
// (row, col) so Apply can stream through them in a single pass per column
// block.
type COO struct {
	rows, cols int
	data       []entry
}

// NewCOO returns an empty rows x cols matrix.
func NewCOO(rows, cols int) *COO {
	return &COO{rows: rows, cols: cols}
}

// Identity returns the n x n identity matrix in COO form.
func Identity(n int) *COO {
	m := NewCOO(n, n)
	for i := 0; i < n; i++ {
		m.data = append(m.data, entry{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// Set records a nonzero entry; Set(i, j, 0) is a no-op rather than an
// explicit zero, matching the teacher's convention of treating zero as
// "not present" (exactdiag/mat's setItem/COO.Data skip zero entries).
func (m *COO) Set(i, j int, v float64) {
	if v == 0 {
		return
	}
	m.data = append(m.data, entry{v: v, row: i, col: j})
}

// Finalize sorts entries by (row, col) and merges duplicates by summation,
// the step a builder calls once after all Set calls and before the matrix
// is used as an Operator.
func (m *COO) Finalize() {
	slices.SortFunc(m.data, func(a, b entry) int {
		if c := cmp.Compare(a.row, b.row); c != 0 {
			return c
		}
		return cmp.Compare(a.col, b.col)
	})
	out := m.data[:0]
	for _, e := range m.data {
		if n := len(out); n > 0 && out[n-1].row == e.row && out[n-1].col == e.col {
			out[n-1].v += e.v
			continue
		}
		out = append(out, e)
	}
	m.data = out
}

// Apply implements daveig.Operator: dst = A*x, column by column. dst and x
// must not alias.
func (m *COO) Apply(dst, x *mat.Dense) {
	xRows, cols := x.Dims()
	if xRows != m.cols {
		panic(errors.Errorf("sparse: operator expects %d rows, got %d", m.cols, xRows))
	}
	dst.Reset()
	dst.ReuseAs(m.rows, cols)
	for _, e := range m.data {
		for c := 0; c < cols; c++ {
			dst.Set(e.row, c, dst.At(e.row, c)+e.v*x.At(e.col, c))
		}
	}
}

var _ daveig.Operator = (*COO)(nil)
