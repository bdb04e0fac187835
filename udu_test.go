package daveig

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestUDUDecomposeSolveReproducesDirectSolve(t *testing.T) {
	t.Parallel()
	m := mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	udu, ipivot, err := uduDecompose(m)
	if err != nil {
		t.Fatalf("uduDecompose: %v", err)
	}

	b := []float64{1, 2, 3}
	x := append([]float64(nil), b...)
	uduSolve(udu, ipivot, x)

	// M*x must reproduce b.
	for i := 0; i < 3; i++ {
		var s float64
		for j := 0; j < 3; j++ {
			s += m.At(i, j) * x[j]
		}
		if math.Abs(s-b[i]) > 1e-10 {
			t.Fatalf("(M*x)[%d] = %v, want %v (x = %v)", i, s, b[i], x)
		}
	}
}

func TestUDUSolveHandles2x2Pivot(t *testing.T) {
	t.Parallel()
	// Zero diagonal forces the 2x2 pivot path; M^-1 = M here.
	m := mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	})
	udu, ipivot, err := uduDecompose(m)
	if err != nil {
		t.Fatalf("uduDecompose: %v", err)
	}
	if ipivot[0] >= 0 {
		t.Fatalf("ipivot = %v, want a negative entry marking the 2x2 block start", ipivot)
	}

	x := []float64{1, 2}
	uduSolve(udu, ipivot, x)
	if math.Abs(x[0]-2) > 1e-12 || math.Abs(x[1]-1) > 1e-12 {
		t.Fatalf("x = %v, want [2 1]", x)
	}
}

func TestUDUDecomposeRejectsSingular(t *testing.T) {
	t.Parallel()
	m := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 0,
	})
	_, _, err := uduDecompose(m)
	if err == nil {
		t.Fatal("uduDecompose on a singular matrix should fail")
	}
	re, ok := AsRestartError(err)
	if !ok || re.Kind != KindUDUDecompose {
		t.Fatalf("err = %v, want a RestartError with KindUDUDecompose", err)
	}
}
