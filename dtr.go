package daveig

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// dtr implements the dynamic thick-restart selector of spec §4.6: given the
// current block's lead Ritz value nu, it searches over (l, r) pairs for the
// one maximising the gap-ratio heuristic
//
//	f(l, r) = (basisSize-l-r) * sqrt((nu-hVals[l+1]) / (hVals[l+1]-hVals[basisSize-1-r]))
//
// subject to (basisSize-l-r) being a multiple of cfg.MaxBlockSize, and
// rearranges hVecs/hVals/flags so the retained left and right blocks end up
// contiguous at the front. It returns the new restart size.
func dtr(cfg *Config, st *State, numFree int) int {
	basisSize := st.BasisSize
	nu := st.HVals[st.IEV[0]]
	maxIndex := basisSize - 1

	lMin := min(basisSize, cfg.MinRestartSize)
	if cfg.Locking {
		lMin = 0
		for l := 0; l < basisSize; l++ {
			if st.Flags[l] != Unconverged && st.NumLocked+l < cfg.NumEvals {
				lMin = l
			}
		}
		lMin = max(lMin, min(basisSize, cfg.MinRestartSize))
	}

	lOpt, rOpt, optVal := lMin, 0, 0.0
	for l := lMin; l < basisSize-numFree; l++ {
		for r := 0; r < basisSize-l-numFree; r++ {
			if (basisSize-l-r)%cfg.MaxBlockSize != 0 {
				continue
			}
			num := nu - st.HVals[l+1]
			den := st.HVals[l+1] - st.HVals[maxIndex-r]
			if den == 0 {
				continue
			}
			ratio := num / den
			if ratio < 0 {
				continue
			}
			newVal := float64(basisSize-l-r) * math.Sqrt(ratio)
			if newVal > optVal {
				optVal, lOpt, rOpt = newVal, l, r
			}
		}
	}

	restartSize := lOpt + rOpt
	moveRightBlock(st, lOpt, rOpt, basisSize, restartSize)

	for i := 0; i < restartSize; i++ {
		st.Flags[i] = Unconverged
	}
	return restartSize
}

// moveRightBlock swaps the rOpt top-of-spectrum columns [basisSize-rOpt,
// basisSize) of hVecs/hVals/flags into [lOpt, lOpt+rOpt), so they become
// contiguous with the retained left block [0, lOpt); the displaced middle
// block [lOpt, basisSize-rOpt) is pushed past the new restart size, where
// restart discards it.
func moveRightBlock(st *State, lOpt, rOpt, basisSize, restartSize int) {
	if rOpt == 0 {
		return
	}
	rows, _ := st.HVecs.Dims()
	midWidth := basisSize - restartSize
	mid := mat.NewDense(rows, midWidth, nil)
	copyCols(mid, st.HVecs, lOpt, midWidth)

	right := mat.NewDense(rows, rOpt, nil)
	copyCols(right, st.HVecs, basisSize-rOpt, rOpt)
	setCols(st.HVecs, right, lOpt)
	setCols(st.HVecs, mid, restartSize)

	midVals := append([]float64(nil), st.HVals[lOpt:lOpt+midWidth]...)
	copy(st.HVals[lOpt:lOpt+rOpt], st.HVals[basisSize-rOpt:basisSize])
	copy(st.HVals[restartSize:basisSize], midVals)

	midFlags := append([]Flag(nil), st.Flags[lOpt:lOpt+midWidth]...)
	for i := 0; i < rOpt; i++ {
		st.Flags[lOpt+i] = st.Flags[basisSize-rOpt+i]
	}
	copy(st.Flags[restartSize:basisSize], midFlags)
}

// copyCols copies width columns of src starting at column start into dst
// starting at column 0.
func copyCols(dst, src *mat.Dense, start, width int) {
	rows, _ := src.Dims()
	col := make([]float64, rows)
	for i := 0; i < width; i++ {
		mat.Col(col, start+i, src)
		dst.SetCol(i, col)
	}
}

// setCols writes src's columns into dst starting at column start.
func setCols(dst, src *mat.Dense, start int) {
	rows, width := src.Dims()
	col := make([]float64, rows)
	for i := 0; i < width; i++ {
		mat.Col(col, i, src)
		dst.SetCol(start+i, col)
	}
}
