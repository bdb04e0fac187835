package daveig

// Workspace is the typed replacement for the null-pointer-query workspace
// convention described in spec §9: instead of calling a routine with nil
// bases to learn how large its scratch slabs must be, callers ask
// SizeRequirements once for the whole Config and then build a Workspace
// that every Restart call can borrow scratch arrays from. A Workspace is
// reset (not reallocated) between calls via Reset, so a solver's outer
// loop can build one Workspace and reuse it across the whole run.
type Workspace struct {
	real []float64
	ints []int

	rpos int
	ipos int
}

// Requirements is the {int_words, real_words} pair spec §9 asks for: the
// maximum over all restart sub-phases (soft/hard locking, RR/QR
// projection, DTR, skew-projector maintenance) for the given Config.
type Requirements struct {
	RealWords int
	IntWords  int
}

// SizeRequirements computes the maximum scratch a Restart call can need for
// the given Config, independent of the current basis size (it uses
// MaxBasisSize as the worst case). Build a Workspace from the result once
// and reuse it for every restart in a solve.
func SizeRequirements(cfg *Config) Requirements {
	n := cfg.MaxBasisSize
	// Largest scratch matrices touched anywhere in the restart subsystem
	// are n x n (compute_submatrix, permutation buffers, the QR-update
	// rwork block in restart_qr). Two of those cover every call site with
	// room to spare; the permutation routines additionally need O(n)
	// scratch for hVals/hSVals/prevRitzVals reorderings.
	real := 2*n*n + 4*n
	ints := 3*n + cfg.NumEvals
	return Requirements{RealWords: real, IntWords: ints}
}

// NewWorkspace allocates a Workspace able to satisfy every Restart call for
// the given Config.
func NewWorkspace(cfg *Config) *Workspace {
	req := SizeRequirements(cfg)
	return &Workspace{
		real: make([]float64, req.RealWords),
		ints: make([]int, req.IntWords),
	}
}

// Reset makes the whole Workspace available for borrowing again. Call it
// at the start of every Restart call (Restart does this itself).
func (w *Workspace) Reset() {
	w.rpos = 0
	w.ipos = 0
}

// Floats borrows n consecutive float64s, zeroed, valid until the next Reset.
func (w *Workspace) Floats(n int) []float64 {
	if w.rpos+n > len(w.real) {
		w.real = append(w.real, make([]float64, w.rpos+n-len(w.real))...)
	}
	s := w.real[w.rpos : w.rpos+n]
	for i := range s {
		s[i] = 0
	}
	w.rpos += n
	return s
}

// Ints borrows n consecutive ints, valid until the next Reset.
func (w *Workspace) Ints(n int) []int {
	if w.ipos+n > len(w.ints) {
		w.ints = append(w.ints, make([]int, w.ipos+n-len(w.ints))...)
	}
	s := w.ints[w.ipos : w.ipos+n]
	w.ipos += n
	return s
}
