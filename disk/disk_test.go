package disk

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()

	v := mat.NewDense(3, 2, []float64{1, 0, 0, 2, 3, 0})
	if err := s.Save(0, v); err != nil {
		t.Fatalf("%+v", err)
	}

	got, err := s.Load(0, 3, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !mat.Equal(got, v) {
		t.Fatalf("Load = %v, want %v", mat.Formatted(got), mat.Formatted(v))
	}
}

func TestStoreSaveOverwritesSameIteration(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()

	first := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	second := mat.NewDense(2, 2, []float64{5, 0, 0, 6})
	if err := s.Save(1, first); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Save(1, second); err != nil {
		t.Fatalf("%+v", err)
	}

	got, err := s.Load(1, 2, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !mat.Equal(got, second) {
		t.Fatalf("Load = %v, want %v (overwritten)", mat.Formatted(got), mat.Formatted(second))
	}
}

func TestStoreLatestIter(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()

	if iter, err := s.LatestIter(); err != nil || iter != -1 {
		t.Fatalf("LatestIter on empty store = (%d, %v), want (-1, nil)", iter, err)
	}

	v := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	for _, iter := range []int{0, 3, 1} {
		if err := s.Save(iter, v); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	if iter, err := s.LatestIter(); err != nil || iter != 3 {
		t.Fatalf("LatestIter = (%d, %v), want (3, nil)", iter, err)
	}
}

func TestStoreRemoveDeletesFile(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "checkpoint.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Remove did not delete %s: %v", path, err)
	}
}
