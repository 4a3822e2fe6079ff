package sparse

import "testing"

func TestVectorOps(t *testing.T) {
	var v Vector
	v.Append(1, 2)
	v.Append(3, 0)
	v.Append(4, -1)
	if v.Len() != 2 {
		t.Fatalf("expected zero entries to be dropped, got %d entries", v.Len())
	}

	w := []float64{10, 20, 30, 40, 50}
	if got := v.Dot(w); got != 2*20-50 {
		t.Fatalf("unexpected dot product %.2f", got)
	}

	dst := make([]float64, 5)
	v.AddScaledTo(dst, 0.5)
	if dst[1] != 1 || dst[4] != -0.5 {
		t.Fatalf("unexpected scaled add result %v", dst)
	}

	dense := v.Dense(5)
	if dense[1] != 2 || dense[4] != -1 || dense[0] != 0 {
		t.Fatalf("unexpected dense expansion %v", dense)
	}
	if v.Get(4) != -1 || v.Get(2) != 0 {
		t.Fatalf("unexpected Get results")
	}
}

func TestCheckWidth(t *testing.T) {
	samples := []Vector{{Indices: []int{0, 3}, Values: []float64{1, 1}}}
	if err := CheckWidth(samples, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckWidth(samples, 3); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
