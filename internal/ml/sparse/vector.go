// Package sparse holds the feature vector representation shared by the
// encoder and the models. Hashed categorical blocks are mostly zero, so only
// non-zero entries are stored.
package sparse

import "errors"

// Vector is a sparse feature vector with strictly ascending indices.
type Vector struct {
	Indices []int     `json:"i"`
	Values  []float64 `json:"v"`
}

var ErrOutOfRange = errors.New("vector index out of range")

// Append adds an entry. Callers must append in ascending index order; zero
// values are dropped.
func (v *Vector) Append(idx int, val float64) {
	if val == 0 {
		return
	}
	v.Indices = append(v.Indices, idx)
	v.Values = append(v.Values, val)
}

func (v Vector) Len() int {
	return len(v.Indices)
}

// Dot returns the inner product with a dense weight vector. Entries beyond
// len(w) contribute nothing.
func (v Vector) Dot(w []float64) float64 {
	s := 0.0
	for k, idx := range v.Indices {
		if idx < len(w) {
			s += v.Values[k] * w[idx]
		}
	}
	return s
}

// AddScaledTo performs dst += a*v.
func (v Vector) AddScaledTo(dst []float64, a float64) {
	for k, idx := range v.Indices {
		if idx < len(dst) {
			dst[idx] += a * v.Values[k]
		}
	}
}

// Dense expands the vector to a width-length slice.
func (v Vector) Dense(width int) []float64 {
	out := make([]float64, width)
	for k, idx := range v.Indices {
		if idx < width {
			out[idx] = v.Values[k]
		}
	}
	return out
}

// Get returns the value at idx.
func (v Vector) Get(idx int) float64 {
	for k, i := range v.Indices {
		if i == idx {
			return v.Values[k]
		}
		if i > idx {
			break
		}
	}
	return 0
}

// CheckWidth validates that every sample fits in width columns.
func CheckWidth(samples []Vector, width int) error {
	for i := range samples {
		idx := samples[i].Indices
		if len(idx) > 0 && (idx[0] < 0 || idx[len(idx)-1] >= width) {
			return ErrOutOfRange
		}
	}
	return nil
}
