// Package encoding fits and replays the feature transform: categorical
// hashing into per-column indicator blocks followed by min-max scaled
// numeric columns.
package encoding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"enrollment-forecast/internal/ml/features"
	"enrollment-forecast/internal/ml/sparse"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/floats"
)

const (
	transformVersion = "v1"

	DefaultHashBits = 15
	MinHashBits     = 1
	MaxHashBits     = 24
)

var ErrInvalidHashBits = fmt.Errorf("hash bits must be within [%d, %d]", MinHashBits, MaxHashBits)

type Options struct {
	HashBits int
}

// NumericRange is the fitted (min, max) of one numeric column.
type NumericRange struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type snapshot struct {
	Version     string         `json:"version"`
	FeatureSpec string         `json:"feature_spec"`
	HashBits    int            `json:"hash_bits"`
	Categorical []string       `json:"categorical"`
	Numeric     []NumericRange `json:"numeric"`
}

// Transform holds parameters learned from Train rows. It is immutable once
// built and is applied unchanged to every later dataset.
type Transform struct {
	hashBits    int
	categorical []string
	numeric     []NumericRange
}

// Fit learns the transform from Train rows only. Labels are not read.
func Fit(schema features.Schema, rows []features.TrainRow, opts Options) (*Transform, error) {
	if opts.HashBits == 0 {
		opts.HashBits = DefaultHashBits
	}
	if opts.HashBits < MinHashBits || opts.HashBits > MaxHashBits {
		return nil, ErrInvalidHashBits
	}
	if len(schema.Categorical) == 0 && len(schema.Numeric) == 0 {
		return nil, errors.New("empty feature schema")
	}

	t := &Transform{
		hashBits:    opts.HashBits,
		categorical: append([]string(nil), schema.Categorical...),
		numeric:     make([]NumericRange, len(schema.Numeric)),
	}
	column := make([]float64, len(rows))
	for j, name := range schema.Numeric {
		for i := range rows {
			v, ok := rows[i].Numeric[name]
			if !ok {
				return nil, &features.SchemaMismatchError{Dataset: "train", Row: i, Missing: []string{name}}
			}
			column[i] = v
		}
		r := NumericRange{Column: name}
		if len(column) > 0 {
			r.Min = floats.Min(column)
			r.Max = floats.Max(column)
		}
		t.numeric[j] = r
	}
	for i := range rows {
		for _, name := range schema.Categorical {
			if _, ok := rows[i].Categorical[name]; !ok {
				return nil, &features.SchemaMismatchError{Dataset: "train", Row: i, Missing: []string{name}}
			}
		}
	}
	return t, nil
}

func (t *Transform) HashBits() int {
	return t.hashBits
}

// Width is the length of every encoded vector.
func (t *Transform) Width() int {
	return len(t.categorical)<<t.hashBits + len(t.numeric)
}

// Schema returns the columns the transform was fitted on.
func (t *Transform) Schema() features.Schema {
	s := features.Schema{
		Categorical: append([]string(nil), t.categorical...),
		Numeric:     make([]string, len(t.numeric)),
	}
	for i, r := range t.numeric {
		s.Numeric[i] = r.Column
	}
	return s
}

// Ranges returns a copy of the fitted numeric ranges.
func (t *Transform) Ranges() []NumericRange {
	return append([]NumericRange(nil), t.numeric...)
}

// CheckSchema fails with *features.SchemaMismatchError when the transform was
// fitted on a different column set.
func (t *Transform) CheckSchema(schema features.Schema) error {
	return features.CompareSchema("transform", schema, t.Schema())
}

// Apply encodes rows with the fitted parameters.
func (t *Transform) Apply(rows []features.Row) ([]sparse.Vector, error) {
	out := make([]sparse.Vector, len(rows))
	for i := range rows {
		v, err := t.encode(rows[i])
		if err != nil {
			if mismatch := (*features.SchemaMismatchError)(nil); errors.As(err, &mismatch) {
				mismatch.Row = i
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *Transform) encode(row features.Row) (sparse.Vector, error) {
	v := sparse.Vector{
		Indices: make([]int, 0, len(t.categorical)+len(t.numeric)),
		Values:  make([]float64, 0, len(t.categorical)+len(t.numeric)),
	}
	for k, name := range t.categorical {
		value, ok := row.Categorical[name]
		if !ok {
			return sparse.Vector{}, &features.SchemaMismatchError{Dataset: "apply", Missing: []string{name}}
		}
		v.Append(k<<t.hashBits+t.bucket(name, value), 1)
	}
	offset := len(t.categorical) << t.hashBits
	for j, r := range t.numeric {
		x, ok := row.Numeric[r.Column]
		if !ok {
			return sparse.Vector{}, &features.SchemaMismatchError{Dataset: "apply", Missing: []string{r.Column}}
		}
		v.Append(offset+j, scale(x, r))
	}
	return v, nil
}

func (t *Transform) bucket(column, value string) int {
	d := xxhash.New()
	_, _ = d.WriteString(column)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(value)
	return int(d.Sum64() & (1<<uint(t.hashBits) - 1))
}

func scale(x float64, r NumericRange) float64 {
	span := r.Max - r.Min
	if span == 0 {
		return 0
	}
	return (x - r.Min) / span
}

// FeatureNames names every dense column. Only practical for small hash widths.
func (t *Transform) FeatureNames() []string {
	names := make([]string, 0, t.Width())
	buckets := 1 << t.hashBits
	for _, name := range t.categorical {
		for b := 0; b < buckets; b++ {
			names = append(names, name+"#"+strconv.Itoa(b))
		}
	}
	for _, r := range t.numeric {
		names = append(names, r.Column)
	}
	return names
}

func (t *Transform) MarshalBinary() ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil transform")
	}
	return json.Marshal(snapshot{
		Version:     transformVersion,
		FeatureSpec: features.FeatureSpecVersion(),
		HashBits:    t.hashBits,
		Categorical: t.categorical,
		Numeric:     t.numeric,
	})
}

// UnmarshalBinary restores a transform written by MarshalBinary.
func UnmarshalBinary(data []byte) (*Transform, error) {
	if len(data) == 0 {
		return nil, errors.New("empty transform snapshot")
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != transformVersion {
		return nil, fmt.Errorf("unsupported transform version %q", s.Version)
	}
	if s.FeatureSpec != features.FeatureSpecVersion() {
		return nil, fmt.Errorf("transform built for feature spec %q, want %q", s.FeatureSpec, features.FeatureSpecVersion())
	}
	if s.HashBits < MinHashBits || s.HashBits > MaxHashBits {
		return nil, ErrInvalidHashBits
	}
	return &Transform{hashBits: s.HashBits, categorical: s.Categorical, numeric: s.Numeric}, nil
}
