package features

import (
	"fmt"
	"sort"
	"strings"

	"enrollment-forecast/internal/domain"
)

const (
	featureSpecVersion = "v1"

	// Unknown replaces NULL categorical values.
	Unknown = "UNKNOWN"
)

type categoricalColumn struct {
	name string
	get  func(*domain.Offering) *string
}

type numericColumn struct {
	name string
	get  func(*domain.Offering) *float64
}

var categoricalColumns = []categoricalColumn{
	{"per_codigo", func(o *domain.Offering) *string { return o.Period }},
	{"mod_codigo", func(o *domain.Offering) *string { return o.Module }},
	{"cam_codigo", func(o *domain.Offering) *string { return o.Campus }},
	{"sec_codigo", func(o *domain.Offering) *string { return o.Section }},
	{"doc_codigo", func(o *domain.Offering) *string { return o.Instructor }},
	{"ofe_modalidad_programa", func(o *domain.Offering) *string { return o.ModalityProgram }},
}

var numericColumns = []numericColumn{
	{"ofe_modulo", func(o *domain.Offering) *float64 { return o.ModuleNumber }},
	{"ofe_semestre", func(o *domain.Offering) *float64 { return o.Semester }},
	{"ofe_anio", func(o *domain.Offering) *float64 { return o.Year }},
	{"ofe_nivel", func(o *domain.Offering) *float64 { return o.Level }},
	{"ofe_presencialidad_obligatoria", func(o *domain.Offering) *float64 { return o.MandatoryAttendance }},
	{"ofe_duracion_clase", func(o *domain.Offering) *float64 { return o.ClassDuration }},
	{"ofe_es_core", func(o *domain.Offering) *float64 { return o.IsCore }},
	{"ofe_dias_habiles", func(o *domain.Offering) *float64 { return o.BusinessDays }},
	{"ofe_hora_min", func(o *domain.Offering) *float64 { return o.MinimumHour }},
	{"pre_solicitudes", func(o *domain.Offering) *float64 { return o.Requests }},
}

// Schema declares the feature columns and their order. Categorical columns
// always precede numeric columns in encoded vectors.
type Schema struct {
	Categorical []string `json:"categorical"`
	Numeric     []string `json:"numeric"`
}

func FeatureSpecVersion() string {
	return featureSpecVersion
}

// DefaultSchema returns the column set shared by Train and Predict rows.
func DefaultSchema() Schema {
	s := Schema{
		Categorical: make([]string, len(categoricalColumns)),
		Numeric:     make([]string, len(numericColumns)),
	}
	for i, c := range categoricalColumns {
		s.Categorical[i] = c.name
	}
	for i, c := range numericColumns {
		s.Numeric[i] = c.name
	}
	return s
}

// Equal reports whether both schemas list the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	return equalStrings(s.Categorical, other.Categorical) && equalStrings(s.Numeric, other.Numeric)
}

// SchemaMismatchError reports a feature row or transform whose columns differ
// from the declared schema.
type SchemaMismatchError struct {
	Dataset string
	Row     int
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema mismatch in %s", e.Dataset)
	if e.Row >= 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ": unexpected %s", strings.Join(e.Extra, ","))
	}
	if len(e.Missing) == 0 && len(e.Extra) == 0 {
		b.WriteString(": column order differs")
	}
	return b.String()
}

// CheckParity verifies that every Train and Predict row carries exactly the
// schema's columns. It must run before any transform is fitted.
func CheckParity(schema Schema, train []TrainRow, predict []Row) error {
	for i := range train {
		if err := checkRow(schema, "train", i, train[i].Row); err != nil {
			return err
		}
	}
	for i := range predict {
		if err := checkRow(schema, "predict", i, predict[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkRow(schema Schema, dataset string, idx int, row Row) error {
	missing, extra := diffColumns(schema.Categorical, keysOf(row.Categorical))
	m2, e2 := diffColumns(schema.Numeric, keysOfFloat(row.Numeric))
	missing = append(missing, m2...)
	extra = append(extra, e2...)
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return &SchemaMismatchError{Dataset: dataset, Row: idx, Missing: missing, Extra: extra}
}

// CompareSchema returns a *SchemaMismatchError when got differs from want in
// membership or order.
func CompareSchema(dataset string, want, got Schema) error {
	if want.Equal(got) {
		return nil
	}
	missing, extra := diffColumns(want.Categorical, got.Categorical)
	m2, e2 := diffColumns(want.Numeric, got.Numeric)
	return &SchemaMismatchError{
		Dataset: dataset,
		Row:     -1,
		Missing: append(missing, m2...),
		Extra:   append(extra, e2...),
	}
}

func diffColumns(want, got []string) (missing, extra []string) {
	have := make(map[string]struct{}, len(got))
	for _, c := range got {
		have[c] = struct{}{}
	}
	wanted := make(map[string]struct{}, len(want))
	for _, c := range want {
		wanted[c] = struct{}{}
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	for _, c := range got {
		if _, ok := wanted[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return missing, extra
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfFloat(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
