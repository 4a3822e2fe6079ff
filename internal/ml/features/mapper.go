package features

import (
	"math"

	"enrollment-forecast/internal/domain"
)

// Row is the fixed-shape feature form of an offering. Every schema column is
// present; NULLs have already been substituted.
type Row struct {
	Key         domain.OfferingKey
	Categorical map[string]string
	Numeric     map[string]float64
}

// TrainRow is a Row plus its outcome. The outcome never enters the encoded
// feature vector; it is bound as a label right before training.
type TrainRow struct {
	Row
	Enrollment float64
	Opened     *bool
}

// FromPredict maps a candidate offering. It never fails.
func FromPredict(o domain.PredictOffering) Row {
	return fromOffering(&o.Offering)
}

// FromTrain maps a historical offering and derives its labels.
func FromTrain(o domain.TrainOffering) TrainRow {
	row := TrainRow{Row: fromOffering(&o.Offering)}
	if o.Enrollment != nil {
		row.Enrollment = float64(*o.Enrollment)
	}
	if o.Opened != nil {
		opened := *o.Opened != 0
		row.Opened = &opened
	}
	return row
}

func FromPredictAll(in []domain.PredictOffering) []Row {
	out := make([]Row, len(in))
	for i := range in {
		out[i] = FromPredict(in[i])
	}
	return out
}

func FromTrainAll(in []domain.TrainOffering) []TrainRow {
	out := make([]TrainRow, len(in))
	for i := range in {
		out[i] = FromTrain(in[i])
	}
	return out
}

// Rows strips the labels from Train rows.
func Rows(train []TrainRow) []Row {
	out := make([]Row, len(train))
	for i := range train {
		out[i] = train[i].Row
	}
	return out
}

func fromOffering(o *domain.Offering) Row {
	row := Row{
		Categorical: make(map[string]string, len(categoricalColumns)),
		Numeric:     make(map[string]float64, len(numericColumns)),
	}
	for _, c := range categoricalColumns {
		row.Categorical[c.name] = textOrUnknown(c.get(o))
	}
	for _, c := range numericColumns {
		row.Numeric[c.name] = floatOrZero(c.get(o))
	}
	row.Key = domain.OfferingKey{
		Period:     row.Categorical["per_codigo"],
		Module:     row.Categorical["mod_codigo"],
		Campus:     row.Categorical["cam_codigo"],
		Section:    row.Categorical["sec_codigo"],
		Instructor: row.Categorical["doc_codigo"],
	}
	return row
}

func textOrUnknown(v *string) string {
	if v == nil {
		return Unknown
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
