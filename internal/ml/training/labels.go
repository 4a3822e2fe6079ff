package training

import (
	"errors"

	"enrollment-forecast/internal/ml/encoding"
	"enrollment-forecast/internal/ml/features"
	"enrollment-forecast/internal/ml/sparse"
)

// ErrNoClassifierLabels is returned when the classifier policy is selected but
// no Train row carries an explicit opened outcome.
var ErrNoClassifierLabels = errors.New("no train rows carry an opened outcome")

// Dataset is a transformed Train set with its label column bound.
type Dataset struct {
	X     []sparse.Vector
	Y     []float64
	Width int
}

// AttachEnrollment applies the fitted transform to Train rows and binds the
// enrollment count as the regression label.
func AttachEnrollment(t *encoding.Transform, rows []features.TrainRow) (Dataset, error) {
	x, err := t.Apply(features.Rows(rows))
	if err != nil {
		return Dataset{}, err
	}
	y := make([]float64, len(rows))
	for i := range rows {
		y[i] = rows[i].Enrollment
	}
	return Dataset{X: x, Y: y, Width: t.Width()}, nil
}

// AttachOpened binds the explicit opened outcome as a 0/1 label. Rows without
// an outcome are left out; their count is returned.
func AttachOpened(t *encoding.Transform, rows []features.TrainRow) (Dataset, int, error) {
	labeled := make([]features.TrainRow, 0, len(rows))
	for i := range rows {
		if rows[i].Opened != nil {
			labeled = append(labeled, rows[i])
		}
	}
	skipped := len(rows) - len(labeled)
	if len(labeled) == 0 {
		return Dataset{Width: t.Width()}, skipped, ErrNoClassifierLabels
	}
	x, err := t.Apply(features.Rows(labeled))
	if err != nil {
		return Dataset{}, skipped, err
	}
	y := make([]float64, len(labeled))
	for i := range labeled {
		if *labeled[i].Opened {
			y[i] = 1
		}
	}
	return Dataset{X: x, Y: y, Width: t.Width()}, skipped, nil
}
