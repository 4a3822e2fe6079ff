// Package scoring turns model outputs into an enrollment estimate plus an
// open/close decision with a confidence.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"enrollment-forecast/internal/ml/sparse"
)

type Policy string

const (
	// PolicyThreshold derives the decision from the regression output alone.
	PolicyThreshold Policy = "threshold"
	// PolicyClassifier takes the decision from a classifier fitted on the
	// explicit opened outcome.
	PolicyClassifier Policy = "classifier"
)

const (
	DefaultOpenThreshold = 12.0
	DefaultSigma         = 5.0
)

func ParsePolicy(v string) (Policy, error) {
	switch Policy(v) {
	case PolicyThreshold, PolicyClassifier:
		return Policy(v), nil
	case "":
		return PolicyThreshold, nil
	}
	return "", fmt.Errorf("unknown decision policy %q", v)
}

// Rule is the regression-only decision rule.
type Rule struct {
	OpenThreshold float64
	Sigma         float64
}

func DefaultRule() Rule {
	return Rule{OpenThreshold: DefaultOpenThreshold, Sigma: DefaultSigma}
}

func (r Rule) Validate() error {
	if r.Sigma <= 0 || math.IsNaN(r.Sigma) || math.IsInf(r.Sigma, 0) {
		return errors.New("sigma must be a positive finite number")
	}
	if math.IsNaN(r.OpenThreshold) || math.IsInf(r.OpenThreshold, 0) {
		return errors.New("open threshold must be finite")
	}
	return nil
}

type Decision struct {
	Enrollment  float64
	Open        int
	Probability float64
}

// Decide opens the offering when enrollment reaches the threshold and reports
// sigmoid((enrollment - threshold) / sigma) as its confidence.
func (r Rule) Decide(enrollment float64) Decision {
	d := Decision{Enrollment: enrollment}
	if enrollment >= r.OpenThreshold {
		d.Open = 1
	}
	d.Probability = Sigmoid((enrollment - r.OpenThreshold) / r.Sigma)
	return d
}

// FromClassifier builds a decision from a classifier probability.
func FromClassifier(enrollment, prob float64) Decision {
	p := Clamp01(prob)
	d := Decision{Enrollment: enrollment, Probability: p}
	if p >= 0.5 {
		d.Open = 1
	}
	return d
}

func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Regressor interface {
	Predict(sample sparse.Vector) float64
}

type Classifier interface {
	PredictProb(sample sparse.Vector) float64
}

// Scorer applies fitted models to transformed Predict vectors. A nil
// classifier selects the threshold rule.
type Scorer struct {
	rule       Rule
	regressor  Regressor
	classifier Classifier
}

func NewScorer(rule Rule, regressor Regressor, classifier Classifier) *Scorer {
	return &Scorer{rule: rule, regressor: regressor, classifier: classifier}
}

func (s *Scorer) Score(samples []sparse.Vector) []Decision {
	out := make([]Decision, len(samples))
	for i := range samples {
		enrollment := s.regressor.Predict(samples[i])
		if s.classifier != nil {
			out[i] = FromClassifier(enrollment, s.classifier.PredictProb(samples[i]))
			continue
		}
		out[i] = s.rule.Decide(enrollment)
	}
	return out
}
