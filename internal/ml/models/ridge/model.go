package ridge

import (
	"encoding/json"
	"errors"
	"math"

	"enrollment-forecast/internal/ml/sparse"
)

type TrainOptions struct {
	Lambda        float64
	MaxIterations int
	Tolerance     float64
}

type Artifact struct {
	Width      int       `json:"width"`
	Intercept  float64   `json:"intercept"`
	Indices    []int     `json:"indices"`
	Weights    []float64 `json:"weights"`
	Lambda     float64   `json:"lambda"`
	Iterations int       `json:"iterations"`
}

type Model struct {
	width      int
	intercept  float64
	weights    []float64
	lambda     float64
	iterations int
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Lambda:        1e-3,
		MaxIterations: 500,
		Tolerance:     1e-10,
	}
}

// Train fits y = b + w·x minimising ||y - b - Xw||² + λ||w||² with an
// unpenalised intercept. Columns are centred implicitly so X stays sparse, and
// the normal equations are solved with conjugate gradients.
func Train(samples []sparse.Vector, labels []float64, width int, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	if width <= 0 {
		return nil, errors.New("empty feature vectors")
	}
	if err := sparse.CheckWidth(samples, width); err != nil {
		return nil, err
	}
	if opts.Lambda <= 0 {
		opts.Lambda = DefaultTrainOptions().Lambda
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultTrainOptions().MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTrainOptions().Tolerance
	}

	n := float64(len(samples))
	yMean := 0.0
	for _, y := range labels {
		yMean += y
	}
	yMean /= n

	mu := make([]float64, width)
	for i := range samples {
		samples[i].AddScaledTo(mu, 1/n)
	}

	// b = Xcᵀ(y - ȳ); the centring term vanishes because Σ(y - ȳ) = 0.
	b := make([]float64, width)
	for i := range samples {
		samples[i].AddScaledTo(b, labels[i]-yMean)
	}

	w := make([]float64, width)
	r := append([]float64(nil), b...)
	p := append([]float64(nil), b...)
	ap := make([]float64, width)
	xp := make([]float64, len(samples))
	rs := dot(r, r)
	stop := opts.Tolerance * math.Max(math.Sqrt(rs), 1)

	iterations := 0
	for iterations < opts.MaxIterations && math.Sqrt(rs) > stop {
		// ap = XcᵀXc p + λp with Xc p = Xp - (μ·p)1 and Xcᵀu = Xᵀu - μΣu.
		muP := dot(mu, p)
		sum := 0.0
		for i := range samples {
			xp[i] = samples[i].Dot(p) - muP
			sum += xp[i]
		}
		for j := range ap {
			ap[j] = opts.Lambda*p[j] - mu[j]*sum
		}
		for i := range samples {
			samples[i].AddScaledTo(ap, xp[i])
		}
		pap := dot(p, ap)
		if pap <= 0 {
			break
		}
		alpha := rs / pap
		for j := range w {
			w[j] += alpha * p[j]
			r[j] -= alpha * ap[j]
		}
		rsNew := dot(r, r)
		beta := rsNew / rs
		for j := range p {
			p[j] = r[j] + beta*p[j]
		}
		rs = rsNew
		iterations++
	}

	return &Model{
		width:      width,
		intercept:  yMean - dot(mu, w),
		weights:    w,
		lambda:     opts.Lambda,
		iterations: iterations,
	}, nil
}

func (m *Model) Predict(sample sparse.Vector) float64 {
	if m == nil {
		return 0
	}
	return m.intercept + sample.Dot(m.weights)
}

func (m *Model) PredictBatch(samples []sparse.Vector) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = m.Predict(samples[i])
	}
	return out
}

func (m *Model) Width() int {
	if m == nil {
		return 0
	}
	return m.width
}

func (m *Model) Iterations() int {
	if m == nil {
		return 0
	}
	return m.iterations
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	a := Artifact{
		Width:      m.width,
		Intercept:  m.intercept,
		Lambda:     m.lambda,
		Iterations: m.iterations,
	}
	for j, v := range m.weights {
		if v != 0 {
			a.Indices = append(a.Indices, j)
			a.Weights = append(a.Weights, v)
		}
	}
	return json.Marshal(a)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if a.Width <= 0 || len(a.Indices) != len(a.Weights) {
		return nil, errors.New("invalid artifact")
	}
	w := make([]float64, a.Width)
	for k, j := range a.Indices {
		if j < 0 || j >= a.Width {
			return nil, errors.New("invalid artifact")
		}
		w[j] = a.Weights[k]
	}
	return &Model{
		width:      a.Width,
		intercept:  a.Intercept,
		weights:    w,
		lambda:     a.Lambda,
		iterations: a.Iterations,
	}, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
