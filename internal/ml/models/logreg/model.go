package logreg

import (
	"encoding/json"
	"errors"
	"math"

	"enrollment-forecast/internal/ml/sparse"
)

type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

type Artifact struct {
	Width        int       `json:"width"`
	Indices      []int     `json:"indices"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	L2           float64   `json:"l2"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
}

type Model struct {
	width   int
	weights []float64
	bias    float64
	opts    TrainOptions
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.5,
		Epochs:       600,
		L2:           0.0001,
	}
}

// Train runs full-batch gradient descent. Inputs are expected to be scaled
// already, so no standardisation is applied and sparsity is preserved.
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
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions().Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = DefaultTrainOptions().L2
	}

	weights := make([]float64, width)
	grads := make([]float64, width)
	bias := 0.0
	n := float64(len(samples))

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grads {
			grads[j] = 0
		}
		gradBias := 0.0
		for i := range samples {
			p := sigmoid(samples[i].Dot(weights) + bias)
			err := p - labels[i]
			samples[i].AddScaledTo(grads, err)
			gradBias += err
		}
		for j := range weights {
			g := grads[j]/n + opts.L2*weights[j]
			weights[j] -= opts.LearningRate * g
		}
		bias -= opts.LearningRate * (gradBias / n)
	}

	return &Model{width: width, weights: weights, bias: bias, opts: opts}, nil
}

func (m *Model) PredictProb(sample sparse.Vector) float64 {
	if m == nil || len(m.weights) == 0 {
		return 0.5
	}
	return sigmoid(sample.Dot(m.weights) + m.bias)
}

func (m *Model) PredictBatch(samples []sparse.Vector) []float64 {
	probs := make([]float64, len(samples))
	for i := range samples {
		probs[i] = m.PredictProb(samples[i])
	}
	return probs
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	a := Artifact{
		Width:        m.width,
		Bias:         m.bias,
		L2:           m.opts.L2,
		LearningRate: m.opts.LearningRate,
		Epochs:       m.opts.Epochs,
	}
	for j, w := range m.weights {
		if w != 0 {
			a.Indices = append(a.Indices, j)
			a.Weights = append(a.Weights, w)
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
	weights := make([]float64, a.Width)
	for k, j := range a.Indices {
		if j < 0 || j >= a.Width {
			return nil, errors.New("invalid artifact")
		}
		weights[j] = a.Weights[k]
	}
	return &Model{
		width:   a.Width,
		weights: weights,
		bias:    a.Bias,
		opts:    TrainOptions{LearningRate: a.LearningRate, Epochs: a.Epochs, L2: a.L2},
	}, nil
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
