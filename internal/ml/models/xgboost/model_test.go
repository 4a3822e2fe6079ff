package xgboost

import (
	"testing"

	"enrollment-forecast/internal/ml/sparse"
)

func TestTrainPredictAndRoundTrip(t *testing.T) {
	samples, labels := dataset()
	model, err := Train(samples, labels, 3, []string{"closed", "open", "requests"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pLow := model.PredictProb(sparse.Vector{Indices: []int{0, 2}, Values: []float64{1, 0.1}})
	pHigh := model.PredictProb(sparse.Vector{Indices: []int{1, 2}, Values: []float64{1, 0.9}})
	if pLow < 0 || pLow > 1 || pHigh < 0 || pHigh > 1 {
		t.Fatalf("expected probabilities in [0,1], got low=%.4f high=%.4f", pLow, pHigh)
	}
	if pHigh <= pLow {
		t.Fatalf("expected positive sample probability > negative sample probability, got %.4f <= %.4f", pHigh, pLow)
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	pRoundTrip := restored.PredictProb(sparse.Vector{Indices: []int{1, 2}, Values: []float64{1, 0.9}})
	if pRoundTrip < 0 || pRoundTrip > 1 {
		t.Fatalf("expected roundtrip probability in [0,1], got %.4f", pRoundTrip)
	}
}

func TestTrainRejectsWideInput(t *testing.T) {
	samples, labels := dataset()
	if _, err := Train(samples, labels, MaxDenseWidth+1, nil, DefaultTrainOptions()); err == nil {
		t.Fatal("expected width limit error")
	}
}

func TestTrainRequiresTwoClasses(t *testing.T) {
	samples, _ := dataset()
	labels := make([]float64, len(samples))
	if _, err := Train(samples, labels, 3, nil, DefaultTrainOptions()); err == nil {
		t.Fatal("expected single-class error")
	}
}

func dataset() ([]sparse.Vector, []float64) {
	samples := make([]sparse.Vector, 0, 120)
	labels := make([]float64, 0, 120)
	for i := 0; i < 60; i++ {
		samples = append(samples, sparse.Vector{Indices: []int{0, 2}, Values: []float64{1, 0.05 + float64(i)/200}})
		labels = append(labels, 0)
	}
	for i := 0; i < 60; i++ {
		samples = append(samples, sparse.Vector{Indices: []int{1, 2}, Values: []float64{1, 0.6 + float64(i)/200}})
		labels = append(labels, 1)
	}
	return samples, labels
}
