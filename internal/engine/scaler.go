package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrScalerNotFitted is returned when Transform is called before Fit.
var ErrScalerNotFitted = errors.New("scaler not fitted")

// Scaler standardizes feature vectors using per-column mean and standard
// deviation learned from a training batch. Fields are exported for gob
// serialization; a Scaler is immutable once fitted.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column statistics over the batch. Standard
// deviation uses the population divisor.
func FitScaler(batch [][]float64) (*Scaler, error) {
	if len(batch) == 0 {
		return nil, errors.New("scaler: empty batch")
	}

	width := len(batch[0])
	mean := make([]float64, width)
	std := make([]float64, width)

	for i, row := range batch {
		if len(row) != width {
			return nil, fmt.Errorf("scaler: row %d has %d columns, want %d", i, len(row), width)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(batch))
	for j := range mean {
		mean[j] /= n
	}

	for _, row := range batch {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}

	return &Scaler{Mean: mean, Std: std}, nil
}

// Transform standardizes one vector. A zero-variance column transforms to 0
// so scoring stays defined on degenerate training sets. Identical inputs
// always map to identical outputs regardless of call order.
func (s *Scaler) Transform(vec []float64) ([]float64, error) {
	if s == nil || len(s.Mean) == 0 {
		return nil, ErrScalerNotFitted
	}
	if len(vec) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: vector has %d columns, want %d", len(vec), len(s.Mean))
	}

	out := make([]float64, len(vec))
	for j, v := range vec {
		if s.Std[j] == 0 {
			out[j] = 0
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformBatch standardizes every vector in the batch.
func (s *Scaler) TransformBatch(batch [][]float64) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i, vec := range batch {
		scaled, err := s.Transform(vec)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
