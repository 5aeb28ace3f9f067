package models

import "time"

// Prediction is the calibrated scoring result for a single record.
//
// AnomalyScore is the calibrated probability in [0,1] (higher = more
// anomalous). Confidence is the distance from the 0.5 decision midpoint
// rescaled to [0,1]; it is a design choice, not a statistical confidence
// interval. RawScore keeps the isolation-forest convention: lower = more
// anomalous.
type Prediction struct {
	IsAnomaly    bool
	AnomalyScore float64
	Confidence   float64
	RawScore     float64
	ModelVersion string
}

// BatchItem carries the per-record outcome of a batch prediction. Exactly
// one of Prediction or Err is meaningful.
type BatchItem struct {
	Prediction Prediction
	Err        error
}

// TrainingSummary reports the outcome of a completed training run.
// Persisted is false when the freshly trained model is serving from memory
// but could not be written to durable storage.
type TrainingSummary struct {
	RunID          string
	Version        string
	SamplesTrained int
	Contamination  float64
	TrainedAt      time.Time
	Persisted      bool
	PersistWarning string
}

// ModelInfo describes the currently installed model, if any.
type ModelInfo struct {
	Ready         bool
	Version       string
	TrainedAt     time.Time
	Contamination float64
}
