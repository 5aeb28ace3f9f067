package engine

import (
	"errors"
	"time"

	"github.com/ailogmon/anomaly-engine/internal/iforest"
	"github.com/ailogmon/anomaly-engine/internal/models"
)

// Artifact bundles everything needed to score a record: the fitted scaler,
// the trained forest, the feature order they were fitted against, and the
// training metadata. Artifacts are built off to the side during training and
// installed whole; they are never mutated afterwards.
type Artifact struct {
	Version       string
	TrainedAt     time.Time
	Contamination float64
	FeatureNames  []string
	Scaler        *Scaler
	Forest        *iforest.Forest
}

// Valid reports whether the artifact carries a fitted scaler and forest.
// Used to reject truncated or hand-edited bundles on load.
func (a *Artifact) Valid() bool {
	return a != nil && a.Scaler != nil && len(a.Scaler.Mean) > 0 && a.Forest != nil && a.Forest.Fitted()
}

// Predict scores one record against this artifact: encode, scale, score,
// classify, calibrate.
func (a *Artifact) Predict(rec models.LogRecord) (models.Prediction, error) {
	if !a.Valid() {
		return models.Prediction{}, errors.New("artifact incomplete")
	}

	vec, err := Encode(rec)
	if err != nil {
		return models.Prediction{}, err
	}
	scaled, err := a.Scaler.Transform(vec)
	if err != nil {
		return models.Prediction{}, err
	}

	raw, err := a.Forest.Score(scaled)
	if err != nil {
		return models.Prediction{}, err
	}
	isAnomaly, err := a.Forest.Classify(scaled)
	if err != nil {
		return models.Prediction{}, err
	}

	probability, confidence := Calibrate(raw)

	return models.Prediction{
		IsAnomaly:    isAnomaly,
		AnomalyScore: probability,
		Confidence:   confidence,
		RawScore:     raw,
		ModelVersion: a.Version,
	}, nil
}
