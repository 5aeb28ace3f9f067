package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ailogmon/anomaly-engine/internal/iforest"
	"github.com/ailogmon/anomaly-engine/internal/models"
)

// Version constants for artifact stamping. The timestamp component carries
// the training time; a per-process sequence suffix keeps versions distinct
// when two trainings land in the same second.
const (
	versionMajor = 1
	versionMinor = 0

	versionTimeLayout = "20060102150405"
)

// Trainer builds model artifacts from raw log records: encode every record,
// fit the scaler, fit the forest on the scaled batch, stamp version and
// timestamp.
type Trainer struct {
	logger     *slog.Logger
	trees      int
	sampleSize int
	seed       int64
	now        func() time.Time

	mu        sync.Mutex
	lastStamp string
	sequence  int
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithForestSize sets the ensemble size and per-tree subsample size.
func WithForestSize(trees, sampleSize int) TrainerOption {
	return func(t *Trainer) {
		if trees > 0 {
			t.trees = trees
		}
		if sampleSize > 0 {
			t.sampleSize = sampleSize
		}
	}
}

// WithSeed pins the forest construction seed so identical batches train to
// identical classification decisions.
func WithSeed(seed int64) TrainerOption {
	return func(t *Trainer) {
		t.seed = seed
	}
}

// WithClock overrides the training timestamp source (tests).
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrainer constructs a trainer with the standard forest defaults
// (100 trees, 256-sample subsampling).
func NewTrainer(logger *slog.Logger, opts ...TrainerOption) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trainer{
		logger:     logger,
		trees:      100,
		sampleSize: 256,
		seed:       42,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits a complete artifact from the batch. Contamination bounds and
// batch emptiness are validated by the caller before any encoding work; a
// record that fails to encode aborts the whole run so a half-fitted model is
// never produced.
func (t *Trainer) Train(records []models.LogRecord, contamination float64) (*Artifact, error) {
	matrix := make([][]float64, len(records))
	for i, rec := range records {
		vec, err := Encode(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		matrix[i] = vec
	}

	scaler, err := FitScaler(matrix)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := scaler.TransformBatch(matrix)
	if err != nil {
		return nil, fmt.Errorf("scale training batch: %w", err)
	}

	forest := iforest.New(
		iforest.WithTrees(t.trees),
		iforest.WithSampleSize(t.sampleSize),
		iforest.WithSeed(t.seed),
	)
	if err := forest.Fit(scaled, contamination); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	trainedAt := t.now().UTC()
	version := t.stampVersion(trainedAt)

	t.logger.Info("model trained",
		slog.String("version", version),
		slog.Int("samples", len(records)),
		slog.Float64("contamination", contamination))

	return &Artifact{
		Version:       version,
		TrainedAt:     trainedAt,
		Contamination: contamination,
		FeatureNames:  FeatureNames(),
		Scaler:        scaler,
		Forest:        forest,
	}, nil
}

// stampVersion produces "<major>.<minor>.<compact timestamp>", suffixed with
// "-<n>" on same-second retraining.
func (t *Trainer) stampVersion(trainedAt time.Time) string {
	compact := trainedAt.Format(versionTimeLayout)

	t.mu.Lock()
	defer t.mu.Unlock()

	if compact == t.lastStamp {
		t.sequence++
		return fmt.Sprintf("%d.%d.%s-%d", versionMajor, versionMinor, compact, t.sequence)
	}
	t.lastStamp = compact
	t.sequence = 0
	return fmt.Sprintf("%d.%d.%s", versionMajor, versionMinor, compact)
}
