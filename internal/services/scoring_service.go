package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ailogmon/anomaly-engine/internal/engine"
	"github.com/ailogmon/anomaly-engine/internal/metrics"
	"github.com/ailogmon/anomaly-engine/internal/models"
	"github.com/ailogmon/anomaly-engine/internal/utils"
)

var (
	// ErrNotReady is returned by predict operations before any model has
	// been trained or loaded.
	ErrNotReady = errors.New("no model installed: train or load a model first")
	// ErrInvalidContamination is returned when contamination falls outside
	// [0, 0.5]. Rejected before any fitting work.
	ErrInvalidContamination = errors.New("contamination must be in [0, 0.5]")
	// ErrEmptyTrainingSet is returned when Train is called with no records.
	ErrEmptyTrainingSet = errors.New("training set is empty")
)

// ArtifactStore describes the persistence operations the service needs.
type ArtifactStore interface {
	Save(artifact *engine.Artifact) error
	Load() (*engine.Artifact, error)
	Path() string
}

// ScoringService owns the single active model artifact and orchestrates
// training, scoring, and persistence around it.
//
// Concurrency model: predictions and describes read the artifact through one
// atomic pointer; training builds a complete replacement off to the side and
// installs it with a single swap. Readers therefore always observe either
// the previous complete artifact or the new one, never a partial state.
// Trainings are serialized among themselves.
type ScoringService struct {
	logger  *slog.Logger
	store   ArtifactStore
	trainer *engine.Trainer

	current   atomic.Pointer[engine.Artifact]
	trainMu   sync.Mutex
	latencies *utils.LatencyTracker
}

// NewScoringService constructs the scoring facade.
func NewScoringService(logger *slog.Logger, store ArtifactStore, trainer *engine.Trainer) *ScoringService {
	if logger == nil {
		logger = slog.Default()
	}
	if trainer == nil {
		trainer = engine.NewTrainer(logger)
	}
	return &ScoringService{
		logger:    logger,
		store:     store,
		trainer:   trainer,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// LoadPersisted installs the artifact persisted by an earlier run, if one
// exists. Callers decide how to treat ErrArtifactNotFound at startup.
func (s *ScoringService) LoadPersisted(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("artifact store not configured")
	}

	artifact, err := s.store.Load()
	if err != nil {
		return err
	}

	s.current.Store(artifact)
	s.logger.Info("loaded persisted model",
		slog.String("version", artifact.Version),
		slog.Time("trained_at", artifact.TrainedAt))
	return nil
}

// Train fits a new model on the batch and installs it. Validation failures
// are reported before any fitting work. A failure mid-training leaves the
// previously installed artifact untouched. A failure persisting a freshly
// trained artifact is reported in the summary but does not roll back the
// in-memory model: serving availability wins over durability, and operators
// should treat the warning as a signal to retrain or fix storage.
func (s *ScoringService) Train(ctx context.Context, records []models.LogRecord, contamination float64) (models.TrainingSummary, error) {
	if contamination < 0 || contamination > 0.5 {
		return models.TrainingSummary{}, fmt.Errorf("%w: got %v", ErrInvalidContamination, contamination)
	}
	if len(records) == 0 {
		return models.TrainingSummary{}, ErrEmptyTrainingSet
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	runID := uuid.NewString()
	s.logger.Info("training model",
		slog.String("run_id", runID),
		slog.Int("samples", len(records)),
		slog.Float64("contamination", contamination))

	start := time.Now()
	artifact, err := s.trainer.Train(records, contamination)
	if err != nil {
		metrics.ObserveTraining(time.Since(start), metrics.OutcomeError)
		s.logger.Error("training failed", slog.String("run_id", runID), slog.Any("error", err))
		return models.TrainingSummary{}, fmt.Errorf("train model: %w", err)
	}

	s.current.Store(artifact)
	metrics.ObserveTraining(time.Since(start), metrics.OutcomeSuccess)

	summary := models.TrainingSummary{
		RunID:          runID,
		Version:        artifact.Version,
		SamplesTrained: len(records),
		Contamination:  contamination,
		TrainedAt:      artifact.TrainedAt,
		Persisted:      true,
	}

	if s.store == nil {
		summary.Persisted = false
		summary.PersistWarning = "artifact store not configured"
		return summary, nil
	}
	if err := s.store.Save(artifact); err != nil {
		summary.Persisted = false
		summary.PersistWarning = err.Error()
		s.logger.Warn("trained model could not be persisted; serving from memory only",
			slog.String("run_id", runID),
			slog.String("version", artifact.Version),
			slog.Any("error", err))
		return summary, nil
	}

	s.logger.Info("model persisted",
		slog.String("run_id", runID),
		slog.String("version", artifact.Version),
		slog.String("path", s.store.Path()))
	return summary, nil
}

// Predict scores one record against the current model.
func (s *ScoringService) Predict(rec models.LogRecord) (models.Prediction, error) {
	artifact := s.current.Load()
	if artifact == nil {
		return models.Prediction{}, ErrNotReady
	}

	start := time.Now()
	prediction, err := artifact.Predict(rec)
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePrediction(duration, metrics.OutcomeError)
		return models.Prediction{}, err
	}

	metrics.ObservePrediction(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Debug("prediction latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	return prediction, nil
}

// PredictBatch scores each record independently. A record that fails to
// encode carries its error in the matching item; the rest of the batch is
// unaffected. All items in one call are scored against the same artifact.
func (s *ScoringService) PredictBatch(records []models.LogRecord) ([]models.BatchItem, error) {
	artifact := s.current.Load()
	if artifact == nil {
		return nil, ErrNotReady
	}

	items := make([]models.BatchItem, len(records))
	for i, rec := range records {
		start := time.Now()
		prediction, err := artifact.Predict(rec)
		if err != nil {
			metrics.ObservePrediction(time.Since(start), metrics.OutcomeError)
			items[i] = models.BatchItem{Err: err}
			continue
		}
		metrics.ObservePrediction(time.Since(start), metrics.OutcomeSuccess)
		items[i] = models.BatchItem{Prediction: prediction}
	}
	return items, nil
}

// Describe reports the current model state. It never fails; an empty slot
// yields Ready=false.
func (s *ScoringService) Describe() models.ModelInfo {
	artifact := s.current.Load()
	if artifact == nil {
		return models.ModelInfo{}
	}
	return models.ModelInfo{
		Ready:         true,
		Version:       artifact.Version,
		TrainedAt:     artifact.TrainedAt,
		Contamination: artifact.Contamination,
	}
}
