package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ailogmon/anomaly-engine/internal/engine"
	"github.com/ailogmon/anomaly-engine/internal/models"
	"github.com/ailogmon/anomaly-engine/internal/services"
	"github.com/ailogmon/anomaly-engine/internal/utils"
)

// ServiceName identifies this process in health payloads.
const ServiceName = "anomaly-engine"

// ScoringService describes the engine operations the transport exposes.
type ScoringService interface {
	Train(ctx context.Context, records []models.LogRecord, contamination float64) (models.TrainingSummary, error)
	Predict(rec models.LogRecord) (models.Prediction, error)
	PredictBatch(records []models.LogRecord) ([]models.BatchItem, error)
	Describe() models.ModelInfo
}

// Handler maps the HTTP surface onto the scoring service.
type Handler struct {
	logger  *slog.Logger
	service ScoringService
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, service ScoringService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// LogFeatures is the wire shape of a log record.
type LogFeatures struct {
	MessageLength      int            `json:"message_length"`
	Level              string         `json:"level"`
	Service            string         `json:"service"`
	HasException       bool           `json:"has_exception"`
	HasTimeout         bool           `json:"has_timeout"`
	HasConnectionError bool           `json:"has_connection_error"`
	Timestamp          string         `json:"timestamp,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// PredictRequest asks for a single prediction. LogID is opaque to the
// engine and echoed back.
type PredictRequest struct {
	LogID    string      `json:"log_id"`
	Features LogFeatures `json:"features"`
}

// PredictResponse carries one calibrated result. In batch responses a
// failed item carries Error and zeroed score fields.
type PredictResponse struct {
	LogID        string  `json:"log_id"`
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
	Confidence   float64 `json:"confidence"`
	Timestamp    string  `json:"timestamp"`
	ModelVersion string  `json:"model_version"`
	Error        string  `json:"error,omitempty"`
}

// TrainRequest submits a training batch. Contamination defaults to 0.1
// when omitted.
type TrainRequest struct {
	TrainingData  []LogFeatures `json:"training_data"`
	Contamination *float64      `json:"contamination"`
}

// TrainResponse reports a completed training run.
type TrainResponse struct {
	Status         string  `json:"status"`
	RunID          string  `json:"run_id"`
	ModelVersion   string  `json:"model_version"`
	SamplesTrained int     `json:"samples_trained"`
	Contamination  float64 `json:"contamination"`
	TrainedAt      string  `json:"trained_at"`
	Persisted      bool    `json:"persisted"`
	Warning        string  `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const defaultContamination = 0.1

// Routes wires the versioned API surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/predict", h.handlePredict)
	mux.HandleFunc("POST /api/v1/predict/batch", h.handlePredictBatch)
	mux.HandleFunc("POST /api/v1/train", h.handleTrain)
	mux.HandleFunc("GET /api/v1/model/info", h.handleModelInfo)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	mux.HandleFunc("GET /api/v1/ready", h.handleReady)
	mux.HandleFunc("GET /{$}", h.handleRoot)
	return mux
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	record, err := toRecord(req.Features)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prediction, err := h.service.Predict(record)
	if err != nil {
		h.logger.Error("prediction failed", slog.String("log_id", req.LogID), slog.Any("error", err))
		writeError(w, statusFromError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toPredictResponse(req.LogID, prediction))
}

func (h *Handler) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	// A request that fails to map is reported per item; the rest of the
	// batch is still scored.
	records := make([]models.LogRecord, 0, len(reqs))
	indices := make([]int, 0, len(reqs))
	responses := make([]PredictResponse, len(reqs))
	for i, req := range reqs {
		record, err := toRecord(req.Features)
		if err != nil {
			responses[i] = PredictResponse{LogID: req.LogID, Error: err.Error()}
			continue
		}
		records = append(records, record)
		indices = append(indices, i)
	}

	items, err := h.service.PredictBatch(records)
	if err != nil {
		h.logger.Error("batch prediction failed", slog.Int("size", len(reqs)), slog.Any("error", err))
		writeError(w, statusFromError(err), err.Error())
		return
	}

	for j, item := range items {
		i := indices[j]
		if item.Err != nil {
			responses[i] = PredictResponse{LogID: reqs[i].LogID, Error: item.Err.Error()}
			continue
		}
		responses[i] = toPredictResponse(reqs[i].LogID, item.Prediction)
	}

	writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	records := make([]models.LogRecord, 0, len(req.TrainingData))
	for i, features := range req.TrainingData {
		record, err := toRecord(features)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("training record %d: %v", i, err))
			return
		}
		records = append(records, record)
	}

	contamination := defaultContamination
	if req.Contamination != nil {
		contamination = *req.Contamination
	}

	summary, err := h.service.Train(r.Context(), records, contamination)
	if err != nil {
		h.logger.Error("training failed", slog.Any("error", err))
		writeError(w, statusFromError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TrainResponse{
		Status:         "success",
		RunID:          summary.RunID,
		ModelVersion:   summary.Version,
		SamplesTrained: summary.SamplesTrained,
		Contamination:  summary.Contamination,
		TrainedAt:      utils.UTCTimestamp(summary.TrainedAt),
		Persisted:      summary.Persisted,
		Warning:        summary.PersistWarning,
	})
}

func (h *Handler) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	info := h.service.Describe()
	if !info.Ready {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "not_loaded",
			"message": "No model is currently loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "loaded",
		"version":       info.Version,
		"trained_at":    utils.UTCTimestamp(info.TrainedAt),
		"contamination": info.Contamination,
		"model_type":    "IsolationForest",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := h.service.Describe()

	modelStatus := "not_loaded"
	var modelInfo map[string]any
	if info.Ready {
		modelStatus = "loaded"
		modelInfo = map[string]any{
			"version":       info.Version,
			"trained_at":    utils.UTCTimestamp(info.TrainedAt),
			"contamination": info.Contamination,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "UP",
		"service":   ServiceName,
		"timestamp": utils.UTCTimestamp(time.Now()),
		"model": map[string]any{
			"status": modelStatus,
			"info":   modelInfo,
		},
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     h.service.Describe().Ready,
		"timestamp": utils.UTCTimestamp(time.Now()),
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   ServiceName,
		"status":    "running",
		"timestamp": utils.UTCTimestamp(time.Now()),
	})
}

// toRecord maps the wire shape into the domain record. A malformed
// timestamp is a bad-input failure, not an engine error.
func toRecord(features LogFeatures) (models.LogRecord, error) {
	record := models.LogRecord{
		MessageLength:      features.MessageLength,
		Level:              features.Level,
		Service:            features.Service,
		HasException:       features.HasException,
		HasTimeout:         features.HasTimeout,
		HasConnectionError: features.HasConnectionError,
		Metadata:           features.Metadata,
	}
	if features.Timestamp != "" {
		ts, err := utils.ParseRFC3339(features.Timestamp)
		if err != nil {
			return models.LogRecord{}, fmt.Errorf("invalid timestamp %q: %w", features.Timestamp, err)
		}
		record.Timestamp = ts
	}
	return record, nil
}

func toPredictResponse(logID string, prediction models.Prediction) PredictResponse {
	return PredictResponse{
		LogID:        logID,
		IsAnomaly:    prediction.IsAnomaly,
		AnomalyScore: prediction.AnomalyScore,
		Confidence:   prediction.Confidence,
		Timestamp:    utils.UTCTimestamp(time.Now()),
		ModelVersion: prediction.ModelVersion,
	}
}

// statusFromError maps engine error kinds to HTTP status codes: service
// unavailable when no model is installed, bad input for validation and
// encoding failures, internal error otherwise.
func statusFromError(err error) int {
	var encodingErr *engine.EncodingError
	switch {
	case errors.Is(err, services.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidContamination),
		errors.Is(err, services.ErrEmptyTrainingSet),
		errors.As(err, &encodingErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
