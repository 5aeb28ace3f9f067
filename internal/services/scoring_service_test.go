package services

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/ailogmon/anomaly-engine/internal/engine"
	"github.com/ailogmon/anomaly-engine/internal/models"
)

type storeStub struct {
	saved   *engine.Artifact
	saveErr error
	loadArt *engine.Artifact
	loadErr error
}

func (s *storeStub) Save(artifact *engine.Artifact) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = artifact
	return nil
}

func (s *storeStub) Load() (*engine.Artifact, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.loadArt, nil
}

func (s *storeStub) Path() string { return "stub://artifact" }

func newTestService(store ArtifactStore) *ScoringService {
	trainer := engine.NewTrainer(nil, engine.WithForestSize(50, 16), engine.WithSeed(42))
	return NewScoringService(nil, store, trainer)
}

func scenarioBatch() []models.LogRecord {
	return []models.LogRecord{
		{MessageLength: 50, Level: "INFO", Service: "web"},
		{MessageLength: 45, Level: "INFO", Service: "web"},
		{MessageLength: 55, Level: "INFO", Service: "web"},
		{MessageLength: 200, Level: "ERROR", Service: "web", HasException: true},
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	service := newTestService(&storeStub{})

	_, err := service.Predict(models.LogRecord{MessageLength: 10, Level: "INFO"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	_, err = service.PredictBatch(scenarioBatch())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady from batch, got %v", err)
	}
}

func TestTrainRejectsInvalidContamination(t *testing.T) {
	store := &storeStub{}
	service := newTestService(store)

	for _, contamination := range []float64{-0.01, 0.51, 1.0} {
		_, err := service.Train(context.Background(), scenarioBatch(), contamination)
		if !errors.Is(err, ErrInvalidContamination) {
			t.Fatalf("contamination %v: expected ErrInvalidContamination, got %v", contamination, err)
		}
	}
	if store.saved != nil {
		t.Fatalf("rejected training must not persist anything")
	}
}

func TestTrainRejectsEmptyBatch(t *testing.T) {
	service := newTestService(&storeStub{})

	_, err := service.Train(context.Background(), nil, 0.1)
	if !errors.Is(err, ErrEmptyTrainingSet) {
		t.Fatalf("expected ErrEmptyTrainingSet, got %v", err)
	}
}

func TestTrainAndPredictScenario(t *testing.T) {
	store := &storeStub{}
	service := newTestService(store)

	summary, err := service.Train(context.Background(), scenarioBatch(), 0.25)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !summary.Persisted || store.saved == nil {
		t.Fatalf("expected artifact to be persisted")
	}
	if summary.SamplesTrained != 4 || summary.Contamination != 0.25 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Version == "" || summary.RunID == "" {
		t.Fatalf("summary missing version or run id: %+v", summary)
	}

	inlier, err := service.Predict(models.LogRecord{MessageLength: 48, Level: "INFO", Service: "web"})
	if err != nil {
		t.Fatalf("predict inlier: %v", err)
	}
	outlier, err := service.Predict(models.LogRecord{
		MessageLength: 500, Level: "FATAL", Service: "rogue",
		HasException: true, HasTimeout: true, HasConnectionError: true,
	})
	if err != nil {
		t.Fatalf("predict outlier: %v", err)
	}

	if inlier.AnomalyScore >= outlier.AnomalyScore {
		t.Fatalf("inlier probability %v not below outlier probability %v", inlier.AnomalyScore, outlier.AnomalyScore)
	}
	if outlier.RawScore >= inlier.RawScore {
		t.Fatalf("outlier raw score %v not below inlier raw score %v", outlier.RawScore, inlier.RawScore)
	}
	if inlier.ModelVersion != summary.Version {
		t.Fatalf("prediction version %s does not match trained version %s", inlier.ModelVersion, summary.Version)
	}
}

func TestPredictBatchIsolatesEncodingFailure(t *testing.T) {
	service := newTestService(&storeStub{})
	if _, err := service.Train(context.Background(), scenarioBatch(), 0.25); err != nil {
		t.Fatalf("train: %v", err)
	}

	records := []models.LogRecord{
		{MessageLength: 48, Level: "INFO", Service: "web"},
		{MessageLength: -3, Level: "INFO", Service: "web"},
		{MessageLength: 52, Level: "INFO", Service: "web"},
	}

	items, err := service.PredictBatch(records)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(items) != len(records) {
		t.Fatalf("expected %d items, got %d", len(records), len(items))
	}

	var encodingErr *engine.EncodingError
	if !errors.As(items[1].Err, &encodingErr) {
		t.Fatalf("expected EncodingError on malformed item, got %v", items[1].Err)
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Fatalf("well-formed items must not fail: %v, %v", items[0].Err, items[2].Err)
	}
	if items[0].Prediction.ModelVersion == "" || items[2].Prediction.ModelVersion == "" {
		t.Fatalf("well-formed items must carry predictions")
	}
}

func TestTrainPersistFailureKeepsServing(t *testing.T) {
	store := &storeStub{saveErr: errors.New("disk full")}
	service := newTestService(store)

	summary, err := service.Train(context.Background(), scenarioBatch(), 0.25)
	if err != nil {
		t.Fatalf("training must succeed despite persistence failure, got %v", err)
	}
	if summary.Persisted {
		t.Fatalf("summary must flag the failed persist")
	}
	if summary.PersistWarning == "" {
		t.Fatalf("summary must carry the persist warning")
	}

	if _, err := service.Predict(scenarioBatch()[0]); err != nil {
		t.Fatalf("in-memory model must keep serving: %v", err)
	}
}

func TestTrainFailureKeepsPriorArtifact(t *testing.T) {
	service := newTestService(&storeStub{})

	first, err := service.Train(context.Background(), scenarioBatch(), 0.25)
	if err != nil {
		t.Fatalf("first train: %v", err)
	}

	bad := append(scenarioBatch(), models.LogRecord{MessageLength: -1})
	if _, err := service.Train(context.Background(), bad, 0.25); err == nil {
		t.Fatalf("expected training failure on unencodable record")
	}

	info := service.Describe()
	if !info.Ready || info.Version != first.Version {
		t.Fatalf("prior artifact must survive a failed training, got %+v", info)
	}
	if _, err := service.Predict(scenarioBatch()[0]); err != nil {
		t.Fatalf("prior artifact must keep serving: %v", err)
	}
}

func TestDescribe(t *testing.T) {
	service := newTestService(&storeStub{})

	info := service.Describe()
	if info.Ready {
		t.Fatalf("empty service must not report ready")
	}

	summary, err := service.Train(context.Background(), scenarioBatch(), 0.3)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	info = service.Describe()
	if !info.Ready || info.Version != summary.Version || info.Contamination != 0.3 {
		t.Fatalf("unexpected describe result: %+v", info)
	}
	if !info.TrainedAt.Equal(summary.TrainedAt) {
		t.Fatalf("describe timestamp %v does not match summary %v", info.TrainedAt, summary.TrainedAt)
	}
}

func TestLoadPersisted(t *testing.T) {
	trained := newTestService(&storeStub{})
	if _, err := trained.Train(context.Background(), scenarioBatch(), 0.25); err != nil {
		t.Fatalf("train: %v", err)
	}

	store := &storeStub{loadArt: trained.current.Load()}
	service := newTestService(store)
	if err := service.LoadPersisted(context.Background()); err != nil {
		t.Fatalf("load persisted: %v", err)
	}

	if !service.Describe().Ready {
		t.Fatalf("service must be ready after loading a persisted artifact")
	}
}

func TestLoadPersistedPropagatesStoreError(t *testing.T) {
	sentinel := errors.New("bundle missing")
	service := newTestService(&storeStub{loadErr: sentinel})

	if err := service.LoadPersisted(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestTrainOnGeneratedTraffic(t *testing.T) {
	faker := gofakeit.New(11)
	servicesPool := []string{"checkout", "payments", "auth", "catalog"}

	records := make([]models.LogRecord, 0, 300)
	for i := 0; i < 300; i++ {
		records = append(records, models.LogRecord{
			MessageLength: faker.Number(30, 90),
			Level:         "INFO",
			Service:       faker.RandomString(servicesPool),
		})
	}

	service := newTestService(&storeStub{})
	if _, err := service.Train(context.Background(), records, 0.05); err != nil {
		t.Fatalf("train on generated traffic: %v", err)
	}

	typical, err := service.Predict(models.LogRecord{MessageLength: 60, Level: "INFO", Service: "checkout"})
	if err != nil {
		t.Fatalf("predict typical: %v", err)
	}
	extreme, err := service.Predict(models.LogRecord{
		MessageLength: 5000, Level: "FATAL", Service: "never-seen",
		HasException: true, HasTimeout: true, HasConnectionError: true,
	})
	if err != nil {
		t.Fatalf("predict extreme: %v", err)
	}

	if typical.AnomalyScore >= extreme.AnomalyScore {
		t.Fatalf("typical record scored %v, extreme scored %v", typical.AnomalyScore, extreme.AnomalyScore)
	}
	if !extreme.IsAnomaly {
		t.Fatalf("extreme record should classify as anomalous")
	}
}
