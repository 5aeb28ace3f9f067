package engine

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/ailogmon/anomaly-engine/internal/models"
)

// serviceBuckets bounds the service-name feature. Hash bucketing is a lossy,
// collision-prone encoding: distinct services may share a bucket. That is a
// deliberate approximation to keep the feature space fixed under arbitrary
// service-name cardinality.
const serviceBuckets = 1000

const defaultService = "unknown"

// severityOrdinals is the fixed ordinal table for log levels. Unrecognized
// or missing levels map to the INFO ordinal.
var severityOrdinals = map[string]float64{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
	"FATAL": 4,
}

const severityDefault = 1 // INFO

// EncodingError marks a record that could not be encoded. In batch
// prediction it is reported per item instead of aborting the batch.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding failed: %s", e.Reason)
}

// FeatureNames returns the encoded attribute names in vector order. The
// order is part of the model contract: scaler and forest are positional.
func FeatureNames() []string {
	return []string{
		"message_length",
		"has_exception",
		"has_timeout",
		"has_connection_error",
		"level_ordinal",
		"service_bucket",
	}
}

// Encode maps a log record to its fixed-length feature vector. It is
// deterministic and fits no state, so training and inference encode
// identically.
func Encode(rec models.LogRecord) ([]float64, error) {
	if rec.MessageLength < 0 {
		return nil, &EncodingError{Reason: fmt.Sprintf("message length %d is negative", rec.MessageLength)}
	}

	return []float64{
		float64(rec.MessageLength),
		boolFeature(rec.HasException),
		boolFeature(rec.HasTimeout),
		boolFeature(rec.HasConnectionError),
		levelOrdinal(rec.Level),
		serviceBucket(rec.Service),
	}, nil
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func levelOrdinal(level string) float64 {
	if ordinal, ok := severityOrdinals[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return ordinal
	}
	return severityDefault
}

// serviceBucket reduces a service name to a stable numeric bucket via FNV-1a
// modulo the bucket count.
func serviceBucket(service string) float64 {
	if service == "" {
		service = defaultService
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(service))
	return float64(h.Sum32() % serviceBuckets)
}
