package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ailogmon/anomaly-engine/internal/models"
)

func TestEncodeFixedOrder(t *testing.T) {
	rec := models.LogRecord{
		MessageLength:      42,
		Level:              "ERROR",
		Service:            "payments",
		HasException:       true,
		HasConnectionError: true,
	}

	vec, err := Encode(rec)
	require.NoError(t, err)
	require.Len(t, vec, len(FeatureNames()))

	assert.Equal(t, 42.0, vec[0])
	assert.Equal(t, 1.0, vec[1])
	assert.Equal(t, 0.0, vec[2])
	assert.Equal(t, 1.0, vec[3])
	assert.Equal(t, 3.0, vec[4])
	assert.GreaterOrEqual(t, vec[5], 0.0)
	assert.Less(t, vec[5], float64(serviceBuckets))
}

func TestEncodeDeterministic(t *testing.T) {
	rec := models.LogRecord{MessageLength: 10, Level: "warn", Service: "checkout"}

	first, err := Encode(rec)
	require.NoError(t, err)
	second, err := Encode(rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncodeDefaults(t *testing.T) {
	// Zero-value record: length 0, flags false, level INFO, service bucket
	// for "unknown".
	vec, err := Encode(models.LogRecord{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, vec[0])
	assert.Equal(t, 0.0, vec[1])
	assert.Equal(t, 0.0, vec[2])
	assert.Equal(t, 0.0, vec[3])
	assert.Equal(t, 1.0, vec[4], "missing level defaults to INFO ordinal")

	unknown, err := Encode(models.LogRecord{Service: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, unknown[5], vec[5])
}

func TestEncodeLevelOrdinals(t *testing.T) {
	tests := []struct {
		level string
		want  float64
	}{
		{"DEBUG", 0},
		{"debug", 0},
		{"INFO", 1},
		{"WARN", 2},
		{"Error", 3},
		{"FATAL", 4},
		{"TRACE", 1},
		{"nonsense", 1},
		{"  info ", 1},
	}

	for _, tt := range tests {
		vec, err := Encode(models.LogRecord{Level: tt.level})
		require.NoError(t, err)
		assert.Equal(t, tt.want, vec[4], "level %q", tt.level)
	}
}

func TestEncodeRejectsNegativeLength(t *testing.T) {
	_, err := Encode(models.LogRecord{MessageLength: -1})
	require.Error(t, err)

	var encodingErr *EncodingError
	assert.ErrorAs(t, err, &encodingErr)
}

func TestServiceBucketStable(t *testing.T) {
	a := serviceBucket("auth-service")
	b := serviceBucket("auth-service")
	assert.Equal(t, a, b)

	// Different names usually land in different buckets; collisions are
	// tolerated but these two are known to differ.
	assert.NotEqual(t, serviceBucket("auth-service"), serviceBucket("billing-service"))
}
