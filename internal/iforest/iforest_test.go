package iforest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantTrees  int
		wantSample int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantTrees:  100,
			wantSample: 256,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantTrees:  50,
			wantSample: 256,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithSampleSize(64), WithSeed(123)},
			wantTrees:  200,
			wantSample: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantTrees, f.NumTrees)
			assert.Equal(t, tt.wantSample, f.SampleSize)
			assert.False(t, f.Fitted())
		})
	}
}

func TestFitValidation(t *testing.T) {
	f := New(WithTrees(10))

	err := f.Fit(nil, 0.1)
	assert.Error(t, err)

	err = f.Fit(generateTestData(10, 3), -0.1)
	assert.Error(t, err)

	err = f.Fit(generateTestData(10, 3), 0.6)
	assert.Error(t, err)

	err = f.Fit([][]float64{{1, 2}, {1, 2, 3}}, 0.1)
	assert.Error(t, err, "ragged batch must be rejected")
}

func TestFit(t *testing.T) {
	f := New(WithTrees(25), WithSeed(42))
	require.NoError(t, f.Fit(generateTestData(200, 5), 0.1))

	assert.True(t, f.Fitted())
	assert.Len(t, f.Trees, 25)
	assert.Greater(t, f.Norm, 0.0)
}

func TestScoreRangeAndPolarity(t *testing.T) {
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(128), WithSeed(42))
	require.NoError(t, f.Fit(trainData, 0.1))

	// Raw scores are negative; lower means more anomalous.
	normal, err := f.Score(trainData[0])
	require.NoError(t, err)
	assert.Greater(t, normal, -1.0)
	assert.Less(t, normal, 0.0)

	outlier, err := f.Score([]float64{1000, 1000, 1000, 1000, 1000})
	require.NoError(t, err)
	assert.Less(t, outlier, normal, "far-out point must score lower than an inlier")
}

func TestClassifyThreshold(t *testing.T) {
	trainData := generateTestData(300, 4)
	f := New(WithTrees(50), WithSeed(42))
	require.NoError(t, f.Fit(trainData, 0.2))

	flagged := 0
	for _, row := range trainData {
		anomalous, err := f.Classify(row)
		require.NoError(t, err)
		if anomalous {
			flagged++
		}
	}

	// The threshold is set on the fit-set score distribution, so roughly a
	// contamination fraction of it falls at or below the boundary.
	fraction := float64(flagged) / float64(len(trainData))
	assert.InDelta(t, 0.2, fraction, 0.1)
}

func TestZeroContaminationDisablesClassification(t *testing.T) {
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(generateTestData(100, 3), 0))

	assert.True(t, math.IsInf(f.Threshold, -1))

	anomalous, err := f.Classify([]float64{500, 500, 500})
	require.NoError(t, err)
	assert.False(t, anomalous)
}

func TestFitReproducible(t *testing.T) {
	trainData := generateTestData(200, 4)
	probes := generateTestData(50, 4)

	first := New(WithTrees(30), WithSeed(7))
	require.NoError(t, first.Fit(trainData, 0.15))

	second := New(WithTrees(30), WithSeed(7))
	require.NoError(t, second.Fit(trainData, 0.15))

	assert.Equal(t, first.Threshold, second.Threshold)
	for _, probe := range probes {
		s1, err := first.Score(probe)
		require.NoError(t, err)
		s2, err := second.Score(probe)
		require.NoError(t, err)
		assert.Equal(t, s1, s2)

		c1, err := first.Classify(probe)
		require.NoError(t, err)
		c2, err := second.Classify(probe)
		require.NoError(t, err)
		assert.Equal(t, c1, c2)
	}
}

func TestScoreBeforeFit(t *testing.T) {
	f := New()

	_, err := f.Score([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = f.Classify([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(5000, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := New(WithTrees(100), WithSampleSize(256))
		_ = f.Fit(data, 0.1)
	}
}

func BenchmarkScore(b *testing.B) {
	trainData := generateTestData(5000, 10)
	f := New(WithTrees(100), WithSampleSize(256))
	if err := f.Fit(trainData, 0.1); err != nil {
		b.Fatal(err)
	}
	sample := trainData[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = f.Score(sample)
	}
}

func generateTestData(n, features int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rng.NormFloat64()
		}
	}
	return data
}
