package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDecline(t *testing.T) {
	t.Run("monotonic decline reports exact drop", func(t *testing.T) {
		closes := make([]float64, 21)
		for i := range closes {
			closes[i] = 100 - float64(i) // 100 down to 80
		}
		record := DetectDecline(flatSeries(closes))
		require.NotNil(t, record)
		assert.InDelta(t, 20.0, record.DropPercent, 0.0001)
		assert.InDelta(t, 100.0, record.PeakPrice, 0.0001)
	})

	t.Run("drop beyond bound is no signal", func(t *testing.T) {
		record := DetectDecline(flatSeries([]float64{100, 80, 60, 50}))
		assert.Nil(t, record)
	})

	t.Run("relief rally above 40 percent of drop rejects", func(t *testing.T) {
		// peak 100, trough 70 (drop 30), bounce to 83: 13/30 = 43% > 40%
		record := DetectDecline(flatSeries([]float64{100, 90, 80, 70, 83}))
		assert.Nil(t, record)
	})

	t.Run("relief rally of exactly 40 percent is tolerated", func(t *testing.T) {
		// bounce to 82: 12/30 = 40%, strict > comparison does not reject
		record := DetectDecline(flatSeries([]float64{100, 90, 80, 70, 82}))
		require.NotNil(t, record)
		assert.InDelta(t, 18.0, record.DropPercent, 0.0001)
	})

	t.Run("peak ties resolve to first occurrence", func(t *testing.T) {
		points := flatSeries([]float64{100, 95, 100, 90, 85})
		record := DetectDecline(points)
		require.NotNil(t, record)
		assert.Equal(t, points[0].Date, record.PeakDate)
	})

	t.Run("small pullbacks during the decline are tolerated", func(t *testing.T) {
		// each bounce stays well under 40% of the drop so far
		record := DetectDecline(flatSeries([]float64{100, 94, 96, 88, 90, 82, 84}))
		require.NotNil(t, record)
		assert.InDelta(t, 16.0, record.DropPercent, 0.0001)
	})

	t.Run("empty series", func(t *testing.T) {
		assert.Nil(t, DetectDecline(nil))
	})
}

func TestSlopeSimilarity(t *testing.T) {
	t.Run("identical series score 100", func(t *testing.T) {
		series := trendSeries(100, -0.8, 7)
		score, ok := SlopeSimilarity(series, series)
		assert.True(t, ok)
		assert.InDelta(t, 100.0, score, 0.0001)
	})

	t.Run("rejection requires both ratio and diff to exceed", func(t *testing.T) {
		// ratio = 1.5/0.5 = 3 > 0.5 and |diff| = 1.5 > 0.3: rejected
		_, ok := SlopeSimilarity(trendSeries(100, 2.0, 7), trendSeries(100, 0.5, 7))
		assert.False(t, ok)

		// ratio = 0.15/0.1 = 1.5 > 0.5 but |diff| = 0.15 <= 0.3: accepted
		score, ok := SlopeSimilarity(trendSeries(100, 0.25, 7), trendSeries(100, 0.1, 7))
		assert.True(t, ok)
		assert.InDelta(t, 0.0, score, 0.0001) // ratio*100 >= 100 floors the score

		// ratio = 0.2/0.5 = 0.4 <= 0.5 though |diff| would not matter: accepted
		score, ok = SlopeSimilarity(trendSeries(100, 0.7, 7), trendSeries(100, 0.5, 7))
		assert.True(t, ok)
		assert.InDelta(t, 60.0, score, 0.01)
	})

	t.Run("near-flat benchmark falls back to raw difference", func(t *testing.T) {
		flat := flatSeries([]float64{100, 100, 100, 100, 100, 100, 100})

		// ratio = |diff| = 0.2: accepted, score 80
		score, ok := SlopeSimilarity(trendSeries(100, 0.2, 7), flat)
		assert.True(t, ok)
		assert.InDelta(t, 80.0, score, 0.01)

		// ratio = |diff| = 0.6: both thresholds exceeded, rejected
		_, ok = SlopeSimilarity(trendSeries(100, 0.6, 7), flat)
		assert.False(t, ok)
	})

	t.Run("too few points to compute a slope", func(t *testing.T) {
		_, ok := SlopeSimilarity(flatSeries([]float64{100, 99}), trendSeries(100, 0.1, 7))
		assert.False(t, ok)
	})
}
