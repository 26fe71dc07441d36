package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/models"
)

func TestSMA(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.True(t, ok)
	assert.InDelta(t, 4, v, 1e-12)

	_, ok = SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
	_, ok = SMA([]float64{1, 2, 3}, 0)
	assert.False(t, ok)
}

func TestEMAConvergesTowardsRecentValues(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	v, ok := EMA(flat, 10)
	require.True(t, ok)
	assert.InDelta(t, 50, v, 1e-12)

	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ema, ok := EMA(rising, 5)
	require.True(t, ok)
	sma, _ := SMA(rising, 5)
	assert.Greater(t, ema, sma, "ema weights recent values more than the window average")
	assert.Less(t, ema, 10.0)
}

func TestStdDev(t *testing.T) {
	v, ok := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	require.True(t, ok)
	assert.InDelta(t, 2, v, 1e-12)

	v, ok = StdDev([]float64{5, 5, 5}, 3)
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestBollingerBands(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	upper, middle, lower, ok := Bollinger(values, 8, 2)
	require.True(t, ok)
	assert.InDelta(t, 5, middle, 1e-12)
	assert.InDelta(t, 9, upper, 1e-12)
	assert.InDelta(t, 1, lower, 1e-12)

	_, _, _, ok = Bollinger(values[:3], 8, 2)
	assert.False(t, ok)
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	v, ok := RSI(up, 7)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	v, ok = RSI(down, 7)
	require.True(t, ok)
	assert.Zero(t, v)

	// equal average gain and loss sits at the midpoint
	alternating := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10}
	v, ok = RSI(alternating, 8)
	require.True(t, ok)
	assert.InDelta(t, 50, v, 1e-9)

	_, ok = RSI(up[:5], 7)
	assert.False(t, ok)
}

func bars(hlc ...[3]float64) []models.Candle {
	out := make([]models.Candle, len(hlc))
	for i, v := range hlc {
		out[i] = models.Candle{High: v[0], Low: v[1], Close: v[2]}
	}
	return out
}

func TestATRUsesGaps(t *testing.T) {
	candles := bars(
		[3]float64{10, 8, 9},
		[3]float64{11, 9, 10},  // range 2
		[3]float64{16, 14, 15}, // gap up: high-prevClose = 6
	)
	v, ok := ATR(candles, 2)
	require.True(t, ok)
	assert.InDelta(t, 4, v, 1e-12)

	_, ok = ATR(candles, 3)
	assert.False(t, ok, "needs period+1 candles")
}

func TestHighestHighLowestLow(t *testing.T) {
	candles := bars(
		[3]float64{10, 8, 9},
		[3]float64{14, 9, 10},
		[3]float64{12, 7, 11},
	)
	hh, ok := HighestHigh(candles, 2)
	require.True(t, ok)
	assert.Equal(t, 14.0, hh)

	ll, ok := LowestLow(candles, 2)
	require.True(t, ok)
	assert.Equal(t, 7.0, ll)

	hh, ok = HighestHigh(candles, 3)
	require.True(t, ok)
	assert.Equal(t, 14.0, hh)

	_, ok = HighestHigh(candles, 4)
	assert.False(t, ok)
}

func TestCloses(t *testing.T) {
	candles := bars([3]float64{10, 8, 9}, [3]float64{11, 9, 10})
	assert.Equal(t, []float64{9, 10}, Closes(candles))
	assert.Empty(t, Closes(nil))
}
