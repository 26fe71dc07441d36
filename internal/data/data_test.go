package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/exchange"
	"candlebot/internal/logger"
	"candlebot/internal/models"
)

func candle(ts time.Time, o, h, l, c, v float64) models.Candle {
	return models.Candle{Datetime: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func sampleCandles(n int) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = candle(start.Add(time.Duration(i)*time.Hour), p, p+2, p-2, p+1, 1000+float64(i))
	}
	return out
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "BTCUSDT_60.csv")
	want := sampleCandles(5)
	want[2].Volume = 0.00000001 // tiny volumes survive formatting

	require.NoError(t, WriteCSV(path, want))
	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadCSVEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCSVMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "datetime,open,high,low,close,volume\n" +
		"2024-01-01T00:00:00Z,100,102,98,101,1000\n" +
		"2024-01-01T01:00:00Z,abc,102,98,101,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ReadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestCleanSortsAndDedupes(t *testing.T) {
	base := sampleCandles(3)
	shuffled := []models.Candle{base[2], base[0], base[1], base[1]}

	got, err := Clean(shuffled)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base[0].Datetime, got[0].Datetime)
	assert.Equal(t, base[2].Datetime, got[2].Datetime)
}

func TestCleanRejectsInvalidBar(t *testing.T) {
	bad := sampleCandles(2)
	bad[1].High = bad[1].Low - 1

	_, err := Clean(bad)
	assert.ErrorIs(t, err, models.ErrHighBelowLow)
}

type stubExchange struct {
	exchange.Client
	candles []models.Candle
	calls   int
}

func (s *stubExchange) GetKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	s.calls++
	return s.candles, nil
}

func TestLoaderDownloadsOnMissThenHitsCache(t *testing.T) {
	dir := t.TempDir()
	stub := &stubExchange{candles: sampleCandles(4)}
	l := NewLoader(dir, stub, logger.Discard())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	got, err := l.Load(context.Background(), "BTCUSDT", "60", from, to)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 1, stub.calls)

	again, err := l.Load(context.Background(), "BTCUSDT", "60", from, to)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, stub.calls, "second load must come from the cache")
}

func TestLoaderMissWithoutClient(t *testing.T) {
	l := NewLoader(t.TempDir(), nil, logger.Discard())
	_, err := l.Load(context.Background(), "BTCUSDT", "60", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
