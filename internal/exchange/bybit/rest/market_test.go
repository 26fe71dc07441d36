package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/logger"
)

// klineServer mimics /v5/market/kline: hourly bars from origin, rows
// newest-first, and a window wider than the limit anchored at its end.
func klineServer(t *testing.T, origin time.Time, bars int, skip map[int]bool, pages *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		*pages += 1

		start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var rows [][]string
		for i := bars - 1; i >= 0 && len(rows) < limit; i-- {
			if skip[i] {
				continue
			}
			ts := origin.Add(time.Duration(i) * time.Hour).UnixMilli()
			if ts < start || ts > end {
				continue
			}
			price := 100 + float64(i%50)
			rows = append(rows, []string{
				strconv.FormatInt(ts, 10),
				strconv.FormatFloat(price, 'f', -1, 64),
				strconv.FormatFloat(price+1, 'f', -1, 64),
				strconv.FormatFloat(price-1, 'f', -1, 64),
				strconv.FormatFloat(price+0.5, 'f', -1, 64),
				"1000",
				"100000",
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0,
			"retMsg":  "OK",
			"result": map[string]any{
				"category": "spot",
				"symbol":   "BTCUSDT",
				"list":     rows,
			},
			"time": time.Now().UnixMilli(),
		})
	}))
}

func TestGetKlinesPagesBackwardsThroughWideWindows(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const bars = 2500 // more than two pages at the 1000-row limit
	pages := 0
	srv := klineServer(t, origin, bars, nil, &pages)
	defer srv.Close()

	c := New(srv.URL, "", "", logger.Discard())
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "60",
		origin, origin.Add(bars*time.Hour))
	require.NoError(t, err)

	require.Len(t, candles, bars)
	assert.GreaterOrEqual(t, pages, 3)
	assert.True(t, candles[0].Datetime.Equal(origin), "oldest requested bar must be present")
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i].Datetime.Equal(candles[i-1].Datetime.Add(time.Hour)),
			"history not contiguous at index %d", i)
	}
}

func TestGetKlinesSinglePage(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pages := 0
	srv := klineServer(t, origin, 48, nil, &pages)
	defer srv.Close()

	c := New(srv.URL, "", "", logger.Discard())
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "60",
		origin, origin.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, candles, 48)
	assert.Equal(t, 1, pages)
}

func TestGetKlinesRejectsGappedHistory(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pages := 0
	srv := klineServer(t, origin, 48, map[int]bool{20: true}, &pages)
	defer srv.Close()

	c := New(srv.URL, "", "", logger.Discard())
	_, err := c.GetKlines(context.Background(), "BTCUSDT", "60",
		origin, origin.Add(48*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap")
}

func TestGetKlinesEmptyWindow(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pages := 0
	srv := klineServer(t, origin, 48, nil, &pages)
	defer srv.Close()

	c := New(srv.URL, "", "", logger.Discard())
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "60",
		origin.AddDate(1, 0, 0), origin.AddDate(1, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, candles)
}
