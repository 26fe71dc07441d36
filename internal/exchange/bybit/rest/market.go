package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"candlebot/internal/exchange"
	"candlebot/internal/models"
)

const klinePageLimit = 1000

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[instrumentInfo]
	if err := c.call(ctx, http.MethodGet, "/v5/market/instruments-info", params, false, &resp); err != nil {
		return exchange.InstrumentRules{}, err
	}
	if len(resp.Result.List) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("instrument not found: %s", symbol)
	}

	info := resp.Result.List[0]

	tick, err := strconv.ParseFloat(info.PriceFilter.TickSize, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bad tickSize=%q: %w", info.PriceFilter.TickSize, err)
	}

	lot, err := parseFloatOrZero(info.LotSizeFilter.QtyStep)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bad qtyStep=%q: %w", info.LotSizeFilter.QtyStep, err)
	}
	if lot == 0 {
		lot, err = parseFloatOrZero(info.LotSizeFilter.BasePrecision)
		if err != nil {
			return exchange.InstrumentRules{}, fmt.Errorf("bad basePrecision=%q: %w", info.LotSizeFilter.BasePrecision, err)
		}
	}
	if lot == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("no lot size for instrument: %s", symbol)
	}

	minQty, err := strconv.ParseFloat(info.LotSizeFilter.MinOrderQty, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bad minOrderQty=%q: %w", info.LotSizeFilter.MinOrderQty, err)
	}

	minNotional, err := strconv.ParseFloat(info.LotSizeFilter.MinOrderAmt, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bad minOrderAmt=%q: %w", info.LotSizeFilter.MinOrderAmt, err)
	}

	return exchange.InstrumentRules{
		TickSize:    tick,
		LotSize:     lot,
		MinQty:      minQty,
		MinNotional: minNotional,
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
	}, nil
}

// GetKlines pages through /v5/market/kline and returns candles sorted
// ascending within [from, to). Rows arrive newest-first, and a window
// wider than one page is anchored at its end, so paging walks the end
// backwards past the oldest row of each page until the window is
// drained. The assembled history must be contiguous at the interval
// step; a gap is an error, never silently cached.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	step, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}

	var candles []models.Candle
	end := to.Add(-time.Millisecond)
	for !end.Before(from) {
		params := url.Values{}
		params.Set("category", "spot")
		params.Set("symbol", symbol)
		params.Set("interval", interval)
		params.Set("start", strconv.FormatInt(from.UnixMilli(), 10))
		params.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(klinePageLimit))

		var resp bybitResponse[klineResult]
		if err := c.call(ctx, http.MethodGet, "/v5/market/kline", params, false, &resp); err != nil {
			return nil, err
		}
		if len(resp.Result.List) == 0 {
			break
		}

		pageOldest := end
		for _, row := range resp.Result.List {
			candle, err := parseKlineRow(row)
			if err != nil {
				return nil, fmt.Errorf("kline %s %s: %w", symbol, interval, err)
			}
			if candle.Datetime.Before(pageOldest) {
				pageOldest = candle.Datetime
			}
			candles = append(candles, candle)
		}

		if len(resp.Result.List) < klinePageLimit {
			break
		}
		end = pageOldest.Add(-time.Millisecond)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Datetime.Before(candles[j].Datetime)
	})
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Datetime, candles[i].Datetime
		if !cur.Equal(prev.Add(step)) {
			return nil, fmt.Errorf("kline history gap for %s %s: %s to %s",
				symbol, interval, prev.Format(time.RFC3339), cur.Format(time.RFC3339))
		}
	}
	return candles, nil
}

func parseKlineRow(row []string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("short kline row: %d fields", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("bad start time %q: %w", row[0], err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		vals[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("bad kline field %q: %w", row[i+1], err)
		}
	}
	return models.Candle{
		Datetime: time.UnixMilli(ms).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func intervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	case "M":
		return 30 * 24 * time.Hour, nil
	default:
		minutes, err := strconv.Atoi(interval)
		if err != nil || minutes <= 0 {
			return 0, fmt.Errorf("unsupported interval %q", interval)
		}
		return time.Duration(minutes) * time.Minute, nil
	}
}
