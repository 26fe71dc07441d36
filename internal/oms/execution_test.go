package oms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Hour)
}

func bar(t time.Time, o, h, l, c, v float64) models.Candle {
	return models.Candle{Datetime: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func newTestBook(t *testing.T) (*OrderBook, *ExecutionEngine) {
	t.Helper()
	return NewOrderBook("BTCUSDT", nil), NewExecutionEngine(Config{
		SlippageFraction: 0.001,
		MakerFeeRate:     0.0002,
		TakerFeeRate:     0.0006,
	})
}

func mustInsert(t *testing.T, b *OrderBook, req models.OrderRequest) models.Order {
	t.Helper()
	o, err := b.Insert(req, t0)
	require.NoError(t, err)
	return o
}

func TestMarketFillsAtOpenWithSlippage(t *testing.T) {
	b, e := newTestBook(t)
	buy := mustInsert(t, b, models.MarketBuy("BTCUSDT", 2))
	sell := mustInsert(t, b, models.MarketSell("BTCUSDT", 1))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	// submission order, buys pay up, sells take less
	assert.Equal(t, buy.ID, fills[0].OrderID)
	assert.InDelta(t, 100*1.001, fills[0].Price, 1e-12)
	assert.Equal(t, sell.ID, fills[1].OrderID)
	assert.InDelta(t, 100*0.999, fills[1].Price, 1e-12)

	for _, f := range fills {
		assert.False(t, f.IsMaker)
		assert.Equal(t, at(1), f.Timestamp)
		assert.InDelta(t, f.Price*f.Qty*0.0006, f.Commission, 1e-12)
	}

	got, ok := b.Get(buy.ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStateFilled, got.State)
	assert.Equal(t, 0, b.Len())
}

func TestLimitBuyTouchRule(t *testing.T) {
	b, e := newTestBook(t)
	touched := mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 97))
	missed := mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 90))
	aboveOpen := mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 105))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	byID := map[uint64]models.Fill{}
	for _, f := range fills {
		byID[f.OrderID] = f
	}
	// low 95 <= 97: fills at the limit, which is below the open
	assert.InDelta(t, 97, byID[touched.ID].Price, 1e-12)
	// limit above the open fills at the open, never better than the bar traded
	assert.InDelta(t, 100, byID[aboveOpen.ID].Price, 1e-12)
	assert.True(t, byID[touched.ID].IsMaker)

	got, ok := b.Get(missed.ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStateWorking, got.State)
	assert.Equal(t, 0.0, got.FilledQty)
}

func TestLimitSellTouchRule(t *testing.T) {
	b, e := newTestBook(t)
	touched := mustInsert(t, b, models.LimitSell("BTCUSDT", 1, 108))
	missed := mustInsert(t, b, models.LimitSell("BTCUSDT", 1, 115))
	belowOpen := mustInsert(t, b, models.LimitSell("BTCUSDT", 1, 96))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	byID := map[uint64]models.Fill{}
	for _, f := range fills {
		byID[f.OrderID] = f
	}
	assert.InDelta(t, 108, byID[touched.ID].Price, 1e-12)
	assert.InDelta(t, 100, byID[belowOpen.ID].Price, 1e-12)

	got, _ := b.Get(missed.ID)
	assert.Equal(t, models.OrderStateWorking, got.State)
}

func TestStopTriggerRule(t *testing.T) {
	b, e := newTestBook(t)
	stopSell := mustInsert(t, b, models.StopSell("BTCUSDT", 1, 98))
	stopBuy := mustInsert(t, b, models.StopBuy("BTCUSDT", 1, 105))
	untouched := mustInsert(t, b, models.StopBuy("BTCUSDT", 1, 120))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	byID := map[uint64]models.Fill{}
	for _, f := range fills {
		byID[f.OrderID] = f
	}
	// sell stop 98: low 95 <= 98, fills at min(open, stop)
	assert.InDelta(t, 98, byID[stopSell.ID].Price, 1e-12)
	// buy stop 105: high 110 >= 105, fills at max(open, stop)
	assert.InDelta(t, 105, byID[stopBuy.ID].Price, 1e-12)
	assert.False(t, byID[stopBuy.ID].IsMaker)

	got, _ := b.Get(untouched.ID)
	assert.Equal(t, models.OrderStateWorking, got.State)
}

func TestStopLimitStopBeforeLimitSameBar(t *testing.T) {
	b, e := newTestBook(t)
	// trigger at 105, then willing to pay up to 106
	o := mustInsert(t, b, models.StopLimitBuy("BTCUSDT", 1, 105, 106))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	// reference is the trigger price, not the open
	assert.InDelta(t, 105, fills[0].Price, 1e-12)
	// never rested as a limit before this bar: taker
	assert.False(t, fills[0].IsMaker)
	assert.InDelta(t, 105*1*0.0006, fills[0].Commission, 1e-12)

	got, _ := b.Get(o.ID)
	assert.Equal(t, models.OrderStateFilled, got.State)
	assert.True(t, got.Triggered)
}

func TestStopLimitTriggersThenRests(t *testing.T) {
	b, e := newTestBook(t)
	// sell once price falls to 95, but not below 94
	o := mustInsert(t, b, models.StopLimitSell("BTCUSDT", 1, 95, 94))

	// bar touches the stop but trades nowhere near 94 again... high is 96,
	// limit sell fills iff high >= limit, 96 >= 94, so it fills same bar.
	// Use a limit above the bar's high to keep it resting instead.
	_, err := b.Cancel(o.ID, at(0))
	require.NoError(t, err)

	rests := mustInsert(t, b, models.StopLimitSell("BTCUSDT", 1, 95, 99))
	fills, err := e.ProcessBar(b, bar(at(1), 96, 96.5, 94.5, 95, 1000))
	require.NoError(t, err)
	assert.Empty(t, fills)

	got, _ := b.Get(rests.ID)
	assert.Equal(t, models.OrderStateWorking, got.State)
	assert.True(t, got.Triggered)

	// next bar trades through the limit: plain limit semantics now
	fills, err = e.ProcessBar(b, bar(at(2), 98, 100, 97, 99, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.InDelta(t, 99, fills[0].Price, 1e-12)
	assert.True(t, fills[0].IsMaker, "rested in the book since the trigger bar")
}

func TestPriceTimePriorityUnderVolumeCap(t *testing.T) {
	b := NewOrderBook("BTCUSDT", nil)
	e := NewExecutionEngine(Config{MaxVolumeFraction: 0.1})

	first := mustInsert(t, b, models.LimitBuy("BTCUSDT", 8, 97))
	second := mustInsert(t, b, models.LimitBuy("BTCUSDT", 8, 97))

	// budget = 100 * 0.1 = 10 at the level
	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 100))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, first.ID, fills[0].OrderID)
	assert.Equal(t, 8.0, fills[0].Qty)
	assert.Equal(t, second.ID, fills[1].OrderID)
	assert.Equal(t, 2.0, fills[1].Qty)

	got, _ := b.Get(second.ID)
	assert.Equal(t, models.OrderStatePartiallyFilled, got.State)
	assert.InDelta(t, 6, got.Remaining(), 1e-12)
}

func TestPartialRemainderFillsNextBar(t *testing.T) {
	b := NewOrderBook("BTCUSDT", nil)
	e := NewExecutionEngine(Config{MaxVolumeFraction: 0.1})

	o := mustInsert(t, b, models.LimitBuy("BTCUSDT", 8, 97))

	_, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 20)) // budget 2
	require.NoError(t, err)
	fills, err := e.ProcessBar(b, bar(at(2), 96, 99, 90, 98, 1000)) // budget 100
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.InDelta(t, 6, fills[0].Qty, 1e-12)
	assert.InDelta(t, 96, fills[0].Price, 1e-12) // min(open, limit) of the second bar

	got, _ := b.Get(o.ID)
	assert.Equal(t, models.OrderStateFilled, got.State)
	assert.InDelta(t, (2*97+6*96)/8.0, got.AvgFillPrice, 1e-12)
}

func TestDayAndGTDExpiry(t *testing.T) {
	b, e := newTestBook(t)

	day, err := b.Insert(models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.OrderSideBuy, Kind: models.OrderKindLimit,
		Qty: 1, LimitPrice: 50, TimeInForce: models.TimeInForceDay,
	}, t0)
	require.NoError(t, err)

	gtd, err := b.Insert(models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.OrderSideBuy, Kind: models.OrderKindLimit,
		Qty: 1, LimitPrice: 50, TimeInForce: models.TimeInForceGTD, ExpireAt: at(5),
	}, t0)
	require.NoError(t, err)

	// same calendar day, before the GTD deadline: both live
	_, err = e.ProcessBar(b, bar(at(3), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	// at the GTD boundary the order is gone before matching
	_, err = e.ProcessBar(b, bar(at(5), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	got, _ := b.Get(gtd.ID)
	assert.Equal(t, models.OrderStateExpired, got.State)

	// next calendar day kills the Day order
	_, err = e.ProcessBar(b, bar(at(24), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	got, _ = b.Get(day.ID)
	assert.Equal(t, models.OrderStateExpired, got.State)
	assert.Equal(t, 0, b.Len())
}

func TestIOCCancelledAfterOneBar(t *testing.T) {
	b, e := newTestBook(t)
	o, err := b.Insert(models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.OrderSideBuy, Kind: models.OrderKindLimit,
		Qty: 1, LimitPrice: 90, TimeInForce: models.TimeInForceIOC,
	}, t0)
	require.NoError(t, err)

	// bar never touches 90
	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	assert.Empty(t, fills)

	got, _ := b.Get(o.ID)
	assert.Equal(t, models.OrderStateCancelled, got.State)
}

func TestFOKAllOrNothing(t *testing.T) {
	b := NewOrderBook("BTCUSDT", nil)
	e := NewExecutionEngine(Config{MaxVolumeFraction: 0.1})

	noFill, err := b.Insert(models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.OrderSideBuy, Kind: models.OrderKindLimit,
		Qty: 50, LimitPrice: 97, TimeInForce: models.TimeInForceFOK,
	}, t0)
	require.NoError(t, err)

	// budget 10 < 50: nothing fills, order dies at end of bar
	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 100))
	require.NoError(t, err)
	assert.Empty(t, fills)
	got, _ := b.Get(noFill.ID)
	assert.Equal(t, models.OrderStateCancelled, got.State)
	assert.Equal(t, 0.0, got.FilledQty)

	full, err := b.Insert(models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.OrderSideBuy, Kind: models.OrderKindLimit,
		Qty: 5, LimitPrice: 97, TimeInForce: models.TimeInForceFOK,
	}, at(1))
	require.NoError(t, err)
	fills, err = e.ProcessBar(b, bar(at(2), 100, 110, 95, 105, 100))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, full.ID, fills[0].OrderID)
	assert.Equal(t, 5.0, fills[0].Qty)
}

func TestCancelBeforeFillNeverFills(t *testing.T) {
	b, e := newTestBook(t)
	o := mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 97))

	_, err := b.Cancel(o.ID, t0)
	require.NoError(t, err)

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	assert.Empty(t, fills)

	got, _ := b.Get(o.ID)
	assert.Equal(t, models.OrderStateCancelled, got.State)
}

func TestBadCandleAbortsBarWithoutMutation(t *testing.T) {
	b, e := newTestBook(t)
	o := mustInsert(t, b, models.MarketBuy("BTCUSDT", 1))

	_, err := e.ProcessBar(b, bar(at(1), 100, 90, 95, 105, 1000)) // high < low
	require.Error(t, err)

	got, _ := b.Get(o.ID)
	assert.Equal(t, models.OrderStateWorking, got.State)
	assert.Equal(t, 1, b.Len())

	// the same order fills fine on the next good bar
	fills, err := e.ProcessBar(b, bar(at(2), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestMakerAndTakerCommission(t *testing.T) {
	b, e := newTestBook(t)
	mustInsert(t, b, models.MarketBuy("BTCUSDT", 1))
	mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 97))

	fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.False(t, fills[0].IsMaker)
	assert.InDelta(t, fills[0].Price*1*0.0006, fills[0].Commission, 1e-12)
	assert.True(t, fills[1].IsMaker)
	assert.InDelta(t, 97*1*0.0002, fills[1].Commission, 1e-12)
}

func TestDeterministicFillOrderAcrossClasses(t *testing.T) {
	run := func() []uint64 {
		b, e := newTestBook(t)
		mustInsert(t, b, models.LimitSell("BTCUSDT", 1, 108))
		mustInsert(t, b, models.LimitBuy("BTCUSDT", 1, 97))
		mustInsert(t, b, models.StopSell("BTCUSDT", 1, 98))
		mustInsert(t, b, models.StopBuy("BTCUSDT", 1, 105))
		mustInsert(t, b, models.MarketBuy("BTCUSDT", 1))

		fills, err := e.ProcessBar(b, bar(at(1), 100, 110, 95, 105, 1000))
		require.NoError(t, err)
		ids := make([]uint64, len(fills))
		for i, f := range fills {
			ids[i] = f.OrderID
		}
		return ids
	}

	first := run()
	// market, buy stops, sell stops, limit bids, limit asks
	assert.Equal(t, []uint64{5, 4, 3, 2, 1}, first)
	assert.Equal(t, first, run())
}
