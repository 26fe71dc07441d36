package oms

import (
	"fmt"
	"math"
	"time"

	"candlebot/internal/models"
)

// Quantities within this of each other count as equal. Matches the fill
// accounting done in float64 elsewhere in the book.
const qtyEpsilon = 1e-9

// Config holds the execution-model knobs. MaxVolumeFraction bounds the
// quantity filled per limit price level per bar as a fraction of the
// bar's volume; zero means unlimited. Slippage applies to market orders
// only.
type Config struct {
	SlippageFraction  float64
	MakerFeeRate      float64
	TakerFeeRate      float64
	MaxVolumeFraction float64
}

// ExecutionEngine matches a book against one candle at a time. It owns no
// state of its own, so one engine can serve many books.
type ExecutionEngine struct {
	cfg Config
}

func NewExecutionEngine(cfg Config) *ExecutionEngine {
	return &ExecutionEngine{cfg: cfg}
}

// ProcessBar replays one candle against the book and returns the fills in
// deterministic order: Day/GTD expiry first, then the market queue in
// submission order, buy stops from the lowest trigger up, sell stops from
// the highest trigger down, limit bids from the highest price down, limit
// asks from the lowest price up. A stop-limit whose trigger is touched
// re-enters the limit book and is evaluated against the same candle, stop
// strictly before limit. A malformed candle fails before anything is
// touched.
func (e *ExecutionEngine) ProcessBar(b *OrderBook, c models.Candle) ([]models.Fill, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	b.expire(c.Datetime)

	var fills []models.Fill

	// Reference prices for stop-limits triggered within this bar, keyed
	// by arena handle. The limit sweep prices those against the trigger
	// point instead of the open.
	triggerRef := make(map[int]float64)

	queue := b.market
	b.market = nil
	for _, h := range queue {
		o := &b.arena[h]
		if o.State.IsTerminal() {
			continue
		}
		price := c.Open * (1 + e.cfg.SlippageFraction)
		if o.Side == models.OrderSideSell {
			price = c.Open * (1 - e.cfg.SlippageFraction)
		}
		fills = append(fills, e.applyFill(b, h, price, o.Remaining(), false, c))
	}

	e.sweepStops(b, &b.stopBids, true, c, triggerRef, &fills)
	e.sweepStops(b, &b.stopAsks, false, c, triggerRef, &fills)
	e.sweepLimits(b, &b.bids, true, c, triggerRef, &fills)
	e.sweepLimits(b, &b.asks, false, c, triggerRef, &fills)

	b.expireImmediates(c.Datetime)
	return fills, nil
}

// sweepStops walks trigger levels outward from the bar's range edge. A
// touched plain stop fills in full as a taker at the conservative trigger
// price; a touched stop-limit moves to the limit book carrying its
// trigger reference.
func (e *ExecutionEngine) sweepStops(b *OrderBook, set *levelSet, buy bool, c models.Candle, triggerRef map[int]float64, fills *[]models.Fill) {
	for len(set.levels) > 0 {
		lvl := &set.levels[0]
		stop := lvl.price
		if buy && stop > c.High || !buy && stop < c.Low {
			return // every deeper level is further outside the bar's range
		}
		queue := b.compact(lvl.queue)
		for _, h := range queue {
			o := &b.arena[h]
			if o.State.IsTerminal() {
				continue
			}
			trig := math.Max(c.Open, stop)
			if !buy {
				trig = math.Min(c.Open, stop)
			}
			if o.Kind == models.OrderKindStopLimit {
				o.Triggered = true
				o.UpdateTime = c.Datetime
				triggerRef[h] = trig
				b.restLimit(h, o.Side, o.LimitPrice)
				continue
			}
			*fills = append(*fills, e.applyFill(b, h, trig, o.Remaining(), false, c))
		}
		set.removeLevel(0)
	}
}

// sweepLimits walks price levels outward from the open. Each level gets a
// fresh volume budget; within a level the earliest sequence fills first,
// the first order the budget cannot cover in full gets the remainder, and
// everything behind it stays resting.
func (e *ExecutionEngine) sweepLimits(b *OrderBook, set *levelSet, buy bool, c models.Candle, triggerRef map[int]float64, fills *[]models.Fill) {
	for i := 0; i < len(set.levels); {
		lvl := &set.levels[i]
		limit := lvl.price
		if buy && limit < c.Low || !buy && limit > c.High {
			return // the bar never traded through this level
		}
		lvl.queue = b.compact(lvl.queue)
		budget := math.Inf(1)
		if e.cfg.MaxVolumeFraction > 0 {
			budget = c.Volume * e.cfg.MaxVolumeFraction
		}
		for _, h := range lvl.queue {
			if budget <= qtyEpsilon {
				break
			}
			o := &b.arena[h]
			if o.State.IsTerminal() {
				continue
			}
			ref := c.Open
			maker := true
			if r, ok := triggerRef[h]; ok {
				// triggered this bar: it never rested as a limit, so the
				// fill takes liquidity
				ref = r
				maker = false
			}
			price := math.Min(ref, limit)
			if !buy {
				price = math.Max(ref, limit)
			}
			qty := math.Min(o.Remaining(), budget)
			if o.TimeInForce == models.TimeInForceFOK && qty+qtyEpsilon < o.Remaining() {
				continue // all or nothing; cancelled at the end of the bar
			}
			*fills = append(*fills, e.applyFill(b, h, price, qty, maker, c))
			budget -= qty
		}
		lvl.queue = b.compact(lvl.queue)
		if len(lvl.queue) == 0 {
			set.removeLevel(i)
			continue
		}
		i++
	}
}

// applyFill books a fill against the arena entry, keeping the average
// fill price quantity-weighted. Overfilling or filling a terminal order
// is an invariant violation and panics with the book context.
func (e *ExecutionEngine) applyFill(b *OrderBook, h int, price, qty float64, maker bool, c models.Candle) models.Fill {
	o := &b.arena[h]
	if o.State.IsTerminal() || qty <= 0 || qty-o.Remaining() > qtyEpsilon {
		panic(fmt.Sprintf("oms: fill violates order invariants: order=%d state=%s fill_qty=%v remaining=%v bar=%s book=%s",
			o.ID, o.State, qty, o.Remaining(), c.Datetime.Format(time.RFC3339), b.debugString()))
	}
	rate := e.cfg.TakerFeeRate
	if maker {
		rate = e.cfg.MakerFeeRate
	}
	prev := o.AvgFillPrice * o.FilledQty
	o.FilledQty += qty
	o.AvgFillPrice = (prev + price*qty) / o.FilledQty
	o.UpdateTime = c.Datetime
	if o.Remaining() <= qtyEpsilon {
		o.FilledQty = o.Qty
		o.State = models.OrderStateFilled
		b.retire(h)
	} else {
		o.State = models.OrderStatePartiallyFilled
	}
	return models.Fill{
		OrderID:    o.ID,
		ClientID:   o.ClientID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Price:      price,
		Qty:        qty,
		Commission: price * qty * rate,
		IsMaker:    maker,
		Timestamp:  c.Datetime,
		Sequence:   o.Sequence,
	}
}
