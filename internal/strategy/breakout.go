package strategy

import (
	"fmt"

	"candlebot/internal/indicators"
	"candlebot/internal/models"
)

// RangeBreakout keeps a resting stop buy at the highest high of the entry
// window while flat, and a resting stop sell at the lowest low of the
// exit window while long. Stops are cancel/replaced when the level moves.
// Long only; the short side of the book is covered by the reversion
// strategy.
type RangeBreakout struct {
	entryPeriod int
	exitPeriod  int
	qty         float64
}

func NewRangeBreakout(params map[string]float64) (Strategy, error) {
	s := &RangeBreakout{
		entryPeriod: int(param(params, "entry_period", 20)),
		exitPeriod:  int(param(params, "exit_period", 10)),
		qty:         param(params, "qty", 1),
	}
	if s.entryPeriod < 1 || s.exitPeriod < 1 {
		return nil, fmt.Errorf("range_breakout: periods must be >= 1")
	}
	if s.qty <= 0 {
		return nil, fmt.Errorf("range_breakout: qty must be positive")
	}
	return s, nil
}

func (s *RangeBreakout) Name() string {
	return "range_breakout"
}

func (s *RangeBreakout) Evaluate(ctx Context) Actions {
	var acts Actions
	if len(ctx.Candles) < s.entryPeriod || len(ctx.Candles) < s.exitPeriod {
		return acts
	}

	switch {
	case ctx.Position.IsFlat():
		hh, _ := indicators.HighestHigh(ctx.Candles, s.entryPeriod)
		acts = replaceStop(ctx, models.OrderSideBuy, hh, s.qty)
	case ctx.Position.Qty.Sign() > 0:
		ll, _ := indicators.LowestLow(ctx.Candles, s.exitPeriod)
		qty, _ := ctx.Position.Qty.Float64()
		acts = replaceStop(ctx, models.OrderSideSell, ll, qty)
	}
	return acts
}

// replaceStop cancels every open order except a stop already resting at
// the wanted level, and submits a fresh one when none survives.
func replaceStop(ctx Context, side models.OrderSide, stop, qty float64) Actions {
	var acts Actions
	keep := false
	for _, o := range ctx.OpenOrders {
		if !keep && o.Side == side && o.Kind == models.OrderKindStop &&
			o.StopPrice == stop && o.Remaining() == qty {
			keep = true
			continue
		}
		acts.Cancel = append(acts.Cancel, o.ID)
	}
	if !keep {
		if side == models.OrderSideBuy {
			acts.Submit = append(acts.Submit, models.StopBuy(ctx.Symbol, qty, stop))
		} else {
			acts.Submit = append(acts.Submit, models.StopSell(ctx.Symbol, qty, stop))
		}
	}
	return acts
}
