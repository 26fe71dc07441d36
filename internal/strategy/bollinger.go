package strategy

import (
	"fmt"

	"candlebot/internal/indicators"
	"candlebot/internal/models"
)

// BollingerReversion fades band extremes: opens long below the lower
// band, short above the upper band, and closes when price reverts to the
// middle band. Entries and exits are market orders.
type BollingerReversion struct {
	period int
	width  float64
	qty    float64
}

func NewBollingerReversion(params map[string]float64) (Strategy, error) {
	s := &BollingerReversion{
		period: int(param(params, "period", 20)),
		width:  param(params, "width", 2),
		qty:    param(params, "qty", 1),
	}
	if s.period < 2 {
		return nil, fmt.Errorf("bollinger_reversion: period must be >= 2, got %d", s.period)
	}
	if s.width <= 0 || s.qty <= 0 {
		return nil, fmt.Errorf("bollinger_reversion: width and qty must be positive")
	}
	return s, nil
}

func (s *BollingerReversion) Name() string {
	return "bollinger_reversion"
}

func (s *BollingerReversion) Evaluate(ctx Context) Actions {
	var acts Actions
	closes := indicators.Closes(ctx.Candles)
	upper, middle, lower, ok := indicators.Bollinger(closes, s.period, s.width)
	if !ok {
		return acts
	}
	last := closes[len(closes)-1]

	switch ctx.Position.Qty.Sign() {
	case 0:
		if last < lower {
			acts.Submit = append(acts.Submit, models.MarketBuy(ctx.Symbol, s.qty))
		} else if last > upper {
			acts.Submit = append(acts.Submit, models.MarketSell(ctx.Symbol, s.qty))
		}
	case 1:
		if last >= middle {
			qty, _ := ctx.Position.Qty.Float64()
			acts.Submit = append(acts.Submit, models.MarketSell(ctx.Symbol, qty))
		}
	case -1:
		if last <= middle {
			qty, _ := ctx.Position.Qty.Abs().Float64()
			acts.Submit = append(acts.Submit, models.MarketBuy(ctx.Symbol, qty))
		}
	}
	return acts
}
