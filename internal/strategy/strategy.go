package strategy

import (
	"fmt"
	"sort"

	"candlebot/internal/models"
)

// Context is the read-only view a strategy gets each bar: history through
// the previous closed bar, plus the account state. Orders produced here
// execute against the next bar.
type Context struct {
	Symbol     string
	Candles    []models.Candle
	Position   models.Position
	OpenOrders []models.Order
	Cash       float64
	Equity     float64
	PeakEquity float64
}

// Actions is what a strategy wants done before the next bar: cancels
// first, then submissions.
type Actions struct {
	Cancel []uint64
	Submit []models.OrderRequest
}

type Strategy interface {
	Name() string
	Evaluate(ctx Context) Actions
}

// Factory builds a strategy from its parameter map. Missing keys fall
// back to the strategy's defaults.
type Factory func(params map[string]float64) (Strategy, error)

// Registry is the closed table of available strategies, built once at
// process start and passed by reference to whoever needs to construct
// one. No global registration, no init-time side effects.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["bollinger_reversion"] = NewBollingerReversion
	r.factories["range_breakout"] = NewRangeBreakout
	return r
}

func (r *Registry) New(name string, params map[string]float64) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have: %v)", name, r.Names())
	}
	return f(params)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
