package engine

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"candlebot/internal/config"
	"candlebot/internal/logger"
	"candlebot/internal/models"
	"candlebot/internal/oms"
	"candlebot/internal/strategy"
)

type EquityPoint struct {
	Datetime time.Time `json:"datetime"`
	Equity   float64   `json:"equity"`
}

// Trade is one flat-to-flat round trip. PnL is net of commission.
type Trade struct {
	Symbol    string    `json:"symbol"`
	EntryTime time.Time `json:"entry_time"`
	ExitTime  time.Time `json:"exit_time"`
	PnL       float64   `json:"pnl"`
}

type Result struct {
	Symbol       string          `json:"symbol"`
	Strategy     string          `json:"strategy"`
	EquityCurve  []EquityPoint   `json:"equity_curve"`
	Trades       []Trade         `json:"trades"`
	FinalEquity  float64         `json:"final_equity"`
	OpenPosition models.Position `json:"open_position"`
	SkippedBars  int             `json:"skipped_bars"`
	Metrics      Metrics         `json:"metrics"`
}

// Backtester drives one strategy over one symbol's candle history. Each
// backtester owns its own book, execution engine and position manager,
// so independent runs never share state.
type Backtester struct {
	symbol      string
	initialCash float64
	strat       strategy.Strategy
	mgr         *oms.OMS
	log         *logger.Logger
}

func NewBacktester(symbol string, initialCash float64, execCfg oms.Config, strat strategy.Strategy, log *logger.Logger) *Backtester {
	return &Backtester{
		symbol:      symbol,
		initialCash: initialCash,
		strat:       strat,
		mgr:         oms.New(execCfg, log),
		log:         log,
	}
}

// ExecConfig maps the config section to the execution-model knobs.
func ExecConfig(c config.ExecutionConfig) oms.Config {
	return oms.Config{
		SlippageFraction:  c.SlippageFraction,
		MakerFeeRate:      c.MakerFeeRate,
		TakerFeeRate:      c.TakerFeeRate,
		MaxVolumeFraction: c.MaxVolumeFraction,
	}
}

// Run replays the candles in order. Each bar the strategy sees history
// through the previous close and its orders execute against the current
// bar, so nothing ever trades on information from inside the bar being
// decided on. A malformed candle skips only that bar.
func (bt *Backtester) Run(ctx context.Context, candles []models.Candle) (*Result, error) {
	res := &Result{Symbol: bt.symbol, Strategy: bt.strat.Name()}

	peak := bt.initialCash
	inPosition := false
	var entryTime time.Time
	flatRealized := decimal.Zero

	for i, c := range candles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pos := bt.mgr.Position(bt.symbol)
		acts := bt.strat.Evaluate(strategy.Context{
			Symbol:     bt.symbol,
			Candles:    candles[:i],
			Position:   pos,
			OpenOrders: bt.mgr.OpenOrders(bt.symbol),
			Cash:       bt.cash(pos),
			Equity:     bt.equity(c.Open),
			PeakEquity: peak,
		})
		for _, id := range acts.Cancel {
			if _, err := bt.mgr.Cancel(id, c.Datetime); err != nil {
				bt.log.WithOrderID(id).WithError(err).Warn("cancel failed")
			}
		}
		for _, req := range acts.Submit {
			bt.mgr.Submit(req, c.Datetime) // rejections are logged by the facade
		}

		if _, err := bt.mgr.ProcessBar(bt.symbol, c); err != nil {
			bt.log.WithBar(c.Datetime).WithError(err).Warn("bar skipped")
			res.SkippedBars++
			continue
		}

		pos = bt.mgr.Position(bt.symbol)
		if !inPosition && !pos.IsFlat() {
			inPosition = true
			entryTime = pos.OpenTime
		}
		if inPosition && pos.IsFlat() {
			pnl, _ := pos.RealizedPnL.Sub(flatRealized).Float64()
			res.Trades = append(res.Trades, Trade{
				Symbol: bt.symbol, EntryTime: entryTime, ExitTime: c.Datetime, PnL: pnl,
			})
			flatRealized = pos.RealizedPnL
			inPosition = false
		}

		equity := bt.equity(c.Close)
		peak = math.Max(peak, equity)
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Datetime: c.Datetime, Equity: equity})
	}

	res.OpenPosition = bt.mgr.Position(bt.symbol)
	if n := len(res.EquityCurve); n > 0 {
		res.FinalEquity = res.EquityCurve[n-1].Equity
	} else {
		res.FinalEquity = bt.initialCash
	}
	res.Metrics = ComputeMetrics(res.EquityCurve, res.Trades, bt.initialCash)

	bt.log.WithComponent("backtest").WithFields(logrus.Fields{
		"symbol": bt.symbol, "strategy": bt.strat.Name(),
		"bars": len(candles), "trades": len(res.Trades), "final_equity": res.FinalEquity,
	}).Info("run finished")
	return res, nil
}

// OMS exposes the run's order management facade, mainly for checkpoints.
func (bt *Backtester) OMS() *oms.OMS {
	return bt.mgr
}

func (bt *Backtester) equity(lastPrice float64) float64 {
	pos := bt.mgr.Position(bt.symbol)
	pnl, _ := pos.RealizedPnL.Add(pos.UnrealizedPnL(lastPrice)).Float64()
	return bt.initialCash + pnl
}

// cash is equity minus the notional tied up in the open position.
func (bt *Backtester) cash(pos models.Position) float64 {
	realized, _ := pos.RealizedPnL.Float64()
	notional, _ := pos.Qty.Abs().Mul(pos.AvgEntryPrice).Float64()
	return bt.initialCash + realized - notional
}
