package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"candlebot/internal/config"
	"candlebot/internal/exchange"
	"candlebot/internal/logger"
	"candlebot/internal/models"
	"candlebot/internal/oms"
	"candlebot/internal/strategy"
)

// Bars of history kept around for indicator lookback in live mode.
const liveHistoryLimit = 1000

// Live runs the same strategy/book/execution path against a public
// closed-bar stream. Fills stay simulated: nothing is ever routed to the
// exchange. Each processed bar is checkpointed so a restart resumes with
// its open orders and positions.
type Live struct {
	cfg     *config.Config
	client  exchange.Client
	strat   strategy.Strategy
	mgr     *oms.OMS
	log     *logger.Logger
	rules   exchange.InstrumentRules
	history []models.Candle
	peak    float64
}

func NewLive(cfg *config.Config, client exchange.Client, strat strategy.Strategy, log *logger.Logger) *Live {
	return &Live{
		cfg:    cfg,
		client: client,
		strat:  strat,
		log:    log,
		peak:   cfg.Backtest.InitialCash,
	}
}

func (l *Live) Run(ctx context.Context) error {
	symbol := l.cfg.Data.Symbol
	interval := l.cfg.Data.Interval

	rules, err := l.client.GetInstrumentRules(ctx, symbol)
	if err != nil {
		return fmt.Errorf("instrument rules: %w", err)
	}
	l.rules = rules
	l.log.WithComponent("live").WithFields(logrus.Fields{
		"symbol": symbol, "tick_size": rules.TickSize, "lot_size": rules.LotSize,
	}).Info("instrument rules loaded")

	execCfg := ExecConfig(l.cfg.Execution)
	if l.cfg.Exchange.ApiKey != "" {
		if rates, err := l.client.GetFeeRates(ctx, symbol); err != nil {
			l.log.WithComponent("live").WithError(err).
				Warn("fee rates unavailable, keeping configured commission")
		} else {
			execCfg.MakerFeeRate = rates.Maker
			execCfg.TakerFeeRate = rates.Taker
		}
	}
	l.mgr = oms.New(execCfg, l.log)

	if l.cfg.Backtest.RestoreStateOnStart && l.cfg.Backtest.CheckpointFile != "" {
		if err := l.restore(); err != nil {
			return err
		}
	}

	if err := l.seedHistory(ctx, symbol, interval); err != nil {
		return err
	}

	events, err := l.client.SubscribeKlines(ctx, symbol, interval)
	if err != nil {
		return fmt.Errorf("subscribe klines: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("kline stream closed")
			}
			switch ev.Type {
			case exchange.EventTypeReconnect:
				l.log.WithComponent("live").Warn("stream reconnected, bars may have been missed")
			case exchange.EventTypeCandle:
				l.onCandle(ctx, symbol, *ev.Candle)
			}
		}
	}
}

func (l *Live) restore() error {
	cp, err := LoadCheckpoint(l.cfg.Backtest.CheckpointFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.WithComponent("live").Info("no checkpoint found, starting fresh")
			return nil
		}
		return err
	}
	if err := l.mgr.Restore(cp.OpenOrders, cp.Positions); err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	l.log.WithComponent("live").WithFields(logrus.Fields{
		"saved_at": cp.SavedAt, "open_orders": len(cp.OpenOrders), "positions": len(cp.Positions),
	}).Info("checkpoint restored")
	return nil
}

func (l *Live) seedHistory(ctx context.Context, symbol, interval string) error {
	step, err := intervalStep(interval)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	candles, err := l.client.GetKlines(ctx, symbol, interval, now.Add(-time.Duration(liveHistoryLimit)*step), now)
	if err != nil {
		return fmt.Errorf("seed history: %w", err)
	}
	l.history = l.history[:0]
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			l.log.WithComponent("live").WithError(err).Warn("seed bar skipped")
			continue
		}
		l.history = append(l.history, c)
	}
	l.log.WithComponent("live").WithField("bars", len(l.history)).Info("history seeded")
	return nil
}

func (l *Live) onCandle(ctx context.Context, symbol string, c models.Candle) {
	pos := l.mgr.Position(symbol)
	equity := l.equity(c.Open)
	if equity > l.peak {
		l.peak = equity
	}

	acts := l.strat.Evaluate(strategy.Context{
		Symbol:     symbol,
		Candles:    l.history,
		Position:   pos,
		OpenOrders: l.mgr.OpenOrders(symbol),
		Cash:       l.cash(pos),
		Equity:     equity,
		PeakEquity: l.peak,
	})
	for _, id := range acts.Cancel {
		if _, err := l.mgr.Cancel(id, c.Datetime); err != nil {
			l.log.WithOrderID(id).WithError(err).Warn("cancel failed")
		}
	}
	for _, req := range acts.Submit {
		l.mgr.Submit(l.quantize(req), c.Datetime)
	}

	if _, err := l.mgr.ProcessBar(symbol, c); err != nil {
		l.log.WithBar(c.Datetime).WithError(err).Warn("bar skipped")
		return
	}

	l.history = append(l.history, c)
	if len(l.history) > liveHistoryLimit {
		l.history = l.history[len(l.history)-liveHistoryLimit:]
	}

	if l.cfg.Backtest.CheckpointFile != "" {
		orders, positions := l.mgr.Snapshot()
		cp := Checkpoint{
			SavedAt:    time.Now().UTC(),
			Symbol:     symbol,
			LastBar:    c.Datetime,
			OpenOrders: orders,
			Positions:  positions,
		}
		if err := SaveCheckpoint(l.cfg.Backtest.CheckpointFile, cp); err != nil {
			l.log.WithComponent("live").WithError(err).Error("checkpoint save failed")
		}
	}
}

// quantize snaps prices to the tick grid and quantity to the lot grid
// before the book sees the order.
func (l *Live) quantize(req models.OrderRequest) models.OrderRequest {
	req.Qty = l.rules.RoundQty(req.Qty)
	if req.LimitPrice > 0 {
		req.LimitPrice = l.rules.RoundPrice(req.LimitPrice)
	}
	if req.StopPrice > 0 {
		req.StopPrice = l.rules.RoundPrice(req.StopPrice)
	}
	return req
}

func (l *Live) equity(lastPrice float64) float64 {
	pos := l.mgr.Position(l.cfg.Data.Symbol)
	pnl, _ := pos.RealizedPnL.Add(pos.UnrealizedPnL(lastPrice)).Float64()
	return l.cfg.Backtest.InitialCash + pnl
}

func (l *Live) cash(pos models.Position) float64 {
	realized, _ := pos.RealizedPnL.Float64()
	notional, _ := pos.Qty.Abs().Mul(pos.AvgEntryPrice).Float64()
	return l.cfg.Backtest.InitialCash + realized - notional
}

func intervalStep(interval string) (time.Duration, error) {
	switch interval {
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	default:
		var minutes int
		if _, err := fmt.Sscanf(interval, "%d", &minutes); err != nil || minutes <= 0 {
			return 0, fmt.Errorf("unsupported interval %q", interval)
		}
		return time.Duration(minutes) * time.Minute, nil
	}
}
