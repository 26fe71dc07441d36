package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"candlebot/internal/config"
	"candlebot/internal/data"
	"candlebot/internal/engine"
	"candlebot/internal/exchange/bybit"
	"candlebot/internal/logger"
	"candlebot/internal/strategy"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.LogLevel,
		Format:     cfg.Runtime.LogFormat,
		Output:     cfg.Runtime.LogOutput,
		MaxSize:    cfg.Runtime.LogMaxSize,
		MaxBackups: cfg.Runtime.LogMaxBackups,
		MaxAge:     cfg.Runtime.LogMaxAge,
		Compress:   cfg.Runtime.LogCompress,
	})

	registry := strategy.NewRegistry()
	strat, err := registry.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		log.WithError(err).Fatal("strategy setup failed")
	}

	client := bybit.New(cfg.Exchange.BaseUrl, cfg.Exchange.WSUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigCh
		cancel()
	}()

	switch cfg.Backtest.Mode {
	case "live":
		log.WithStrategy(strat.Name()).Info("live paper session started")
		live := engine.NewLive(cfg, client, strat, log)
		if err := live.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Fatal("live session failed")
		}
	default:
		if err := runBacktest(ctx, cfg, client, strat, log); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Fatal("backtest failed")
		}
	}

	log.Info("stopped")
}

func runBacktest(ctx context.Context, cfg *config.Config, client *bybit.Client, strat strategy.Strategy, log *logger.Logger) error {
	from, to, err := parseRange(cfg.Data.From, cfg.Data.To)
	if err != nil {
		return err
	}

	loader := data.NewLoader(cfg.Data.Dir, client, log)
	candles, err := loader.Load(ctx, cfg.Data.Symbol, cfg.Data.Interval, from, to)
	if err != nil {
		return err
	}

	log.WithSymbol(cfg.Data.Symbol).Info("backtest started")
	bt := engine.NewBacktester(cfg.Data.Symbol, cfg.Backtest.InitialCash, engine.ExecConfig(cfg.Execution), strat, log)
	res, err := bt.Run(ctx, candles)
	if err != nil {
		return err
	}

	if cfg.Backtest.CheckpointFile != "" {
		orders, positions := bt.OMS().Snapshot()
		cp := engine.Checkpoint{
			SavedAt:    time.Now().UTC(),
			Symbol:     cfg.Data.Symbol,
			OpenOrders: orders,
			Positions:  positions,
		}
		if len(res.EquityCurve) > 0 {
			cp.LastBar = res.EquityCurve[len(res.EquityCurve)-1].Datetime
		}
		if err := engine.SaveCheckpoint(cfg.Backtest.CheckpointFile, cp); err != nil {
			return err
		}
	}

	m := res.Metrics
	log.WithFields(logrus.Fields{
		"total_return":  fmt.Sprintf("%.2f%%", m.TotalReturn*100),
		"sharpe":        fmt.Sprintf("%.2f", m.Sharpe),
		"max_drawdown":  fmt.Sprintf("%.2f%%", m.MaxDrawdown*100),
		"calmar":        fmt.Sprintf("%.2f", m.Calmar),
		"trades":        m.NumTrades,
		"win_rate":      fmt.Sprintf("%.1f%%", m.WinRate*100),
		"profit_factor": fmt.Sprintf("%.2f", m.ProfitFactor),
		"final_equity":  fmt.Sprintf("%.2f", res.FinalEquity),
	}).Info("backtest results")
	return nil
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toStr != "" {
		var err error
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad data.to %q: %w", toStr, err)
		}
	}
	from := to.AddDate(-1, 0, 0)
	if fromStr != "" {
		var err error
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad data.from %q: %w", fromStr, err)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("data.from %s is not before data.to %s", from, to)
	}
	return from, to, nil
}
