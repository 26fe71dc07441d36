package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"candlebot/internal/config"
	"candlebot/internal/data"
	"candlebot/internal/engine"
	"candlebot/internal/exchange/bybit"
	"candlebot/internal/logger"
	"candlebot/internal/strategy"
)

const topResults = 10

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("optimization failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	runID := uuid.NewString()
	log.WithRun(runID).Info("optimization session started")

	from, to, err := parseRange(cfg.Data.From, cfg.Data.To)
	if err != nil {
		return err
	}

	client := bybit.New(cfg.Exchange.BaseUrl, cfg.Exchange.WSUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, log)
	loader := data.NewLoader(cfg.Data.Dir, client, log)
	candles, err := loader.Load(ctx, cfg.Data.Symbol, cfg.Data.Interval, from, to)
	if err != nil {
		return err
	}

	results, err := engine.Optimize(ctx, cfg, candles, strategy.NewRegistry(), log)
	if err != nil {
		return err
	}

	for i, r := range results {
		if i >= topResults {
			break
		}
		entry := log.WithComponent("optimize").WithFields(logrus.Fields{
			"rank":   i + 1,
			"params": fmt.Sprintf("%v", r.Params),
		})
		if r.Err != nil {
			entry.WithError(r.Err).Warn("combination failed")
			continue
		}
		entry.WithFields(logrus.Fields{
			"sharpe":       fmt.Sprintf("%.2f", r.Metrics.Sharpe),
			"total_return": fmt.Sprintf("%.2f%%", r.Metrics.TotalReturn*100),
			"max_drawdown": fmt.Sprintf("%.2f%%", r.Metrics.MaxDrawdown*100),
			"trades":       r.Metrics.NumTrades,
			"final_equity": fmt.Sprintf("%.2f", r.FinalEquity),
		}).Info("result")
	}
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
