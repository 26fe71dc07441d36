package engine

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"candlebot/internal/config"
	"candlebot/internal/logger"
	"candlebot/internal/models"
	"candlebot/internal/strategy"
)

type GridResult struct {
	Params      map[string]float64 `json:"params"`
	FinalEquity float64            `json:"final_equity"`
	Metrics     Metrics            `json:"metrics"`
	Err         error              `json:"-"`
}

// Optimize runs one backtest per parameter combination on a worker pool.
// Parallelism is at run granularity only: every combination gets its own
// backtester with its own book, execution engine and position manager,
// and the shared candle slice is read-only. Results come back sorted by
// the configured metric, best first, with the combination order as the
// tie-break so output is stable.
func Optimize(ctx context.Context, cfg *config.Config, candles []models.Candle, reg *strategy.Registry, log *logger.Logger) ([]GridResult, error) {
	combos := expandGrid(cfg.Optimize.Grid, cfg.Strategy.Params)
	results := make([]GridResult, len(combos))

	workers := cfg.Optimize.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	log.WithComponent("optimize").WithFields(logrus.Fields{
		"strategy": cfg.Strategy.Name, "combinations": len(combos), "workers": workers,
	}).Info("grid search started")

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = runCombo(ctx, cfg, candles, reg, combos[idx])
			}
		}()
	}
	for idx := range combos {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	metric := cfg.Optimize.Metric
	sort.SliceStable(results, func(i, j int) bool {
		return metricValue(results[i], metric) > metricValue(results[j], metric)
	})
	return results, nil
}

func runCombo(ctx context.Context, cfg *config.Config, candles []models.Candle, reg *strategy.Registry, params map[string]float64) GridResult {
	out := GridResult{Params: params}
	strat, err := reg.New(cfg.Strategy.Name, params)
	if err != nil {
		out.Err = err
		return out
	}
	// per-run noise goes nowhere; the caller logs the ranked summary
	bt := NewBacktester(cfg.Data.Symbol, cfg.Backtest.InitialCash, ExecConfig(cfg.Execution), strat, logger.Discard())
	res, err := bt.Run(ctx, candles)
	if err != nil {
		out.Err = err
		return out
	}
	out.FinalEquity = res.FinalEquity
	out.Metrics = res.Metrics
	return out
}

func metricValue(r GridResult, metric string) float64 {
	if r.Err != nil {
		return math.Inf(-1)
	}
	switch metric {
	case "total_return":
		return r.Metrics.TotalReturn
	case "calmar":
		return r.Metrics.Calmar
	case "profit_factor":
		return r.Metrics.ProfitFactor
	case "final_equity":
		return r.FinalEquity
	default:
		return r.Metrics.Sharpe
	}
}

// expandGrid builds the cartesian product of the grid axes over the base
// parameters. Axis order is sorted by key so the expansion, and with it
// any metric tie-break, is deterministic.
func expandGrid(grid map[string][]float64, base map[string]float64) []map[string]float64 {
	if len(grid) == 0 {
		return []map[string]float64{cloneParams(base)}
	}
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]float64{cloneParams(base)}
	for _, k := range keys {
		next := make([]map[string]float64, 0, len(combos)*len(grid[k]))
		for _, combo := range combos {
			for _, v := range grid[k] {
				c := cloneParams(combo)
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func cloneParams(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
