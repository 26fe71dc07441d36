package engine

import "math"

// Annualization factor for per-bar returns. Daily bars are the primary
// use; shorter timeframes overstate the Sharpe accordingly.
const periodsPerYear = 252

type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Calmar       float64 `json:"calmar"`
	NumTrades    int     `json:"num_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

func ComputeMetrics(curve []EquityPoint, trades []Trade, initialCash float64) Metrics {
	var m Metrics
	if len(curve) == 0 || initialCash <= 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturn = (final - initialCash) / initialCash

	returns := make([]float64, 0, len(curve))
	prev := initialCash
	for _, p := range curve {
		if prev > 0 {
			returns = append(returns, (p.Equity-prev)/prev)
		}
		prev = p.Equity
	}
	if mean, std := meanStd(returns); std > 0 {
		m.Sharpe = mean / std * math.Sqrt(periodsPerYear)
	}

	peak := initialCash
	for _, p := range curve {
		peak = math.Max(peak, p.Equity)
		if peak > 0 {
			m.MaxDrawdown = math.Max(m.MaxDrawdown, (peak-p.Equity)/peak)
		}
	}
	if m.MaxDrawdown > 0 {
		m.Calmar = m.TotalReturn / m.MaxDrawdown
	}

	m.NumTrades = len(trades)
	if m.NumTrades == 0 {
		return m
	}
	var wins int
	var grossWin, grossLoss, total float64
	for _, t := range trades {
		total += t.PnL
		if t.PnL > 0 {
			wins++
			grossWin += t.PnL
			m.LargestWin = math.Max(m.LargestWin, t.PnL)
		} else {
			grossLoss -= t.PnL
			m.LargestLoss = math.Min(m.LargestLoss, t.PnL)
		}
	}
	m.WinRate = float64(wins) / float64(m.NumTrades)
	m.Expectancy = total / float64(m.NumTrades)
	if wins > 0 {
		m.AvgWin = grossWin / float64(wins)
	}
	if losses := m.NumTrades - wins; losses > 0 {
		m.AvgLoss = -grossLoss / float64(losses)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	return m
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
