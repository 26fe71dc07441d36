package oms

import (
	"sort"

	"github.com/shopspring/decimal"

	"candlebot/internal/models"
)

// PositionManager tracks one net position per symbol. Quantity is signed.
// Money arithmetic runs on decimals so a closed round trip nets out to
// the exact fill arithmetic.
type PositionManager struct {
	positions map[string]*models.Position
}

func NewPositionManager() *PositionManager {
	return &PositionManager{positions: make(map[string]*models.Position)}
}

// Apply folds one fill into the symbol's position and returns the updated
// snapshot. A fill against an opposite position realizes PnL on the
// overlapping quantity; any excess flips the position in the same update,
// so no intermediate state is ever observable. Commission always reduces
// realized PnL, on opening fills included.
func (pm *PositionManager) Apply(fill models.Fill) models.Position {
	p, ok := pm.positions[fill.Symbol]
	if !ok {
		p = &models.Position{Symbol: fill.Symbol}
		pm.positions[fill.Symbol] = p
	}

	signed := decimal.NewFromFloat(fill.Qty)
	if fill.Side == models.OrderSideSell {
		signed = signed.Neg()
	}
	price := decimal.NewFromFloat(fill.Price)
	commission := decimal.NewFromFloat(fill.Commission)

	qty, avg, realized := p.Qty, p.AvgEntryPrice, p.RealizedPnL.Sub(commission)

	switch {
	case qty.IsZero():
		qty, avg = signed, price
		p.OpenTime = fill.Timestamp
	case qty.Sign() == signed.Sign():
		// extend: quantity-weighted average entry
		total := qty.Abs().Add(signed.Abs())
		avg = avg.Mul(qty.Abs()).Add(price.Mul(signed.Abs())).Div(total)
		qty = qty.Add(signed)
	default:
		// reduce, and flip if the fill overshoots
		closed := decimal.Min(signed.Abs(), qty.Abs())
		side := qty.Sign()
		realized = realized.Add(price.Sub(avg).Mul(closed).Mul(decimal.NewFromInt(int64(side))))
		qty = qty.Add(signed)
		if qty.IsZero() {
			avg = decimal.Zero
		} else if qty.Sign() != side {
			avg = price // flipped: the excess opens a fresh leg
			p.OpenTime = fill.Timestamp
		}
	}

	p.Qty, p.AvgEntryPrice, p.RealizedPnL = qty, avg, realized
	p.UpdateTime = fill.Timestamp
	return *p
}

// Position returns the snapshot for the symbol; a flat zero-value
// snapshot if the symbol has never traded.
func (pm *PositionManager) Position(symbol string) models.Position {
	if p, ok := pm.positions[symbol]; ok {
		return *p
	}
	return models.Position{Symbol: symbol, Qty: decimal.Zero, AvgEntryPrice: decimal.Zero, RealizedPnL: decimal.Zero}
}

// Positions returns every tracked position sorted by symbol.
func (pm *PositionManager) Positions() []models.Position {
	out := make([]models.Position, 0, len(pm.positions))
	for _, p := range pm.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Restore loads a checkpointed position snapshot verbatim.
func (pm *PositionManager) Restore(p models.Position) {
	cp := p
	pm.positions[p.Symbol] = &cp
}

// TotalRealizedPnL sums realized PnL across symbols.
func (pm *PositionManager) TotalRealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range pm.positions {
		total = total.Add(p.RealizedPnL)
	}
	return total
}
