package exchange

import (
	"context"
	"math"
	"time"

	"candlebot/internal/models"
)

type EventType string

const (
	EventTypeCandle    EventType = "Candle"
	EventTypeReconnect EventType = "Reconnect"
)

type Event struct {
	Type   EventType
	Candle *models.Candle
}

type InstrumentRules struct {
	TickSize    float64
	LotSize     float64
	MinQty      float64
	MinNotional float64
	BaseCoin    string
	QuoteCoin   string
}

// RoundPrice quantizes a price down to the tick grid.
func (r InstrumentRules) RoundPrice(price float64) float64 {
	return RoundDown(price, r.TickSize)
}

// RoundQty quantizes a quantity down to the lot grid.
func (r InstrumentRules) RoundQty(qty float64) float64 {
	return RoundDown(qty, r.LotSize)
}

func RoundDown(value, step float64) float64 {
	if step == 0 {
		return value
	}
	return math.Floor(value/step+1e-9) * step
}

type FeeRates struct {
	Maker float64
	Taker float64
}

// Client is the market-data surface. There is no order routing here:
// orders are always filled by the local execution engine, the exchange
// only supplies candles, instrument rules and account fee rates.
type Client interface {
	GetInstrumentRules(ctx context.Context, symbol string) (InstrumentRules, error)
	GetKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error)
	GetFeeRates(ctx context.Context, symbol string) (FeeRates, error)
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Event, error)
}
