package bybit

import (
	"context"
	"time"

	"candlebot/internal/exchange"
	"candlebot/internal/exchange/bybit/rest"
	"candlebot/internal/exchange/bybit/ws"
	"candlebot/internal/logger"
	"candlebot/internal/models"
)

// Client glues the REST and websocket halves behind exchange.Client.
type Client struct {
	rest  *rest.Client
	wsURL string
	log   *logger.Logger
}

func New(baseURL, wsURL, apiKey, secret string, log *logger.Logger) *Client {
	return &Client{
		rest:  rest.New(baseURL, apiKey, secret, log),
		wsURL: wsURL,
		log:   log,
	}
}

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	return c.rest.GetInstrumentRules(ctx, symbol)
}

func (c *Client) GetKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	return c.rest.GetKlines(ctx, symbol, interval, from, to)
}

func (c *Client) GetFeeRates(ctx context.Context, symbol string) (exchange.FeeRates, error) {
	return c.rest.GetFeeRates(ctx, symbol)
}

func (c *Client) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan exchange.Event, error) {
	w, err := ws.New(c.wsURL, c.log)
	if err != nil {
		return nil, err
	}
	if err := w.Connect(ctx); err != nil {
		return nil, err
	}
	if err := w.SubscribeKline(ctx, symbol, interval); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		<-ctx.Done()
		w.Close()
	}()
	return w.Events(), nil
}
