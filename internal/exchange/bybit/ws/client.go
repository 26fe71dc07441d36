package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"candlebot/internal/exchange"
	"candlebot/internal/logger"
)

func New(url string, log *logger.Logger) (*Client, error) {
	return &Client{
		url:          url,
		log:          log,
		events:       make(chan exchange.Event, 100),
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}, nil
}

func (w *Client) Connect(ctx context.Context) error {
	w.logEntry().WithField("url", w.url).Info("connecting to websocket")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.conn = conn
	w.conn.SetReadLimit(2 << 20)

	w.logEntry().Info("websocket connected")

	go w.readLoop()

	return nil
}

func (w *Client) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.conn != nil {
			_ = w.conn.Close()
		}
	})
}

func (w *Client) logEntry() *logrus.Entry {
	entry := w.log.WithComponent("bybit_ws")
	if w.symbol != "" {
		entry = entry.WithField("symbol", w.symbol)
	}
	return entry
}

func (w *Client) Events() <-chan exchange.Event {
	return w.events
}
