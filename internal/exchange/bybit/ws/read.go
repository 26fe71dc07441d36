package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"candlebot/internal/exchange"
)

func (w *Client) readLoop() {
	w.logEntry().Debug("read loop started")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.logEntry().WithError(err).Warn("websocket read failed")

			if !w.reconnect() {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logEntry().WithError(err).Warn("bad websocket message")
			continue
		}

		if strings.HasPrefix(msg.Topic, "kline") {
			w.handleKline(msg)
		}
	}
}

func (w *Client) reconnect() bool {
	backoff := w.reconnectMin

	for {
		select {
		case <-w.stopCh:
			return false
		default:
		}

		w.logEntry().Info("reconnecting websocket")

		time.Sleep(backoff)

		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			w.logEntry().WithError(err).Warn("websocket reconnect failed")
			backoff = w.nextBackoff(backoff)
			continue
		}

		if w.conn != nil {
			_ = w.conn.Close()
		}

		w.conn = conn
		w.conn.SetReadLimit(2 << 20)

		if w.symbol != "" {
			if err := w.SubscribeToTopics(context.Background(), w.symbol, w.topics); err != nil {
				w.logEntry().WithError(err).Warn("websocket resubscribe failed")
				backoff = w.nextBackoff(backoff)
				continue
			}
		}

		if !w.notifyReconnect() {
			return false
		}
		w.logEntry().Info("websocket reconnected, subscriptions restored")
		return true
	}
}

// notifyReconnect tells the consumer the stream had a gap. If the client
// was closed while the buffer is full the send could never complete, so
// it gives up instead of wedging the read loop.
func (w *Client) notifyReconnect() bool {
	select {
	case w.events <- exchange.Event{Type: exchange.EventTypeReconnect}:
		return true
	case <-w.stopCh:
		return false
	}
}

func (w *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > w.reconnectMax {
		return w.reconnectMax
	}
	return next
}
