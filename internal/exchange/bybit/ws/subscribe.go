package ws

import (
	"context"
	"fmt"
)

func (w *Client) SubscribeToTopics(ctx context.Context, symbol string, topics []string) error {
	w.symbol = symbol
	w.topics = topics

	msg := SubscribeMessage{
		Op:   "subscribe",
		Args: topics,
	}

	return w.conn.WriteJSON(msg)
}

// SubscribeKline subscribes to the public closed-bar stream for the
// symbol and interval.
func (w *Client) SubscribeKline(ctx context.Context, symbol, interval string) error {
	topic := fmt.Sprintf("kline.%s.%s", interval, symbol)
	return w.SubscribeToTopics(ctx, symbol, []string{topic})
}
