package ws

import (
	"encoding/json"
	"strconv"
	"time"

	"candlebot/internal/exchange"
	"candlebot/internal/models"
)

// handleKline forwards closed bars only. Unconfirmed updates repeat the
// same bar as it forms and would double-process fills downstream.
func (w *Client) handleKline(msg Message) {
	var data []klineData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("bad kline payload")
		return
	}

	for _, item := range data {
		if !item.Confirm {
			continue
		}
		candle, err := parseKline(item)
		if err != nil {
			w.logEntry().WithError(err).Warn("bad kline values")
			continue
		}
		select {
		case w.events <- exchange.Event{Type: exchange.EventTypeCandle, Candle: &candle}:
		case <-w.stopCh:
			return
		}
	}
}

func parseKline(item klineData) (models.Candle, error) {
	var c models.Candle
	var err error
	c.Datetime = time.UnixMilli(item.Start).UTC()
	if c.Open, err = strconv.ParseFloat(item.Open, 64); err != nil {
		return c, err
	}
	if c.High, err = strconv.ParseFloat(item.High, 64); err != nil {
		return c, err
	}
	if c.Low, err = strconv.ParseFloat(item.Low, 64); err != nil {
		return c, err
	}
	if c.Close, err = strconv.ParseFloat(item.Close, 64); err != nil {
		return c, err
	}
	if c.Volume, err = strconv.ParseFloat(item.Volume, 64); err != nil {
		return c, err
	}
	return c, nil
}
