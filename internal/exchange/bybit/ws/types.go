package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"candlebot/internal/exchange"
	"candlebot/internal/logger"
)

type Client struct {
	url          string
	log          *logger.Logger
	conn         *websocket.Conn
	events       chan exchange.Event
	stopCh       chan struct{}
	stopOnce     sync.Once
	symbol       string
	topics       []string
	reconnectMin time.Duration
	reconnectMax time.Duration
}

type Message struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// klineData is one entry of a kline topic payload. Numbers arrive as
// strings; Confirm marks a closed bar.
type klineData struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
}
