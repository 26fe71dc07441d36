package rest

import (
	"net/http"

	"github.com/sony/gobreaker"

	"candlebot/internal/logger"
)

type Client struct {
	baseURL     string
	apiKey      string
	secret      string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	maxAttempts uint
	log         *logger.Logger
}

type bybitResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

func (r bybitResponse[T]) ret() (int, string) {
	return r.RetCode, r.RetMsg
}

type retCoder interface {
	ret() (int, string)
}

type instrumentInfo struct {
	List []struct {
		Symbol      string `json:"symbol"`
		BaseCoin    string `json:"baseCoin"`
		QuoteCoin   string `json:"quoteCoin"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			BasePrecision  string `json:"basePrecision"`
			QuotePrecision string `json:"quotePrecision"`
			MinOrderQty    string `json:"minOrderQty"`
			MinOrderAmt    string `json:"minOrderAmt"`
			QtyStep        string `json:"qtyStep"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// klineResult.List rows are [startMs, open, high, low, close, volume,
// turnover], newest first.
type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}
