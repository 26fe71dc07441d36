package rest

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"candlebot/internal/logger"
)

func New(baseURL, apiKey, secret string, log *logger.Logger) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		maxAttempts: 5,
		log:         log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bybit-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithComponent("bybit_rest").WithFields(map[string]interface{}{
				"from": from.String(), "to": to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return c
}
