package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"candlebot/internal/exchange"
)

type feeRateResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		TakerFeeRate string `json:"takerFeeRate"`
		MakerFeeRate string `json:"makerFeeRate"`
	} `json:"list"`
}

// GetFeeRates returns the account's actual maker/taker rates for the
// symbol. Authenticated; live sessions use it to override the configured
// commission model.
func (c *Client) GetFeeRates(ctx context.Context, symbol string) (exchange.FeeRates, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[feeRateResult]
	if err := c.call(ctx, http.MethodGet, "/v5/account/fee-rate", params, true, &resp); err != nil {
		return exchange.FeeRates{}, err
	}
	if len(resp.Result.List) == 0 {
		return exchange.FeeRates{}, fmt.Errorf("no fee rates for symbol: %s", symbol)
	}

	entry := resp.Result.List[0]
	maker, err := strconv.ParseFloat(entry.MakerFeeRate, 64)
	if err != nil {
		return exchange.FeeRates{}, fmt.Errorf("bad makerFeeRate=%q: %w", entry.MakerFeeRate, err)
	}
	taker, err := strconv.ParseFloat(entry.TakerFeeRate, 64)
	if err != nil {
		return exchange.FeeRates{}, fmt.Errorf("bad takerFeeRate=%q: %w", entry.TakerFeeRate, err)
	}
	return exchange.FeeRates{Maker: maker, Taker: taker}, nil
}
