package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceClient looks up crypto spot prices from the Binance public
// ticker endpoint. Symbols are quoted against USDT, which the ledger
// treats as the reference fiat unit.
type BinanceClient struct {
	baseURL string
	client  *http.Client
}

func NewBinanceClient(baseURL string) *BinanceClient {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = binanceBaseURL
	}
	return &BinanceClient{
		baseURL: resolved,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type binanceTicker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Price returns the latest reference-fiat price for symbol. Stablecoin
// pairs that Binance does not quote against themselves resolve to 1.
func (c *BinanceClient) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("empty symbol")
	}
	if symbol == "USDT" {
		return decimal.NewFromInt(1), nil
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return decimal.Zero, fmt.Errorf("binance error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ticker binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, err
	}
	if !ticker.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("binance returned non-positive price for %s", symbol)
	}
	return ticker.Price, nil
}
