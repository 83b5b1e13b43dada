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

	"github.com/finbridge/ledger-service/internal/fx"
)

const frankfurterBaseURL = "https://api.frankfurter.app"

// FrankfurterClient fetches fiat exchange rates quoted against the
// pivot currency from the Frankfurter API.
type FrankfurterClient struct {
	baseURL string
	client  *http.Client
}

func NewFrankfurterClient(baseURL string) *FrankfurterClient {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = frankfurterBaseURL
	}
	return &FrankfurterClient{
		baseURL: resolved,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type frankfurterResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rates returns the latest rates with the pivot itself included at 1,
// since the API omits the base currency from its own table.
func (c *FrankfurterClient) Rates(ctx context.Context) (fx.Rates, error) {
	endpoint := fmt.Sprintf("%s/latest?from=%s", c.baseURL, fx.Pivot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("frankfurter error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	rates := make(fx.Rates, len(payload.Rates)+1)
	for code, rate := range payload.Rates {
		rates[strings.ToUpper(code)] = rate
	}
	rates[fx.Pivot] = decimal.NewFromInt(1)
	return rates, nil
}
