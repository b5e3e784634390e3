package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPFetcher implements Fetcher against a REST price API (spec §6:
// "request shape and authentication are opaque to the core"). The three
// endpoints and their query parameters are the one assumption this type
// makes; a different provider is a different Fetcher implementation, not
// a change to Provider.
type HTTPFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL, apiKey string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 10 * time.Second}}
}

type priceResponse struct {
	Price string `json:"price"`
}

func (f *HTTPFetcher) FetchCurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	var resp priceResponse
	if err := f.get(ctx, "/price/current", url.Values{"asset": {asset}}, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Price)
}

func (f *HTTPFetcher) FetchHistoricalPrice(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error) {
	var resp priceResponse
	params := url.Values{"asset": {asset}, "at": {strconv.FormatInt(at.Unix(), 10)}}
	if err := f.get(ctx, "/price/historical", params, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Price)
}

func (f *HTTPFetcher) FetchSTETHRate(ctx context.Context) (decimal.Decimal, error) {
	var resp priceResponse
	if err := f.get(ctx, "/rate/steth-eth", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Price)
}

func (f *HTTPFetcher) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := f.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("price: build request: %w", err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("price: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("price: decode %s response: %w", path, err)
	}
	return nil
}
