// Package restclient implements model.RestClient against a generic
// candle-history HTTP endpoint. Grounded on the teacher's
// pkg/smartconnect.SmartConnect: the header-building, doRequest JSON
// envelope handling, and GetCandleData route shape are kept, generalized
// from Angel One's fixed route table + 2FA session headers to a single
// configurable base URL and a pluggable static header map (spec §1
// Non-goals: exchange auth is out of scope, so there is no login/session
// flow here — callers inject whatever auth header the exchange needs).
package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"livestratexec/internal/model"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Headers map[string]string
	Timeout time.Duration // default 7s, matching the teacher's SmartConnect default
	HTTP    *http.Client  // optional override, mainly for tests
}

// Client implements model.RestClient over a JSON candle-history endpoint:
// GET {BaseURL}/candles/{symbol}/{timeframe}/{section}?start=...&end=...&limit=...&sort=...
type Client struct {
	baseURL string
	headers map[string]string
	http    *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 7 * time.Second
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		headers: cfg.Headers,
		http:    httpClient,
	}
}

// Candles implements model.RestClient (spec §6: "rest.candles(...)").
// section mirrors the teacher's historical-candle route convention of a
// trailing path segment selecting the response shape (e.g. "hist" for
// closed bars); this client forwards it unchanged as a path segment.
func (c *Client) Candles(ctx context.Context, symbol, timeframe, section string, query model.CandleQuery) ([]model.Candle, error) {
	reqURL := fmt.Sprintf("%s/candles/%s/%s/%s", c.baseURL, url.PathEscape(symbol), url.PathEscape(timeframe), url.PathEscape(section))

	q := url.Values{}
	q.Set("start", strconv.FormatInt(query.Start, 10))
	q.Set("end", strconv.FormatInt(query.End, 10))
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Sort != 0 {
		q.Set("sort", strconv.Itoa(query.Sort))
	}
	reqURL += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: candles %s/%s: %w", symbol, timeframe, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("restclient: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("restclient: candles %s/%s: status %d: %s", symbol, timeframe, resp.StatusCode, string(raw))
	}

	var candles []model.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, fmt.Errorf("restclient: decode candles response: %w", err)
	}
	for i := range candles {
		candles[i].Symbol = symbol
		candles[i].TF = timeframe
	}
	return candles, nil
}

var _ model.RestClient = (*Client)(nil)
