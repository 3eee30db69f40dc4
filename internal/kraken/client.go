// Package kraken provides a client for Kraken's public daily OHLC endpoint.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qvintus/ethsignal/internal/models"
)

// Client provides access to the Kraken public market data API.
type Client struct {
	apiURL     string
	pair       string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new Kraken client for the given trading pair.
func NewClient(apiURL, pair string, timeout time.Duration, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		pair:       pair,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

type ohlcResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// Bar is one OHLC row: [time, open, high, low, close, vwap, volume, count].
// Prices arrive as strings; they are parsed through decimal to avoid
// accepting malformed numbers silently.
type Bar struct {
	Time  time.Time
	Close float64
}

// LatestClose fetches the most recent daily close for the configured pair.
func (c *Client) LatestClose(ctx context.Context) (Bar, error) {
	bars, err := c.fetchDaily(ctx)
	if err != nil {
		return Bar{}, err
	}
	if len(bars) == 0 {
		return Bar{}, fmt.Errorf("no OHLC bars returned for pair %s", c.pair)
	}
	return bars[len(bars)-1], nil
}

// Backfill returns price observations for the trailing days daily closes,
// dated by their bar timestamps. Used to seed the price series on first
// deployment.
func (c *Client) Backfill(ctx context.Context, days int) ([]models.Observation, error) {
	bars, err := c.fetchDaily(ctx)
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	obs := make([]models.Observation, 0, len(bars))
	for _, b := range bars {
		obs = append(obs, models.Observation{
			Date:   models.Day(b.Time),
			Asset:  c.pair,
			Source: models.SourceKraken,
			Metric: models.MetricPriceClose,
			Value:  b.Close,
		})
	}
	return obs, nil
}

func (c *Client) fetchDaily(ctx context.Context) ([]Bar, error) {
	url := fmt.Sprintf("%s/0/public/OHLC?pair=%s&interval=1440", c.apiURL, c.pair)

	var resp ohlcResponse
	if err := c.doGet(ctx, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken error: %s", strings.Join(resp.Error, "; "))
	}

	// The result holds the pair data under an exchange-normalized key plus a
	// "last" cursor; take the one non-cursor entry.
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		return parseBars(raw)
	}
	return nil, fmt.Errorf("no pair data in OHLC response")
}

func parseBars(raw json.RawMessage) ([]Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode OHLC rows: %w", err)
	}

	bars := make([]Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("short OHLC row: %d fields", len(row))
		}
		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("bad OHLC timestamp: %w", err)
		}
		var closeStr string
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			return nil, fmt.Errorf("bad OHLC close field: %w", err)
		}
		closePx, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("bad OHLC close %q: %w", closeStr, err)
		}
		bars = append(bars, Bar{
			Time:  time.Unix(ts, 0).UTC(),
			Close: closePx.InexactFloat64(),
		})
	}
	return bars, nil
}

// doGet performs a GET request with retry and decodes the JSON response.
func (c *Client) doGet(ctx context.Context, url string, out any) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
