// Package nansen provides a client for the Nansen flow-data API: paginated
// smart-money inflows and the exchange flow-intelligence endpoint.
package nansen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/qvintus/ethsignal/internal/logger"
	"github.com/qvintus/ethsignal/internal/models"
)

// BasketAsset names the aggregate row the smart-money flow is recorded under.
const BasketAsset = "ETH_BASKET"

// wethAddress is the canonical WETH contract, used for flow-intelligence
// requests because native ETH queries are frequently rejected.
const wethAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

// ethAddressBasket holds ETH proxy / LST contract addresses on Ethereum L1,
// lowercased.
var ethAddressBasket = map[string]struct{}{
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {}, // WETH
	"0xae7ab96520de3a18e5e111b5eaab095312d7fe84": {}, // Lido stETH
	"0x7f39c581f595b53c5cb19bd0b3f8da6c935e2ca0": {}, // Lido wstETH
	"0xae78736cd615f374d3085123a210448e74fc6393": {}, // Rocket Pool rETH
	"0xbe9895146f7af43049ca1c1ae358b0541ea49704": {}, // Coinbase cbETH
	"0x5e8422345238f34275888049021821e8e08caa1f": {}, // Frax frxETH
	"0xac3e018457b222d93114458476f3e3416abbe38f": {}, // Frax sfrxETH
	"0x35fa164735182de50811e8e2e824cfb9b6118ac2": {}, // ether.fi eETH
	"0xcd5fe23c85820f7b72d0926fc9b05b43e359b7ee": {}, // ether.fi weETH
	"0xf1c9acdc66974dfb6decb12aa385b9cd01190e38": {}, // StakeWise osETH
	"0xf951e335afb289353dc249e82926178eac7ded78": {}, // Swell swETH
}

// ethSymbolBasket matches ETH/LST rows on any chain by exact symbol.
var ethSymbolBasket = map[string]struct{}{
	"ETH": {}, "WETH": {},
	"STETH": {}, "WSTETH": {},
	"RETH": {}, "CBETH": {},
	"FRXETH": {}, "SFRXETH": {},
	"EETH": {}, "WEETH": {},
	"OSETH": {}, "SWETH": {},
}

// ClientConfig holds the tunable client behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	MaxPages       int
	RecordsPerPage int
	SMFilters      []string
}

// Client provides access to the Nansen API.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	config     ClientConfig
}

// NewClient creates a new Nansen client.
func NewClient(apiURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.RecordsPerPage <= 0 {
		cfg.RecordsPerPage = 100
	}
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// tokenInflow is one row of the smart-money inflows response.
type tokenInflow struct {
	Chain        string   `json:"chain"`
	TokenAddress string   `json:"tokenAddress"`
	Symbol       string   `json:"symbol"`
	TokenSymbol  string   `json:"tokenSymbol"`
	Volume24hUSD *float64 `json:"volume24hUSD"`
	Volume7dUSD  *float64 `json:"volume7dUSD"`
	Volume30dUSD *float64 `json:"volume30dUSD"`
}

func (t tokenInflow) normalizedSymbol() string {
	sym := t.Symbol
	if sym == "" {
		sym = t.TokenSymbol
	}
	sym = strings.ReplaceAll(sym, "🌱", "")
	return strings.ToUpper(strings.TrimSpace(sym))
}

func (t tokenInflow) inBasket() bool {
	if strings.ToLower(t.Chain) == "ethereum" {
		if _, ok := ethAddressBasket[strings.ToLower(t.TokenAddress)]; ok {
			return true
		}
	}
	_, ok := ethSymbolBasket[t.normalizedSymbol()]
	return ok
}

// FetchSmartMoneyFlow pages through the smart-money inflows endpoint,
// aggregates the ETH/LST basket rows, and returns the day's flow observation.
// ETH rows appear beyond page 1, so all configured pages are scanned.
func (c *Client) FetchSmartMoneyFlow(ctx context.Context, date time.Time) (models.Observation, error) {
	var all []tokenInflow
	fetched := 0

	for page := 1; page <= c.config.MaxPages; page++ {
		payload := map[string]any{
			"parameters": map[string]any{
				"smFilter":            c.config.SMFilters,
				"chains":              []string{"ethereum"},
				"includeStablecoin":   false,
				"includeNativeTokens": true,
				"excludeSmFilter":     []string{},
			},
			"pagination": map[string]any{
				"page":           page,
				"recordsPerPage": c.config.RecordsPerPage,
			},
		}

		var rows []tokenInflow
		if err := c.doPost(ctx, c.apiURL+"/smart-money/inflows", payload, &rows); err != nil {
			logger.Warn("Smart-money inflows page %d failed: %v", page, err)
			continue
		}
		if len(rows) == 0 {
			break
		}
		fetched += len(rows)
		all = append(all, lo.Filter(rows, func(r tokenInflow, _ int) bool { return r.inBasket() })...)
	}

	if fetched == 0 {
		return models.Observation{}, fmt.Errorf("smart-money inflows returned no data on any page")
	}

	unique := lo.UniqBy(all, func(r tokenInflow) string { return strings.ToLower(r.TokenAddress) })
	total := lo.SumBy(unique, func(r tokenInflow) float64 { return deref(r.Volume24hUSD) })
	logger.Info("Smart-money basket aggregation: %d rows, %d unique tokens, 24h flow $%.0f",
		fetched, len(unique), total)

	return models.Observation{
		Date:   models.Day(date),
		Asset:  BasketAsset,
		Chain:  "",
		Source: models.SourceNansen,
		Metric: models.MetricSmartMoneyFlow,
		Value:  total,
	}, nil
}

// FetchExchangeFlow queries flow intelligence for the day's net flow onto
// exchanges in USD. Payload variants are tried in order because native-ETH
// requests are rejected for some API keys. Returns ok=false when no variant
// yields a usable value; callers record the day as missing and continue.
func (c *Client) FetchExchangeFlow(ctx context.Context, date time.Time) (models.Observation, bool, error) {
	payloads := []map[string]any{
		{"parameters": map[string]any{"chain": "ethereum", "tokenAddress": wethAddress, "timeframe": "1d"}},
		{"parameters": map[string]any{"chain": "ethereum", "timeframe": "1d"}},
	}

	var lastErr error
	for _, payload := range payloads {
		var raw json.RawMessage
		if err := c.doPost(ctx, c.apiURL+"/tgm/flow-intelligence", payload, &raw); err != nil {
			lastErr = err
			continue
		}

		records, err := decodeFlowRecords(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if len(records) == 0 {
			return models.Observation{}, false, nil
		}

		value, ok := exchangeFlowValue(records[0])
		if !ok {
			return models.Observation{}, false, nil
		}
		return models.Observation{
			Date:   models.Day(date),
			Asset:  BasketAsset,
			Chain:  "ethereum",
			Source: models.SourceNansen,
			Metric: models.MetricExchangeNetFlow,
			Value:  value,
		}, true, nil
	}

	return models.Observation{}, false, fmt.Errorf("flow intelligence failed on all payloads: %w", lastErr)
}

// decodeFlowRecords handles both response shapes: a bare array and a
// {"data": [...]} wrapper.
func decodeFlowRecords(raw json.RawMessage) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}
	var wrapped struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected flow-intelligence response shape: %w", err)
	}
	return wrapped.Data, nil
}

// exchangeFlowValue pulls the net exchange flow out of a record, tolerating
// the field-name drift seen across API versions.
func exchangeFlowValue(record map[string]any) (float64, bool) {
	for _, key := range []string{"exchangeFlowUSD", "exchangeFlow", "exchangeNetflowUSD", "exchangeNetflow"} {
		if v, ok := record[key]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// doPost performs a POST request with retry and decodes the JSON response.
func (c *Client) doPost(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < c.config.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("apiKey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "*/*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(c.config.RetryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status: %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				return lastErr
			}
			time.Sleep(c.config.RetryDelayBase * time.Duration(i+1))
			continue
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

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
