package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/smartswap/pkg/util"
)

const (
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	defaultCoinGeckoTimeout = 10 * time.Second
)

type CoinGeckoConfig struct {
	BaseURL string        // defaults to DefaultCoinGeckoBaseURL
	APIKey  string        // optional demo key, sent as x-cg-demo-api-key
	Timeout time.Duration // per request
}

// CoinGecko looks prices up with the /simple/price endpoint.
type CoinGecko struct {
	baseURL string
	client  *util.HTTPClient
}

func NewCoinGecko(cfg CoinGeckoConfig) *CoinGecko {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinGeckoBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCoinGeckoTimeout
	}
	client := util.NewHTTPClient(cfg.Timeout)
	if cfg.APIKey != "" {
		client.Headers = map[string]string{"x-cg-demo-api-key": cfg.APIKey}
	}
	return &CoinGecko{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client}
}

func (*CoinGecko) Name() string { return string(KindCoinGecko) }

// GetPrice makes a single request; amount is ignored.
func (c *CoinGecko) GetPrice(ctx context.Context, base, quote string, _ *decimal.Decimal) (float64, error) {
	id := coinID(base)
	vs := vsCurrency(quote)

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("coingecko: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// {"ethereum":{"usd":3201.5}}
	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("coingecko: malformed response: %w", err)
	}
	price, ok := payload[id][vs]
	if !ok {
		return 0, &PairError{Base: base, Quote: quote, Err: ErrPriceNotFound}
	}
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return 0, fmt.Errorf("coingecko: invalid price %v for %s/%s", price, base, quote)
	}
	return price, nil
}

// coinID maps a ticker to a CoinGecko coin id.
func coinID(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "ETH":
		return "ethereum"
	case "WBTC":
		return "wrapped-bitcoin"
	case "BTC":
		return "bitcoin"
	case "USDT":
		return "tether"
	case "BNB", "WBNB":
		return "binancecoin"
	default:
		return strings.ToLower(symbol)
	}
}

// vsCurrency maps a quote ticker to a CoinGecko vs_currency code.
func vsCurrency(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "USDT", "USDC", "USD":
		return "usd"
	case "WBTC", "BTC":
		return "btc"
	case "WBNB", "BNB":
		return "bnb"
	default:
		return strings.ToLower(symbol)
	}
}
