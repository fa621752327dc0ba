package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/uhyunpark/smartswap/pkg/pricesource"
)

type API struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Log struct {
	// File, when set, receives a copy of every log line.
	File string `yaml:"file"`
}

type CoinGecko struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"-"` // env only
	TimeoutSec int    `yaml:"timeout_sec"`
}

type UniswapV2 struct {
	RPCURL      string `yaml:"rpc_url"`
	PoolAddress string `yaml:"pool_address"`
	Token0      string `yaml:"token0"`
	Token1      string `yaml:"token1"`
	Decimals0   uint8  `yaml:"decimals0"`
	Decimals1   uint8  `yaml:"decimals1"`
}

type PriceSource struct {
	// Kind is one of "mock", "coingecko", "uniswap". It is fixed for the
	// life of the process.
	Kind      string    `yaml:"kind"`
	CoinGecko CoinGecko `yaml:"coingecko"`
	UniswapV2 UniswapV2 `yaml:"uniswap"`
}

type Config struct {
	API         API         `yaml:"api"`
	Log         Log         `yaml:"log"`
	PriceSource PriceSource `yaml:"price_source"`
}

func Default() Config {
	return Config{
		API: API{
			Addr:        "127.0.0.1:8088",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		PriceSource: PriceSource{
			Kind: string(pricesource.KindMock),
			CoinGecko: CoinGecko{
				BaseURL:    pricesource.DefaultCoinGeckoBaseURL,
				TimeoutSec: 10,
			},
			// PancakeSwap USDT/WBNB on BSC; token0 is the lower address (USDT).
			UniswapV2: UniswapV2{
				RPCURL:      "https://bsc-dataseed.binance.org/",
				PoolAddress: "0x16b9a82891338f9ba80e2d6970fdda79d1eb0dae",
				Token0:      "USDT",
				Token1:      "WBNB",
				Decimals0:   18,
				Decimals1:   18,
			},
		},
	}
}

// Load builds the configuration.
// Priority: ENV > .env file > YAML file > defaults
//
// An empty configPath uses ./config.yaml when it exists; an empty envPath
// loads ./.env when it exists. Both files are optional.
func Load(configPath, envPath string) (Config, error) {
	cfg := Default()

	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		}
	}
	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = splitCSV(v)
	}
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	ps := &cfg.PriceSource
	ps.Kind = getEnv("PRICE_SOURCE", ps.Kind)

	ps.CoinGecko.BaseURL = getEnv("COINGECKO_BASE_URL", ps.CoinGecko.BaseURL)
	ps.CoinGecko.APIKey = getEnv("COINGECKO_API_KEY", ps.CoinGecko.APIKey)
	if v := os.Getenv("COINGECKO_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("COINGECKO_TIMEOUT_SEC: want positive integer, got %q", v)
		}
		ps.CoinGecko.TimeoutSec = n
	}

	ps.UniswapV2.RPCURL = getEnv("UNISWAP_RPC_URL", ps.UniswapV2.RPCURL)
	ps.UniswapV2.PoolAddress = getEnv("UNISWAP_POOL_ADDRESS", ps.UniswapV2.PoolAddress)
	ps.UniswapV2.Token0 = getEnv("UNISWAP_TOKEN0", ps.UniswapV2.Token0)
	ps.UniswapV2.Token1 = getEnv("UNISWAP_TOKEN1", ps.UniswapV2.Token1)
	for key, dst := range map[string]*uint8{
		"UNISWAP_DECIMALS0": &ps.UniswapV2.Decimals0,
		"UNISWAP_DECIMALS1": &ps.UniswapV2.Decimals1,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = uint8(n)
		}
	}
	return nil
}

// Validate checks the settings that would otherwise fail at first use.
func (c Config) Validate() error {
	if c.API.Addr == "" {
		return errors.New("api addr is empty")
	}
	kind, err := pricesource.ParseKind(c.PriceSource.Kind)
	if err != nil {
		return err
	}
	if kind == pricesource.KindUniswapV2 {
		u := c.PriceSource.UniswapV2
		if !common.IsHexAddress(u.PoolAddress) {
			return fmt.Errorf("uniswap pool address %q is not a hex address", u.PoolAddress)
		}
		if u.RPCURL == "" {
			return errors.New("uniswap rpc url is empty")
		}
		if u.Token0 == "" || u.Token1 == "" || u.Token0 == u.Token1 {
			return fmt.Errorf("uniswap tokens %q/%q must be two distinct symbols", u.Token0, u.Token1)
		}
		if u.Decimals0 > 36 || u.Decimals1 > 36 {
			return errors.New("uniswap token decimals must be <= 36")
		}
	}
	return nil
}

// PriceSourceOptions converts the configuration for pricesource.New.
func (c Config) PriceSourceOptions() (pricesource.Options, error) {
	kind, err := pricesource.ParseKind(c.PriceSource.Kind)
	if err != nil {
		return pricesource.Options{}, err
	}
	cg := c.PriceSource.CoinGecko
	u := c.PriceSource.UniswapV2
	return pricesource.Options{
		Kind: kind,
		CoinGecko: pricesource.CoinGeckoConfig{
			BaseURL: cg.BaseURL,
			APIKey:  cg.APIKey,
			Timeout: time.Duration(cg.TimeoutSec) * time.Second,
		},
		UniswapV2: pricesource.UniswapV2Config{
			RPCURL:    u.RPCURL,
			Pool:      common.HexToAddress(u.PoolAddress),
			Token0:    u.Token0,
			Token1:    u.Token1,
			Decimals0: u.Decimals0,
			Decimals1: u.Decimals1,
		},
	}, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
