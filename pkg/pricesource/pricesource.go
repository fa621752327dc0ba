// Package pricesource supplies unit prices for token pairs from
// interchangeable sources: a static table, the CoinGecko REST API, and
// Uniswap V2 style pool reserves read over JSON-RPC.
//
// Every source is safe for concurrent use and computes a fresh price on
// each call. Nothing is cached and failed lookups are not retried.
package pricesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=pricesource.go -destination=pricesourcemock/pricesource_mock.go -package=pricesourcemock

// PriceSource returns how many units of quote one unit of base is worth.
// amount is the trade size for sources that take it into account; it may
// be nil.
type PriceSource interface {
	Name() string
	GetPrice(ctx context.Context, base, quote string, amount *decimal.Decimal) (float64, error)
}

var (
	// ErrNoPriceForPair is returned by the static table for unlisted pairs.
	ErrNoPriceForPair = errors.New("no price for pair")
	// ErrPairNotSupported is returned when a pool does not hold the pair.
	ErrPairNotSupported = errors.New("pair not supported")
	// ErrPriceNotFound is returned when an upstream response lacks the price.
	ErrPriceNotFound = errors.New("price not found")
	// ErrNoLiquidity is returned when a pool reserve is zero.
	ErrNoLiquidity = errors.New("pool has no liquidity")
)

// PairError ties a lookup failure to the requested pair.
type PairError struct {
	Base  string
	Quote string
	Err   error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("%v: %s/%s", e.Err, e.Base, e.Quote)
}

func (e *PairError) Unwrap() error { return e.Err }

// Kind names a source implementation. It is what configuration selects and
// what diagnostics use to tell sources apart.
type Kind string

const (
	KindMock      Kind = "mock"
	KindCoinGecko Kind = "coingecko"
	KindUniswapV2 Kind = "uniswap"
)

// ParseKind accepts the configuration spelling of a source kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMock, KindCoinGecko, KindUniswapV2:
		return k, nil
	case "":
		return KindMock, nil
	default:
		return "", fmt.Errorf("unknown price source %q", s)
	}
}

// KindOf reports which implementation backs src, or "" for sources defined
// outside this package.
func KindOf(src PriceSource) Kind {
	switch src.(type) {
	case *Static:
		return KindMock
	case *CoinGecko:
		return KindCoinGecko
	case *UniswapV2:
		return KindUniswapV2
	default:
		return ""
	}
}

// AsUniswapV2 recovers the pool source behind src for pool diagnostics.
func AsUniswapV2(src PriceSource) (*UniswapV2, bool) {
	u, ok := src.(*UniswapV2)
	return u, ok
}

// Options selects and configures the process-wide source.
type Options struct {
	Kind      Kind
	CoinGecko CoinGeckoConfig
	UniswapV2 UniswapV2Config
}

// New builds the source named by opts.Kind.
func New(ctx context.Context, opts Options) (PriceSource, error) {
	switch opts.Kind {
	case KindMock, "":
		return NewStatic(), nil
	case KindCoinGecko:
		return NewCoinGecko(opts.CoinGecko), nil
	case KindUniswapV2:
		return NewUniswapV2(ctx, opts.UniswapV2)
	default:
		return nil, fmt.Errorf("unknown price source %q", opts.Kind)
	}
}
