package pricesource

import (
	"context"

	"github.com/shopspring/decimal"
)

type pair struct{ base, quote string }

var staticPrices = map[pair]float64{
	{"ETH", "USDT"}:  3200.0,
	{"USDT", "ETH"}:  1.0 / 3200.0,
	{"WBTC", "USDT"}: 67000.0,
	{"USDT", "WBTC"}: 1.0 / 67000.0,
}

// Static serves prices from a fixed table. It is deterministic and does no
// I/O, which makes it the default source and the one tests rely on.
type Static struct{}

// NewStatic returns the fixed-table source.
func NewStatic() *Static { return &Static{} }

func (*Static) Name() string { return string(KindMock) }

func (*Static) GetPrice(_ context.Context, base, quote string, _ *decimal.Decimal) (float64, error) {
	p, ok := staticPrices[pair{base, quote}]
	if !ok {
		return 0, &PairError{Base: base, Quote: quote, Err: ErrNoPriceForPair}
	}
	return p, nil
}
