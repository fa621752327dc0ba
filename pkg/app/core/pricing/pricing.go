// Package pricing holds the legacy static price table used by the
// /pricing/price endpoint. Prices are exact decimals; configurable
// sources live in pkg/pricesource.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrUnknownPair = errors.New("unknown pair")

var (
	ethUSDT = decimal.NewFromInt(3200)
	btcUSDT = decimal.NewFromInt(60000)
)

// GetPrice returns units of `to` per one unit of `from`.
func GetPrice(from, to string) (decimal.Decimal, error) {
	switch {
	case from == "ETH" && to == "USDT":
		return ethUSDT, nil
	case from == "USDT" && to == "ETH":
		return decimal.NewFromInt(1).Div(ethUSDT), nil
	case from == "BTC" && to == "USDT":
		return btcUSDT, nil
	case from == "USDT" && to == "BTC":
		return decimal.NewFromInt(1).Div(btcUSDT), nil
	default:
		return decimal.Decimal{}, ErrUnknownPair
	}
}
