// Package swap computes swap quotes: the counter-amount received for an
// input amount at a unit price. Quotes are pure and safe for concurrent use.
package swap

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/smartswap/pkg/app/core/numeric"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidPrice  = errors.New("invalid price")
)

// GetQuote returns amountIn * price computed exactly.
// amountIn is checked before price.
func GetQuote(amountIn, price decimal.Decimal) (decimal.Decimal, error) {
	if !numeric.Positive(amountIn) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if !numeric.Positive(price) {
		return decimal.Decimal{}, ErrInvalidPrice
	}
	return amountIn.Mul(price), nil
}

// QuoteText parses both operands and quotes them.
// Parse failures are returned as *numeric.ParseError.
func QuoteText(amountIn, price string) (decimal.Decimal, error) {
	a, err := numeric.Parse(amountIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p, err := numeric.Parse(price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return GetQuote(a, p)
}
