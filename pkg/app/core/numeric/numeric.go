// Package numeric converts caller-supplied text into exact fixed-point
// decimals. Values keep the scale they were written with, so "3100.00"
// and "3100" compare equal but render differently.
package numeric

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds of a 96-bit mantissa with at most 28 fractional digits. Anything
// larger is refused so arithmetic and rendering stay cheap.
const MaxScale = 28

var maxCoefficient, _ = new(big.Int).SetString("79228162514264337593543950335", 10)

// ParseError reports text that is not a decimal number.
// Detail carries the parser's own diagnostic.
type ParseError struct {
	Input  string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Detail)
}

// Parse converts plain decimal text into a decimal without rounding.
// Exponent notation, more than MaxScale fractional digits and values whose
// digits do not fit 96 bits are rejected.
func Parse(text string) (decimal.Decimal, error) {
	if strings.ContainsAny(text, "eE") {
		return decimal.Decimal{}, &ParseError{Input: text, Detail: "exponent notation is not accepted"}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Input: text, Detail: err.Error()}
	}
	if scale := -d.Exponent(); scale > MaxScale {
		return decimal.Decimal{}, &ParseError{Input: text, Detail: fmt.Sprintf("scale %d exceeds %d", scale, MaxScale)}
	}
	if new(big.Int).Abs(d.Coefficient()).Cmp(maxCoefficient) > 0 {
		return decimal.Decimal{}, &ParseError{Input: text, Detail: "too many significant digits"}
	}
	return d, nil
}

// Positive reports whether d is strictly greater than zero.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Text renders d exactly, keeping trailing zeros implied by its scale.
// decimal.Decimal.String trims them, which would turn "3100.00" into "3100".
func Text(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
