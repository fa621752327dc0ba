package orderbook

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide normalizes side text case-insensitively ("buy", "Sell", ...).
func ParseSide(text string) (Side, error) {
	switch strings.ToUpper(text) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

// MarshalText renders the side as "BUY" or "SELL".
func (s Side) MarshalText() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, ErrInvalidSide
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts "BUY" or "SELL" in any case.
func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// Order is a recorded trade intent. Orders are never mutated once stored.
type Order struct {
	ID     uuid.UUID
	Base   string
	Quote  string
	Amount decimal.Decimal // always > 0
	Price  decimal.Decimal // always > 0
	Side   Side
}

// AddOrderRequest carries unvalidated caller input.
type AddOrderRequest struct {
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Side   string `json:"side"` // "BUY" / "SELL", any case
}
