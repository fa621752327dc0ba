package orderbook

import "errors"

// Validation failures returned by AddOrder. Malformed numbers are reported
// as *numeric.ParseError instead.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidSide   = errors.New("invalid side")
)
