package api

// Request and response bodies for the REST endpoints and websocket events.
// Decimal quantities travel as strings so no precision is lost on the wire.

// ==============================
// Requests
// ==============================

// DeleteOrderRequest identifies the order to remove.
type DeleteOrderRequest struct {
	ID string `json:"id"`
}

// SwapMockRequest asks for amount_in * price without touching the ledger.
type SwapMockRequest struct {
	AmountIn string `json:"amount_in"`
	Price    string `json:"price"`
}

// ==============================
// Responses
// ==============================

type StatusResponse struct {
	Status string `json:"status"`
}

type AddOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// OrderInfo is one ledger entry as the frontend sees it.
type OrderInfo struct {
	ID     string `json:"id"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Side   string `json:"side"` // "BUY" or "SELL"
}

type OrderListResponse struct {
	Orders []OrderInfo `json:"orders"`
}

type SwapMockResponse struct {
	AmountOut string `json:"amount_out"`
	Price     string `json:"price"`
}

// QuoteResponse echoes the pair. Source is set when the price came from
// the configured price source rather than the caller.
type QuoteResponse struct {
	AmountOut string `json:"amount_out"`
	Price     string `json:"price"`
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	Source    string `json:"source,omitempty"`
}

// LegacyPriceResponse carries an exact table price, trailing zeros trimmed.
type LegacyPriceResponse struct {
	Price string `json:"price"`
}

type SourcePriceResponse struct {
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

// PoolReserves describes the pool behind a uniswap price.
type PoolReserves struct {
	Address            string `json:"address"`
	Token0             string `json:"token0"`
	Token1             string `json:"token1"`
	Reserve0           string `json:"reserve0"` // raw integer units
	Reserve1           string `json:"reserve1"`
	Scaled0            string `json:"scaled0"` // reserve / 10^decimals
	Scaled1            string `json:"scaled1"`
	BlockTimestampLast uint32 `json:"block_timestamp_last"`
}

type UniswapPriceResponse struct {
	Price  float64       `json:"price"`
	Source string        `json:"source"`
	Pool   *PoolReserves `json:"pool,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Messages
// ==============================

// WSSubscribeRequest is sent by clients to change subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// OrderEvent is pushed on the "orders" channel.
type OrderEvent struct {
	Type      string     `json:"type"` // "order_added" or "order_deleted"
	Order     *OrderInfo `json:"order,omitempty"`
	OrderID   string     `json:"order_id"`
	Timestamp int64      `json:"timestamp"` // Unix milliseconds
}
