package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/uhyunpark/smartswap/params"
	"github.com/uhyunpark/smartswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/smartswap/pkg/app/smartswap"
	"github.com/uhyunpark/smartswap/pkg/pricesource"
	"github.com/uhyunpark/smartswap/pkg/pricesource/pricesourcemock"
)

func newTestServer(t *testing.T, src pricesource.PriceSource) (*Server, *smartswap.App) {
	t.Helper()
	app := smartswap.NewApp(src, nil)
	return NewServer(app, params.Default().API, nil), app
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, path := range []string{"/", "/api", "/api/"} {
		rec := do(t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "SmartSwap backend live", decode[StatusResponse](t, rec).Status)
	}
	for _, path := range []string{"/health", "/api/health"} {
		rec := do(t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ok", decode[StatusResponse](t, rec).Status)
	}
}

func TestOrderLifecycle(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/orderbook/add", map[string]string{
		"base": "ETH", "quote": "USDT", "amount": "1.5", "price": "3100.00", "side": "buy",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decode[AddOrderResponse](t, rec)
	assert.Equal(t, "ok", added.Status)
	assert.NotEmpty(t, added.OrderID)

	rec = do(t, s, http.MethodGet, "/api/orderbook/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[OrderListResponse](t, rec)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, OrderInfo{
		ID: added.OrderID, Base: "ETH", Quote: "USDT", Amount: "1.5", Price: "3100.00", Side: "BUY",
	}, list.Orders[0])

	rec = do(t, s, http.MethodPost, "/api/orderbook/delete", DeleteOrderRequest{ID: added.OrderID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decode[StatusResponse](t, rec).Status)

	rec = do(t, s, http.MethodPost, "/api/orderbook/delete", DeleteOrderRequest{ID: added.OrderID})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Order not found", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, http.MethodGet, "/api/orderbook/list", nil)
	assert.Empty(t, decode[OrderListResponse](t, rec).Orders)
}

func TestAddOrderRejections(t *testing.T) {
	s, app := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   map[string]string
		expect string
	}{
		{"bad amount text", map[string]string{"amount": "abc", "price": "1", "side": "BUY"}, "Invalid number format"},
		{"bad price text", map[string]string{"amount": "1", "price": "", "side": "BUY"}, "Invalid number format"},
		{"zero amount", map[string]string{"amount": "0", "price": "1", "side": "BUY"}, "Invalid amount or price"},
		{"negative price", map[string]string{"amount": "1", "price": "-2", "side": "SELL"}, "Invalid amount or price"},
		{"bad side", map[string]string{"amount": "1", "price": "1", "side": "HOLD"}, "Invalid side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.body["base"], tt.body["quote"] = "ETH", "USDT"
			rec := do(t, s, http.MethodPost, "/api/orderbook/add", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.expect, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Zero(t, app.OrderCount())
}

func TestMalformedBodies(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/orderbook/add", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/orderbook/delete", DeleteOrderRequest{ID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid order id", decode[ErrorResponse](t, rec).Error)
}

func TestSwapMock(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/swap/mock", SwapMockRequest{AmountIn: "1.5", Price: "3000.0"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SwapMockResponse](t, rec)
	assert.Equal(t, "4500.00", got.AmountOut)
	assert.Equal(t, "3000.0", got.Price)

	rec = do(t, s, http.MethodPost, "/api/swap/mock", SwapMockRequest{AmountIn: "1", Price: "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid amount or price", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/swap/mock", SwapMockRequest{AmountIn: "1e2000000000", Price: "1e2000000000"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid number format", decode[ErrorResponse](t, rec).Error)
}

func TestQuoteWithExplicitPrice(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/swap/quote?from_token=ETH&to_token=USDT&amount_in=2&price=3100.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[QuoteResponse](t, rec)
	assert.Equal(t, QuoteResponse{AmountOut: "6201.0", Price: "3100.5", FromToken: "ETH", ToToken: "USDT"}, got)

	rec = do(t, s, http.MethodGet, "/api/swap/quote?from_token=ETH&to_token=USDT&amount_in=x&price=1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid number format", decode[ErrorResponse](t, rec).Error)
}

func TestQuoteFromSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := pricesourcemock.NewMockPriceSource(ctrl)
	src.EXPECT().Name().Return("double").AnyTimes()
	src.EXPECT().GetPrice(gomock.Any(), "ETH", "USDT", gomock.Any()).Return(3200.0, nil)
	src.EXPECT().GetPrice(gomock.Any(), "DOGE", "USDT", gomock.Any()).
		Return(0.0, &pricesource.PairError{Base: "DOGE", Quote: "USDT", Err: pricesource.ErrNoPriceForPair})

	s, _ := newTestServer(t, src)

	rec := do(t, s, http.MethodGet, "/api/swap/quote?from_token=ETH&to_token=USDT&amount_in=1.5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[QuoteResponse](t, rec)
	assert.Equal(t, "4800", got.AmountOut)
	assert.Equal(t, "3200", got.Price)
	assert.Equal(t, "double", got.Source)

	rec = do(t, s, http.MethodGet, "/api/swap/quote?from_token=DOGE&to_token=USDT&amount_in=1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "no price for pair")

	rec = do(t, s, http.MethodGet, "/api/swap/quote?from_token=ETH&to_token=USDT&amount_in=0", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid amount or price", decode[ErrorResponse](t, rec).Error)
}

func TestLegacyPrice(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/pricing/price?from=BTC&to=USDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60000", decode[LegacyPriceResponse](t, rec).Price)

	rec = do(t, s, http.MethodGet, "/api/pricing/price?from=USDT&to=ETH", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.0003125", decode[LegacyPriceResponse](t, rec).Price)

	rec = do(t, s, http.MethodGet, "/api/pricing/price?from=DOGE&to=USDT", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown pair", decode[ErrorResponse](t, rec).Error)
}

func TestSourcePriceStatic(t *testing.T) {
	s, _ := newTestServer(t, pricesource.NewStatic())

	rec := do(t, s, http.MethodGet, "/api/pricing/source?from=ETH&to=USDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SourcePriceResponse](t, rec)
	assert.Equal(t, 3200.0, got.Price)
	assert.Equal(t, "mock", got.Source)

	rec = do(t, s, http.MethodGet, "/api/pricing/source?from=ETH&to=DAI", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/pricing/source?from=ETH&to=USDT&amount=lots", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid number format", decode[ErrorResponse](t, rec).Error)
}

func TestSourcePricePassesAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := pricesourcemock.NewMockPriceSource(ctrl)
	src.EXPECT().Name().Return("double").AnyTimes()
	src.EXPECT().GetPrice(gomock.Any(), "ETH", "USDT", gomock.Not(gomock.Nil())).Return(3199.5, nil)

	s, _ := newTestServer(t, src)
	rec := do(t, s, http.MethodGet, "/api/pricing/source?from=ETH&to=USDT&amount=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3199.5, decode[SourcePriceResponse](t, rec).Price)
}

// reservesCaller answers getReserves with ABI-encoded words.
type reservesCaller struct {
	r0, r1 *big.Int
	ts     int64
	err    error
}

func (c reservesCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []byte
	out = append(out, common.LeftPadBytes(c.r0.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(c.r1.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(c.ts).Bytes(), 32)...)
	return out, nil
}

func TestUniswapPrice(t *testing.T) {
	pool := common.HexToAddress("0x16b9a82891338f9ba80e2d6970fdda79d1eb0dae")
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	src := pricesource.NewUniswapV2WithCaller(pricesource.UniswapV2Config{
		Pool: pool, Token0: "USDT", Token1: "WBNB", Decimals0: 18, Decimals1: 18,
	}, reservesCaller{
		r0: new(big.Int).Mul(big.NewInt(600_000), wei),
		r1: new(big.Int).Mul(big.NewInt(1_000), wei),
		ts: 1_700_000_000,
	})
	s, _ := newTestServer(t, src)

	rec := do(t, s, http.MethodGet, "/api/pricing/uniswap?from=WBNB&to=USDT", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[UniswapPriceResponse](t, rec)
	assert.InDelta(t, 600.0, got.Price, 1e-9)
	assert.Equal(t, "uniswap", got.Source)
	require.NotNil(t, got.Pool)
	assert.Equal(t, pool.Hex(), got.Pool.Address)
	assert.Equal(t, "600000", got.Pool.Scaled0)
	assert.Equal(t, "1000", got.Pool.Scaled1)
	assert.Equal(t, uint32(1_700_000_000), got.Pool.BlockTimestampLast)

	rec = do(t, s, http.MethodGet, "/api/pricing/uniswap?from=ETH&to=USDT", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "pair not supported")
}

func TestUniswapPriceProviderFailure(t *testing.T) {
	src := pricesource.NewUniswapV2WithCaller(pricesource.UniswapV2Config{
		Token0: "USDT", Token1: "WBNB", Decimals0: 18, Decimals1: 18,
	}, reservesCaller{err: errors.New("dial tcp: connection refused")})
	s, _ := newTestServer(t, src)

	rec := do(t, s, http.MethodGet, "/api/pricing/uniswap?from=WBNB&to=USDT", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "get reserves failed")
}

func TestUniswapPriceRequiresUniswapSource(t *testing.T) {
	s, _ := newTestServer(t, pricesource.NewStatic())

	rec := do(t, s, http.MethodGet, "/api/pricing/uniswap?from=WBNB&to=USDT", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "uniswap price source not configured", decode[ErrorResponse](t, rec).Error)
}

func TestMetricsExposeLedgerSize(t *testing.T) {
	s, app := newTestServer(t, nil)

	_, err := app.AddOrder(smartswapOrder("1", "3200"))
	require.NoError(t, err)
	do(t, s, http.MethodGet, "/api/orderbook/list", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "api_orders_open 1")
	assert.Contains(t, body, `api_order_events_total{event="order_added"} 1`)
	assert.Contains(t, body, `api_http_requests_total{code="200",handler="orderbook_list",method="get"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/orderbook/add", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/orderbook/add", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketOrderEvents(t *testing.T) {
	s, app := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	id, err := app.AddOrder(smartswapOrder("0.50", "67000.00"))
	require.NoError(t, err)
	require.True(t, app.DeleteOrder(id))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var added, deleted OrderEvent
	require.NoError(t, conn.ReadJSON(&added))
	require.NoError(t, conn.ReadJSON(&deleted))

	assert.Equal(t, "order_added", added.Type)
	require.NotNil(t, added.Order)
	assert.Equal(t, id.String(), added.OrderID)
	assert.Equal(t, "0.50", added.Order.Amount)
	assert.Equal(t, "67000.00", added.Order.Price)

	assert.Equal(t, "order_deleted", deleted.Type)
	assert.Equal(t, id.String(), deleted.OrderID)
	assert.Nil(t, deleted.Order)
}

func smartswapOrder(amount, price string) orderbook.AddOrderRequest {
	return orderbook.AddOrderRequest{Base: "WBTC", Quote: "USDT", Amount: amount, Price: price, Side: "SELL"}
}

func TestOpenOrdersGaugeTracksConcurrentWriters(t *testing.T) {
	s, app := newTestServer(t, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				id, err := app.AddOrder(smartswapOrder("1", "3200"))
				if err != nil {
					t.Error(err)
					return
				}
				if i%3 == 0 {
					app.DeleteOrder(id)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(app.OrderCount()), testutil.ToFloat64(s.metrics.openOrders))
	assert.Equal(t, float64(8*40), testutil.ToFloat64(s.metrics.orderEvents.WithLabelValues("order_added")))
}
