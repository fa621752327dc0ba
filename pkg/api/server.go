package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/smartswap/params"
	"github.com/uhyunpark/smartswap/pkg/app/core/numeric"
	"github.com/uhyunpark/smartswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/smartswap/pkg/app/core/pricing"
	"github.com/uhyunpark/smartswap/pkg/app/core/swap"
	"github.com/uhyunpark/smartswap/pkg/app/smartswap"
	"github.com/uhyunpark/smartswap/pkg/pricesource"
	"github.com/uhyunpark/smartswap/pkg/util"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server exposes the App over REST and streams ledger changes over
// WebSocket.
type Server struct {
	app     *smartswap.App
	cfg     params.API
	router  *mux.Router
	hub     *Hub
	metrics *Metrics
	log     *zap.SugaredLogger
}

// NewServer builds the routes and installs the App's order hooks, so it
// must be called before the App starts taking orders.
func NewServer(app *smartswap.App, cfg params.API, logger *zap.SugaredLogger) *Server {
	logger = util.OrNop(logger)
	metrics := NewMetrics()
	s := &Server{
		app:     app,
		cfg:     cfg,
		router:  mux.NewRouter(),
		hub:     NewHub(logger, metrics),
		metrics: metrics,
		log:     logger,
	}

	app.OnOrderAdded = s.onOrderAdded
	app.OnOrderDeleted = s.onOrderDeleted
	metrics.openOrders.Set(float64(app.OrderCount()))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.handle(s.router, "/", "root", s.handleRoot, http.MethodGet)
	s.handle(s.router, "/health", "health", s.handleHealth, http.MethodGet)
	s.handle(s.router, "/api", "root", s.handleRoot, http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	s.handle(api, "/", "root", s.handleRoot, http.MethodGet)
	s.handle(api, "/health", "health", s.handleHealth, http.MethodGet)

	// Ledger
	s.handle(api, "/orderbook/add", "orderbook_add", s.handleAddOrder, http.MethodPost)
	s.handle(api, "/orderbook/list", "orderbook_list", s.handleListOrders, http.MethodGet)
	s.handle(api, "/orderbook/delete", "orderbook_delete", s.handleDeleteOrder, http.MethodPost)

	// Quotes
	s.handle(api, "/swap/mock", "swap_mock", s.handleSwapMock, http.MethodPost)
	s.handle(api, "/swap/quote", "swap_quote", s.handleQuote, http.MethodGet)

	// Prices
	s.handle(api, "/pricing/price", "pricing_price", s.handleLegacyPrice, http.MethodGet)
	s.handle(api, "/pricing/source", "pricing_source", s.handleSourcePrice, http.MethodGet)
	s.handle(api, "/pricing/uniswap", "pricing_uniswap", s.handleUniswapPrice, http.MethodGet)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/ws", s.metrics.instrument("ws", s.handleWebSocket))
}

func (s *Server) handle(r *mux.Router, path, name string, h http.HandlerFunc, methods ...string) {
	r.Handle(path, s.metrics.instrument(name, h)).Methods(methods...)
}

// Handler returns the router wrapped in the configured CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.log.Infow("api_server_starting", "addr", addr, "price_source", s.app.PriceSource().Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Infow("api_server_stopping", "addr", addr)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, StatusResponse{Status: "SmartSwap backend live"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	var req orderbook.AddOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.app.AddOrder(req)
	if err != nil {
		respondValidationError(w, err)
		return
	}
	respondJSON(w, AddOrderResponse{OrderID: id.String(), Status: "ok"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.app.Orders()
	response := OrderListResponse{Orders: make([]OrderInfo, len(orders))}
	for i, o := range orders {
		response.Orders[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	var req DeleteOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order id", err.Error())
		return
	}
	if !s.app.DeleteOrder(id) {
		respondError(w, http.StatusNotFound, "Order not found", "")
		return
	}
	respondJSON(w, StatusResponse{Status: "deleted"})
}

func (s *Server) handleSwapMock(w http.ResponseWriter, r *http.Request) {
	var req SwapMockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.app.Quote(req.AmountIn, req.Price)
	if err != nil {
		respondValidationError(w, err)
		return
	}
	respondJSON(w, SwapMockResponse{AmountOut: numeric.Text(out), Price: req.Price})
}

// handleQuote multiplies by the caller's price when one is given and by
// the configured source's price otherwise.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, amountIn := q.Get("from_token"), q.Get("to_token"), q.Get("amount_in")

	if q.Has("price") {
		price := q.Get("price")
		out, err := s.app.Quote(amountIn, price)
		if err != nil {
			respondValidationError(w, err)
			return
		}
		respondJSON(w, QuoteResponse{AmountOut: numeric.Text(out), Price: price, FromToken: from, ToToken: to})
		return
	}

	out, price, err := s.app.MarketQuote(r.Context(), from, to, amountIn)
	source := s.app.PriceSource().Name()
	if err != nil {
		if isValidationError(err) {
			respondValidationError(w, err)
			return
		}
		s.metrics.priceLookup(source, err)
		respondError(w, http.StatusBadRequest, "price lookup failed", err.Error())
		return
	}
	s.metrics.priceLookup(source, nil)
	respondJSON(w, QuoteResponse{
		AmountOut: numeric.Text(out),
		Price:     numeric.Text(price),
		FromToken: from,
		ToToken:   to,
		Source:    source,
	})
}

func (s *Server) handleLegacyPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := pricing.GetPrice(q.Get("from"), q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unknown pair", err.Error())
		return
	}
	respondJSON(w, LegacyPriceResponse{Price: price.String()})
}

func (s *Server) handleSourcePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := optionalAmount(q.Get("amount"))
	if err != nil {
		respondValidationError(w, err)
		return
	}

	source := s.app.PriceSource().Name()
	price, err := s.app.Price(r.Context(), q.Get("from"), q.Get("to"), amount)
	s.metrics.priceLookup(source, err)
	if err != nil {
		respondError(w, http.StatusBadRequest, "price lookup failed", err.Error())
		return
	}
	respondJSON(w, SourcePriceResponse{Price: price, Source: source})
}

// handleUniswapPrice reports the pool price with the reserves behind it. It
// only works when the process was started with the uniswap source.
func (s *Server) handleUniswapPrice(w http.ResponseWriter, r *http.Request) {
	pool, ok := pricesource.AsUniswapV2(s.app.PriceSource())
	if !ok {
		respondError(w, http.StatusBadRequest, "uniswap price source not configured",
			"active source is "+s.app.PriceSource().Name())
		return
	}

	q := r.URL.Query()
	if _, err := optionalAmount(q.Get("amount")); err != nil {
		respondValidationError(w, err)
		return
	}

	price, res, err := pool.PriceWithReserves(r.Context(), q.Get("from"), q.Get("to"))
	s.metrics.priceLookup(pool.Name(), err)
	if err != nil {
		s.log.Warnw("price_lookup_failed", "source", pool.Name(), "base", q.Get("from"), "quote", q.Get("to"), "err", err)
		respondError(w, http.StatusBadRequest, "price lookup failed", err.Error())
		return
	}

	cfg := pool.Config()
	respondJSON(w, UniswapPriceResponse{
		Price:  price.InexactFloat64(),
		Source: pool.Name(),
		Pool: &PoolReserves{
			Address:            cfg.Pool.Hex(),
			Token0:             cfg.Token0,
			Token1:             cfg.Token1,
			Reserve0:           res.Reserve0.String(),
			Reserve1:           res.Reserve1.String(),
			Scaled0:            res.Scaled0.String(),
			Scaled1:            res.Scaled1.String(),
			BlockTimestampLast: res.BlockTimestampLast,
		},
	})
}

// ==============================
// Order Events
// ==============================

func (s *Server) onOrderAdded(o orderbook.Order) {
	s.metrics.orderEvent("order_added", s.app.OrderCount())
	info := orderInfo(o)
	s.hub.BroadcastToChannel(OrdersChannel, OrderEvent{
		Type:      "order_added",
		Order:     &info,
		OrderID:   info.ID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) onOrderDeleted(id uuid.UUID) {
	s.metrics.orderEvent("order_deleted", s.app.OrderCount())
	s.hub.BroadcastToChannel(OrdersChannel, OrderEvent{
		Type:      "order_deleted",
		OrderID:   id.String(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

func orderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		ID:     o.ID.String(),
		Base:   o.Base,
		Quote:  o.Quote,
		Amount: numeric.Text(o.Amount),
		Price:  numeric.Text(o.Price),
		Side:   o.Side.String(),
	}
}

func optionalAmount(text string) (*decimal.Decimal, error) {
	if text == "" {
		return nil, nil
	}
	d, err := numeric.Parse(text)
	if err != nil {
		return nil, err
	}
	if !numeric.Positive(d) {
		return nil, swap.ErrInvalidAmount
	}
	return &d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func isValidationError(err error) bool {
	var perr *numeric.ParseError
	return errors.As(err, &perr) ||
		errors.Is(err, orderbook.ErrInvalidAmount) ||
		errors.Is(err, orderbook.ErrInvalidPrice) ||
		errors.Is(err, orderbook.ErrInvalidSide) ||
		errors.Is(err, swap.ErrInvalidAmount) ||
		errors.Is(err, swap.ErrInvalidPrice)
}

// respondValidationError maps input errors to 400 with the labels the
// frontend matches on. Anything else is a 500.
func respondValidationError(w http.ResponseWriter, err error) {
	var perr *numeric.ParseError
	switch {
	case errors.As(err, &perr):
		respondError(w, http.StatusBadRequest, "Invalid number format", err.Error())
	case errors.Is(err, orderbook.ErrInvalidSide):
		respondError(w, http.StatusBadRequest, "Invalid side", err.Error())
	case isValidationError(err):
		respondError(w, http.StatusBadRequest, "Invalid amount or price", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
