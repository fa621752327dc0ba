// Package smartswap wires the order ledger, the quote engine and the
// configured price source into the single App shared by all request
// handlers.
package smartswap

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/smartswap/pkg/app/core/numeric"
	"github.com/uhyunpark/smartswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/smartswap/pkg/app/core/swap"
	"github.com/uhyunpark/smartswap/pkg/pricesource"
	"github.com/uhyunpark/smartswap/pkg/util"
)

type App struct {
	book   *orderbook.OrderBook
	source pricesource.PriceSource
	log    *zap.SugaredLogger

	// events serializes each ledger change with its hook, so hooks observe
	// changes one at a time and in ledger order.
	events sync.Mutex

	// Hooks run after the ledger lock is released but before the next
	// change is applied. They may read the App but must not add or delete
	// orders. Set them before serving.
	OnOrderAdded   func(o orderbook.Order)
	OnOrderDeleted func(id uuid.UUID)
}

func NewApp(source pricesource.PriceSource, logger *zap.SugaredLogger) *App {
	if source == nil {
		source = pricesource.NewStatic()
	}
	return &App{
		book:   orderbook.NewOrderBook(),
		source: source,
		log:    util.OrNop(logger),
	}
}

// PriceSource returns the source chosen at startup.
func (a *App) PriceSource() pricesource.PriceSource { return a.source }

func (a *App) AddOrder(req orderbook.AddOrderRequest) (uuid.UUID, error) {
	a.events.Lock()
	defer a.events.Unlock()

	o, err := a.book.Place(req)
	if err != nil {
		a.log.Infow("order_rejected", "base", req.Base, "quote", req.Quote, "side", req.Side, "err", err)
		return uuid.Nil, err
	}
	a.log.Infow("order_added",
		"id", o.ID,
		"base", o.Base,
		"quote", o.Quote,
		"side", o.Side,
		"amount", numeric.Text(o.Amount),
		"price", numeric.Text(o.Price))
	if a.OnOrderAdded != nil {
		a.OnOrderAdded(o)
	}
	return o.ID, nil
}

func (a *App) Orders() []orderbook.Order { return a.book.Orders() }

func (a *App) OrderCount() int { return a.book.Len() }

func (a *App) DeleteOrder(id uuid.UUID) bool {
	a.events.Lock()
	defer a.events.Unlock()

	if !a.book.DeleteOrder(id) {
		return false
	}
	a.log.Infow("order_deleted", "id", id)
	if a.OnOrderDeleted != nil {
		a.OnOrderDeleted(id)
	}
	return true
}

// Quote multiplies caller-supplied amount and price texts.
func (a *App) Quote(amountIn, price string) (decimal.Decimal, error) {
	return swap.QuoteText(amountIn, price)
}

// Price asks the configured source for a unit price.
func (a *App) Price(ctx context.Context, base, quote string, amount *decimal.Decimal) (float64, error) {
	p, err := a.source.GetPrice(ctx, base, quote, amount)
	if err != nil {
		a.log.Warnw("price_lookup_failed", "source", a.source.Name(), "base", base, "quote", quote, "err", err)
		return 0, err
	}
	return p, nil
}

// MarketQuote quotes amountIn at the price the configured source reports.
// The float price is converted to a decimal here; that conversion is the
// only inexact step.
func (a *App) MarketQuote(ctx context.Context, base, quote, amountIn string) (amountOut, price decimal.Decimal, err error) {
	amount, err := numeric.Parse(amountIn)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	if !numeric.Positive(amount) {
		return decimal.Decimal{}, decimal.Decimal{}, swap.ErrInvalidAmount
	}

	p, err := a.Price(ctx, base, quote, &amount)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("price source %s: %w", a.source.Name(), err)
	}
	price = decimal.NewFromFloat(p)

	amountOut, err = swap.GetQuote(amount, price)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return amountOut, price, nil
}
