package orderbook

import (
	"sync"

	"github.com/google/uuid"

	"github.com/uhyunpark/smartswap/pkg/app/core/numeric"
)

// OrderBook is the in-memory ledger of active orders.
// Every method takes the lock for its whole duration and never performs I/O
// while holding it.
type OrderBook struct {
	mu     sync.Mutex
	orders []Order // insertion order
}

// NewOrderBook returns an empty ledger.
func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// AddOrder validates req and appends a new order, returning its ID.
// See Place for the validation rules.
func (ob *OrderBook) AddOrder(req AddOrderRequest) (uuid.UUID, error) {
	o, err := ob.Place(req)
	if err != nil {
		return uuid.Nil, err
	}
	return o.ID, nil
}

// Place validates req and appends a new order, returning a copy of it.
//
// Checks run in a fixed order and the first failure wins:
// amount parse, price parse, side, amount > 0, price > 0.
// On failure the book is left unchanged.
func (ob *OrderBook) Place(req AddOrderRequest) (Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	amount, err := numeric.Parse(req.Amount)
	if err != nil {
		return Order{}, err
	}
	price, err := numeric.Parse(req.Price)
	if err != nil {
		return Order{}, err
	}
	side, err := ParseSide(req.Side)
	if err != nil {
		return Order{}, err
	}
	if !numeric.Positive(amount) {
		return Order{}, ErrInvalidAmount
	}
	if !numeric.Positive(price) {
		return Order{}, ErrInvalidPrice
	}

	o := Order{
		ID:     uuid.New(),
		Base:   req.Base,
		Quote:  req.Quote,
		Amount: amount,
		Price:  price,
		Side:   side,
	}
	ob.orders = append(ob.orders, o)
	return o, nil
}

// Orders returns a snapshot of the book in insertion order.
func (ob *OrderBook) Orders() []Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	out := make([]Order, len(ob.orders))
	copy(out, ob.orders)
	return out
}

// DeleteOrder removes the order with the given ID.
// It returns false when no such order exists; that is not an error.
func (ob *OrderBook) DeleteOrder(id uuid.UUID) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for i, o := range ob.orders {
		if o.ID == id {
			ob.orders = append(ob.orders[:i], ob.orders[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of active orders.
func (ob *OrderBook) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.orders)
}
