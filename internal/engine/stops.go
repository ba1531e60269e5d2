package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

// TriggerFunc re-submits a triggered stop order into the order
// pipeline. It runs outside the registry lock.
type TriggerFunc func(order *domain.Order, tickPrice decimal.Decimal)

// StopRegistry holds stop and stop-limit orders parked in
// PENDING_TRIGGER state. It is evaluated synchronously on every price
// tick from the market feed rather than polled per order: a tick that
// crosses an order's stop price releases it back into the pipeline as
// a market or limit order.
type StopRegistry struct {
	mu      sync.Mutex
	pending map[string][]*domain.Order // symbol → parked orders
	trigger TriggerFunc
}

// NewStopRegistry creates an empty StopRegistry.
func NewStopRegistry() *StopRegistry {
	return &StopRegistry{
		pending: make(map[string][]*domain.Order),
	}
}

// SetTrigger installs the re-submission callback. Must be called
// before the first tick arrives.
func (r *StopRegistry) SetTrigger(fn TriggerFunc) {
	r.mu.Lock()
	r.trigger = fn
	r.mu.Unlock()
}

// Add parks a PENDING_TRIGGER order under its symbol.
func (r *StopRegistry) Add(order *domain.Order) {
	r.mu.Lock()
	r.pending[order.Symbol] = append(r.pending[order.Symbol], order)
	r.mu.Unlock()
}

// Remove takes an order out of the registry, returning true if it was
// parked. Used by cancellation.
func (r *StopRegistry) Remove(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sym, orders := range r.pending {
		for i, o := range orders {
			if o.OrderID == orderID {
				r.pending[sym] = append(orders[:i], orders[i+1:]...)
				return true
			}
		}
	}
	return false
}

// crossed reports whether the tick price crosses the order's stop
// price: a BUY stop triggers at or above it, a SELL stop at or below.
func crossed(o *domain.Order, price decimal.Decimal) bool {
	if o.Side == domain.OrderSideBuy {
		return price.GreaterThanOrEqual(o.StopPrice)
	}
	return price.LessThanOrEqual(o.StopPrice)
}

// OnTick evaluates all stops parked under symbol against the new
// price. Triggered orders are removed from the registry first and
// re-submitted outside the lock, so a trigger that itself parks a
// new stop cannot deadlock.
func (r *StopRegistry) OnTick(symbol string, price decimal.Decimal) {
	r.mu.Lock()
	orders := r.pending[symbol]
	var triggered, kept []*domain.Order
	for _, o := range orders {
		if crossed(o, price) {
			triggered = append(triggered, o)
		} else {
			kept = append(kept, o)
		}
	}
	r.pending[symbol] = kept
	fn := r.trigger
	r.mu.Unlock()

	if fn == nil {
		return
	}
	for _, o := range triggered {
		fn(o, price)
	}
}

// PendingCount returns the number of parked orders across all
// symbols. Useful for testing.
func (r *StopRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, orders := range r.pending {
		n += len(orders)
	}
	return n
}
