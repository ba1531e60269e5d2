package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes the four supported order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPendingTrigger  OrderStatus = "PENDING_TRIGGER"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// statusRank orders statuses so transitions can be checked for
// monotonicity. PENDING_TRIGGER ranks with NEW: a stop order parks
// there on intake and re-enters the pipeline as NEW when triggered.
var statusRank = map[OrderStatus]int{
	OrderStatusPendingTrigger:  1,
	OrderStatusNew:             1,
	OrderStatusOpen:            2,
	OrderStatusPartiallyFilled: 3,
	OrderStatusFilled:          4,
	OrderStatusCancelled:       4,
	OrderStatusRejected:        4,
}

// Terminal reports whether s is a terminal status. Terminal orders
// are immutable.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order represents a buy or sell instruction submitted by a user.
// Prices are decimal dollars; quantities are whole shares.
type Order struct {
	OrderID           string
	UserID            string
	Symbol            string
	Side              OrderSide
	Type              OrderType
	Quantity          int64
	FilledQuantity    int64
	RemainingQuantity int64
	LimitPrice        decimal.Decimal // zero unless LIMIT/STOP_LIMIT
	StopPrice         decimal.Decimal // zero unless STOP/STOP_LIMIT
	Status            OrderStatus
	CreatedAt         time.Time
	CancelledAt       *time.Time
	Trades            []*Trade
}

// Transition moves the order to the given status, enforcing that
// terminal states are final and that no transition moves backward.
func (o *Order) Transition(to OrderStatus) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s is %s: %w", o.OrderID, o.Status, ErrOrderAlreadyTerminal)
	}
	if statusRank[to] < statusRank[o.Status] {
		return fmt.Errorf("order %s cannot move %s -> %s", o.OrderID, o.Status, to)
	}
	o.Status = to
	return nil
}

// AveragePrice computes the volume-weighted average execution price
// over the order's trades. Returns (zero, false) when nothing has
// executed yet.
func (o *Order) AveragePrice() (decimal.Decimal, bool) {
	if len(o.Trades) == 0 || o.FilledQuantity == 0 {
		return decimal.Zero, false
	}
	return o.ExecutedNotional().Div(decimal.NewFromInt(o.FilledQuantity)), true
}

// ExecutedNotional returns the sum of price × quantity over the
// order's trades.
func (o *Order) ExecutedNotional() decimal.Decimal {
	total := decimal.Zero
	for _, t := range o.Trades {
		total = total.Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
	}
	return total
}
