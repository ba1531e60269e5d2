package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single execution. OrderID is the taker (incoming)
// order; CounterOrderID is the resting maker order, empty for fills
// priced directly from the market feed. Trades are append-only and
// never mutated after creation.
type Trade struct {
	TradeID        string
	OrderID        string
	CounterOrderID string
	Symbol         string
	Price          decimal.Decimal
	Quantity       int64
	ExecutedAt     time.Time
}
