package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/ledger"
	"github.com/paperstreet/brokerd/internal/store"
)

// Matcher drives order execution against the per-symbol books and the
// account ledger. The caller is responsible for validation, compliance,
// and funds/position reservation; once an order reaches the matcher it
// cannot fail, only fill, rest, or (for market orders) complete.
type Matcher struct {
	books  *BookManager
	ledger *ledger.Ledger
	trades *store.TradeStore
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(books *BookManager, l *ledger.Ledger, trades *store.TradeStore) *Matcher {
	return &Matcher{books: books, ledger: l, trades: trades}
}

// ExecuteMarket fills a market order in its entirety at the quoted
// feed price. Market orders trade against an implicit external
// liquidity source and never consume the resting book, so no book
// lock is taken. The caller has already reserved funds or shares at
// the same quoted price.
func (m *Matcher) ExecuteMarket(order *domain.Order, price decimal.Decimal) []*domain.Trade {
	qty := order.RemainingQuantity

	if order.Side == domain.OrderSideBuy {
		m.ledger.SettleBuy(order.UserID, order.Symbol, qty, price, price)
	} else {
		m.ledger.SettleSell(order.UserID, order.Symbol, qty, price)
	}

	trade := &domain.Trade{
		TradeID:    uuid.New().String(),
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Price:      price,
		Quantity:   qty,
		ExecutedAt: time.Now(),
	}

	order.FilledQuantity += qty
	order.RemainingQuantity = 0
	order.Trades = append(order.Trades, trade)
	_ = order.Transition(domain.OrderStatusFilled)

	m.trades.Append(trade)
	return []*domain.Trade{trade}
}

// ExecuteLimit runs the incoming limit order through the match loop
// against the opposite side of the symbol's book. Fills execute at
// the resting maker's price; among equal-priced makers the lowest
// sequence number fills first. Any unfilled remainder rests on the
// book with a sequence number assigned at insertion time.
//
// The per-symbol write lock is held for the entire matching pass, so
// two concurrent orders on one symbol can never consume the same
// resting entry.
func (m *Matcher) ExecuteLimit(order *domain.Order) []*domain.Trade {
	book := m.books.GetOrCreate(order.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	executedAt := time.Now()
	var trades []*domain.Trade

	for order.RemainingQuantity > 0 {
		var best OrderBookEntry
		var found bool
		if order.Side == domain.OrderSideBuy {
			best, found = book.BestAsk()
		} else {
			best, found = book.BestBid()
		}
		if !found {
			break
		}

		// Marketable check: BUY limit ≥ best ask, SELL limit ≤ best bid.
		if order.Side == domain.OrderSideBuy {
			if order.LimitPrice.LessThan(best.Price) {
				break
			}
		} else {
			if order.LimitPrice.GreaterThan(best.Price) {
				break
			}
		}

		maker := best.Order

		fillQty := order.RemainingQuantity
		if maker.RemainingQuantity < fillQty {
			fillQty = maker.RemainingQuantity
		}

		// Price-time priority: the fill executes at the maker's price.
		execPrice := best.Price

		// Settle both parties. A bid's reservation was taken at its own
		// limit price, so settling at a better maker price returns the
		// difference to available cash.
		if order.Side == domain.OrderSideBuy {
			m.ledger.SettleBuy(order.UserID, order.Symbol, fillQty, execPrice, order.LimitPrice)
			m.ledger.SettleSell(maker.UserID, order.Symbol, fillQty, execPrice)
		} else {
			m.ledger.SettleBuy(maker.UserID, order.Symbol, fillQty, execPrice, maker.LimitPrice)
			m.ledger.SettleSell(order.UserID, order.Symbol, fillQty, execPrice)
		}

		order.RemainingQuantity -= fillQty
		order.FilledQuantity += fillQty

		// The maker is mutated through the book so the entry and its
		// order cannot diverge; Reduce removes it when exhausted.
		book.Reduce(maker.OrderID, fillQty)
		if maker.RemainingQuantity == 0 {
			_ = maker.Transition(domain.OrderStatusFilled)
		} else {
			_ = maker.Transition(domain.OrderStatusPartiallyFilled)
		}

		trade := &domain.Trade{
			TradeID:        uuid.New().String(),
			OrderID:        order.OrderID,
			CounterOrderID: maker.OrderID,
			Symbol:         order.Symbol,
			Price:          execPrice,
			Quantity:       fillQty,
			ExecutedAt:     executedAt,
		}
		order.Trades = append(order.Trades, trade)
		maker.Trades = append(maker.Trades, trade)
		trades = append(trades, trade)
		m.trades.Append(trade)
	}

	if order.RemainingQuantity > 0 {
		if order.Side == domain.OrderSideBuy {
			book.InsertBid(order.LimitPrice, order)
		} else {
			book.InsertAsk(order.LimitPrice, order)
		}
		if order.FilledQuantity == 0 {
			_ = order.Transition(domain.OrderStatusOpen)
		} else {
			_ = order.Transition(domain.OrderStatusPartiallyFilled)
		}
	} else {
		_ = order.Transition(domain.OrderStatusFilled)
	}

	return trades
}

// Cancel removes a resting order from its book and releases the
// remaining reservation. Already-executed trades are untouched; only
// the unfilled remainder is affected. The order's status is
// re-checked under the symbol lock, since a concurrent matching pass
// may have filled it after the caller's lookup.
func (m *Matcher) Cancel(order *domain.Order) error {
	book := m.books.GetOrCreate(order.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	switch order.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
	case domain.OrderStatusNew, domain.OrderStatusPendingTrigger:
		// A trigger is re-submitting this order on another goroutine;
		// it has no resting entry or reservation to undo yet. The
		// caller can retry once the trigger settles.
		return domain.ErrOrderInFlight
	default:
		return domain.ErrOrderAlreadyTerminal
	}

	book.Remove(order.OrderID)

	remaining := order.RemainingQuantity
	now := time.Now()
	order.CancelledAt = &now
	_ = order.Transition(domain.OrderStatusCancelled)

	if order.Side == domain.OrderSideBuy {
		m.ledger.ReleaseBuy(order.UserID, order.LimitPrice.Mul(decimal.NewFromInt(remaining)))
	} else {
		m.ledger.ReleaseSell(order.UserID, order.Symbol, remaining)
	}
	return nil
}

// BookSnapshot is an aggregated view of one symbol's book.
type BookSnapshot struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// Snapshot returns up to depth aggregated price levels per side,
// taken under the book's read lock.
func (m *Matcher) Snapshot(symbol string, depth int) BookSnapshot {
	book := m.books.GetOrCreate(symbol)

	book.mu.RLock()
	defer book.mu.RUnlock()

	return BookSnapshot{
		Symbol: symbol,
		Bids:   book.TopBids(depth),
		Asks:   book.TopAsks(depth),
	}
}
