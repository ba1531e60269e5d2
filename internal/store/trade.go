package store

import (
	"sync"

	"github.com/paperstreet/brokerd/internal/domain"
)

// TradeStore is a thread-safe append-only store for trades, indexed
// by symbol and by order. Trades are never mutated after insertion.
type TradeStore struct {
	mu       sync.RWMutex
	bySymbol map[string][]*domain.Trade // symbol → trades (chronological)
	byOrder  map[string][]*domain.Trade // order_id → trades, both sides
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		bySymbol: make(map[string][]*domain.Trade),
		byOrder:  make(map[string][]*domain.Trade),
	}
}

// Append adds a trade under its symbol and under both participating
// orders.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySymbol[t.Symbol] = append(s.bySymbol[t.Symbol], t)
	s.byOrder[t.OrderID] = append(s.byOrder[t.OrderID], t)
	if t.CounterOrderID != "" {
		s.byOrder[t.CounterOrderID] = append(s.byOrder[t.CounterOrderID], t)
	}
}

// BySymbol returns all trades for a symbol in chronological order.
func (s *TradeStore) BySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	// Copy so callers can't mutate the internal slice.
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// ByOrder returns all trades an order participated in, as taker or
// maker, in chronological order.
func (s *TradeStore) ByOrder(orderID string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.byOrder[orderID]
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}
