package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

// OrderBookEntry represents a single order resting on the book. The
// entry points at its Order, so its remaining quantity is always read
// from the order and cannot diverge from it.
type OrderBookEntry struct {
	Price   decimal.Decimal
	Seq     uint64
	OrderID string
	Order   *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// bidLess defines ordering for the bid side: price descending, then
// sequence number ascending. Min() returns the best bid (highest
// price, earliest insertion).
func bidLess(a, b OrderBookEntry) bool {
	switch a.Price.Cmp(b.Price) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.Seq < b.Seq
}

// askLess defines ordering for the ask side: price ascending, then
// sequence number ascending. Min() returns the best ask (lowest
// price, earliest insertion).
func askLess(a, b OrderBookEntry) bool {
	switch a.Price.Cmp(b.Price) {
	case -1:
		return true
	case 1:
		return false
	}
	return a.Seq < b.Seq
}

// OrderBook maintains the bid and ask sides for a single symbol using
// B-trees with a secondary index for O(log n) removal by order ID.
// Sequence numbers are assigned at insertion time from a per-book
// counter, so no two entries on the same symbol ever share one.
type OrderBook struct {
	symbol  string
	mu      sync.RWMutex
	nextSeq uint64
	bids    *btree.BTreeG[OrderBookEntry]
	asks    *btree.BTreeG[OrderBookEntry]
	index   map[string]OrderBookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol:  symbol,
		nextSeq: 1,
		bids:    btree.NewG[OrderBookEntry](degree, bidLess),
		asks:    btree.NewG[OrderBookEntry](degree, askLess),
		index:   make(map[string]OrderBookEntry),
	}
}

// InsertBid rests an order on the bid side at the given price,
// assigning the next sequence number. Returns the inserted entry.
func (ob *OrderBook) InsertBid(price decimal.Decimal, order *domain.Order) OrderBookEntry {
	entry := OrderBookEntry{Price: price, Seq: ob.nextSeq, OrderID: order.OrderID, Order: order}
	ob.nextSeq++
	ob.bids.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
	return entry
}

// InsertAsk rests an order on the ask side at the given price,
// assigning the next sequence number. Returns the inserted entry.
func (ob *OrderBook) InsertAsk(price decimal.Decimal, order *domain.Order) OrderBookEntry {
	entry := OrderBookEntry{Price: price, Seq: ob.nextSeq, OrderID: order.OrderID, Order: order}
	ob.nextSeq++
	ob.asks.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
	return entry
}

// Reduce subtracts qty from the entry's order and removes the entry
// once nothing remains.
func (ob *OrderBook) Reduce(orderID string, qty int64) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	entry.Order.RemainingQuantity -= qty
	entry.Order.FilledQuantity += qty
	if entry.Order.RemainingQuantity <= 0 {
		ob.Remove(orderID)
	}
}

// Remove deletes an order from the book by order ID using the
// secondary index. It tries both sides since the caller may not
// know which side the order is on.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	// Delete is a no-op on the side that doesn't hold the entry.
	ob.bids.Delete(entry)
	ob.asks.Delete(entry)
}

// Contains reports whether the order currently rests on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// BestBid returns the highest-priority bid (highest price, lowest sequence).
func (ob *OrderBook) BestBid() (OrderBookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, lowest sequence).
func (ob *OrderBook) BestAsk() (OrderBookEntry, bool) {
	return ob.asks.Min()
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(entry.Price) {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}
