// Package feed provides the market price feed: a random-walk
// simulator seeded with a fixed symbol table. Ticks fan out
// synchronously to subscribers (the stop-order registry and the
// websocket hub), so trigger evaluation happens on the tick itself
// rather than on a per-order timer.
package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

// Quote is the current state of one listed symbol.
type Quote struct {
	Symbol           string
	CompanyName      string
	CurrentPrice     decimal.Decimal
	PreviousClose    decimal.Decimal
	DayChangePercent decimal.Decimal
	LastUpdated      time.Time
}

// Subscriber receives every price tick for every symbol.
type Subscriber func(symbol string, price decimal.Decimal)

// listing seeds the simulator's symbol table.
type listing struct {
	symbol  string
	company string
	price   string
}

var defaultListings = []listing{
	{"AAPL", "Apple Inc.", "150.00"},
	{"GOOGL", "Alphabet Inc.", "2800.00"},
	{"MSFT", "Microsoft Corporation", "380.00"},
	{"AMZN", "Amazon.com Inc.", "145.00"},
	{"TSLA", "Tesla Inc.", "250.00"},
}

// Simulator generates price movement with a bounded random walk:
// each tick moves a symbol by a uniform change in
// (-volatility/2, +volatility/2) percent, rounded to cents.
type Simulator struct {
	mu         sync.RWMutex
	quotes     map[string]*Quote
	subs       []Subscriber
	interval   time.Duration
	volatility float64
	rng        *rand.Rand
}

// NewSimulator creates a Simulator with the default symbol table and
// registers its symbols in the registry.
func NewSimulator(interval time.Duration, volatility float64, symbols *domain.SymbolRegistry) *Simulator {
	s := &Simulator{
		quotes:     make(map[string]*Quote),
		interval:   interval,
		volatility: volatility,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, l := range defaultListings {
		price := decimal.RequireFromString(l.price)
		s.quotes[l.symbol] = &Quote{
			Symbol:        l.symbol,
			CompanyName:   l.company,
			CurrentPrice:  price,
			PreviousClose: price,
			LastUpdated:   time.Now(),
		}
		if symbols != nil {
			symbols.Register(l.symbol)
		}
	}
	return s
}

// Subscribe registers a tick subscriber. Not safe to call after Start.
func (s *Simulator) Subscribe(fn Subscriber) {
	s.subs = append(s.subs, fn)
}

// CurrentPrice returns the most recent price for symbol. Returns
// domain.ErrUnknownSymbol for unlisted symbols.
func (s *Simulator) CurrentPrice(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return decimal.Zero, domain.ErrUnknownSymbol
	}
	return q.CurrentPrice, nil
}

// Quotes returns a copy of every listing's current quote.
func (s *Simulator) Quotes() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, *q)
	}
	return out
}

// SetPrice overrides a symbol's price directly and notifies
// subscribers. Used by tests and by replay tooling.
func (s *Simulator) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	q, ok := s.quotes[symbol]
	if ok {
		q.PreviousClose = q.CurrentPrice
		q.CurrentPrice = price
		q.LastUpdated = time.Now()
	}
	subs := s.subs
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range subs {
		fn(symbol, price)
	}
}

// Start launches the tick loop. It stops when ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// tick advances every symbol one random-walk step and fans the new
// prices out to subscribers outside the quote lock.
func (s *Simulator) tick() {
	type update struct {
		symbol string
		price  decimal.Decimal
	}

	s.mu.Lock()
	updates := make([]update, 0, len(s.quotes))
	now := time.Now()
	for sym, q := range s.quotes {
		next := s.step(q.CurrentPrice)
		q.PreviousClose = q.CurrentPrice
		q.DayChangePercent = next.Sub(q.PreviousClose).
			Div(q.PreviousClose).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		q.CurrentPrice = next
		q.LastUpdated = now
		updates = append(updates, update{symbol: sym, price: next})
	}
	subs := s.subs
	s.mu.Unlock()

	for _, u := range updates {
		for _, fn := range subs {
			fn(u.symbol, u.price)
		}
	}
}

// step applies one random-walk movement, rounded to cents and floored
// at one cent.
func (s *Simulator) step(price decimal.Decimal) decimal.Decimal {
	changePct := (s.rng.Float64() - 0.5) * s.volatility
	next := price.Mul(decimal.NewFromFloat(1 + changePct)).Round(2)
	if next.LessThanOrEqual(decimal.Zero) {
		return decimal.RequireFromString("0.01")
	}
	return next
}
