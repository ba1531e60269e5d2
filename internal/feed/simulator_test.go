package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewSimulator_SeedsDefaultListings(t *testing.T) {
	symbols := domain.NewSymbolRegistry()
	s := NewSimulator(time.Second, 0.02, symbols)

	quotes := s.Quotes()
	if len(quotes) != 5 {
		t.Fatalf("expected 5 listings, got %d", len(quotes))
	}
	for _, sym := range []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"} {
		if !symbols.Exists(sym) {
			t.Errorf("expected %s registered", sym)
		}
		if _, err := s.CurrentPrice(sym); err != nil {
			t.Errorf("expected quote for %s, got %v", sym, err)
		}
	}

	price, err := s.CurrentPrice("AAPL")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if !price.Equal(dec("150.00")) {
		t.Errorf("expected AAPL seeded at 150.00, got %s", price)
	}
}

func TestCurrentPrice_UnknownSymbol(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)
	if _, err := s.CurrentPrice("ZZZZ"); !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestSetPrice_NotifiesSubscribers(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)

	type tick struct {
		symbol string
		price  decimal.Decimal
	}
	var got []tick
	s.Subscribe(func(symbol string, price decimal.Decimal) {
		got = append(got, tick{symbol, price})
	})

	s.SetPrice("AAPL", dec("155.00"))

	if len(got) != 1 || got[0].symbol != "AAPL" || !got[0].price.Equal(dec("155.00")) {
		t.Fatalf("expected one AAPL tick at 155.00, got %+v", got)
	}
	price, _ := s.CurrentPrice("AAPL")
	if !price.Equal(dec("155.00")) {
		t.Errorf("expected current price 155.00, got %s", price)
	}
}

func TestSetPrice_UnknownSymbolIsNoOp(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)

	fired := 0
	s.Subscribe(func(string, decimal.Decimal) { fired++ })

	s.SetPrice("ZZZZ", dec("1.00"))
	if fired != 0 {
		t.Errorf("unknown-symbol override notified %d subscribers", fired)
	}
}

func TestStep_BoundedAndPositive(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)

	price := dec("150.00")
	for i := 0; i < 1000; i++ {
		next := s.step(price)
		if !next.IsPositive() {
			t.Fatalf("step produced non-positive price %s", next)
		}
		// One step moves at most volatility/2 = 1%, plus cent rounding.
		maxMove := price.Mul(dec("0.01")).Add(dec("0.005"))
		if next.Sub(price).Abs().GreaterThan(maxMove) {
			t.Fatalf("step moved %s → %s, beyond the volatility bound", price, next)
		}
		if !next.Equal(next.Round(2)) {
			t.Fatalf("step produced sub-cent price %s", next)
		}
		price = next
	}
}

func TestStep_FloorsAtOneCent(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)
	for i := 0; i < 100; i++ {
		next := s.step(dec("0.01"))
		if next.LessThan(dec("0.01")) {
			t.Fatalf("step went below one cent: %s", next)
		}
	}
}

func TestTick_UpdatesAllSymbolsAndFansOut(t *testing.T) {
	s := NewSimulator(time.Second, 0.02, nil)

	seen := make(map[string]int)
	s.Subscribe(func(symbol string, _ decimal.Decimal) {
		seen[symbol]++
	})

	s.tick()

	if len(seen) != 5 {
		t.Fatalf("expected ticks for all 5 symbols, got %d", len(seen))
	}
	for sym, n := range seen {
		if n != 1 {
			t.Errorf("symbol %s ticked %d times", sym, n)
		}
	}
	for _, q := range s.Quotes() {
		if q.PreviousClose.IsZero() {
			t.Errorf("symbol %s has no previous close after tick", q.Symbol)
		}
	}
}
