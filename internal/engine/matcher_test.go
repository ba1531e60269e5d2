package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/ledger"
	"github.com/paperstreet/brokerd/internal/store"
)

type matcherFixture struct {
	matcher *Matcher
	books   *BookManager
	ledger  *ledger.Ledger
	trades  *store.TradeStore
}

func newMatcherFixture(t *testing.T) *matcherFixture {
	t.Helper()
	books := NewBookManager()
	l := ledger.New()
	trades := store.NewTradeStore()
	return &matcherFixture{
		matcher: NewMatcher(books, l, trades),
		books:   books,
		ledger:  l,
		trades:  trades,
	}
}

func (f *matcherFixture) fundAccount(t *testing.T, userID, balance string) {
	t.Helper()
	if _, err := f.ledger.CreateAccount(userID, userID+"@example.com", "hash", dec(balance)); err != nil {
		t.Fatalf("create account %s: %v", userID, err)
	}
}

func (f *matcherFixture) seedShares(t *testing.T, userID, symbol string, qty int64, avgCost string) {
	t.Helper()
	if err := f.ledger.CreditShares(userID, symbol, qty, dec(avgCost)); err != nil {
		t.Fatalf("credit shares for %s: %v", userID, err)
	}
}

func limitOrder(userID string, side domain.OrderSide, symbol, price string, qty int64) *domain.Order {
	return &domain.Order{
		OrderID:           uuid.New().String(),
		UserID:            userID,
		Symbol:            symbol,
		Side:              side,
		Type:              domain.OrderTypeLimit,
		Quantity:          qty,
		RemainingQuantity: qty,
		LimitPrice:        dec(price),
		Status:            domain.OrderStatusNew,
		CreatedAt:         time.Now(),
	}
}

// A resting SELL LIMIT 5 @ 149 and an incoming BUY LIMIT 5 @ 150
// cross; the fill executes at the maker's 149, both orders fill, and
// the book ends empty.
func TestExecuteLimit_CrossAtMakerPrice(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "seller", "0.00")
	f.fundAccount(t, "buyer", "10000.00")
	f.seedShares(t, "seller", "AAPL", 5, "140.00")

	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "149.00", 5)
	if err := f.ledger.ReserveForSell("seller", "AAPL", 5); err != nil {
		t.Fatalf("reserve sell: %v", err)
	}
	f.matcher.ExecuteLimit(sell)
	if sell.Status != domain.OrderStatusOpen {
		t.Fatalf("expected resting sell to be OPEN, got %s", sell.Status)
	}

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "150.00", 5)
	if err := f.ledger.ReserveForBuy("buyer", dec("750.00")); err != nil {
		t.Fatalf("reserve buy: %v", err)
	}
	trades := f.matcher.ExecuteLimit(buy)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if !tr.Price.Equal(dec("149.00")) {
		t.Errorf("expected execution at maker price 149.00, got %s", tr.Price)
	}
	if tr.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", tr.Quantity)
	}
	if tr.OrderID != buy.OrderID || tr.CounterOrderID != sell.OrderID {
		t.Errorf("trade parties wrong: taker %s counter %s", tr.OrderID, tr.CounterOrderID)
	}

	if buy.Status != domain.OrderStatusFilled {
		t.Errorf("expected buy FILLED, got %s", buy.Status)
	}
	if sell.Status != domain.OrderStatusFilled {
		t.Errorf("expected sell FILLED, got %s", sell.Status)
	}

	book := f.books.GetOrCreate("AAPL")
	if book.BidCount() != 0 || book.AskCount() != 0 {
		t.Errorf("expected empty book, got %d bids / %d asks", book.BidCount(), book.AskCount())
	}

	// Buyer paid 5 × 149 = 745; the 5.00 reserved above that is released.
	buyer, _ := f.ledger.Get("buyer")
	if !buyer.CashBalance.Equal(dec("9255.00")) {
		t.Errorf("expected buyer balance 9255.00, got %s", buyer.CashBalance)
	}
	if !buyer.ReservedCash.IsZero() {
		t.Errorf("expected buyer reserved cash zero, got %s", buyer.ReservedCash)
	}
	seller, _ := f.ledger.Get("seller")
	if !seller.CashBalance.Equal(dec("745.00")) {
		t.Errorf("expected seller balance 745.00, got %s", seller.CashBalance)
	}
}

// Two resting sells at the same price fill in insertion order.
func TestExecuteLimit_PriceTimePriority(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "s1", "0.00")
	f.fundAccount(t, "s2", "0.00")
	f.fundAccount(t, "buyer", "10000.00")
	f.seedShares(t, "s1", "AAPL", 5, "100.00")
	f.seedShares(t, "s2", "AAPL", 5, "100.00")

	first := limitOrder("s1", domain.OrderSideSell, "AAPL", "149.00", 5)
	second := limitOrder("s2", domain.OrderSideSell, "AAPL", "149.00", 5)
	_ = f.ledger.ReserveForSell("s1", "AAPL", 5)
	_ = f.ledger.ReserveForSell("s2", "AAPL", 5)
	f.matcher.ExecuteLimit(first)
	f.matcher.ExecuteLimit(second)

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "149.00", 7)
	_ = f.ledger.ReserveForBuy("buyer", dec("1043.00"))
	trades := f.matcher.ExecuteLimit(buy)

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].CounterOrderID != first.OrderID || trades[0].Quantity != 5 {
		t.Errorf("first fill should take the earlier seller in full: %+v", trades[0])
	}
	if trades[1].CounterOrderID != second.OrderID || trades[1].Quantity != 2 {
		t.Errorf("second fill should take 2 from the later seller: %+v", trades[1])
	}

	if first.Status != domain.OrderStatusFilled {
		t.Errorf("expected first seller FILLED, got %s", first.Status)
	}
	if second.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("expected second seller PARTIALLY_FILLED, got %s", second.Status)
	}
	if second.RemainingQuantity != 3 {
		t.Errorf("expected 3 remaining on second seller, got %d", second.RemainingQuantity)
	}
	if buy.Status != domain.OrderStatusFilled {
		t.Errorf("expected buyer FILLED, got %s", buy.Status)
	}
}

// A non-marketable limit order rests untouched.
func TestExecuteLimit_NoCrossRestsOpen(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "seller", "0.00")
	f.fundAccount(t, "buyer", "10000.00")
	f.seedShares(t, "seller", "AAPL", 5, "100.00")

	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "151.00", 5)
	_ = f.ledger.ReserveForSell("seller", "AAPL", 5)
	f.matcher.ExecuteLimit(sell)

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "150.00", 5)
	_ = f.ledger.ReserveForBuy("buyer", dec("750.00"))
	trades := f.matcher.ExecuteLimit(buy)

	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	if buy.Status != domain.OrderStatusOpen || sell.Status != domain.OrderStatusOpen {
		t.Errorf("expected both OPEN, got buy=%s sell=%s", buy.Status, sell.Status)
	}

	book := f.books.GetOrCreate("AAPL")
	if book.BidCount() != 1 || book.AskCount() != 1 {
		t.Errorf("expected 1 bid and 1 ask resting, got %d / %d", book.BidCount(), book.AskCount())
	}
}

// An incoming buy that partially fills rests its remainder.
func TestExecuteLimit_PartialFillRestsRemainder(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "seller", "0.00")
	f.fundAccount(t, "buyer", "10000.00")
	f.seedShares(t, "seller", "AAPL", 3, "100.00")

	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "149.00", 3)
	_ = f.ledger.ReserveForSell("seller", "AAPL", 3)
	f.matcher.ExecuteLimit(sell)

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "150.00", 10)
	_ = f.ledger.ReserveForBuy("buyer", dec("1500.00"))
	trades := f.matcher.ExecuteLimit(buy)

	if len(trades) != 1 || trades[0].Quantity != 3 {
		t.Fatalf("expected one 3-share fill, got %+v", trades)
	}
	if buy.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("expected PARTIALLY_FILLED, got %s", buy.Status)
	}
	if buy.RemainingQuantity != 7 {
		t.Errorf("expected 7 remaining, got %d", buy.RemainingQuantity)
	}

	book := f.books.GetOrCreate("AAPL")
	if !book.Contains(buy.OrderID) {
		t.Error("expected buy remainder resting on the book")
	}

	// After a 3-share fill at 149, the reservation covers the 7-share
	// remainder at the buyer's own 150.
	buyer, _ := f.ledger.Get("buyer")
	if !buyer.ReservedCash.Equal(dec("1050.00")) {
		t.Errorf("expected 1050.00 still reserved, got %s", buyer.ReservedCash)
	}
}

func TestExecuteMarket_FillsInFullAtQuotedPrice(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "buyer", "10000.00")

	order := &domain.Order{
		OrderID:           uuid.New().String(),
		UserID:            "buyer",
		Symbol:            "AAPL",
		Side:              domain.OrderSideBuy,
		Type:              domain.OrderTypeMarket,
		Quantity:          10,
		RemainingQuantity: 10,
		Status:            domain.OrderStatusNew,
		CreatedAt:         time.Now(),
	}
	if err := f.ledger.ReserveForBuy("buyer", dec("1500.00")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	trades := f.matcher.ExecuteMarket(order, dec("150.00"))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].CounterOrderID != "" {
		t.Errorf("market fill should have no counter order, got %s", trades[0].CounterOrderID)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", order.Status)
	}

	buyer, _ := f.ledger.Get("buyer")
	if !buyer.CashBalance.Equal(dec("8500.00")) {
		t.Errorf("expected balance 8500.00, got %s", buyer.CashBalance)
	}
	pos := buyer.Position("AAPL")
	if pos.Quantity != 10 || !pos.AverageCost.Equal(dec("150.00")) {
		t.Errorf("expected 10 shares at avg 150.00, got %d at %s", pos.Quantity, pos.AverageCost)
	}
}

func TestCancel_ReleasesBuyReservation(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "buyer", "10000.00")

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "150.00", 5)
	_ = f.ledger.ReserveForBuy("buyer", dec("750.00"))
	f.matcher.ExecuteLimit(buy)

	if err := f.matcher.Cancel(buy); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if buy.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", buy.Status)
	}
	if buy.CancelledAt == nil {
		t.Error("expected CancelledAt to be set")
	}

	buyer, _ := f.ledger.Get("buyer")
	if !buyer.ReservedCash.IsZero() {
		t.Errorf("expected reservation released, got %s", buyer.ReservedCash)
	}
	if f.books.GetOrCreate("AAPL").BidCount() != 0 {
		t.Error("expected order removed from book")
	}
}

func TestCancel_ReleasesSellReservation(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "seller", "0.00")
	f.seedShares(t, "seller", "AAPL", 5, "100.00")

	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "150.00", 5)
	_ = f.ledger.ReserveForSell("seller", "AAPL", 5)
	f.matcher.ExecuteLimit(sell)

	if err := f.matcher.Cancel(sell); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	seller, _ := f.ledger.Get("seller")
	pos := seller.Position("AAPL")
	if pos.Reserved != 0 {
		t.Errorf("expected share reservation released, got %d", pos.Reserved)
	}
	if pos.Quantity != 5 {
		t.Errorf("expected 5 shares still held, got %d", pos.Quantity)
	}
}

func TestCancel_TerminalOrderFails(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "buyer", "10000.00")

	order := &domain.Order{
		OrderID:           uuid.New().String(),
		UserID:            "buyer",
		Symbol:            "AAPL",
		Side:              domain.OrderSideBuy,
		Type:              domain.OrderTypeMarket,
		Quantity:          1,
		RemainingQuantity: 1,
		Status:            domain.OrderStatusNew,
	}
	_ = f.ledger.ReserveForBuy("buyer", dec("150.00"))
	f.matcher.ExecuteMarket(order, dec("150.00"))

	if err := f.matcher.Cancel(order); err != domain.ErrOrderAlreadyTerminal {
		t.Errorf("expected ErrOrderAlreadyTerminal, got %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("cancel of a filled order mutated its status to %s", order.Status)
	}
}

// An order a trigger is re-submitting (NEW or PENDING_TRIGGER, off
// the stop registry but not yet on the book) is in flight, not
// terminal; the cancel is retryable.
func TestCancel_InFlightOrderIsRetryable(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "buyer", "10000.00")

	for _, status := range []domain.OrderStatus{domain.OrderStatusNew, domain.OrderStatusPendingTrigger} {
		order := &domain.Order{
			OrderID:           uuid.New().String(),
			UserID:            "buyer",
			Symbol:            "AAPL",
			Side:              domain.OrderSideBuy,
			Type:              domain.OrderTypeStop,
			Quantity:          5,
			RemainingQuantity: 5,
			StopPrice:         dec("155.00"),
			Status:            status,
		}
		if err := f.matcher.Cancel(order); err != domain.ErrOrderInFlight {
			t.Errorf("status %s: expected ErrOrderInFlight, got %v", status, err)
		}
		if order.Status != status {
			t.Errorf("status %s: cancel attempt mutated the order to %s", status, order.Status)
		}
	}
}

func TestCancel_PartiallyFilledKeepsExecutedTrades(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "seller", "0.00")
	f.fundAccount(t, "buyer", "10000.00")
	f.seedShares(t, "seller", "AAPL", 3, "100.00")

	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "149.00", 3)
	_ = f.ledger.ReserveForSell("seller", "AAPL", 3)
	f.matcher.ExecuteLimit(sell)

	buy := limitOrder("buyer", domain.OrderSideBuy, "AAPL", "150.00", 10)
	_ = f.ledger.ReserveForBuy("buyer", dec("1500.00"))
	f.matcher.ExecuteLimit(buy)

	if err := f.matcher.Cancel(buy); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if buy.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", buy.Status)
	}
	if buy.FilledQuantity != 3 || len(buy.Trades) != 1 {
		t.Errorf("executed portion lost: filled=%d trades=%d", buy.FilledQuantity, len(buy.Trades))
	}

	// The 3 filled shares stay; only the 7-share remainder's
	// reservation (7 × 150) is released.
	buyer, _ := f.ledger.Get("buyer")
	if !buyer.ReservedCash.IsZero() {
		t.Errorf("expected reserved cash zero, got %s", buyer.ReservedCash)
	}
	if buyer.Position("AAPL").Quantity != 3 {
		t.Errorf("expected 3 shares held, got %d", buyer.Position("AAPL").Quantity)
	}
}

func TestSnapshot_AggregatedDepth(t *testing.T) {
	f := newMatcherFixture(t)
	f.fundAccount(t, "buyer", "100000.00")
	f.fundAccount(t, "seller", "0.00")
	f.seedShares(t, "seller", "AAPL", 20, "100.00")

	for _, p := range []string{"149.00", "149.00", "148.00"} {
		o := limitOrder("buyer", domain.OrderSideBuy, "AAPL", p, 5)
		_ = f.ledger.ReserveForBuy("buyer", dec(p).Mul(decimal.NewFromInt(5)))
		f.matcher.ExecuteLimit(o)
	}
	sell := limitOrder("seller", domain.OrderSideSell, "AAPL", "151.00", 20)
	_ = f.ledger.ReserveForSell("seller", "AAPL", 20)
	f.matcher.ExecuteLimit(sell)

	snap := f.matcher.Snapshot("AAPL", 10)
	if snap.Symbol != "AAPL" {
		t.Errorf("expected symbol AAPL, got %s", snap.Symbol)
	}
	if len(snap.Bids) != 2 {
		t.Fatalf("expected 2 bid levels, got %d", len(snap.Bids))
	}
	if !snap.Bids[0].Price.Equal(dec("149.00")) || snap.Bids[0].TotalQuantity != 10 {
		t.Errorf("top bid level wrong: %+v", snap.Bids[0])
	}
	if len(snap.Asks) != 1 || snap.Asks[0].TotalQuantity != 20 {
		t.Errorf("ask side wrong: %+v", snap.Asks)
	}
}
