package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/engine"
	"github.com/paperstreet/brokerd/internal/ledger"
	"github.com/paperstreet/brokerd/internal/store"
)

var orderSymbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// ValidOrderStatuses lists all valid order status values for history filtering.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusNew:             true,
	domain.OrderStatusPendingTrigger:  true,
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusRejected:        true,
}

// PriceFeed supplies the most recent known price per symbol. Used for
// market-order pricing and compliance notionals.
type PriceFeed interface {
	CurrentPrice(symbol string) (decimal.Decimal, error)
}

// ComplianceGate is the pre-trade policy check. A denial carries its
// reason; it must not mutate any state.
type ComplianceGate interface {
	Check(order *domain.Order, notional decimal.Decimal) error
}

// EventPublisher fans executions out to subscribers. Delivery is
// fire-and-forget; failures never roll back a committed order.
type EventPublisher interface {
	PublishOrderExecuted(order *domain.Order, trades []*domain.Trade)
}

// PlaceOrderRequest is the input for order placement.
type PlaceOrderRequest struct {
	UserID     string
	Symbol     string
	Side       domain.OrderSide
	Type       domain.OrderType
	Quantity   int64
	LimitPrice *decimal.Decimal // required for LIMIT and STOP_LIMIT
	StopPrice  *decimal.Decimal // required for STOP and STOP_LIMIT
}

// TradingService orchestrates the order pipeline: validation →
// compliance → reservation → matching → settlement → events. Each
// step is a precondition for the next, and every rejection before
// settlement guarantees zero state change.
type TradingService struct {
	ledger    *ledger.Ledger
	matcher   *engine.Matcher
	stops     *engine.StopRegistry
	orders    *store.OrderStore
	trades    *store.TradeStore
	feed      PriceFeed
	gate      ComplianceGate
	publisher EventPublisher
	symbols   *domain.SymbolRegistry
	logger    *slog.Logger
}

// NewTradingService creates a TradingService and installs itself as
// the stop registry's trigger handler.
func NewTradingService(
	l *ledger.Ledger,
	matcher *engine.Matcher,
	stops *engine.StopRegistry,
	orders *store.OrderStore,
	trades *store.TradeStore,
	feed PriceFeed,
	gate ComplianceGate,
	publisher EventPublisher,
	symbols *domain.SymbolRegistry,
	logger *slog.Logger,
) *TradingService {
	s := &TradingService{
		ledger:    l,
		matcher:   matcher,
		stops:     stops,
		orders:    orders,
		trades:    trades,
		feed:      feed,
		gate:      gate,
		publisher: publisher,
		symbols:   symbols,
		logger:    logger,
	}
	stops.SetTrigger(s.handleTrigger)
	return s
}

// PlaceOrder runs an incoming order through the full pipeline and
// returns it with any trades attached, or exactly one typed error.
func (s *TradingService) PlaceOrder(req PlaceOrderRequest) (*domain.Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	order := &domain.Order{
		OrderID:           uuid.New().String(),
		UserID:            req.UserID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		Status:            domain.OrderStatusNew,
		CreatedAt:         time.Now(),
		Trades:            []*domain.Trade{},
	}
	if req.LimitPrice != nil {
		order.LimitPrice = *req.LimitPrice
	}
	if req.StopPrice != nil {
		order.StopPrice = *req.StopPrice
	}

	refPrice, err := s.referencePrice(order)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Check(order, refPrice.Mul(decimal.NewFromInt(order.Quantity))); err != nil {
		return nil, err
	}

	// Stop orders park without a reservation; funds are checked when
	// the trigger fires and the order re-enters as market or limit.
	if order.Type == domain.OrderTypeStop || order.Type == domain.OrderTypeStopLimit {
		_ = order.Transition(domain.OrderStatusPendingTrigger)
		s.orders.Create(order)
		s.stops.Add(order)
		return order, nil
	}

	trades, err := s.reserveAndMatch(order, refPrice)
	if err != nil {
		return nil, err
	}
	s.orders.Create(order)
	s.publish(order, trades)
	return order, nil
}

// reserveAndMatch reserves funds or shares and executes the order.
// Reservation failure leaves all state untouched. Once the
// reservation holds, matching cannot fail.
func (s *TradingService) reserveAndMatch(order *domain.Order, quoted decimal.Decimal) ([]*domain.Trade, error) {
	qty := decimal.NewFromInt(order.RemainingQuantity)

	if order.Side == domain.OrderSideBuy {
		cost := quoted.Mul(qty)
		if order.Type == domain.OrderTypeLimit || order.Type == domain.OrderTypeStopLimit {
			cost = order.LimitPrice.Mul(qty)
		}
		if err := s.ledger.ReserveForBuy(order.UserID, cost); err != nil {
			return nil, err
		}
	} else {
		if err := s.ledger.ReserveForSell(order.UserID, order.Symbol, order.RemainingQuantity); err != nil {
			return nil, err
		}
	}

	if order.Type == domain.OrderTypeLimit || order.Type == domain.OrderTypeStopLimit {
		return s.matcher.ExecuteLimit(order), nil
	}
	return s.matcher.ExecuteMarket(order, quoted), nil
}

// handleTrigger re-submits a stop order released by a price tick. A
// reservation failure at this point rejects the order; the parked
// record stays in the store with its terminal status.
func (s *TradingService) handleTrigger(order *domain.Order, tickPrice decimal.Decimal) {
	_ = order.Transition(domain.OrderStatusNew)

	quoted := tickPrice
	if order.Type == domain.OrderTypeStopLimit {
		quoted = order.LimitPrice
	}

	trades, err := s.reserveAndMatch(order, quoted)
	if err != nil {
		_ = order.Transition(domain.OrderStatusRejected)
		s.logger.Info("stop order rejected on trigger",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.publish(order, trades)
}

// CancelOrder cancels the unfilled remainder of an order owned by
// userID. Parked stop orders leave the trigger registry; resting
// orders leave the book and release their reservation. A terminal
// order reports domain.ErrOrderAlreadyTerminal, an unknown one
// domain.ErrOrderNotFound, and one caught mid-trigger
// domain.ErrOrderInFlight. Never a silent no-op.
func (s *TradingService) CancelOrder(userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		// Don't reveal other users' order IDs.
		return nil, domain.ErrOrderNotFound
	}

	if order.Status == domain.OrderStatusPendingTrigger {
		if s.stops.Remove(orderID) {
			now := time.Now()
			order.CancelledAt = &now
			_ = order.Transition(domain.OrderStatusCancelled)
			return order, nil
		}
		// A tick triggered it concurrently; fall through to the book path.
	}

	if err := s.matcher.Cancel(order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves one of the user's orders with all its trades.
func (s *TradingService) GetOrder(userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// OrderBookSnapshot returns up to depth aggregated price levels per
// side for the symbol.
func (s *TradingService) OrderBookSnapshot(symbol string, depth int) (engine.BookSnapshot, error) {
	if !s.symbols.Exists(symbol) {
		return engine.BookSnapshot{}, &domain.ValidationError{
			Message: fmt.Sprintf("unknown symbol: %s", symbol),
		}
	}
	if depth <= 0 {
		depth = 10
	}
	return s.matcher.Snapshot(symbol, depth), nil
}

// ListOrders returns a paginated slice of the user's orders, newest
// first, optionally filtered by status.
func (s *TradingService) ListOrders(userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("invalid status filter: %q", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}
	orders, total := s.orders.ListByUser(userID, status, page, limit)
	return orders, total, nil
}

// publish fans the order's fills out to subscribers. Never blocks the
// caller on a failed delivery.
func (s *TradingService) publish(order *domain.Order, trades []*domain.Trade) {
	if s.publisher == nil || len(trades) == 0 {
		return
	}
	s.publisher.PublishOrderExecuted(order, trades)
}

// referencePrice picks the price used for compliance notionals and
// market reservations: the limit price when one exists, the stop
// price for plain stops, and the current feed quote for market
// orders. A feed failure here aborts the intake before any state is
// touched.
func (s *TradingService) referencePrice(order *domain.Order) (decimal.Decimal, error) {
	switch order.Type {
	case domain.OrderTypeLimit, domain.OrderTypeStopLimit:
		return order.LimitPrice, nil
	case domain.OrderTypeStop:
		return order.StopPrice, nil
	}
	price, err := s.feed.CurrentPrice(order.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quoting %s: %w", order.Symbol, domain.ErrFeedUnavailable)
	}
	return price, nil
}

// validate performs structural and business validation. Failures are
// *domain.ValidationError and touch no state.
func (s *TradingService) validate(req PlaceOrderRequest) error {
	switch req.Type {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
	default:
		return &domain.ValidationError{
			Message: fmt.Sprintf("unknown order type: %s. Must be one of: MARKET, LIMIT, STOP, STOP_LIMIT", req.Type),
		}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return &domain.ValidationError{Message: "side must be BUY or SELL"}
	}
	if !orderSymbolRegex.MatchString(req.Symbol) {
		return &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if !s.symbols.Exists(req.Symbol) {
		return &domain.ValidationError{Message: fmt.Sprintf("unknown symbol: %s", req.Symbol)}
	}
	if req.Quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	needsLimit := req.Type == domain.OrderTypeLimit || req.Type == domain.OrderTypeStopLimit
	needsStop := req.Type == domain.OrderTypeStop || req.Type == domain.OrderTypeStopLimit

	if needsLimit {
		if err := validatePrice("limit_price", req.LimitPrice); err != nil {
			return err
		}
	} else if req.LimitPrice != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("%s orders must not include limit_price", req.Type)}
	}
	if needsStop {
		if err := validatePrice("stop_price", req.StopPrice); err != nil {
			return err
		}
	} else if req.StopPrice != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("%s orders must not include stop_price", req.Type)}
	}
	return nil
}

// validatePrice requires a positive price with at most 2 decimal places.
func validatePrice(field string, price *decimal.Decimal) error {
	if price == nil {
		return &domain.ValidationError{Message: fmt.Sprintf("%s is required", field)}
	}
	if !price.IsPositive() {
		return &domain.ValidationError{Message: fmt.Sprintf("%s must be greater than 0", field)}
	}
	if !price.Round(2).Equal(*price) {
		return &domain.ValidationError{Message: fmt.Sprintf("%s must have at most 2 decimal places", field)}
	}
	return nil
}
