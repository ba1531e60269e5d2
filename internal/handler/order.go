package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	trading *service.TradingService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(trading *service.TradingService) *OrderHandler {
	return &OrderHandler{trading: trading}
}

// placeOrderRequest is the JSON request body for POST /api/orders.
// Prices come in as strings to avoid float precision loss.
type placeOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Quantity   int64   `json:"quantity"`
	LimitPrice *string `json:"limit_price"`
	StopPrice  *string `json:"stop_price"`
}

// orderResponse is the JSON shape for one order. Nullable fields use
// pointers and are always present.
type orderResponse struct {
	OrderID           string          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	LimitPrice        *string         `json:"limit_price"`
	StopPrice         *string         `json:"stop_price"`
	Status            string          `json:"status"`
	AveragePrice      *string         `json:"average_price"`
	CreatedAt         string          `json:"created_at"`
	CancelledAt       *string         `json:"cancelled_at"`
	Trades            []tradeResponse `json:"trades"`
}

// tradeResponse is a single trade in the order response.
type tradeResponse struct {
	TradeID        string  `json:"trade_id"`
	CounterOrderID *string `json:"counter_order_id"`
	Price          string  `json:"price"`
	Quantity       int64   `json:"quantity"`
	ExecutedAt     string  `json:"executed_at"`
}

// Submit handles POST /api/orders.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	limitPrice, err := parseOptionalPrice(req.LimitPrice)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit_price must be a decimal number")
		return
	}
	stopPrice, err := parseOptionalPrice(req.StopPrice)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "stop_price must be a decimal number")
		return
	}

	order, err := h.trading.PlaceOrder(service.PlaceOrderRequest{
		UserID:     auth.UserID(r.Context()),
		Symbol:     req.Symbol,
		Side:       domain.OrderSide(req.Side),
		Type:       domain.OrderType(req.Type),
		Quantity:   req.Quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
	})
	if err != nil {
		MapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// Get handles GET /api/orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.trading.GetOrder(auth.UserID(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		MapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// Cancel handles DELETE /api/orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.trading.CancelOrder(auth.UserID(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		MapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// listOrdersResponse is the JSON shape for GET /api/orders.
type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// List handles GET /api/orders with optional status, page, and limit
// query parameters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	var status *domain.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.OrderStatus(v)
		status = &s
	}

	orders, total, err := h.trading.ListOrders(auth.UserID(r.Context()), status, page, limit)
	if err != nil {
		MapError(w, err)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]orderResponse, 0, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, buildOrderResponse(o))
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.OrderID,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		Type:              string(o.Type),
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Trades:            make([]tradeResponse, 0, len(o.Trades)),
	}
	if o.LimitPrice.IsPositive() {
		v := o.LimitPrice.StringFixed(2)
		resp.LimitPrice = &v
	}
	if o.StopPrice.IsPositive() {
		v := o.StopPrice.StringFixed(2)
		resp.StopPrice = &v
	}
	if avg, ok := o.AveragePrice(); ok {
		v := avg.StringFixed(2)
		resp.AveragePrice = &v
	}
	if o.CancelledAt != nil {
		v := o.CancelledAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.CancelledAt = &v
	}
	for _, t := range o.Trades {
		tr := tradeResponse{
			TradeID:    t.TradeID,
			Price:      t.Price.StringFixed(2),
			Quantity:   t.Quantity,
			ExecutedAt: t.ExecutedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if t.CounterOrderID != "" {
			counter := t.CounterOrderID
			tr.CounterOrderID = &counter
		}
		resp.Trades = append(resp.Trades, tr)
	}
	return resp
}

func parseOptionalPrice(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
