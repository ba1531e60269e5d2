// Package stream fans executions and price ticks out to websocket
// subscribers. Delivery is fire-and-forget: a slow or broken client
// is dropped, and a publish failure never propagates back into the
// order pipeline.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

// Event is the wire envelope for every broadcast message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected websocket clients and broadcasts events to
// all of them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// The dashboard is served from a different origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS upgrades the request and registers the connection. The read
// loop exists only to detect client disconnects; inbound messages are
// discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// drop unregisters and closes a connection.
func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast sends the event to every connected client. Clients whose
// write fails are dropped. The hub lock is held across the writes: a
// gorilla connection supports only one concurrent writer, and the feed
// tick goroutine and request goroutines broadcast at the same time.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", slog.String("type", event.Type))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

// tickPayload is the price_tick event body.
type tickPayload struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// PublishPriceTick broadcasts a feed price update.
func (h *Hub) PublishPriceTick(symbol string, price decimal.Decimal) {
	h.Broadcast(Event{
		Type: "price_tick",
		Data: tickPayload{
			Symbol:    symbol,
			Price:     price.StringFixed(2),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// executionPayload is the order_executed event body.
type executionPayload struct {
	OrderID string           `json:"order_id"`
	UserID  string           `json:"user_id"`
	Symbol  string           `json:"symbol"`
	Side    string           `json:"side"`
	Status  string           `json:"status"`
	Trades  []executionTrade `json:"trades"`
}

type executionTrade struct {
	TradeID  string `json:"trade_id"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// PublishOrderExecuted broadcasts an order's fills.
func (h *Hub) PublishOrderExecuted(order *domain.Order, trades []*domain.Trade) {
	payload := executionPayload{
		OrderID: order.OrderID,
		UserID:  order.UserID,
		Symbol:  order.Symbol,
		Side:    string(order.Side),
		Status:  string(order.Status),
		Trades:  make([]executionTrade, 0, len(trades)),
	}
	for _, t := range trades {
		payload.Trades = append(payload.Trades, executionTrade{
			TradeID:  t.TradeID,
			Price:    t.Price.StringFixed(2),
			Quantity: t.Quantity,
		})
	}
	h.Broadcast(Event{Type: "order_executed", Data: payload})
}

// ClientCount returns the number of connected clients. Useful for
// testing.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
