package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/feed"
	"github.com/paperstreet/brokerd/internal/service"
)

// MarketHandler serves market data: current prices and order-book
// depth snapshots.
type MarketHandler struct {
	sim     *feed.Simulator
	trading *service.TradingService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(sim *feed.Simulator, trading *service.TradingService) *MarketHandler {
	return &MarketHandler{sim: sim, trading: trading}
}

// quoteResponse is one symbol's quote in GET /api/market/prices.
type quoteResponse struct {
	Symbol           string `json:"symbol"`
	CompanyName      string `json:"company_name"`
	CurrentPrice     string `json:"current_price"`
	PreviousClose    string `json:"previous_close"`
	DayChangePercent string `json:"day_change_percent"`
	LastUpdated      string `json:"last_updated"`
}

// Prices handles GET /api/market/prices.
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	quotes := h.sim.Quotes()
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	resp := struct {
		Prices    []quoteResponse `json:"prices"`
		Timestamp string          `json:"timestamp"`
	}{
		Prices:    make([]quoteResponse, 0, len(quotes)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, q := range quotes {
		resp.Prices = append(resp.Prices, quoteResponse{
			Symbol:           q.Symbol,
			CompanyName:      q.CompanyName,
			CurrentPrice:     q.CurrentPrice.StringFixed(2),
			PreviousClose:    q.PreviousClose.StringFixed(2),
			DayChangePercent: q.DayChangePercent.StringFixed(2),
			LastUpdated:      q.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// bookLevelResponse is one aggregated price level.
type bookLevelResponse struct {
	Price      string `json:"price"`
	Quantity   int64  `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

// Book handles GET /api/market/{symbol}/book.
func (h *MarketHandler) Book(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	depth := queryInt(r, "depth", 10)

	snap, err := h.trading.OrderBookSnapshot(symbol, depth)
	if err != nil {
		MapError(w, err)
		return
	}

	resp := struct {
		Symbol string              `json:"symbol"`
		Bids   []bookLevelResponse `json:"bids"`
		Asks   []bookLevelResponse `json:"asks"`
	}{
		Symbol: snap.Symbol,
		Bids:   make([]bookLevelResponse, 0, len(snap.Bids)),
		Asks:   make([]bookLevelResponse, 0, len(snap.Asks)),
	}
	for _, lvl := range snap.Bids {
		resp.Bids = append(resp.Bids, bookLevelResponse{
			Price:      lvl.Price.StringFixed(2),
			Quantity:   lvl.TotalQuantity,
			OrderCount: lvl.OrderCount,
		})
	}
	for _, lvl := range snap.Asks {
		resp.Asks = append(resp.Asks, bookLevelResponse{
			Price:      lvl.Price.StringFixed(2),
			Quantity:   lvl.TotalQuantity,
			OrderCount: lvl.OrderCount,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// portfolioResponse is the JSON shape for GET /api/portfolio.
type portfolioResponse struct {
	CashBalance      string                     `json:"cash_balance"`
	ReservedCash     string                     `json:"reserved_cash"`
	TotalMarketValue string                     `json:"total_market_value"`
	TotalValue       string                     `json:"total_value"`
	Holdings         []portfolioHoldingResponse `json:"holdings"`
}

type portfolioHoldingResponse struct {
	Symbol        string `json:"symbol"`
	Quantity      int64  `json:"quantity"`
	AverageCost   string `json:"average_cost"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPnL string `json:"unrealized_pnl"`
}

// Portfolio handles GET /api/portfolio.
func (h *MarketHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	view, err := h.trading.Portfolio(auth.UserID(r.Context()))
	if err != nil {
		MapError(w, err)
		return
	}

	resp := portfolioResponse{
		CashBalance:      view.CashBalance.StringFixed(2),
		ReservedCash:     view.ReservedCash.StringFixed(2),
		TotalMarketValue: view.TotalMarketValue.StringFixed(2),
		TotalValue:       view.TotalValue.StringFixed(2),
		Holdings:         make([]portfolioHoldingResponse, 0, len(view.Positions)),
	}
	for _, p := range view.Positions {
		resp.Holdings = append(resp.Holdings, portfolioHoldingResponse{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AverageCost:   p.AverageCost.StringFixed(2),
			CurrentPrice:  p.CurrentPrice.StringFixed(2),
			MarketValue:   p.MarketValue.StringFixed(2),
			UnrealizedPnL: p.UnrealizedPnL.StringFixed(2),
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}
