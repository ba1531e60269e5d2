package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/ledger"
)

// PortfolioPosition is one holding valued at the current feed price.
type PortfolioPosition struct {
	Symbol        string
	Quantity      int64
	AverageCost   decimal.Decimal
	CurrentPrice  decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// PortfolioView is the user's account valued at current prices.
type PortfolioView struct {
	CashBalance      decimal.Decimal
	ReservedCash     decimal.Decimal
	TotalMarketValue decimal.Decimal
	TotalValue       decimal.Decimal
	Positions        []PortfolioPosition
}

// Portfolio returns the user's cash and holdings marked to the most
// recent feed prices, largest market value first. Zero-quantity
// positions are retained in the ledger but omitted from the view.
func (s *TradingService) Portfolio(userID string) (PortfolioView, error) {
	snap, err := s.ledger.Snapshot(userID)
	if err != nil {
		return PortfolioView{}, err
	}

	view := PortfolioView{
		CashBalance:      snap.CashBalance,
		ReservedCash:     snap.ReservedCash,
		TotalMarketValue: decimal.Zero,
	}
	for _, pos := range snap.Positions {
		if pos.Quantity == 0 {
			continue
		}
		view.Positions = append(view.Positions, s.valuePosition(pos))
	}
	sort.Slice(view.Positions, func(i, j int) bool {
		return view.Positions[i].MarketValue.GreaterThan(view.Positions[j].MarketValue)
	})
	for _, p := range view.Positions {
		view.TotalMarketValue = view.TotalMarketValue.Add(p.MarketValue)
	}
	view.TotalValue = view.CashBalance.Add(view.TotalMarketValue)
	return view, nil
}

// valuePosition marks one position to the current feed price. When
// the feed has no quote the position is valued at cost.
func (s *TradingService) valuePosition(pos ledger.PositionSnapshot) PortfolioPosition {
	qty := decimal.NewFromInt(pos.Quantity)
	price, err := s.feed.CurrentPrice(pos.Symbol)
	if err != nil {
		price = pos.AverageCost
	}
	return PortfolioPosition{
		Symbol:        pos.Symbol,
		Quantity:      pos.Quantity,
		AverageCost:   pos.AverageCost,
		CurrentPrice:  price,
		MarketValue:   price.Mul(qty),
		UnrealizedPnL: price.Sub(pos.AverageCost).Mul(qty),
	}
}
