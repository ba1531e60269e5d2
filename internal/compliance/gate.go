// Package compliance implements the pre-trade policy gate. Checks are
// pure: a denial returns a reason and nothing else; no account, book,
// or order state changes.
package compliance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/ledger"
	"github.com/paperstreet/brokerd/internal/store"
)

// Gate runs pre-trade policy checks against the ledger and the order
// history.
type Gate struct {
	ledger       *ledger.Ledger
	orders       *store.OrderStore
	maxPosition  int64
	maxPerMinute int
	logger       *slog.Logger
}

// NewGate creates a Gate with the given limits.
func NewGate(l *ledger.Ledger, orders *store.OrderStore, maxPosition int64, maxPerMinute int, logger *slog.Logger) *Gate {
	return &Gate{
		ledger:       l,
		orders:       orders,
		maxPosition:  maxPosition,
		maxPerMinute: maxPerMinute,
		logger:       logger,
	}
}

var half = decimal.RequireFromString("0.5")

// Check evaluates the order against the position limit and the
// order-rate limit. notional is the order's reference value
// (quantity × limit, stop, or quoted price). A denial is returned as
// a *domain.ComplianceRejection whose reason goes back to the caller
// verbatim.
func (g *Gate) Check(order *domain.Order, notional decimal.Decimal) error {
	if g.maxPerMinute > 0 {
		recent := g.orders.CountSince(order.UserID, time.Now().Add(-time.Minute))
		if recent >= g.maxPerMinute {
			return &domain.ComplianceRejection{
				Reason: fmt.Sprintf("order rate limit exceeded: more than %d orders in one minute", g.maxPerMinute),
			}
		}
	}

	if order.Side == domain.OrderSideBuy && g.maxPosition > 0 {
		current := int64(0)
		if snap, err := g.ledger.Snapshot(order.UserID); err == nil {
			for _, p := range snap.Positions {
				if p.Symbol == order.Symbol {
					current = p.Quantity
				}
			}
		}
		if current+order.Quantity > g.maxPosition {
			return &domain.ComplianceRejection{
				Reason: fmt.Sprintf("position limit exceeded: maximum allowed is %d shares of %s", g.maxPosition, order.Symbol),
			}
		}
	}

	// Large orders are flagged, not denied; the ledger's reservation
	// check is the hard gate on affordability.
	if snap, err := g.ledger.Snapshot(order.UserID); err == nil {
		if notional.GreaterThan(snap.CashBalance.Mul(half)) && g.logger != nil {
			g.logger.Warn("large order relative to balance",
				slog.String("user_id", order.UserID),
				slog.String("symbol", order.Symbol),
				slog.String("notional", notional.String()),
			)
		}
	}

	return nil
}
