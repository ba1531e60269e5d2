package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's holding in a single symbol. A position
// sold down to zero keeps its row (quantity 0) so a later buy starts
// a fresh weighted average from zero.
type Position struct {
	Quantity    int64
	Reserved    int64 // shares locked by open sell orders
	AverageCost decimal.Decimal
}

// Available returns the quantity not locked by open sell orders.
func (p *Position) Available() int64 {
	return p.Quantity - p.Reserved
}

// Account holds a user's cash and share positions. All mutations go
// through the ledger, which serializes them with the per-account lock.
type Account struct {
	UserID       string
	Email        string
	PasswordHash string
	CashBalance  decimal.Decimal
	ReservedCash decimal.Decimal // cash locked by open buy orders
	Positions    map[string]*Position
	CreatedAt    time.Time
	Mu           sync.Mutex
}

// AvailableCash returns cash not locked by open buy orders.
func (a *Account) AvailableCash() decimal.Decimal {
	return a.CashBalance.Sub(a.ReservedCash)
}

// Position returns the account's position in symbol, or nil.
func (a *Account) Position(symbol string) *Position {
	return a.Positions[symbol]
}
