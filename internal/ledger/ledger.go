// Package ledger owns all account state: cash balances, reservations,
// and per-symbol share positions. Every mutation happens under the
// account's lock, so a reservation check and the following update are
// atomic with respect to all other operations on the same account.
package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/domain"
)

// Ledger is the exclusive owner of account state. Operations on
// different accounts proceed fully in parallel; operations on one
// account are serialized by its mutex.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account // user_id → account
	byEmail  map[string]string          // email → user_id
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
	}
}

// CreateAccount registers a new account with the given starting cash
// balance. Returns domain.ErrUserExists if the email is taken.
func (l *Ledger) CreateAccount(userID, email, passwordHash string, startingBalance decimal.Decimal) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.byEmail[email]; taken {
		return nil, domain.ErrUserExists
	}
	acct := &domain.Account{
		UserID:       userID,
		Email:        email,
		PasswordHash: passwordHash,
		CashBalance:  startingBalance,
		Positions:    make(map[string]*domain.Position),
		CreatedAt:    time.Now(),
	}
	l.accounts[userID] = acct
	l.byEmail[email] = userID
	return acct, nil
}

// Get retrieves an account by user ID. Returns
// domain.ErrAccountNotFound if it does not exist.
func (l *Ledger) Get(userID string) (*domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// GetByEmail retrieves an account by email. Returns
// domain.ErrAccountNotFound if it does not exist.
func (l *Ledger) GetByEmail(email string) (*domain.Account, error) {
	l.mu.RLock()
	userID, ok := l.byEmail[email]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return l.Get(userID)
}

// ReserveForBuy locks cost against the account's available cash.
// Returns domain.ErrInsufficientFunds if available cash (balance
// minus existing reservations) cannot cover it. The check and the
// reservation are atomic under the account lock, so two concurrent
// orders can never both reserve against the same dollars.
func (l *Ledger) ReserveForBuy(userID string, cost decimal.Decimal) error {
	acct, err := l.Get(userID)
	if err != nil {
		return err
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	if acct.AvailableCash().LessThan(cost) {
		return domain.ErrInsufficientFunds
	}
	acct.ReservedCash = acct.ReservedCash.Add(cost)
	return nil
}

// ReleaseBuy returns a buy reservation to available cash. Called when
// an order is rejected after reservation or cancelled with remaining
// quantity.
func (l *Ledger) ReleaseBuy(userID string, cost decimal.Decimal) {
	acct, err := l.Get(userID)
	if err != nil {
		return
	}
	acct.Mu.Lock()
	acct.ReservedCash = acct.ReservedCash.Sub(cost)
	acct.Mu.Unlock()
}

// ReserveForSell locks qty shares of symbol against the account's
// available position. Returns domain.ErrInsufficientPosition if the
// unreserved quantity cannot cover it.
func (l *Ledger) ReserveForSell(userID, symbol string, qty int64) error {
	acct, err := l.Get(userID)
	if err != nil {
		return err
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	pos := acct.Position(symbol)
	if pos == nil || pos.Available() < qty {
		return domain.ErrInsufficientPosition
	}
	pos.Reserved += qty
	return nil
}

// ReleaseSell returns a sell reservation to the available position.
func (l *Ledger) ReleaseSell(userID, symbol string, qty int64) {
	acct, err := l.Get(userID)
	if err != nil {
		return
	}
	acct.Mu.Lock()
	if pos := acct.Position(symbol); pos != nil {
		pos.Reserved -= qty
	}
	acct.Mu.Unlock()
}

// SettleBuy applies a buy fill: debits price×qty from cash, releases
// reservedUnit×qty of the reservation (the reservation was taken at
// the limit or quoted price, which may exceed the execution price),
// and folds the fill into the position's quantity-weighted average
// cost. A position previously sold to zero restarts its average from
// scratch.
func (l *Ledger) SettleBuy(userID, symbol string, qty int64, price, reservedUnit decimal.Decimal) {
	acct, err := l.Get(userID)
	if err != nil {
		return
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	q := decimal.NewFromInt(qty)
	acct.CashBalance = acct.CashBalance.Sub(price.Mul(q))
	acct.ReservedCash = acct.ReservedCash.Sub(reservedUnit.Mul(q))

	pos := acct.Position(symbol)
	if pos == nil {
		pos = &domain.Position{AverageCost: decimal.Zero}
		acct.Positions[symbol] = pos
	}
	oldQty := decimal.NewFromInt(pos.Quantity)
	newQty := oldQty.Add(q)
	pos.AverageCost = oldQty.Mul(pos.AverageCost).Add(q.Mul(price)).Div(newQty)
	pos.Quantity += qty
}

// SettleSell applies a sell fill: credits price×qty to cash and
// reduces both the position quantity and its sell reservation.
// Average cost is left untouched; a sell only realizes it.
func (l *Ledger) SettleSell(userID, symbol string, qty int64, price decimal.Decimal) {
	acct, err := l.Get(userID)
	if err != nil {
		return
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	q := decimal.NewFromInt(qty)
	acct.CashBalance = acct.CashBalance.Add(price.Mul(q))

	pos := acct.Position(symbol)
	if pos == nil {
		return
	}
	pos.Quantity -= qty
	pos.Reserved -= qty
}

// CreditShares adds shares to an account outside the buy pipeline
// (seeding test fixtures and counterparty maker fills settle through
// SettleBuy/SettleSell instead).
func (l *Ledger) CreditShares(userID, symbol string, qty int64, avgCost decimal.Decimal) error {
	acct, err := l.Get(userID)
	if err != nil {
		return err
	}
	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	pos := acct.Position(symbol)
	if pos == nil {
		pos = &domain.Position{}
		acct.Positions[symbol] = pos
	}
	pos.Quantity += qty
	pos.AverageCost = avgCost
	return nil
}

// PositionSnapshot is a copy of one position, safe to hand out.
type PositionSnapshot struct {
	Symbol      string
	Quantity    int64
	Reserved    int64
	AverageCost decimal.Decimal
}

// BalanceSnapshot is a point-in-time copy of an account's balances.
type BalanceSnapshot struct {
	CashBalance  decimal.Decimal
	ReservedCash decimal.Decimal
	Positions    []PositionSnapshot
}

// Snapshot returns a consistent copy of the account's balances taken
// under the account lock.
func (l *Ledger) Snapshot(userID string) (BalanceSnapshot, error) {
	acct, err := l.Get(userID)
	if err != nil {
		return BalanceSnapshot{}, err
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	snap := BalanceSnapshot{
		CashBalance:  acct.CashBalance,
		ReservedCash: acct.ReservedCash,
	}
	for sym, pos := range acct.Positions {
		snap.Positions = append(snap.Positions, PositionSnapshot{
			Symbol:      sym,
			Quantity:    pos.Quantity,
			Reserved:    pos.Reserved,
			AverageCost: pos.AverageCost,
		})
	}
	return snap, nil
}
