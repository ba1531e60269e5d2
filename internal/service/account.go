package service

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/ledger"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AccountService handles registration, login, and account lookup.
type AccountService struct {
	ledger          *ledger.Ledger
	tokens          *auth.TokenManager
	startingBalance decimal.Decimal
}

// NewAccountService creates an AccountService. New accounts open with
// the configured starting cash balance.
func NewAccountService(l *ledger.Ledger, tokens *auth.TokenManager, startingBalance decimal.Decimal) *AccountService {
	return &AccountService{
		ledger:          l,
		tokens:          tokens,
		startingBalance: startingBalance,
	}
}

// Register creates an account and returns it with a signed token.
func (s *AccountService) Register(email, password string) (*domain.Account, string, error) {
	if !emailRegex.MatchString(email) {
		return nil, "", &domain.ValidationError{Message: "email must be a valid address"}
	}
	if len(password) < 8 {
		return nil, "", &domain.ValidationError{Message: "password must be at least 8 characters"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	acct, err := s.ledger.CreateAccount(uuid.New().String(), email, hash, s.startingBalance)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(acct.UserID)
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// Login verifies credentials and returns the account with a fresh
// token. Unknown emails and wrong passwords both report
// domain.ErrInvalidCredentials.
func (s *AccountService) Login(email, password string) (*domain.Account, string, error) {
	acct, err := s.ledger.GetByEmail(email)
	if err != nil {
		return nil, "", domain.ErrInvalidCredentials
	}
	if !auth.CheckPassword(acct.PasswordHash, password) {
		return nil, "", domain.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(acct.UserID)
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// Get retrieves an account by user ID.
func (s *AccountService) Get(userID string) (*domain.Account, error) {
	return s.ledger.Get(userID)
}
