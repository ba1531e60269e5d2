package handler

import (
	"net/http"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/service"
)

// AccountHandler handles registration, login, and the authenticated
// profile endpoint.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// credentialsRequest is the body for register and login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse carries the token and the account summary.
type authResponse struct {
	Token   string          `json:"token"`
	Account accountResponse `json:"account"`
}

type accountResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	CashBalance string `json:"cash_balance"`
	CreatedAt   string `json:"created_at"`
}

// Register handles POST /api/auth/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	acct, token, err := h.accounts.Register(req.Email, req.Password)
	if err != nil {
		MapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, authResponse{Token: token, Account: buildAccountResponse(acct)})
}

// Login handles POST /api/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	acct, token, err := h.accounts.Login(req.Email, req.Password)
	if err != nil {
		MapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, authResponse{Token: token, Account: buildAccountResponse(acct)})
}

// Me handles GET /api/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(auth.UserID(r.Context()))
	if err != nil {
		MapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(acct))
}

func buildAccountResponse(acct *domain.Account) accountResponse {
	acct.Mu.Lock()
	defer acct.Mu.Unlock()
	return accountResponse{
		UserID:      acct.UserID,
		Email:       acct.Email,
		CashBalance: acct.CashBalance.StringFixed(2),
		CreatedAt:   acct.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
