package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/feed"
	"github.com/paperstreet/brokerd/internal/service"
	"github.com/paperstreet/brokerd/internal/stream"
)

// NewRouter creates a chi router with all routes registered, CORS,
// request logging, and Content-Type validation middleware. Market
// data and auth endpoints are public; orders and portfolio require a
// bearer token.
func NewRouter(
	accounts *service.AccountService,
	trading *service.TradingService,
	sim *feed.Simulator,
	hub *stream.Hub,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.AllowAll().Handler)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(accounts)
	orderH := NewOrderHandler(trading)
	marketH := NewMarketHandler(sim, trading)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", hub.ServeWS)

	r.Post("/api/auth/register", accountH.Register)
	r.Post("/api/auth/login", accountH.Login)

	r.Get("/api/market/prices", marketH.Prices)
	r.Get("/api/market/{symbol}/book", marketH.Book)

	r.Group(func(r chi.Router) {
		r.Use(tokens.Middleware)

		r.Get("/api/auth/me", accountH.Me)

		r.Post("/api/orders", orderH.Submit)
		r.Get("/api/orders", orderH.List)
		r.Get("/api/orders/{order_id}", orderH.Get)
		r.Delete("/api/orders/{order_id}", orderH.Cancel)

		r.Get("/api/portfolio", marketH.Portfolio)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so the websocket upgrade
// on /ws still works behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// contentTypeJSON validates Content-Type for POST, PUT, and PATCH
// requests before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
