/*
server.go - HTTP router and session middleware

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Session:    Bearer-token resolution on protected routes

SESSIONS:
  Every route except /health and /api/auth/login requires an
  "Authorization: Bearer <token>" header. The middleware resolves the
  token to an operator ID and stores it on the request context; every
  write the handlers perform is attributed to that operator.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/tokens.go: Token issuing and resolution
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/cash-ledger/ledger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		// Everything below requires a session.
		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/auth/logout", h.Logout)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.SubmitTransaction)
				r.Get("/", h.ListTransactions)
				r.Get("/{id}", h.GetTransaction)
				r.Delete("/{id}", h.DeleteTransaction)
				r.Patch("/{id}/notes", h.UpdateTransactionNotes)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Put("/{id}", h.UpdateAccount)
				r.Delete("/{id}", h.DeleteAccount)
			})

			r.Route("/platforms", func(r chi.Router) {
				r.Get("/", h.ListPlatforms)
				r.Post("/", h.CreatePlatform)
				r.Put("/{id}", h.UpdatePlatform)
				r.Delete("/{id}", h.DeletePlatform)
			})

			r.Route("/games", func(r chi.Router) {
				r.Get("/", h.ListGames)
				r.Post("/", h.CreateGame)
				r.Put("/{id}", h.UpdateGame)
				r.Delete("/{id}", h.DeleteGame)
			})

			r.Route("/players", func(r chi.Router) {
				r.Get("/", h.ListPlayers)
				r.Post("/", h.CreatePlayer)
				r.Put("/{id}", h.UpdatePlayer)
				r.Delete("/{id}", h.DeletePlayer)
				r.Get("/{id}/credits", h.ListCreditEntries)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/", h.ListPlayerCredits)
				r.Post("/", h.CreateCreditEntry)
				r.Delete("/{id}", h.DeleteCreditEntry)
			})

			r.Route("/operators", func(r chi.Router) {
				r.Get("/", h.ListOperators)
				r.Post("/", h.CreateOperator)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/today", h.TodayReport)
				r.Get("/monthly", h.MonthlyReport)
				r.Get("/accounts", h.AccountReport)
				r.Get("/near-limit", h.NearLimitReport)
			})
		})
	})

	return r
}

// =============================================================================
// SESSION MIDDLEWARE
// =============================================================================

type contextKey string

const operatorContextKey contextKey = "operator_id"

// requireSession resolves the bearer token and stores the operator ID on
// the request context. Missing, malformed or expired tokens get 401.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		operatorID, err := h.Sessions.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session", nil)
			return
		}

		ctx := context.WithValue(r.Context(), operatorContextKey, operatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header; empty when
// the header is absent or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func operatorFromContext(ctx context.Context) ledger.OperatorID {
	id, _ := ctx.Value(operatorContextKey).(ledger.OperatorID)
	return id
}
