/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

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
  5. Session:    Bearer-token resolution on protected groups

ROUTE GROUPS:
  /api/auth/*                  Login, logout, refresh, profile
  /api/coa-accounts/*          Chart-of-accounts listing and checks
  /api/coa-rules               Rule configs
  /api/rule-categories/*       Value lists
  /api/request-coa-accounts/*  Maker-checker requests

SEE ALSO:
  - handlers.go: Handler implementations
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

	"github.com/warp/coa-engine/auth"
)

type contextKey string

const profileKey contextKey = "profile"

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes; login and refresh carry no live session yet
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/refresh", h.RefreshSession)

			r.Group(func(r chi.Router) {
				r.Use(h.sessionMiddleware)
				r.Post("/logout", h.Logout)
				r.Get("/profile", h.GetProfile)
			})
		})

		// Everything below requires a live session
		r.Group(func(r chi.Router) {
			r.Use(h.sessionMiddleware)

			// Account routes
			r.Route("/coa-accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Get("/{id:[0-9]+}", h.GetAccount)
				r.Get("/{accountNo}/exist", h.AccountExists)
			})

			// Rule routes
			r.Route("/coa-rules", func(r chi.Router) {
				r.Get("/", h.ListRules)
				r.Post("/", h.SaveRules)
			})

			// Category routes
			r.Route("/rule-categories", func(r chi.Router) {
				r.Get("/", h.ListCategories)
				r.Post("/values", h.SaveRuleValues)
			})

			// Request routes
			r.Route("/request-coa-accounts", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Post("/", h.CreateRequest)
				r.Post("/edit", h.CreateEditRequest)
				r.Get("/{id}", h.GetRequest)
				r.Put("/{id}", h.UpdateRequest)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Post("/{id}/reject", h.RejectRequest)
			})
		})
	})

	return r
}

// sessionMiddleware resolves the bearer token to a profile and injects it
// into the request context.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := h.Auth.Resolve(r.Context(), bearerToken(r))
		if err != nil {
			writeAuthError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), profileKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// profileFrom returns the injected profile, or nil outside the session
// middleware.
func profileFrom(ctx context.Context) *auth.Profile {
	profile, _ := ctx.Value(profileKey).(*auth.Profile)
	return profile
}
