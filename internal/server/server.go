// Package server exposes the browse, account and back-office HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/browse"
	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/config"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/service"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Accounts *service.Accounts
	Browse   *browse.Manager
	Catalog  service.CatalogRefresher
	Redis    *cache.Redis // nil: admin refreshes run inline
	Tokens   *auth.Issuer
	Admin    auth.AdminCredentials
}

// Server holds dependencies for the HTTP API.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router chi.Router
	logger zerolog.Logger
}

// New creates a Server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, logger: log.WithComponent("http")}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(withCORS)
	r.Use(s.withLogging)

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/browse", func(r chi.Router) {
		r.Get("/", s.handleBrowseState)
		r.Post("/countries", s.handleShowCountries)
		r.Get("/countries", s.handleListCountries)
		r.Post("/countries/{code}", s.handleSelectCountry)
		r.Get("/channels", s.handleListChannels)
		r.Post("/skip", s.handleSkipChecking)
		r.Post("/channels/{id}", s.handleSelectChannel)
		r.Post("/streams/{index}", s.handleSelectStream)
		r.Post("/playback", s.handlePlayback)
		r.Post("/back", s.handleGoBack)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(loginRateLimit()).Post("/register", s.handleRegister)
		r.With(loginRateLimit()).Post("/login", s.handleLogin)
		r.Get("/session", s.handleSession)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(loginRateLimit()).Post("/auth/login", s.handleAdminLogin)
		r.Get("/auth/check", s.handleAdminCheck)
		r.Post("/auth/logout", s.handleAdminLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Patch("/users", s.handleUpdateUser)
			r.Delete("/users", s.handleDeleteUser)
			r.Post("/catalog/refresh", s.handleCatalogRefresh)
		})
	})

	r.Get("/api/docs", handleSwaggerUI)
	r.Get("/api/docs/openapi.yaml", handleOpenAPISpec)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
