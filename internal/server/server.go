// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: config → store → LendingService →
// AuthService → handlers → routes. Nothing below this package knows which
// store backs the registry or how requests arrive.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/lendpal/internal/auth"
	"github.com/sakif/lendpal/internal/config"
	"github.com/sakif/lendpal/internal/handler"
	"github.com/sakif/lendpal/internal/middleware"
	"github.com/sakif/lendpal/internal/repository"
	"github.com/sakif/lendpal/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/lendpal/internal/repository/sqlite"
	"github.com/sakif/lendpal/internal/service"
)

// shutdownTimeout bounds both the drain of in-flight requests and the final save.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store. Close (called by Start on shutdown) writes
// the registry one last time and then releases the store.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	closer  io.Closer
	lending *service.LendingService
	auth    *service.AuthService
	tokens  *auth.TokenService
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore picks the registry store named by cfg.Driver.
func openStore(cfg config.StorageConfig) (repository.Store, io.Closer, error) {
	switch cfg.Driver {
	case "json":
		return jsonfile.New(cfg.Path), nopCloser{}, nil
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// New opens the configured store, loads the registry and wires the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, closer, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	lending, err := service.Open(ctx, store, logger, nil,
		service.WithAutosave(cfg.Storage.Autosave),
		service.WithDefaultPeriod(cfg.Lending.Period()),
	)
	if err != nil {
		closer.Close()
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		closer:  closer,
		lending: lending,
		auth:    service.NewAuthService(lending, tokens, logger),
		tokens:  tokens,
	}
	s.setupRoutes()

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /auth/register           → create a user
// POST   /auth/login              → password login, sets the token cookie
// POST   /auth/logout             → clear the token cookie
// GET    /healthz                 → liveness + store reachability
// GET    /metrics                 → Prometheus scrape endpoint
// /api/* (token required):
// GET    /api/me, /api/me/loans
// GET    /api/users/{id}, /api/users/{id}/loans   DELETE /api/users/{id}
// GET    /api/items   POST /api/items
// GET    /api/items/{id}   DELETE /api/items/{id}   GET /api/items/{id}/holder
// POST   /api/items/{id}/lend, /api/items/{id}/return
// GET    /api/loans[?overdue=true]
// POST   /api/data/save
//
// Middleware runs in the order it is added: request ID first so the logger
// can print it, Recoverer last so a panic still gets logged and counted.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(s.auth, s.lending, s.logger)
	lendingHandler := handler.NewLendingHandler(s.lending, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Get("/me/loans", authHandler.HandleMyLoans)

		r.Get("/users/{id}", lendingHandler.HandleGetUser)
		r.Get("/users/{id}/loans", lendingHandler.HandleUserLoans)
		r.Delete("/users/{id}", lendingHandler.HandleDeleteUser)

		r.Get("/items", lendingHandler.HandleListItems)
		r.Post("/items", lendingHandler.HandleCreateItem)
		r.Get("/items/{id}", lendingHandler.HandleGetItem)
		r.Delete("/items/{id}", lendingHandler.HandleDeleteItem)
		r.Get("/items/{id}/holder", lendingHandler.HandleItemHolder)
		r.Post("/items/{id}/lend", lendingHandler.HandleLend)
		r.Post("/items/{id}/return", lendingHandler.HandleReturn)

		r.Get("/loans", lendingHandler.HandleListLoans)
		r.Post("/data/save", lendingHandler.HandleSave)
	})
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// pinger is implemented by stores with a live connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("store ping failed", slog.String("error", err.Error()))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(healthResponse{Status: status, Store: s.store.Location()})
}

// Close saves the registry and releases the store. It is safe to call
// once; Start calls it on shutdown.
func (s *Server) Close(ctx context.Context) error {
	saveErr := s.lending.WriteData(ctx)
	if saveErr != nil {
		saveErr = fmt.Errorf("final save: %w", saveErr)
	}
	return errors.Join(saveErr, s.closer.Close())
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Write the registry and close the store
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("storage", s.config.Storage.Driver),
			slog.String("location", s.store.Location()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		return errors.Join(runErr, err)
	}
	s.logger.Info("server stopped")

	return runErr
}
