// Package server собирает HTTP API удаленного хранилища документов.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/worldkeeper/internal/server/config"
	"github.com/iudanet/worldkeeper/internal/server/handlers"
	"github.com/iudanet/worldkeeper/internal/server/middleware"
	"github.com/iudanet/worldkeeper/internal/server/storage/sqlite"
)

// Server HTTP сервер worldkeeper
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *sqlite.Storage
	limiter *middleware.RateLimiter
	http    *http.Server
}

// New открывает хранилище и собирает маршруты
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, time.Minute),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(version),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

// Routes возвращает корневой handler со всеми маршрутами и middleware
func (s *Server) Routes(version string) http.Handler {
	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(s.cfg.JWTSecret),
		AccessTokenTTL: s.cfg.AccessTokenTTL,
	}
	notifier := handlers.NewNotifier()

	authHandler := handlers.NewAuthHandler(s.logger, s.store, jwtConfig)
	healthHandler := handlers.NewHealthHandler(s.logger, s.store, version)
	docHandler := handlers.NewDocumentHandler(s.logger, s.store, notifier)
	watchHandler := handlers.NewWatchHandler(s.logger, s.store, notifier)
	blobHandler := handlers.NewBlobHandler(s.logger, s.store)

	limited := s.limiter.Middleware(s.logger)
	authed := middleware.Auth(s.logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("POST /api/v1/auth/register", limited(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", limited(http.HandlerFunc(authHandler.Login)))

	mux.Handle("GET /api/v1/collections/{collection}/documents/{id}", authed(http.HandlerFunc(docHandler.GetDocument)))
	mux.Handle("POST /api/v1/collections/{collection}/query", authed(http.HandlerFunc(docHandler.Query)))
	mux.Handle("GET /api/v1/collections/{collection}/changes", authed(http.HandlerFunc(docHandler.Changes)))
	mux.Handle("GET /api/v1/collections/{collection}/watch", authed(http.HandlerFunc(watchHandler.Watch)))
	mux.Handle("POST /api/v1/commit", authed(http.HandlerFunc(docHandler.Commit)))
	mux.Handle("PUT /api/v1/blobs/{name}", authed(http.HandlerFunc(blobHandler.Put)))
	mux.Handle("GET /api/v1/blobs/{id}", authed(http.HandlerFunc(blobHandler.Get)))

	return middleware.Chain(mux,
		middleware.Recovery(s.logger),
		middleware.Logging(s.logger, "/health"),
		middleware.Decompress,
	)
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go s.limiter.Run(limiterCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server", "grace", s.cfg.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Close закрывает хранилище
func (s *Server) Close() error {
	return s.store.Close()
}
