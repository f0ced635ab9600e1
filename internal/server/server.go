package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/handlers"
	"github.com/chatify/apiserver/internal/moderation"
	"github.com/chatify/apiserver/internal/mq"
	"github.com/chatify/apiserver/internal/posts"
	"github.com/chatify/apiserver/internal/services"
	"github.com/chatify/apiserver/internal/storage"
	"github.com/chatify/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	storage  *storage.Storage
	store    *store.Store
	queue    *mq.MQ
	checker  moderation.Checker
	pipeline *moderation.Pipeline
	feed     *services.FeedService
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store backend: %w", err)
	}
	kv := storage.NewStorage(backend, cfg.Store.Prefix)

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	st := store.New(kv, store.DefaultSeed, logger)
	repo := posts.NewRepository(st, logger)
	users := services.NewUserService(st, logger)

	checker := moderation.NewChecker(cfg.Moderation.URL, cfg.Moderation.Timeout)
	if cfg.Moderation.URL == "" {
		logger.Warn("MODERATION_URL is not set, every check will fail open")
	}
	pipeline := moderation.NewPipeline(checker, repo, cfg.Moderation.Timeout, logger)
	if queue != nil {
		pipeline.SetPublisher(queue, cfg.MQ.Topic)
	}

	feed := services.NewFeedService(repo, users, pipeline, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(feed.Loading))
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, users, jwtSecret)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, feed, handlers.RequireAuth(jwtSecret))
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
		storage:    kv,
		store:      st,
		queue:      queue,
		checker:    checker,
		pipeline:   pipeline,
		feed:       feed,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start hydrates the feed in the background and runs the HTTP server until
// it is shut down. Requests that mutate state wait for hydration, which
// retries until it succeeds or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.feed.Hydrate(ctx, s.store); err != nil {
			s.logger.Warn("Hydration abandoned", "error", err)
		}
	}()

	s.logger.Info("Server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for running moderation checks
// and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if perr := s.pipeline.Shutdown(ctx); perr != nil {
		s.logger.Warn("Moderation checks still running at shutdown", "pending", s.pipeline.Pending(), "error", perr)
	}
	if closer, ok := s.checker.(io.Closer); ok {
		_ = closer.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if cerr := s.storage.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
