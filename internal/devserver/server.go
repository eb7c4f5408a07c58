package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-creator-hub/internal/broker"
	"go-creator-hub/internal/config"
	"go-creator-hub/internal/event"
	"go-creator-hub/internal/handler"
	"go-creator-hub/internal/middleware"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/repository"
	"go-creator-hub/internal/router"
	"go-creator-hub/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Server is the development backend: REST API, STOMP broker and metrics on
// one HTTP listener.
type Server struct {
	Auth   *service.AuthService
	Chat   *service.ChatService
	Tokens *repository.TokenRepository
	Broker *broker.Broker

	cfg          *config.Config
	logger       *slog.Logger
	handler      http.Handler
	server       *http.Server
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	userRepo := repository.NewUserRepository()
	tokenRepo := repository.NewTokenRepository()
	chatRepo := repository.NewChatRepository()

	authService, err := service.NewAuthService(userRepo, tokenRepo, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.RequireEmailVerifying, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)

	bus := event.NewBus(logger)
	chatService := service.NewChatService(chatRepo, userRepo, bus, logger)
	profileService := service.NewProfileService(userRepo, cfg.AvatarDir)

	stompBroker := broker.New(broker.Options{
		Auth:           authService,
		Chats:          chatService,
		Bus:            bus,
		HeartBeat:      cfg.BrokerHeartbeat,
		Logger:         logger,
		Metrics:        broker.NewMetrics(registry),
		AllowedOrigins: cfg.CORSOrigins,
	})
	if err := stompBroker.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start broker: %w", err)
	}

	appRouter := router.New(cfg, logger, authMiddleware, router.Handlers{
		Auth:           handler.NewAuthHandler(authService),
		CompanyProfile: handler.NewProfileHandler(profileService, model.RoleCompany),
		CreatorProfile: handler.NewProfileHandler(profileService, model.RoleContentCreator),
		Chat:           handler.NewChatHandler(chatService),
		Health:         handler.NewHealthHandler(stompBroker),
		Realtime:       stompBroker,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		AvatarDir:      cfg.AvatarDir,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &Server{
		Auth:    authService,
		Chat:    chatService,
		Tokens:  tokenRepo,
		Broker:  stompBroker,
		cfg:     cfg,
		logger:  logger,
		handler: appRouter,
		server:  server,
		cleanupFuncs: []func(){
			func() {
				_ = stompBroker.Close()
			},
		},
	}, nil
}

// Handler exposes the router for in-process servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		s.Close()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	s.Close()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) Close() {
	for _, cleanup := range s.cleanupFuncs {
		cleanup()
	}
	s.cleanupFuncs = nil
}
