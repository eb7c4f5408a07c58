package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-creator-hub/internal/account"
	"go-creator-hub/internal/api"
	"go-creator-hub/internal/chat"
	"go-creator-hub/internal/config"
	"go-creator-hub/internal/database"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/profile"
	"go-creator-hub/internal/realtime"
	"go-creator-hub/internal/session"
	"go-creator-hub/internal/storage"
)

// App is the client context: every component is built here and handed to
// its users explicitly. Nothing is initialised at package load.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Session  *session.Store
	API      *api.Client
	Channel  *realtime.Channel
	Account  *account.Service
	Inbox    *chat.Inbox
	Profile  *profile.Service
	Registry *prometheus.Registry

	metricsServer *http.Server
	cleanupFuncs  []func()
	closeOnce     sync.Once
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector())

	cookies, err := storage.NewCookieTier(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cookie tier: %w", err)
	}

	durable, err := a.openDurable(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize durable tier: %w", err)
	}

	tiers := session.Tiers{Cookies: cookies, Ephemeral: storage.NewMemoryTier()}
	if durable != nil {
		tiers.Durable = durable
	}
	a.Session = session.New(tiers, session.WithLogger(logger))

	a.API = api.New(cfg.APIURL, a.Session, api.Options{
		Jar:          cookies.Jar(),
		Timeout:      cfg.APITimeout,
		RateLimitRPS: cfg.APIRateLimitRPS,
		Logger:       logger,
	})

	dialer := &realtime.StompDialer{
		URL:       cfg.WebSocketURL(),
		HeartBeat: cfg.WSHeartbeat,
		Logger:    logger,
	}
	a.Channel = realtime.NewChannel(dialer, a.Session, realtime.Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
		Logger:               logger,
		Metrics:              realtime.NewMetrics(a.Registry),
	})
	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		if err := a.Channel.Disconnect(); err != nil {
			logger.Warn("realtime disconnect on shutdown failed", "error", err)
		}
	})

	a.Inbox = chat.NewInbox(a.Channel, a.API, logger)
	a.Account = account.New(a.API, a.Session, a.Channel, account.Options{
		Logger:    logger,
		OnSignOut: a.Inbox.Stop,
	})
	a.Profile = profile.NewService(a.API, a.Session)

	if cfg.MetricsAddr != "" {
		a.startMetrics(cfg.MetricsAddr)
	}

	return a, nil
}

// SignIn logs in and starts the inbox for the new user.
func (a *App) SignIn(ctx context.Context, email string, password string, rememberMe bool) (*model.LoginResult, error) {
	res, err := a.Account.Login(ctx, email, password, rememberMe)
	if err != nil {
		return nil, err
	}

	if err := a.Inbox.Start(ctx, res.UserID); err != nil {
		return res, fmt.Errorf("start inbox: %w", err)
	}
	return res, nil
}

// Resume reconnects a session persisted by an earlier run.
func (a *App) Resume(ctx context.Context) (account.CurrentUser, bool, error) {
	user, ok := a.Account.CurrentUser()
	if !ok {
		return account.CurrentUser{}, false, nil
	}

	a.Channel.Connect()
	if err := a.Inbox.Start(ctx, user.ID); err != nil {
		return user, true, fmt.Errorf("start inbox: %w", err)
	}
	return user, true, nil
}

func (a *App) SignOut() error {
	a.Inbox.Stop()
	return a.Account.Logout()
}

func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// Close releases everything New acquired, in reverse order.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
			a.cleanupFuncs[i]()
		}
	})
}

func (a *App) openDurable(ctx context.Context) (session.KV, error) {
	cfg := a.Config

	switch cfg.DurableDriver {
	case config.DurableSQLite:
		if cfg.DurableSQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DurableSQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create state directory: %w", err)
			}
		}
		tier, err := storage.OpenSQLite(ctx, cfg.DurableSQLitePath, cfg.StorageOpTimeout)
		if err != nil {
			return nil, err
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = tier.Close() })
		a.Logger.Info("durable tier ready", "driver", "sqlite", "path", cfg.DurableSQLitePath)
		return tier, nil

	case config.DurablePostgres:
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Logger.Info("durable tier ready", "driver", "postgres")
		return storage.NewPostgresTier(db, "", cfg.StorageOpTimeout), nil

	default:
		a.Logger.Info("durable tier disabled; remember-me lasts for this process only")
		return nil, nil
	}
}

func (a *App) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())

	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("metrics server failed", "addr", addr, "error", err)
		}
	}()

	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	})
}
