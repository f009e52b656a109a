// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the arena gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"chainarena/config"
	"chainarena/internal/chain"
	"chainarena/internal/core"
	"chainarena/internal/dispatch"
	"chainarena/internal/httpclient"
	"chainarena/internal/identity"
	"chainarena/internal/oracle"
	"chainarena/internal/payout"
	"chainarena/internal/providers"
	"chainarena/internal/providers/anthropic"
	"chainarena/internal/providers/gemini"
	"chainarena/internal/providers/groq"
	"chainarena/internal/providers/openai"
	"chainarena/internal/ranking"
	"chainarena/internal/server"
	"chainarena/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	storage  storage.Storage
	chain    *chain.Client
	redis    *redis.Client
	rewarder payout.Rewarder
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}
	// Release whatever was opened if a later step fails
	defer func() {
		if err != nil {
			if closeErr := app.close(); closeErr != nil {
				err = fmt.Errorf("%w (also: close error: %v)", err, closeErr)
			}
		}
	}()

	clientCfg := httpclient.WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
	httpClient := httpclient.NewHTTPClient(&clientCfg)

	factory := providers.NewFactory(
		openai.Registration,
		anthropic.Registration,
		gemini.Registration,
		groq.Registration,
	)
	registry, err := providers.NewRegistry(cfg.Providers, factory, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	app.storage, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	store, err := ranking.NewStore(ctx, app.storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ranking store: %w", err)
	}

	catalog, err := ranking.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	engine := ranking.NewEngine(store)
	if err := engine.Seed(ctx, catalog); err != nil {
		return nil, fmt.Errorf("failed to seed participants: %w", err)
	}

	var asker core.OracleAsker
	if cfg.Chain.Enabled() {
		bridge, err := app.initOracle(ctx)
		if err != nil {
			return nil, err
		}
		asker = bridge
	}

	dispatcher := dispatch.New(catalog, registry, engine, asker, dispatch.WithCritic(dispatch.Critic{
		ContractAddress: cfg.Critic.ContractAddress,
		Model:           cfg.Critic.Model,
	}))

	app.rewarder = payout.NoopRewarder{}
	if cfg.Payout.Enabled() {
		circle, err := payout.NewCircleClient(cfg.Payout, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize payouts: %w", err)
		}
		app.rewarder = payout.NewOrchestrator(circle, payout.Config{
			Amount:        cfg.Payout.Amount,
			DefaultWallet: cfg.Payout.DefaultWallet,
			BufferSize:    cfg.Payout.BufferSize,
		})
	}

	deps := server.Deps{
		Dispatcher: dispatcher,
		Ranking:    engine,
		Rewarder:   app.rewarder,
	}
	// A nil *Verifier must not become a non-nil interface
	if v := identity.NewVerifier(cfg.Identity, httpClient); v != nil {
		deps.Verifier = v
	}

	app.logStartupInfo(registry.Len(), catalog)

	app.server = server.New(deps, &server.Config{
		MasterKey:          cfg.Server.MasterKey,
		MetricsEnabled:     cfg.Metrics.Enabled,
		MetricsEndpoint:    cfg.Metrics.Endpoint,
		BodySizeLimit:      cfg.Server.BodySizeLimit,
		CORSAllowOrigins:   cfg.Server.CORSAllowOrigins,
		DefaultStreamModel: cfg.Server.DefaultStreamModel,
	})

	return app, nil
}

// initOracle dials the chain and builds the request bridge, locking each
// contract mailbox locally and, when Redis is configured, across instances.
func (a *App) initOracle(ctx context.Context) (*oracle.Bridge, error) {
	cfg := a.config

	client, err := chain.Dial(ctx, cfg.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chain client: %w", err)
	}
	a.chain = client

	locker := oracle.Locker(oracle.NewStripedLocker())
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = oracle.ChainLockers(locker, oracle.NewRedisLocker(a.redis, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, clockwork.NewRealClock()))
	}

	slog.Info("oracle bridge enabled",
		"signer", client.Address(),
		"chain_id", cfg.Chain.ChainID,
		"timeout", cfg.Oracle.Timeout,
		"poll_interval", cfg.Oracle.PollInterval,
		"distributed_lock", a.redis != nil,
	)
	return oracle.New(client,
		oracle.WithPolicy(cfg.Oracle.Timeout, cfg.Oracle.PollInterval),
		oracle.WithLocker(locker),
	), nil
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then the payout queue (drained), then the chain,
// Redis and storage connections.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// close releases everything except the HTTP server.
func (a *App) close() error {
	var errs []error

	if a.rewarder != nil {
		if err := a.rewarder.Close(); err != nil {
			slog.Error("payout queue close error", "error", err)
			errs = append(errs, fmt.Errorf("payout close: %w", err))
		}
	}
	if a.chain != nil {
		a.chain.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("redis close error", "error", err)
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	return errors.Join(errs...)
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(providerCount int, catalog *ranking.Catalog) {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set MASTER_KEY environment variable to secure this gateway")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("catalog loaded", "models", len(catalog.Models), "agents", len(catalog.Agents), "providers", providerCount)

	if !cfg.Chain.Enabled() {
		slog.Warn("chain not configured - agent requests and contract critiques will fail")
	}
	if cfg.Payout.Enabled() {
		slog.Info("payouts enabled", "amount", cfg.Payout.Amount, "buffer_size", cfg.Payout.BufferSize)
	} else {
		slog.Info("payouts disabled")
	}
	if cfg.Identity.AppID == "" {
		slog.Info("identity verification disabled")
	}
}
