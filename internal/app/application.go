package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"huddle/internal/api"
	"huddle/internal/config"
	"huddle/internal/database"
	"huddle/internal/events"
	"huddle/internal/hub"
	"huddle/internal/memstore"
	"huddle/internal/session"
	"huddle/internal/websocket"
	pkgdatabase "huddle/pkg/database"
	"huddle/pkg/interfaces"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	log        *slog.Logger
	store      interfaces.Store
	bus        *events.Bus
	sessions   *session.Manager
	registry   *websocket.Registry
	messageHub *hub.Hub
	limiter    *api.RateLimiter
	apiServer  *api.Server
	httpServer *http.Server

	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication builds every component in dependency order:
// Store → Bus → Session → Registry → Hub → API → HTTP
func NewApplication(cfg *config.Config, log *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Open the store selected by the driver
	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	// STEP 2: Event bus shared by the orchestrator and the hub
	bus := events.NewBus(log)

	// STEP 3: Session orchestrator
	sessions := session.NewManager(store, bus, log)

	// STEP 4: Push connection registry and handler
	registry := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(registry, websocket.ConnectionOptions{
		BufferSize:   cfg.WebSocket.BufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
	}, log)

	// STEP 5: Hub fans bus events out to the registry
	messageHub := hub.NewHub(registry, bus, cfg.WebSocket.PingInterval, log)

	// STEP 6: REST surface
	var limiter *api.RateLimiter
	if cfg.RateLimit.Requests > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	apiServer := api.NewServer(sessions, store, registry, limiter, log)

	// STEP 7: HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		store:      store,
		bus:        bus,
		sessions:   sessions,
		registry:   registry,
		messageHub: messageHub,
		limiter:    limiter,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

func openStore(cfg *config.Config, log *slog.Logger) (interfaces.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Info("Using in-memory store")
		return memstore.New(), nil
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.WriteTimeout = cfg.Database.Timeout

	dbManager, err := database.NewManager(dbConfig, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	if err := dbManager.Migrate(); err != nil {
		_ = dbManager.Close()
		return nil, err
	}
	log.Info("Database migrations applied", "path", cfg.Database.Path)
	return dbManager, nil
}

// Seed loads fixture data into the store. Call before Start.
func (app *Application) Seed(ctx context.Context, seed *Seed) error {
	if err := seed.Apply(ctx, app.store); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	app.log.Info("Seed data loaded",
		"sessions", len(seed.Sessions),
		"users", len(seed.Users),
		"activities", len(seed.Activities))
	return nil
}

// Start binds the listener, starts the hub and then serves HTTP in the
// background. It returns once the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	// STEP 1: Hub subscribes before any request can publish
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Rate limiter housekeeping
	if app.limiter != nil {
		go app.limiter.Run(runCtx)
	}

	// STEP 3: Serve
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("HTTP server error", "error", err)
		}
	}()

	app.log.Info("Huddle started", "addr", listener.Addr().String())
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → Hub → connections → Store.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("Shutting down")

	var errs []error

	// STEP 1: Stop accepting new requests
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Stop event fan-out and probing
	if app.cancel != nil {
		app.cancel()
	}
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	// STEP 3: Hijacked WebSocket connections are not closed by Shutdown
	app.registry.CloseAll()

	// STEP 4: Close the store
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store shutdown: %w", err))
	}

	app.log.Info("Shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listen address once started, the configured one before.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP routing for in-process use.
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}
