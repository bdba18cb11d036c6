package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	aiahttp "github.com/aiarch/aia/internal/adapter/http"
	"github.com/aiarch/aia/internal/adapter/mcp"
	"github.com/aiarch/aia/internal/adapter/memory"
	aianats "github.com/aiarch/aia/internal/adapter/nats"
	"github.com/aiarch/aia/internal/adapter/natskv"
	aiaotel "github.com/aiarch/aia/internal/adapter/otel"
	"github.com/aiarch/aia/internal/adapter/postgres"
	"github.com/aiarch/aia/internal/adapter/ristretto"
	"github.com/aiarch/aia/internal/adapter/tiered"
	"github.com/aiarch/aia/internal/adapter/ws"
	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/logger"
	"github.com/aiarch/aia/internal/middleware"
	"github.com/aiarch/aia/internal/port/cache"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
	"github.com/aiarch/aia/internal/port/validator"
	"github.com/aiarch/aia/internal/resilience"
	"github.com/aiarch/aia/internal/secrets"
	"github.com/aiarch/aia/internal/service"
)

var version = "dev"

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"version", version,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"nats", cfg.NATS.URL != "",
		"mcp", cfg.MCP.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vault, err := secrets.NewVault(secrets.FileLoader(cfg.Server.SecretsFile, map[string]string{
		secrets.OperatorKey: cfg.Server.OperatorKey,
		secrets.MCPAPIKey:   cfg.MCP.APIKey,
	}))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Telemetry ---

	shutdownOTEL, err := aiaotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := aiaotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// NATS is optional. queue stays a nil interface without it so services
	// skip publishing.
	var (
		queue messagequeue.Queue
		nq    *aianats.Queue
	)
	if cfg.NATS.URL != "" {
		nq, err = aianats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nq.Drain() }()
		queue = nq
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	knowledgeCache, idemCache, err := openCaches(ctx, cfg, l1, nq)
	if err != nil {
		return err
	}

	hub := ws.NewHub(originPattern(cfg.Server.CORSOrigin))
	defer hub.Close()
	events := metrics.Broadcaster(hub)

	var votes validator.Validator = service.NewLocalValidator(store)
	if nq != nil {
		votes = aianats.NewValidator(nq.Conn(), resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	// --- Services ---

	economySvc := service.NewEconomyService(store, &cfg.Economy)
	orchestrator := service.NewOrchestratorService(store, queue, events, economySvc, &cfg.Matching)
	directory := service.NewDirectoryService(store, events)
	directory.SetRematcher(orchestrator)
	sprints := service.NewSprintService(store, queue, events, &cfg.Sprint)
	sprints.SetRematcher(orchestrator)
	ventures := service.NewVentureService(store, queue, events, orchestrator, &cfg.Venture)
	consensusSvc := service.NewConsensusService(store, votes, events, &cfg.Consensus)
	knowledgeSvc := service.NewKnowledgeService(store, knowledgeCache)
	if err := knowledgeSvc.Load(ctx); err != nil {
		return fmt.Errorf("load knowledge graph: %w", err)
	}

	// Tasks left pending by a previous run get a matching pass at startup.
	if n, err := orchestrator.Rematch(ctx); err != nil {
		slog.Warn("startup rematch", "error", err)
	} else if n > 0 {
		slog.Info("startup rematch assigned tasks", "count", n)
	}

	// --- HTTP ---

	handlers := &aiahttp.Handlers{
		Directory: directory,
		Tasks:     orchestrator,
		Economy:   economySvc,
		Ventures:  ventures,
		Sprints:   sprints,
		Consensus: consensusSvc,
		Knowledge: knowledgeSvc,
		Store:     store,
		Queue:     queue,
		Hub:       hub,

		OperatorKey: vault.Getter(secrets.OperatorKey),
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	if cfg.OTEL.Enabled {
		r.Use(aiaotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.AgentID)
	r.Use(aiahttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(aiahttp.SecurityHeaders)
	r.Use(aiahttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	aiahttp.MountRoutes(r, handlers,
		limiter.Handler,
		middleware.Idempotency(idemCache, cfg.Idempotency.TTL),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---

	var mcpSrv *mcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "aia",
			Version: version,
			APIKey:  vault.Getter(secrets.MCPAPIKey),
		}, mcp.ServerDeps{
			Knowledge: knowledgeSvc,
			Tasks:     orchestrator,
			Economy:   economySvc,
			Agents:    directory,
			Observer:  metrics,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		slog.Info("mcp server started", "addr", cfg.MCP.Addr, "auth", vault.Get(secrets.MCPAPIKey) != "")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reloadSecretsOnHangup(gctx, vault)
		return nil
	})
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		if mcpSrv != nil {
			errs = append(errs, mcpSrv.Stop(sctx))
		}
		errs = append(errs, srv.Shutdown(sctx))
		return errors.Join(errs...)
	})
	return g.Wait()
}

// reloadSecretsOnHangup rereads the secrets file on every SIGHUP until ctx
// ends. A failed reload keeps the previous keys.
func reloadSecretsOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secrets reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "operator_key", vault.Get(secrets.OperatorKey) != "")
		}
	}
}

// openStore opens the configured store. Postgres is migrated before use.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		slog.Warn("using in-memory store; state is lost on exit")
		return memory.New(), func() {}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openCaches returns the knowledge query cache and the idempotency cache.
// With NATS both are backed by JetStream KV buckets so replicas share
// them; without it both live in the local L1.
func openCaches(ctx context.Context, cfg *config.Config, l1 *ristretto.Cache, nq *aianats.Queue) (knowledge, idem cache.Cache, err error) {
	if nq == nil {
		return l1, l1, nil
	}
	kv, err := nq.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("cache bucket: %w", err)
	}
	idemKV, err := nq.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency bucket: %w", err)
	}
	return tiered.New(l1, natskv.New(kv), cfg.Cache.L2TTL), natskv.New(idemKV), nil
}

// originPattern turns the CORS origin into a WebSocket origin pattern,
// which matches on host only.
func originPattern(origin string) string {
	if i := strings.Index(origin, "://"); i >= 0 {
		return origin[i+3:]
	}
	return origin
}
