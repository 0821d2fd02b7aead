package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	bxa2a "github.com/devusermeta/nubankx-sub000/internal/adapter/a2a"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/agenthttp"
	bxhttp "github.com/devusermeta/nubankx-sub000/internal/adapter/http"
	bxmcp "github.com/devusermeta/nubankx-sub000/internal/adapter/mcp"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/memory"
	bxnats "github.com/devusermeta/nubankx-sub000/internal/adapter/nats"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/natskv"
	bxotel "github.com/devusermeta/nubankx-sub000/internal/adapter/otel"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/postgres"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/ristretto"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/sqlite"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/tiered"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/ws"
	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/logger"
	"github.com/devusermeta/nubankx-sub000/internal/middleware"
	"github.com/devusermeta/nubankx-sub000/internal/port/cache"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog"
	"github.com/devusermeta/nubankx-sub000/internal/port/transport"
	"github.com/devusermeta/nubankx-sub000/internal/resilience"
	"github.com/devusermeta/nubankx-sub000/internal/secrets"
	"github.com/devusermeta/nubankx-sub000/internal/service"
)

const version = "0.1.0"

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "admin":
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	case "version":
		fmt.Println("bankx", version)
		return
	case "serve":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, version or admin)\n", cmd)
		os.Exit(2)
	}

	if err := run(); err != nil {
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
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"store", cfg.Store.Driver,
		"nats", cfg.NATS.Enabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := bxotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := bxotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Secrets ---

	vault, err := secrets.NewVault(secrets.Layered(
		secrets.Static(map[string]string{
			secrets.APIKeyHash: cfg.Auth.APIKeyHash,
			secrets.MCPAPIKey:  cfg.MCP.APIKey,
		}),
		secrets.FileLoader(cfg.Auth.SecretsDir, secrets.APIKeyHash, secrets.MCPAPIKey),
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if vault.Get(secrets.APIKeyHash) == "" {
		slog.Warn("api key auth disabled: no api_key_hash configured")
	}

	// --- Decision store ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Services ---

	hub := ws.NewHub(ws.WithOrigins(strings.Split(cfg.Server.CORSOrigin, ",")...))
	dir := service.NewDirectory(cfg.Directory.RemovedRetention)
	decisions := service.NewDecisionLog(store)
	decisions.SetBroadcaster(hub)

	table, err := config.LoadRouting(cfg.Routing.File)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	classifier, err := service.NewClassifier(table)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}

	agentClient := &http.Client{Transport: bxotel.Transport(http.DefaultTransport)}
	agentHTTP := agenthttp.New(agentClient)
	transports := map[string]transport.Transport{
		"http":  agentHTTP,
		"https": agentHTTP,
	}

	// --- NATS (optional) ---

	var (
		idempotency cache.Cache
		probes      = healthProbes{Store: cfg.Store.Driver, Agents: dir}
	)
	l1, err := ristretto.New(cfg.Idempotency.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("idempotency cache: %w", err)
	}
	defer l1.Close()
	idempotency = l1

	if cfg.NATS.Enabled() {
		queue, err := bxnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		probes.Bus = queue
		defer func() { _ = queue.Drain() }()

		transports["nats"] = bxnats.NewTransport(queue.Conn())
		decisions.SetFeed(service.NewDecisionFeed(queue, cfg.Events.Subject,
			cfg.Events.BreakerMaxFailures, cfg.Events.BreakerTimeout))

		cancelEvents, err := service.NewAgentEvents(queue, dir).Start(ctx)
		if err != nil {
			return fmt.Errorf("agent events: %w", err)
		}
		defer cancelEvents()

		if cfg.Idempotency.Enabled {
			kv, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
			if err != nil {
				return fmt.Errorf("idempotency bucket: %w", err)
			}
			shared := tiered.New(l1, natskv.New(kv), time.Minute)
			idempotency, probes.Cache = shared, shared
		}
	}
	if !cfg.Idempotency.Enabled {
		idempotency = nil
	}

	breakers := service.NewAgentBreakers(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breakers.OnTransition(func(k resilience.Key, from, to resilience.State) {
		slog.Warn("agent circuit state change",
			"capability", k.Capability, "agent_id", k.AgentID, "from", from, "to", to)
		metrics.RecordTransition(context.Background(), k.Capability, k.AgentID, string(to))
	})

	invoker := service.NewInvoker(breakers, transports, service.InvokerConfig{
		Retry: resilience.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	})
	invoker.SetMetrics(metrics)

	dispatcher := service.NewDispatcher(classifier, dir, invoker, decisions, service.DispatcherConfig{
		MaxInFlight:     cfg.Dispatch.MaxInFlight,
		FallbackMessage: cfg.Dispatch.FallbackMessage,
	})
	dispatcher.SetMetrics(metrics)

	monitor := service.NewHealthMonitor(dir, cfg.Health.Interval, cfg.Health.SoftTimeout, cfg.Health.HardTimeout)
	monitor.SetBroadcaster(hub)

	// --- HTTP ---

	handlers := &bxhttp.Handlers{
		Directory:  dir,
		Discovery:  service.NewDiscovery(bxa2a.NewResolver(agentClient), dir),
		Dispatcher: dispatcher,
		Decisions:  decisions,
		Breakers:   breakers,
		Card:       func() a2a.AgentCard { return bxa2a.BuildSupervisorCard(cfg.A2A, classifier.Table()) },
	}

	limiter := middleware.NewRateLimiter(cfg.Rate)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(bxhttp.SecurityHeaders)
	r.Use(bxhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(bxhttp.Logger)
	r.Use(bxotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/health", healthHandler(probes))
	r.Get("/ws/decisions", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		bxhttp.MountRoutes(r, handlers, bxhttp.RouteConfig{
			APIKeyHashFunc: vault.Getter(secrets.APIKeyHash),
			Idempotency:    idempotency,
			IdempotencyTTL: cfg.Idempotency.TTL,
		})
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		return limiter.RunCleanup(gctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	})
	g.Go(func() error { return reloadOnHangup(gctx, cfg.Routing.File, classifier, vault) })

	var mcpSrv *bxmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = bxmcp.NewServer(bxmcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    cfg.A2A.Name,
			Version: version,
			APIKey:  vault.Getter(secrets.MCPAPIKey),
		}, bxmcp.ServerDeps{
			Dispatcher: dispatcher,
			Decisions:  decisions,
			Agents:     dir,
			Routing:    classifier,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if mcpSrv != nil {
			if err := mcpSrv.Stop(sctx); err != nil {
				slog.Warn("mcp shutdown", "error", err)
			}
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore opens the configured decision store and returns its closer.
func openStore(ctx context.Context, cfg *config.Config) (decisionlog.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
		return postgres.NewDecisionStore(pool), pool.Close, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("sqlite opened", "path", cfg.SQLite.Path)
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.NewDecisionStore(), func() {}, nil
	}
}

// reloadOnHangup re-reads the routing table and the secrets on SIGHUP. A
// source that fails to load or validate leaves the active values in place.
func reloadOnHangup(ctx context.Context, path string, c *service.Classifier, vault *secrets.Vault) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secrets reload rejected", "error", err)
			} else {
				slog.Info("secrets reloaded", "reloads", vault.Reloads())
			}

			table, err := config.LoadRouting(path)
			if err == nil {
				err = c.Reload(table)
			}
			if err != nil {
				slog.Error("routing reload rejected", "path", path, "error", err)
				continue
			}
			slog.Info("routing table reloaded", "path", path, "rules", len(table.Rules))
		}
	}
}

// healthProbes are the optional dependencies /health reports on. Nil
// fields are reported as disabled.
type healthProbes struct {
	Store  string
	Agents interface{ List(includeRemoved bool) []agent.Record }
	Bus    interface{ IsConnected() bool }
	Cache  interface{ Degraded() bool }
}

type healthStatus struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	NATS   string `json:"nats"`
	Cache  string `json:"idempotency_cache"`
	Agents int    `json:"agents"`
}

// healthHandler answers 503 only when the bus is down; a degraded shared
// cache is reported but keeps the instance in rotation.
func healthHandler(p healthProbes) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := healthStatus{Status: "ok", Store: p.Store, NATS: "disabled", Cache: "local"}
		if p.Agents != nil {
			st.Agents = len(p.Agents.List(false))
		}
		code := http.StatusOK
		if p.Bus != nil {
			st.NATS = "connected"
			if !p.Bus.IsConnected() {
				st.NATS, st.Status, code = "disconnected", "degraded", http.StatusServiceUnavailable
			}
		}
		if p.Cache != nil {
			st.Cache = "shared"
			if p.Cache.Degraded() {
				st.Cache = "local_only"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(st)
	}
}
