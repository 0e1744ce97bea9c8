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

	cfhttp "github.com/Strob0t/AgentForge/internal/adapter/http"
	"github.com/Strob0t/AgentForge/internal/adapter/litellm"
	"github.com/Strob0t/AgentForge/internal/adapter/mcp"
	cfotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/middleware"
	"github.com/Strob0t/AgentForge/internal/port/agent"
	"github.com/Strob0t/AgentForge/internal/resilience"
	"github.com/Strob0t/AgentForge/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
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
		"max_rounds", cfg.Orchestrator.MaxRounds,
		"step_mode", cfg.Orchestrator.StepMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	health := make(map[string]func(context.Context) error)

	store, err := openStorage(ctx, cfg.Postgres, health)
	if err != nil {
		return err
	}
	defer store.close()

	bus, err := openBus(ctx, cfg.NATS, health)
	if err != nil {
		return err
	}
	defer bus.close()

	kv, err := openCache(ctx, cfg.Cache, bus)
	if err != nil {
		return err
	}
	defer kv.close()

	// --- Team and agents ---

	tm, err := loadTeam(cfg.Team)
	if err != nil {
		return err
	}

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llm.SetBreaker(newBreaker("litellm", cfg.Breaker))
	if err := watchSecrets(ctx, cfg, llm); err != nil {
		return err
	}
	health["litellm"] = llm.Health

	agents := make([]agent.Agent, 0, len(tm.Agents))
	for _, m := range tm.Agents {
		agents = append(agents, litellm.NewChatAgent(llm, m, cfg.LiteLLM.Model))
	}
	analyzer := service.NewCachedAnalyzer(
		litellm.NewAnalyzer(llm, cfg.LiteLLM.Model),
		kv.cache,
		cfg.Orchestrator.AnalyzerCacheTTL,
	)

	// --- Tools ---

	registry := service.NewToolRegistry()
	dispatcher := service.NewDispatcher(cfg.Orchestrator.ToolTimeout, cfg.Orchestrator.MaxParallelTools)
	dispatcher.SetMetrics(metrics)
	closeTools, err := mountTools(ctx, cfg, registry, dispatcher)
	if err != nil {
		return err
	}
	defer closeTools()
	registry.Seal()

	// --- Services ---

	tasks, err := service.NewTaskManager(tm, agents, registry, dispatcher, service.NewRouter(analyzer), store.workspace, cfg.Orchestrator)
	if err != nil {
		return fmt.Errorf("task manager: %w", err)
	}
	tasks.SetEventStore(store.events)
	tasks.SetMetrics(metrics)

	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin))
	defer hub.Close()

	relay := service.NewEventRelay(hub, bus.queue)
	tasks.OnTaskStart(relay.Attach)

	if bus.queue != nil {
		control := service.NewControlSubscriber(bus.queue, tasks)
		if err := control.Start(ctx); err != nil {
			return fmt.Errorf("control subscriber: %w", err)
		}
		defer control.Stop()
	}

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	handlers := &cfhttp.Handlers{
		Tasks:      tasks,
		Registry:   registry,
		Health:     health,
		Idempotent: middleware.Idempotency(kv.cache, cfg.Server.IdempotencyTTL),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(limiter.Handler)

	r.Get("/ws", hub.HandleWS)
	r.Handle("/mcp", mcp.NewServer(mcp.ServerConfig{Name: tm.Name, APIKey: cfg.Server.MCPAPIKey}, tasks).Handler())

	cfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	// No WriteTimeout: /stream, /step and /result hold responses open for
	// the lifetime of a task.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "team", tm.Name, "agents", tm.AgentNames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Cancel running tasks first so open streams end and the server can drain.
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		slog.Warn("task shutdown", "error", err)
	}
	relay.Wait()

	return srv.Shutdown(shutdownCtx)
}

func loadTeam(cfg config.Team) (*team.Team, error) {
	if cfg.File == "" {
		return nil, errors.New("team: no team file configured (team.file or AGENTFORGE_TEAM_FILE)")
	}
	tm, err := team.LoadFromFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	slog.Info("team loaded", "team", tm.Name, "agents", len(tm.Agents), "rules", len(tm.Rules))
	return tm, nil
}

func newBreaker(name string, cfg config.Breaker) *resilience.Breaker {
	return resilience.NewBreaker(name, cfg.MaxFailures, cfg.Timeout,
		resilience.WithStateHook(func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		}),
	)
}

// originPatterns converts the CORS origin into WebSocket origin patterns,
// which match on host only.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	for _, scheme := range []string{"https://", "http://"} {
		if host, ok := strings.CutPrefix(origin, scheme); ok {
			return []string{host}
		}
	}
	return []string{origin}
}
