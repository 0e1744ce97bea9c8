package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentForge/internal/adapter/litellm"
	"github.com/Strob0t/AgentForge/internal/adapter/mcp"
	"github.com/Strob0t/AgentForge/internal/adapter/memory"
	cfnats "github.com/Strob0t/AgentForge/internal/adapter/nats"
	"github.com/Strob0t/AgentForge/internal/adapter/natskv"
	"github.com/Strob0t/AgentForge/internal/adapter/postgres"
	"github.com/Strob0t/AgentForge/internal/adapter/ristretto"
	"github.com/Strob0t/AgentForge/internal/adapter/shell"
	"github.com/Strob0t/AgentForge/internal/adapter/tiered"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/port/cache"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
	"github.com/Strob0t/AgentForge/internal/port/messagequeue"
	"github.com/Strob0t/AgentForge/internal/port/workspace"
	"github.com/Strob0t/AgentForge/internal/secrets"
	"github.com/Strob0t/AgentForge/internal/service"
)

const litellmKeySecret = "LITELLM_MASTER_KEY"

type storage struct {
	workspace workspace.Workspace
	events    eventstore.Store
	pool      *pgxpool.Pool
}

func (s *storage) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// openStorage selects PostgreSQL when a DSN is configured, otherwise the
// in-memory workspace.
func openStorage(ctx context.Context, cfg config.Postgres, health map[string]func(context.Context) error) (*storage, error) {
	if cfg.DSN == "" {
		slog.Warn("no DATABASE_URL configured, task history is kept in memory")
		return &storage{workspace: memory.NewWorkspace(), events: memory.NewEventStore()}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected", "max_conns", cfg.MaxConns)

	if err := postgres.RunMigrations(ctx, cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	health["postgres"] = pool.Ping
	return &storage{
		workspace: postgres.NewWorkspace(pool),
		events:    postgres.NewEventStore(pool),
		pool:      pool,
	}, nil
}

type messageBus struct {
	conn  *cfnats.Queue
	queue messagequeue.Queue
}

func (b *messageBus) close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
}

// openBus connects to NATS when a URL is configured. The returned bus has
// a nil queue otherwise.
func openBus(ctx context.Context, cfg config.NATS, health map[string]func(context.Context) error) (*messageBus, error) {
	if cfg.URL == "" {
		slog.Info("nats disabled: no NATS_URL configured")
		return &messageBus{}, nil
	}
	conn, err := cfnats.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	health["nats"] = func(context.Context) error {
		if !conn.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}
	return &messageBus{conn: conn, queue: conn}, nil
}

type cacheStack struct {
	cache cache.Cache
	l1    *ristretto.Cache
}

func (c *cacheStack) close() { c.l1.Close() }

// openCache builds the in-process L1 and, when NATS is available, layers it
// over a JetStream KV bucket shared between instances.
func openCache(ctx context.Context, cfg config.Cache, bus *messageBus) (*cacheStack, error) {
	l1, err := ristretto.New(cfg.L1MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	if bus.conn == nil {
		return &cacheStack{cache: l1, l1: l1}, nil
	}

	kv, err := bus.conn.KeyValue(ctx, cfg.L2Bucket, cfg.L2TTL)
	if err != nil {
		l1.Close()
		return nil, fmt.Errorf("l2 cache: %w", err)
	}
	slog.Info("tiered cache enabled", "bucket", cfg.L2Bucket, "l1_mb", cfg.L1MaxSizeMB)
	return &cacheStack{cache: tiered.New(l1, natskv.New(kv), cfg.L2TTL), l1: l1}, nil
}

// mountTools registers the plan tools and every configured execution
// surface. The returned func closes external tool servers.
func mountTools(ctx context.Context, cfg *config.Config, registry *service.ToolRegistry, dispatcher *service.Dispatcher) (func(), error) {
	if err := registry.Register(service.PlanTools()...); err != nil {
		return nil, fmt.Errorf("plan tools: %w", err)
	}

	if cfg.Tools.ShellEnabled {
		sh, err := shell.New(cfg.Tools.ShellWorkdir, cfg.Orchestrator.MaxParallelTools)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(shell.Tools()...); err != nil {
			return nil, fmt.Errorf("shell tools: %w", err)
		}
		dispatcher.Mount(&service.Surface{
			Name:     "shell",
			Executor: sh,
			Breaker:  newBreaker("shell", cfg.Breaker),
		}, shell.ToolNames()...)
		slog.Info("shell tools enabled", "workdir", cfg.Tools.ShellWorkdir)
	}

	if cfg.Tools.MCPCommand == "" {
		return func() {}, nil
	}

	exec, err := mcp.NewStdioExecutor(ctx, cfg.Tools.MCPCommand, nil, cfg.Tools.MCPArgs...)
	if err != nil {
		return nil, err
	}
	closeMCP := func() {
		if err := exec.Close(); err != nil {
			slog.Warn("mcp close", "server", exec.Name(), "error", err)
		}
	}
	tools, err := exec.ImportTools(ctx)
	if err != nil {
		closeMCP()
		return nil, err
	}
	if err := registry.Register(tools...); err != nil {
		closeMCP()
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	surface := filepath.Base(cfg.Tools.MCPCommand)
	dispatcher.Mount(&service.Surface{
		Name:     surface,
		Executor: exec,
		Breaker:  newBreaker("mcp:"+surface, cfg.Breaker),
	}, names...)
	slog.Info("mcp tools imported", "server", surface, "tools", len(names))
	return closeMCP, nil
}

// watchSecrets loads the secrets file, if any, and re-reads it on SIGHUP
// until ctx ends.
func watchSecrets(ctx context.Context, cfg *config.Config, llm *litellm.Client) error {
	if cfg.Secrets.File == "" {
		return nil
	}
	vault, err := secrets.NewVault(secrets.Chain(
		secrets.EnvLoader(litellmKeySecret),
		secrets.FileLoader(cfg.Secrets.File),
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	llm.SetKeyFunc(vault.Func(litellmKeySecret, cfg.LiteLLM.MasterKey))
	slog.Info("secrets loaded", "file", cfg.Secrets.File, "litellm_key", vault.Redacted(litellmKeySecret))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := vault.Reload(); err != nil {
					slog.Error("secrets reload failed, keeping previous values", "error", err)
					continue
				}
				slog.Info("secrets reloaded", "litellm_key", vault.Redacted(litellmKeySecret))
			}
		}
	}()
	return nil
}
