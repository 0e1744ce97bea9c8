// Package config provides hierarchical configuration loading for AgentForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the AgentForge service.
type Config struct {
	Server       Server       `yaml:"server"`
	Postgres     Postgres     `yaml:"postgres"`
	NATS         NATS         `yaml:"nats"`
	Cache        Cache        `yaml:"cache"`
	LiteLLM      LiteLLM      `yaml:"litellm"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Tools        Tools        `yaml:"tools"`
	Team         Team         `yaml:"team"`
	Secrets      Secrets      `yaml:"secrets"`
	OTEL         OTEL         `yaml:"otel"`
}

// Orchestrator holds execution loop configuration shared by all tasks.
type Orchestrator struct {
	MaxRounds        int           `yaml:"max_rounds"`         // Rounds before a task fails (default: 20)
	ToolTimeout      time.Duration `yaml:"tool_timeout"`       // Per-call dispatch timeout (default: 60s)
	MaxParallelTools int           `yaml:"max_parallel_tools"` // Concurrent calls within one step (default: 4)
	StreamBuffer     int           `yaml:"stream_buffer"`      // Per-subscriber buffered items (default: 256)
	StepMode         bool          `yaml:"step_mode"`          // Pause after every round unless overridden per task
	TerminationToken string        `yaml:"termination_token"`  // Agent output containing this completes the task
	TaskRetention    time.Duration `yaml:"task_retention"`     // How long finished tasks stay addressable (default: 30m)
	AnalyzerCacheTTL time.Duration `yaml:"analyzer_cache_ttl"` // TTL for cached completion classifications (default: 1h)
}

// Tools holds configuration for external tool execution surfaces.
type Tools struct {
	ShellEnabled bool     `yaml:"shell_enabled"`
	ShellWorkdir string   `yaml:"shell_workdir"`
	MCPCommand   string   `yaml:"mcp_command"` // Optional MCP stdio server providing extra tools
	MCPArgs      []string `yaml:"mcp_args"`
}

// Team points at the team definition used for new tasks.
type Team struct {
	File string `yaml:"file"`
}

// Secrets points at an optional KEY=VALUE file re-read on SIGHUP. Its
// LITELLM_MASTER_KEY overrides litellm.master_key.
type Secrets struct {
	File string `yaml:"file"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	MCPAPIKey  string `yaml:"mcp_api_key"` // Empty leaves /mcp unauthenticated

	RateLimitRPS   float64       `yaml:"rate_limit_rps"`   // Per-client request rate; <= 0 disables limiting
	RateLimitBurst int           `yaml:"rate_limit_burst"` // Requests allowed above the steady rate
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`  // How long Idempotency-Key responses are replayed
}

// Postgres holds PostgreSQL connection configuration.
// An empty DSN selects the in-memory workspace.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the relay.
type NATS struct {
	URL string `yaml:"url"`
}

// Cache holds the tiered cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// LiteLLM holds LiteLLM proxy configuration for chat agents and the
// completion analyzer. Model is the default for members without one.
type LiteLLM struct {
	URL       string `yaml:"url"`
	MasterKey string `yaml:"master_key"`
	Model     string `yaml:"model"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OTEL holds OpenTelemetry exporter configuration.
// An empty endpoint keeps the global no-op providers.
type OTEL struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			IdempotencyTTL: 24 * time.Hour,
		},
		Postgres: Postgres{
			MaxConns:        15,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L2Bucket:    "AGENTFORGE_ANALYZER",
			L2TTL:       time.Hour,
		},
		LiteLLM: LiteLLM{
			URL:   "http://localhost:4000",
			Model: "openai/gpt-4o-mini",
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentforge",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Orchestrator: Orchestrator{
			MaxRounds:        20,
			ToolTimeout:      60 * time.Second,
			MaxParallelTools: 4,
			StreamBuffer:     256,
			TaskRetention:    30 * time.Minute,
			AnalyzerCacheTTL: time.Hour,
		},
		Tools: Tools{
			ShellWorkdir: ".",
		},
		OTEL: OTEL{
			ServiceName: "agentforge",
			Insecure:    true,
		},
	}
}
