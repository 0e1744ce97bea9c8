package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTFORGE_CORS_ORIGIN")
	setString(&cfg.Server.MCPAPIKey, "AGENTFORGE_MCP_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "AGENTFORGE_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "AGENTFORGE_RATE_LIMIT_BURST")
	setDuration(&cfg.Server.IdempotencyTTL, "AGENTFORGE_IDEMPOTENCY_TTL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "AGENTFORGE_ANALYZER_MODEL")
	setString(&cfg.Logging.Level, "AGENTFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "AGENTFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTFORGE_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "AGENTFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "AGENTFORGE_CACHE_L2_TTL")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxRounds, "AGENTFORGE_MAX_ROUNDS")
	setDuration(&cfg.Orchestrator.ToolTimeout, "AGENTFORGE_TOOL_TIMEOUT")
	setInt(&cfg.Orchestrator.MaxParallelTools, "AGENTFORGE_MAX_PARALLEL_TOOLS")
	setInt(&cfg.Orchestrator.StreamBuffer, "AGENTFORGE_STREAM_BUFFER")
	setBool(&cfg.Orchestrator.StepMode, "AGENTFORGE_STEP_MODE")
	setString(&cfg.Orchestrator.TerminationToken, "AGENTFORGE_TERMINATION_TOKEN")
	setDuration(&cfg.Orchestrator.TaskRetention, "AGENTFORGE_TASK_RETENTION")
	setDuration(&cfg.Orchestrator.AnalyzerCacheTTL, "AGENTFORGE_ANALYZER_CACHE_TTL")

	// Tools
	setBool(&cfg.Tools.ShellEnabled, "AGENTFORGE_SHELL_ENABLED")
	setString(&cfg.Tools.ShellWorkdir, "AGENTFORGE_SHELL_WORKDIR")
	setString(&cfg.Tools.MCPCommand, "AGENTFORGE_MCP_COMMAND")
	setList(&cfg.Tools.MCPArgs, "AGENTFORGE_MCP_ARGS")

	setString(&cfg.Team.File, "AGENTFORGE_TEAM_FILE")
	setString(&cfg.Secrets.File, "AGENTFORGE_SECRETS_FILE")

	// OTEL
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTFORGE_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Orchestrator.MaxRounds < 1 {
		return errors.New("orchestrator.max_rounds must be >= 1")
	}
	if cfg.Orchestrator.MaxParallelTools < 1 {
		return errors.New("orchestrator.max_parallel_tools must be >= 1")
	}
	if cfg.Orchestrator.ToolTimeout <= 0 {
		return errors.New("orchestrator.tool_timeout must be positive")
	}
	if cfg.Orchestrator.StreamBuffer < 1 {
		return errors.New("orchestrator.stream_buffer must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Fields(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
