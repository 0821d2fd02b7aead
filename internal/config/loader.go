package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "bankx.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path may be overridden with BANKX_CONFIG. A missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("BANKX_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
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
	setString(&cfg.Server.Port, "BANKX_PORT")
	setString(&cfg.Server.CORSOrigin, "BANKX_CORS_ORIGIN")
	setParsed(&cfg.Server.RequestTimeout, "BANKX_REQUEST_TIMEOUT", time.ParseDuration)
	setParsed(&cfg.Server.ShutdownTimeout, "BANKX_SHUTDOWN_TIMEOUT", time.ParseDuration)

	setString(&cfg.Logging.Level, "BANKX_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BANKX_LOG_SERVICE")
	setParsed(&cfg.Logging.Async, "BANKX_LOG_ASYNC", strconv.ParseBool)

	setString(&cfg.Store.Driver, "BANKX_STORE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setParsed(&cfg.Postgres.MaxConns, "BANKX_PG_MAX_CONNS", parseInt32)
	setParsed(&cfg.Postgres.MinConns, "BANKX_PG_MIN_CONNS", parseInt32)
	setString(&cfg.SQLite.Path, "BANKX_SQLITE_PATH")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "BANKX_NATS_STREAM")
	setParsed(&cfg.NATS.RequestTimeout, "BANKX_NATS_REQUEST_TIMEOUT", time.ParseDuration)

	// Liveness
	setParsed(&cfg.Directory.RemovedRetention, "BANKX_REMOVED_RETENTION", time.ParseDuration)
	setParsed(&cfg.Health.Interval, "BANKX_HEALTH_INTERVAL", time.ParseDuration)
	setParsed(&cfg.Health.SoftTimeout, "BANKX_HEALTH_SOFT_TIMEOUT", time.ParseDuration)
	setParsed(&cfg.Health.HardTimeout, "BANKX_HEALTH_HARD_TIMEOUT", time.ParseDuration)

	// Invocation
	setParsed(&cfg.Breaker.MaxFailures, "BANKX_BREAKER_MAX_FAILURES", strconv.Atoi)
	setParsed(&cfg.Breaker.Timeout, "BANKX_BREAKER_TIMEOUT", time.ParseDuration)
	setParsed(&cfg.Retry.MaxAttempts, "BANKX_RETRY_MAX_ATTEMPTS", strconv.Atoi)
	setParsed(&cfg.Retry.BaseDelay, "BANKX_RETRY_BASE_DELAY", time.ParseDuration)
	setParsed(&cfg.Retry.MaxDelay, "BANKX_RETRY_MAX_DELAY", time.ParseDuration)
	setParsed(&cfg.Retry.AttemptTimeout, "BANKX_RETRY_ATTEMPT_TIMEOUT", time.ParseDuration)

	setParsed(&cfg.Dispatch.MaxInFlight, "BANKX_DISPATCH_MAX_IN_FLIGHT", parseInt64)
	setString(&cfg.Dispatch.FallbackMessage, "BANKX_DISPATCH_FALLBACK_MESSAGE")
	setString(&cfg.Routing.File, "BANKX_ROUTING_FILE")

	// Idempotency
	setParsed(&cfg.Idempotency.Enabled, "BANKX_IDEMPOTENCY_ENABLED", strconv.ParseBool)
	setString(&cfg.Idempotency.Bucket, "BANKX_IDEMPOTENCY_BUCKET")
	setParsed(&cfg.Idempotency.TTL, "BANKX_IDEMPOTENCY_TTL", time.ParseDuration)
	setParsed(&cfg.Idempotency.L1MaxSizeMB, "BANKX_IDEMPOTENCY_L1_SIZE_MB", parseInt64)

	setParsed(&cfg.Rate.RequestsPerSecond, "BANKX_RATE_RPS", parseFloat)
	setParsed(&cfg.Rate.Burst, "BANKX_RATE_BURST", strconv.Atoi)
	setParsed(&cfg.Rate.CleanupInterval, "BANKX_RATE_CLEANUP_INTERVAL", time.ParseDuration)
	setParsed(&cfg.Rate.MaxIdleTime, "BANKX_RATE_MAX_IDLE_TIME", time.ParseDuration)

	setString(&cfg.Auth.APIKeyHash, "BANKX_API_KEY_HASH")
	setString(&cfg.Auth.SecretsDir, "BANKX_SECRETS_DIR")

	setParsed(&cfg.MCP.Enabled, "BANKX_MCP_ENABLED", strconv.ParseBool)
	setString(&cfg.MCP.Port, "BANKX_MCP_PORT")
	setString(&cfg.MCP.APIKey, "BANKX_MCP_API_KEY")

	setParsed(&cfg.OTEL.Enabled, "BANKX_OTEL_ENABLED", strconv.ParseBool)
	setString(&cfg.OTEL.Endpoint, "BANKX_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "BANKX_OTEL_SERVICE_NAME")
	setParsed(&cfg.OTEL.Insecure, "BANKX_OTEL_INSECURE", strconv.ParseBool)
	setParsed(&cfg.OTEL.SampleRate, "BANKX_OTEL_SAMPLE_RATE", parseFloat)

	setString(&cfg.Events.Subject, "BANKX_EVENTS_SUBJECT")
	setString(&cfg.A2A.PublicURL, "BANKX_PUBLIC_URL")
}

// validate checks that required fields are set and consistent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return errors.New("sqlite.path is required for store.driver=sqlite")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for store.driver=postgres")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres", cfg.Store.Driver)
	}
	if cfg.Health.Interval <= 0 {
		return errors.New("health.interval must be > 0")
	}
	if cfg.Health.SoftTimeout <= 0 || cfg.Health.HardTimeout <= cfg.Health.SoftTimeout {
		return errors.New("health timeouts must satisfy 0 < soft_timeout < hard_timeout")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Breaker.Timeout <= 0 {
		return errors.New("breaker.timeout must be > 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return errors.New("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	if cfg.Retry.AttemptTimeout <= 0 {
		return errors.New("retry.attempt_timeout must be > 0")
	}
	if cfg.Dispatch.MaxInFlight < 1 {
		return errors.New("dispatch.max_in_flight must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Port == "" {
		return errors.New("mcp.port is required when mcp is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setParsed overwrites dst with the parsed env value. A value that fails to
// parse leaves the YAML or default setting in place.
func setParsed[T any](dst *T, key string, parse func(string) (T, error)) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("ignoring malformed environment value", "key", key, "error", err)
		return
	}
	*dst = v
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
