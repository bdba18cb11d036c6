package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "aia.yaml"

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
	setString(&cfg.Server.Port, "AIA_PORT")
	setString(&cfg.Server.CORSOrigin, "AIA_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "AIA_REQUEST_TIMEOUT")
	setString(&cfg.Server.OperatorKey, "AIA_OPERATOR_KEY")
	setString(&cfg.Server.SecretsFile, "AIA_SECRETS_FILE")
	setString(&cfg.Store.Driver, "AIA_STORE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AIA_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AIA_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AIA_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AIA_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AIA_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "AIA_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AIA_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AIA_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "AIA_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AIA_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "AIA_RATE_RPS")
	setInt(&cfg.Rate.Burst, "AIA_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "AIA_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "AIA_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "AIA_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "AIA_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "AIA_CACHE_L2_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "AIA_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "AIA_IDEMPOTENCY_TTL")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "AIA_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "AIA_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "AIA_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AIA_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AIA_OTEL_SAMPLE_RATE")

	// MCP
	setBool(&cfg.MCP.Enabled, "AIA_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "AIA_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "AIA_MCP_API_KEY")

	// Domain tuning
	setFloat64(&cfg.Matching.MinScore, "AIA_MATCHING_MIN_SCORE")
	setInt64(&cfg.Economy.GovernancePerWeight, "AIA_ECONOMY_GOVERNANCE_PER_WEIGHT")
	setInt(&cfg.Sprint.TopPercent, "AIA_SPRINT_TOP_PERCENT")
	setInt(&cfg.Sprint.BottomPercent, "AIA_SPRINT_BOTTOM_PERCENT")
	setInt(&cfg.Sprint.NewHirePercent, "AIA_SPRINT_NEW_HIRE_PERCENT")
	setInt(&cfg.Venture.DaysPerTask, "AIA_VENTURE_DAYS_PER_TASK")
	setFloat64(&cfg.Consensus.Threshold, "AIA_CONSENSUS_THRESHOLD")
	setDuration(&cfg.Consensus.Timeout, "AIA_CONSENSUS_TIMEOUT")
}

// validate checks that required fields are set and values are in range.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "memory":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", cfg.Store.Driver)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp is enabled")
	}
	if cfg.Matching.MinScore < 0 || cfg.Matching.MinScore >= 1 {
		return errors.New("matching.min_score must be in [0,1)")
	}
	for p, r := range cfg.Economy.Rewards {
		if r < 0 {
			return fmt.Errorf("economy.rewards.%s must be >= 0", p)
		}
	}
	if cfg.Economy.GovernancePerWeight < 0 {
		return errors.New("economy.governance_per_weight must be >= 0")
	}
	s := cfg.Sprint
	if s.TopPercent < 0 || s.BottomPercent < 0 || s.TopPercent+s.BottomPercent > 100 {
		return errors.New("sprint.top_percent and sprint.bottom_percent must be >= 0 and sum to <= 100")
	}
	if s.NewHirePercent < 0 || s.NewHirePercent > 100 {
		return errors.New("sprint.new_hire_percent must be in [0,100]")
	}
	if err := validateVenture(&cfg.Venture); err != nil {
		return err
	}
	if cfg.Consensus.Threshold <= 0 || cfg.Consensus.Threshold > 1 {
		return errors.New("consensus.threshold must be in (0,1]")
	}
	if cfg.Consensus.Timeout <= 0 {
		return errors.New("consensus.timeout must be > 0")
	}
	return nil
}

var venturePhases = []string{"ideation", "validation", "design", "development", "launch"}

func validateVenture(v *Venture) error {
	if v.DaysPerTask < 1 {
		return errors.New("venture.days_per_task must be >= 1")
	}
	var sum float64
	for name, w := range v.PhaseWeights {
		if !slices.Contains(venturePhases, name) {
			return fmt.Errorf("venture.phase_weights: unknown phase %q", name)
		}
		if w < 0 {
			return fmt.Errorf("venture.phase_weights.%s must be >= 0", name)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("venture.phase_weights must sum to 1, got %g", sum)
	}
	for _, p := range venturePhases {
		skills := v.PhaseSkills[p]
		if len(skills) == 0 {
			return fmt.Errorf("venture.phase_skills.%s is required", p)
		}
		for skill, level := range skills {
			if !(level >= 0 && level <= 1) {
				return fmt.Errorf("venture.phase_skills.%s.%s must be in [0,1]", p, skill)
			}
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
