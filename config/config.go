// Package config loads the dataset service configuration once at startup.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional YAML file, and environment variables. Credential fields accept
// secretref: references, resolved after loading.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/secret"
	"github.com/jonwraymond/dataops/warehouse"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds the configuration for the dataset service.
type Config struct {
	Env        string `yaml:"env"`       // development (default) or production
	LogLevel   string `yaml:"log_level"` // debug, info, warn, error
	ListenAddr string `yaml:"listen_addr"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`

	Warehouse WarehouseConfig `yaml:"warehouse"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Query     QueryConfig     `yaml:"query"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Warnings collects non-fatal findings for the caller to log once the
	// logger exists.
	Warnings []string `yaml:"-"`
}

// WarehouseConfig selects and connects the warehouse driver.
type WarehouseConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Role      string `yaml:"role"`
}

// StoreConfig selects the cache store.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	Prefix        string        `yaml:"prefix"`
	OpTimeout     time.Duration `yaml:"op_timeout"`
}

// CacheConfig controls entry lifetime and load coordination.
type CacheConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxTTL      time.Duration `yaml:"max_ttl"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	LockWait    time.Duration `yaml:"lock_wait"`
	PreviewRows int           `yaml:"preview_rows"`
}

// QueryConfig bounds warehouse work.
type QueryConfig struct {
	MaxRows       int           `yaml:"max_rows"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	ServiceName     string  `yaml:"service_name"`
	TracingExporter string  `yaml:"tracing_exporter"`
	TracingSample   float64 `yaml:"tracing_sample"`
	MetricsExporter string  `yaml:"metrics_exporter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:                "development",
		LogLevel:           "info",
		ListenAddr:         ":8000",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		Warehouse:          WarehouseConfig{Driver: warehouse.DriverDuckDB},
		Store: StoreConfig{
			Backend:   StoreRedis,
			RedisURL:  "redis://localhost:6379/0",
			OpTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:         time.Hour,
			MaxTTL:      24 * time.Hour,
			LockTTL:     time.Minute,
			LockWait:    2 * time.Minute,
			PreviewRows: 10,
		},
		Query: QueryConfig{
			MaxRows:       50000,
			Timeout:       300 * time.Second,
			MaxConcurrent: 10,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "datasetd",
			TracingExporter: "none",
			TracingSample:   1.0,
			MetricsExporter: "prometheus",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, resolves secret references and
// validates the result.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = secret.DefaultResolver()
	}
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv is Load without a file.
func LoadFromEnv(ctx context.Context) (*Config, error) {
	return Load(ctx, "", nil)
}

// LoadFile overlays the YAML file at path. ${VAR} references are expanded
// before parsing and must be set.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded, err := secret.ExpandEnvStrict(string(raw))
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays every set environment variable. Malformed numbers and
// durations are errors.
func (c *Config) ApplyEnv() error {
	e := &envReader{}

	e.str("APP_ENV", &c.Env)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LISTEN_ADDR", &c.ListenAddr)
	e.list("CORS_ALLOWED_ORIGINS", &c.CORSAllowedOrigins)
	e.float("RATE_LIMIT_RPS", &c.RateLimitRPS)
	e.int("RATE_LIMIT_BURST", &c.RateLimitBurst)

	e.str("WAREHOUSE_DRIVER", &c.Warehouse.Driver)
	e.str("WAREHOUSE_DSN", &c.Warehouse.DSN)
	e.str("WAREHOUSE_ACCOUNT", &c.Warehouse.Account)
	e.str("WAREHOUSE_USER", &c.Warehouse.User)
	e.str("WAREHOUSE_PASSWORD", &c.Warehouse.Password)
	e.str("WAREHOUSE_DATABASE", &c.Warehouse.Database)
	e.str("WAREHOUSE_SCHEMA", &c.Warehouse.Schema)
	e.str("WAREHOUSE_NAME", &c.Warehouse.Warehouse)
	e.str("WAREHOUSE_ROLE", &c.Warehouse.Role)

	e.str("STORE_BACKEND", &c.Store.Backend)
	e.str("REDIS_URL", &c.Store.RedisURL)
	e.str("REDIS_PASSWORD", &c.Store.RedisPassword)
	e.str("REDIS_KEY_PREFIX", &c.Store.Prefix)

	e.seconds("DATASET_CACHE_TTL", &c.Cache.TTL)
	e.seconds("DATASET_MAX_TTL", &c.Cache.MaxTTL)
	e.seconds("DATASET_LOCK_TTL", &c.Cache.LockTTL)
	e.seconds("DATASET_LOCK_WAIT", &c.Cache.LockWait)
	e.int("PREVIEW_ROWS", &c.Cache.PreviewRows)

	e.int("MAX_QUERY_ROWS", &c.Query.MaxRows)
	e.seconds("QUERY_TIMEOUT", &c.Query.Timeout)
	e.int("MAX_CONCURRENT_QUERIES", &c.Query.MaxConcurrent)

	e.str("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	e.str("TRACING_EXPORTER", &c.Telemetry.TracingExporter)
	e.float("TRACING_SAMPLE", &c.Telemetry.TracingSample)
	e.str("METRICS_EXPORTER", &c.Telemetry.MetricsExporter)

	return errors.Join(e.errs...)
}

// ResolveSecrets replaces secretref: values in credential fields.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	err := r.ResolveFields(ctx, map[string]*string{
		"WAREHOUSE_DSN":      &c.Warehouse.DSN,
		"WAREHOUSE_PASSWORD": &c.Warehouse.Password,
		"REDIS_URL":          &c.Store.RedisURL,
		"REDIS_PASSWORD":     &c.Store.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable and records warnings.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := c.WarehouseConfig().SQLDriverName(); err != nil {
		fail("WAREHOUSE_DRIVER: %v", err)
	}
	switch c.Store.Backend {
	case StoreRedis:
		if c.Store.RedisURL == "" {
			fail("REDIS_URL is required for the redis store")
		}
	case StoreMemory:
		c.Warnings = append(c.Warnings, "STORE_BACKEND=memory: datasets are not shared between processes and are lost on restart")
	default:
		fail("STORE_BACKEND must be redis or memory, got %q", c.Store.Backend)
	}
	if err := c.CachePolicy().Validate(); err != nil {
		fail("cache policy: %v", err)
	}
	if c.Cache.LockWait <= 0 {
		fail("DATASET_LOCK_WAIT must be positive")
	}
	if c.Cache.PreviewRows <= 0 {
		fail("PREVIEW_ROWS must be positive")
	}
	if c.Query.MaxRows <= 0 {
		fail("MAX_QUERY_ROWS must be positive")
	}
	if c.Query.Timeout <= 0 {
		fail("QUERY_TIMEOUT must be positive")
	}
	if c.Query.MaxConcurrent <= 0 {
		fail("MAX_CONCURRENT_QUERIES must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		fail("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	oc := c.ObserveConfig("")
	if err := oc.Validate(); err != nil {
		fail("telemetry: %v", err)
	}

	if c.IsProduction() {
		for _, o := range c.CORSAllowedOrigins {
			if o == "*" {
				fail("CORS wildcard (*) is not allowed in production")
			}
		}
		if c.Store.Backend == StoreMemory {
			fail("STORE_BACKEND=memory is not allowed in production")
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return observe.ParseLogLevel(c.LogLevel)
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// WarehouseConfig converts the warehouse section.
func (c *Config) WarehouseConfig() warehouse.Config {
	w := c.Warehouse
	return warehouse.Config{
		Driver:    strings.ToLower(w.Driver),
		DSN:       w.DSN,
		Account:   w.Account,
		User:      w.User,
		Password:  w.Password,
		Database:  w.Database,
		Schema:    w.Schema,
		Warehouse: w.Warehouse,
		Role:      w.Role,
	}
}

// CachePolicy returns the TTL policy for dataset entries.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		DefaultTTL: c.Cache.TTL,
		MaxTTL:     c.Cache.MaxTTL,
		LockTTL:    c.Cache.LockTTL,
	}
}

// ObserveConfig returns the telemetry configuration. Logging is always on.
func (c *Config) ObserveConfig(version string) observe.Config {
	t := c.Telemetry
	return observe.Config{
		ServiceName: t.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   t.TracingExporter != "" && t.TracingExporter != "none",
			Exporter:  t.TracingExporter,
			SamplePct: t.TracingSample,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  t.MetricsExporter != "" && t.MetricsExporter != "none",
			Exporter: t.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   strings.ToLower(c.LogLevel),
		},
	}
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("config: setenv %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// stripQuotes removes matching surrounding double or single quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// envReader overlays set environment variables and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalid, key, v))
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %q is not a number", ErrInvalid, key, v))
		return
	}
	*dst = f
}

// seconds accepts a whole number of seconds or a Go duration such as 90s.
func (e *envReader) seconds(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %q is not a duration", ErrInvalid, key, v))
		return
	}
	*dst = d
}
