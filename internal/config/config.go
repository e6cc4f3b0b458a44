package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env               string        `yaml:"env" envconfig:"APP_ENV"`
	HTTPAddr          string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"HTTP_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	CORSOrigins       []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`

	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`

	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`

	JWTIssuer            string        `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
	JWTAudience          string        `yaml:"jwt_audience" envconfig:"JWT_AUDIENCE"`
	JWTSecret            string        `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTAccessTTL         time.Duration `yaml:"jwt_access_ttl" envconfig:"JWT_ACCESS_TTL"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" envconfig:"REFRESH_TOKEN_TTL"`
	RefreshTokenPepper   string        `yaml:"refresh_token_pepper" envconfig:"REFRESH_TOKEN_PEPPER"`
	RefreshRequireDevice bool          `yaml:"refresh_require_device" envconfig:"AUTH_REFRESH_REQUIRE_DEVICE"`
	RefreshReuseGrace    time.Duration `yaml:"refresh_reuse_grace" envconfig:"REFRESH_TOKEN_REUSE_GRACE"`
	BcryptCost           int           `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST"`

	CryptoWorkers      int     `yaml:"crypto_workers" envconfig:"CRYPTO_WORKERS"`
	LoaderRSABits      int     `yaml:"loader_rsa_bits" envconfig:"LOADER_RSA_BITS"`
	LoaderKeygenRPS    float64 `yaml:"loader_keygen_rps" envconfig:"LOADER_HANDSHAKE_KEYGEN_RPS"`
	LoaderKeygenBurst  int     `yaml:"loader_keygen_burst" envconfig:"LOADER_HANDSHAKE_KEYGEN_BURST"`
	LicenseDefaultDays int     `yaml:"license_default_days" envconfig:"LICENSE_DEFAULT_DURATION_DAYS"`

	RateLimitBackend      string `yaml:"rate_limit_backend" envconfig:"RATE_LIMIT_BACKEND"`
	APIRateLimitRPM       int    `yaml:"api_rate_limit_rpm" envconfig:"API_RATE_LIMIT_RPM"`
	AuthRateLimitRPM      int    `yaml:"auth_rate_limit_rpm" envconfig:"AUTH_RATE_LIMIT_RPM"`
	HandshakeRateLimitRPM int    `yaml:"handshake_rate_limit_rpm" envconfig:"HANDSHAKE_RATE_LIMIT_RPM"`

	KafkaBrokers       []string `yaml:"kafka_brokers" envconfig:"KAFKA_BROKERS"`
	KafkaSecurityTopic string   `yaml:"kafka_security_topic" envconfig:"KAFKA_SECURITY_TOPIC"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`

	OTELServiceName           string        `yaml:"otel_service_name" envconfig:"OTEL_SERVICE_NAME"`
	OTELEnvironment           string        `yaml:"otel_environment" envconfig:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `yaml:"otel_exporter_otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterOTLPInsecure  bool          `yaml:"otel_exporter_otlp_insecure" envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELMetricsEnabled        bool          `yaml:"otel_metrics_enabled" envconfig:"OTEL_METRICS_ENABLED"`
	OTELTracingEnabled        bool          `yaml:"otel_tracing_enabled" envconfig:"OTEL_TRACING_ENABLED"`
	OTELLogsEnabled           bool          `yaml:"otel_logs_enabled" envconfig:"OTEL_LOGS_ENABLED"`
	OTELMetricsExportInterval time.Duration `yaml:"otel_metrics_export_interval" envconfig:"OTEL_METRICS_EXPORT_INTERVAL"`
	MetricsExporter           string        `yaml:"metrics_exporter" envconfig:"METRICS_EXPORTER"`
}

func Defaults() Config {
	return Config{
		Env:                       "development",
		HTTPAddr:                  ":8080",
		ReadHeaderTimeout:         5 * time.Second,
		ShutdownTimeout:           20 * time.Second,
		CORSOrigins:               []string{"http://localhost:3000"},
		RedisAddr:                 "localhost:6379",
		JWTIssuer:                 "secure-loader-auth-service",
		JWTAudience:               "secure-loader-clients",
		JWTAccessTTL:              15 * time.Minute,
		RefreshTokenTTL:           7 * 24 * time.Hour,
		RefreshReuseGrace:         2 * time.Second,
		BcryptCost:                12,
		CryptoWorkers:             runtime.NumCPU(),
		LoaderRSABits:             4096,
		LoaderKeygenRPS:           5,
		LoaderKeygenBurst:         10,
		LicenseDefaultDays:        30,
		RateLimitBackend:          "redis",
		APIRateLimitRPM:           100,
		AuthRateLimitRPM:          20,
		HandshakeRateLimitRPM:     10,
		KafkaSecurityTopic:        "security-events",
		LogLevel:                  "info",
		LogFormat:                 "json",
		OTELServiceName:           "secure-loader-auth-service",
		OTELEnvironment:           "development",
		OTELExporterOTLPEndpoint:  "localhost:4317",
		OTELExporterOTLPInsecure:  true,
		OTELMetricsExportInterval: 15 * time.Second,
		MetricsExporter:           "otlp",
	}
}

// Load layers defaults, an optional YAML file named by CONFIG_FILE and
// environment variables, in that order.
func Load() (*Config, error) {
	cfg, err := load(os.Getenv("CONFIG_FILE"))
	profile := os.Getenv("APP_ENV")
	if cfg != nil {
		profile = cfg.Env
	}
	if err != nil {
		recordConfigValidationEvent(context.Background(), profile, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), profile, "success", "none")
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if strings.TrimSpace(c.RefreshTokenPepper) == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_PEPPER is required"))
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > 15*time.Minute {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be within (0, 15m]"))
	}
	if c.RefreshTokenTTL <= 0 || c.RefreshTokenTTL > 7*24*time.Hour {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be within (0, 168h]"))
	}
	if c.RefreshReuseGrace < 0 || c.RefreshReuseGrace > time.Minute {
		errs = append(errs, errors.New("REFRESH_TOKEN_REUSE_GRACE must be within [0, 1m]"))
	}
	if c.BcryptCost < 12 && c.IsProduction() {
		errs = append(errs, errors.New("BCRYPT_COST must be at least 12 in production"))
	}
	if c.LoaderRSABits < 2048 {
		errs = append(errs, errors.New("LOADER_RSA_BITS must be at least 2048"))
	}
	if c.CryptoWorkers < 1 {
		errs = append(errs, errors.New("CRYPTO_WORKERS must be positive"))
	}
	if c.LoaderKeygenRPS <= 0 || c.LoaderKeygenBurst < 1 {
		errs = append(errs, errors.New("LOADER_HANDSHAKE_KEYGEN_RPS and _BURST must be positive"))
	}
	if c.LicenseDefaultDays < 0 {
		errs = append(errs, errors.New("LICENSE_DEFAULT_DURATION_DAYS must not be negative"))
	}
	switch c.RateLimitBackend {
	case "redis", "local":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be redis or local, got %q", c.RateLimitBackend))
	}
	switch c.MetricsExporter {
	case "otlp", "prometheus":
	default:
		errs = append(errs, fmt.Errorf("METRICS_EXPORTER must be otlp or prometheus, got %q", c.MetricsExporter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}
