package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Cognito   CognitoSettings   `mapstructure:"cognito"`
	Session   SessionSettings   `mapstructure:"session"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection used for session storage.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	SessionPrefix string `mapstructure:"session_prefix"`
}

// KafkaSettings configures the Kafka event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// CognitoSettings configures the upstream identity provider. JWKSURL and
// Issuer are derived from region and pool id when left empty.
type CognitoSettings struct {
	Region             string `mapstructure:"region"`
	UserPoolID         string `mapstructure:"user_pool_id"`
	AppClientID        string `mapstructure:"app_client_id"`
	JWKSURL            string `mapstructure:"jwks_url"`
	Issuer             string `mapstructure:"issuer"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// IssuerURL returns the configured issuer or the conventional pool issuer.
func (c CognitoSettings) IssuerURL() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// JWKSEndpoint returns the configured JWKS URL or the conventional one.
func (c CognitoSettings) JWKSEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.IssuerURL() + "/.well-known/jwks.json"
}

// SessionSettings tunes session lifetime and the lazy token-refresh policy.
type SessionSettings struct {
	TTL              time.Duration `mapstructure:"ttl"`
	RefreshHorizon   time.Duration `mapstructure:"refresh_horizon"`
	RefreshExtension time.Duration `mapstructure:"refresh_extension"`
}

// AuthSettings selects the application-authorization policy.
// AutoGrant=false requires an explicit consent step before a session can be
// initialized; AutoGrant=true silently creates an unscoped grant on first use.
type AuthSettings struct {
	AutoGrant bool `mapstructure:"auto_grant"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SSO")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.session_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"cognito.region",
		"cognito.user_pool_id",
		"cognito.app_client_id",
		"cognito.jwks_url",
		"cognito.issuer",
		"cognito.insecure_skip_verify",
		"session.ttl",
		"session.refresh_horizon",
		"session.refresh_extension",
		"auth.auto_grant",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Cognito.InsecureSkipVerify && c.App.Env != "development" {
		return fmt.Errorf("cognito.insecure_skip_verify is only allowed in development")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sso-broker")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "sso")
	v.SetDefault("postgres.password", "sso_password")
	v.SetDefault("postgres.database", "sso")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_prefix", "sso:session")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "sso")
	v.SetDefault("kafka.async", true)

	v.SetDefault("cognito.region", "ap-southeast-2")
	v.SetDefault("cognito.insecure_skip_verify", false)

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.refresh_horizon", 5*time.Minute)
	v.SetDefault("session.refresh_extension", time.Hour)

	v.SetDefault("auth.auto_grant", false)

	v.SetDefault("telemetry.service_name", "sso-broker")
	v.SetDefault("telemetry.sampling_rate", 0.1)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
