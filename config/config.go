package config

import "time"

// Config contains all application settings
type Config struct {
	BindPort      int    `mapstructure:"PORT" yaml:"port"`
	BindHost      string `mapstructure:"HOST" yaml:"host"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" yaml:"database_url"`
	NATSServerURL string `mapstructure:"NATS_URL" yaml:"nats_url"`

	// Token auth is enabled by setting a secret. RequireTokens rejects
	// tokenless auth attempts instead of falling back to the plain
	// session-ID check.
	TokenSecret           string `mapstructure:"TOKEN_SECRET" yaml:"token_secret"`
	RequireTokens         bool   `mapstructure:"REQUIRE_TOKENS" yaml:"require_tokens"`
	AllowImplicitSessions bool   `mapstructure:"ALLOW_IMPLICIT_SESSIONS" yaml:"allow_implicit_sessions"`

	SessionTTL        time.Duration `mapstructure:"SESSION_TTL" yaml:"session_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"HEARTBEAT_TIMEOUT" yaml:"heartbeat_timeout"`
	DeviceTimeout     time.Duration `mapstructure:"DEVICE_TIMEOUT" yaml:"device_timeout"`

	RateWindow       time.Duration `mapstructure:"RATE_WINDOW" yaml:"rate_window"`
	RateMax          int           `mapstructure:"RATE_MAX" yaml:"rate_max"`
	MaxConnsPerIP    int           `mapstructure:"MAX_CONNS_PER_IP" yaml:"max_conns_per_ip"`
	MaxSessionsPerIP int           `mapstructure:"MAX_SESSIONS_PER_IP" yaml:"max_sessions_per_ip"`

	// Version
	BuildVersion string `yaml:"-"`
	BuildHash    string `yaml:"-"`
	BuildTime    string `yaml:"-"`
}
