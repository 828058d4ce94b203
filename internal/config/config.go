package config

import (
	"errors"
	"fmt"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Bus drivers.
const (
	BusLocal = "local"
	BusNATS  = "nats"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	DatabaseURL    string `mapstructure:"database_url" yaml:"database_url"`

	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience  string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL       time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	CookieName   string        `mapstructure:"cookie_name" yaml:"cookie_name"`
	CookieSecret string        `mapstructure:"cookie_secret" yaml:"cookie_secret"`
	CookieSecure bool          `mapstructure:"cookie_secure" yaml:"cookie_secure"`

	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	HistoryLimit    int      `mapstructure:"history_limit" yaml:"history_limit"`
	MaxMessageBytes int      `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer      int      `mapstructure:"send_buffer" yaml:"send_buffer"`
	SeedRooms       []string `mapstructure:"seed_rooms" yaml:"seed_rooms"`

	BusDriver   string `mapstructure:"bus_driver" yaml:"bus_driver"`
	NATSURL     string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject" yaml:"nats_subject"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",

		DatabaseDriver: DriverSQLite,
		DatabasePath:   "roomwire.db",

		JWTSecret:   "change-me-in-production",
		JWTIssuer:   "roomwire",
		JWTAudience: "roomwire-clients",
		JWTTTL:      24 * time.Hour,
		CookieName:  "accessToken",
		// Must match the secret the login edge signs cookies with.
		CookieSecret: "change-me-cookie-secret",

		AllowedOrigins:  []string{"http://localhost:3000"},
		HistoryLimit:    50,
		MaxMessageBytes: 4096,
		SendBuffer:      32,
		SeedRooms:       []string{"Anime", "Video Games"},

		BusDriver:   BusLocal,
		NATSURL:     "nats://127.0.0.1:4222",
		NATSSubject: "roomwire.users.deleted",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Used for CLI flag overrides, which take precedence over file and env.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.DatabaseURL != "" {
		c.DatabaseURL = other.DatabaseURL
	}
}

// Validate reports configuration that cannot start a server.
func (c Config) Validate() error {
	var problems []error

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			problems = append(problems, errors.New("database_path is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("database_url is required for postgres"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown database_driver %q", c.DatabaseDriver))
	}

	switch c.BusDriver {
	case BusLocal:
	case BusNATS:
		if c.NATSURL == "" || c.NATSSubject == "" {
			problems = append(problems, errors.New("nats_url and nats_subject are required for the nats bus"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown bus_driver %q", c.BusDriver))
	}

	if c.JWTSecret == "" {
		problems = append(problems, errors.New("jwt_secret must not be empty"))
	}
	if c.CookieSecret == "" {
		problems = append(problems, errors.New("cookie_secret must not be empty"))
	}
	if c.CookieName == "" {
		problems = append(problems, errors.New("cookie_name must not be empty"))
	}
	if c.HistoryLimit <= 0 {
		problems = append(problems, errors.New("history_limit must be positive"))
	}

	return errors.Join(problems...)
}
