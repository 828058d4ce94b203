package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix      = "ROOMWIRE"
	envConfigDir   = "ROOMWIRE_CONFIG_DIR"
	configFileName = "config.yaml"
)

// Load resolves configuration and reports the file it used.
// Precedence: defaults < config file < ROOMWIRE_* env < caller overrides (UpdateFrom).
// A missing file is created from defaults; failing to create it is only a warning.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg := Default()
	path := configPath(explicitPath)

	v := newViper(cfg)
	v.SetConfigFile(path)

	switch err := v.ReadInConfig(); {
	case err == nil:
	case missingFile(err):
		if werr := writeDefaultConfig(path, cfg); werr != nil {
			logger.Warn().Err(werr).Str("path", path).Msg("failed to write default config")
		} else {
			logger.Info().Str("path", path).Msg("created default config")
		}
	default:
		return cfg, path, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, path, nil
}

// newViper registers every key with its default so AutomaticEnv can resolve it during Unmarshal.
func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range map[string]any{
		"addr":                cfg.Addr,
		"read_header_timeout": cfg.ReadHeaderTimeout,
		"shutdown_timeout":    cfg.ShutdownTimeout,
		"log_level":           cfg.LogLevel,
		"log_format":          cfg.LogFormat,
		"database_driver":     cfg.DatabaseDriver,
		"database_path":       cfg.DatabasePath,
		"database_url":        cfg.DatabaseURL,
		"jwt_secret":          cfg.JWTSecret,
		"jwt_issuer":          cfg.JWTIssuer,
		"jwt_audience":        cfg.JWTAudience,
		"jwt_ttl":             cfg.JWTTTL,
		"cookie_name":         cfg.CookieName,
		"cookie_secret":       cfg.CookieSecret,
		"cookie_secure":       cfg.CookieSecure,
		"allowed_origins":     cfg.AllowedOrigins,
		"history_limit":       cfg.HistoryLimit,
		"max_message_bytes":   cfg.MaxMessageBytes,
		"send_buffer":         cfg.SendBuffer,
		"seed_rooms":          cfg.SeedRooms,
		"bus_driver":          cfg.BusDriver,
		"nats_url":            cfg.NATSURL,
		"nats_subject":        cfg.NATSSubject,
	} {
		v.SetDefault(key, value)
	}
	return v
}

func missingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// configPath picks the explicit path, then $ROOMWIRE_CONFIG_DIR, then the working directory.
func configPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	dir := os.Getenv(envConfigDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return configFileName
		}
		dir = wd
	}
	return filepath.Join(dir, configFileName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
