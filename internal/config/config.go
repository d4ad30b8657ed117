// filepath: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lostfound/internal/shared"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix prefixes every environment override, e.g. LOSTFOUND_LOGGING_LEVEL.
const EnvPrefix = "LOSTFOUND"

// Config holds the application's configuration.
type Config struct {
	Database DatabaseConfig `toml:"database" mapstructure:"database"`
	Logging  LoggingConfig  `toml:"logging" mapstructure:"logging"`
	Security SecurityConfig `toml:"security" mapstructure:"security"`
	JWT      JWTConfig      `toml:"jwt" mapstructure:"jwt"`
	Setup    SetupConfig    `toml:"setup" mapstructure:"setup"`

	// Runtime values computed by ParseAndValidate.
	LockTimeout     time.Duration `toml:"-" mapstructure:"-"`
	Lockout         time.Duration `toml:"-" mapstructure:"-"`
	SessionDuration time.Duration `toml:"-" mapstructure:"-"`
}

// DatabaseConfig holds the store settings.
type DatabaseConfig struct {
	LockTimeout string `toml:"lock_timeout" mapstructure:"lock_timeout"` // e.g. "10s", "500ms"
}

// LoggingConfig holds the logging configuration.
type LoggingConfig struct {
	Level        string `toml:"level" mapstructure:"level"`
	AuditEnabled bool   `toml:"audit_enabled" mapstructure:"audit_enabled"`
}

// SecurityConfig holds password and login settings.
type SecurityConfig struct {
	BcryptCost      int    `toml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
	MaxFailedLogins int    `toml:"max_failed_logins" mapstructure:"max_failed_logins"`
	Lockout         string `toml:"lockout" mapstructure:"lockout"`
	// Never written back to the file.
	AdminPassword string `toml:"-" mapstructure:"admin_password"`
}

// JWTConfig holds settings for session tokens.
type JWTConfig struct {
	Secret  string `toml:"secret" mapstructure:"secret"` // Persisted secret
	Session string `toml:"session" mapstructure:"session"`
}

// SetupConfig holds the values seeded into the settings table on setup.
type SetupConfig struct {
	FacilityName string   `toml:"facility_name" mapstructure:"facility_name"`
	Locations    []string `toml:"locations" mapstructure:"locations"`
	Categories   []string `toml:"categories" mapstructure:"categories"`
}

// flagKeys maps config keys to the command-line flags that override them.
var flagKeys = map[string]string{
	"logging.level":           "log-level",
	"logging.audit_enabled":   "audit-enabled",
	"security.admin_password": "admin-password",
	"database.lock_timeout":   "lock-timeout",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.lock_timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.audit_enabled", false)
	v.SetDefault("security.bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("security.max_failed_logins", 5)
	v.SetDefault("security.lockout", "15m")
	v.SetDefault("security.admin_password", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.session", "12h")
	v.SetDefault("setup.facility_name", "Lost & Found")
	v.SetDefault("setup.locations", []string{})
	v.SetDefault("setup.categories", []string{})
}

// Load reads the TOML file at path, then applies LOSTFOUND_* environment
// variables and any changed flags in flags (which may be nil). A missing
// file is not an error. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.ParseAndValidate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the current configuration back to a TOML file.
// Used to persist the auto-generated JWT secret.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("trying to save the config: %w: %v", shared.ErrorCreateFile, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("trying to save the config: %w: %v", shared.ErrorCreateFile, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("trying to save the config: %w: %v", shared.ErrorEncodeFile, err)
	}
	return nil
}

// ParseAndValidate fills empty values with defaults and converts the
// human-readable durations into runtime values.
func (c *Config) ParseAndValidate() error {
	if c.Database.LockTimeout == "" {
		c.Database.LockTimeout = "10s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Security.BcryptCost == 0 {
		c.Security.BcryptCost = bcrypt.DefaultCost
	}
	if c.Security.Lockout == "" {
		c.Security.Lockout = "15m"
	}
	if c.JWT.Session == "" {
		c.JWT.Session = "12h"
	}

	var err error
	if c.LockTimeout, err = shared.ParseDuration(c.Database.LockTimeout); err != nil {
		return fmt.Errorf("invalid database.lock_timeout: %w", err)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("invalid database.lock_timeout: must be positive")
	}
	if c.Lockout, err = shared.ParseDuration(c.Security.Lockout); err != nil {
		return fmt.Errorf("invalid security.lockout: %w", err)
	}
	if c.SessionDuration, err = shared.ParseDuration(c.JWT.Session); err != nil {
		return fmt.Errorf("invalid jwt.session: %w", err)
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("invalid jwt.session: must be positive")
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid security.bcrypt_cost %d: must be between %d and %d", c.Security.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Security.MaxFailedLogins < 0 {
		return fmt.Errorf("invalid security.max_failed_logins: must not be negative")
	}
	return nil
}
