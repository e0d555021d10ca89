package database

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/freekieb7/ingress/validation"
)

const (
	DefaultMaxConnectionsPerProcess = 20
	DefaultMaxIdle                  = 30 * time.Second
	DefaultSweepInterval            = 10 * time.Second
)

var ErrUnknownEnvironment = errors.New("database: unknown environment")

// Profile describes how to reach one backend database. Either DSN is set or
// it is built from the individual fields.
type Profile struct {
	Driver             string   `yaml:"driver"`
	DSN                string   `yaml:"dsn"`
	HostName           string   `yaml:"host_name"`
	Port               int      `yaml:"port"`
	DatabaseName       string   `yaml:"database_name"`
	UserName           string   `yaml:"user_name"`
	Password           string   `yaml:"password"`
	ConnectOptions     string   `yaml:"connect_options"`
	PostOpenStatements []string `yaml:"post_open_statements"`
}

type Config struct {
	MaxConnectionsPerProcess int           `yaml:"max_connections_per_process"`
	MaxIdle                  time.Duration `yaml:"max_idle"`
	SweepInterval            time.Duration `yaml:"sweep_interval"`
	WaitTimeout              time.Duration `yaml:"wait_timeout"`

	// Environments maps an environment name to its profiles, indexed by
	// database id.
	Environments map[string][]Profile `yaml:"environments"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("database: read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration. Unset pool settings get
// their defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("database: decode config: %w", err)
	}

	if cfg.MaxConnectionsPerProcess == 0 {
		cfg.MaxConnectionsPerProcess = DefaultMaxConnectionsPerProcess
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	configRules = map[string][]string{
		"max_connections_per_process": {"required", "integer", "min:1"},
		"max_idle":                    {"required", "min:1"},
		"sweep_interval":              {"required", "min:1"},
		"wait_timeout":                {"required", "min:0"},
	}

	dsnRules = map[string][]string{
		"port": {"integer", "min:0", "max:65535"},
	}

	sqliteRules = map[string][]string{
		"database_name": {"required"},
	}

	addressRules = map[string][]string{
		"host_name":     {"required"},
		"database_name": {"required"},
		"port":          {"integer", "min:0", "max:65535"},
	}
)

// Validate checks the pool settings and every profile of every environment.
func (cfg Config) Validate() error {
	var errs []error

	violations := validation.ValidateMap(map[string]any{
		"max_connections_per_process": cfg.MaxConnectionsPerProcess,
		"max_idle":                    int64(cfg.MaxIdle),
		"sweep_interval":              int64(cfg.SweepInterval),
		"wait_timeout":                int64(cfg.WaitTimeout),
	}, configRules)
	if !violations.IsEmpty() {
		errs = append(errs, fmt.Errorf("database: invalid config: %w", violations))
	}

	for env, profiles := range cfg.Environments {
		for id, profile := range profiles {
			if err := profile.validate(); err != nil {
				errs = append(errs, fmt.Errorf("database: invalid profile %s[%d]: %w", env, id, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (profile Profile) validate() error {
	driverType, err := ParseDriverType(profile.Driver)
	if err != nil {
		return err
	}

	rules := addressRules
	switch {
	case profile.DSN != "":
		rules = dsnRules
	case driverType == SqlDriverTypeSqlite:
		rules = sqliteRules
	}

	fields := map[string]any{
		"host_name":     profile.HostName,
		"database_name": profile.DatabaseName,
		"port":          profile.Port,
	}
	data := make(map[string]any, len(rules))
	for name := range rules {
		data[name] = fields[name]
	}

	if violations := validation.ValidateMap(data, rules); !violations.IsEmpty() {
		return violations
	}
	return nil
}

// Profiles returns the profiles of env.
func (cfg Config) Profiles(env string) ([]Profile, error) {
	profiles, found := cfg.Environments[env]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}
	return profiles, nil
}

// Profile returns the profile of databaseID in env.
func (cfg Config) Profile(env string, databaseID int) (Profile, error) {
	profiles, err := cfg.Profiles(env)
	if err != nil {
		return Profile{}, err
	}
	if databaseID < 0 || databaseID >= len(profiles) {
		return Profile{}, fmt.Errorf("%w: %d not in [0, %d) for %q", ErrInvalidDatabaseID, databaseID, len(profiles), env)
	}
	return profiles[databaseID], nil
}
