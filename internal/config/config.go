// Package config loads agentq configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete agentq configuration shared by the CLI, the API
// server and agent processes.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`

	// UserID owns jobs created without an explicit owner.
	UserID int64 `yaml:"user_id" toml:"user_id"`

	// Agents populates the agent type registry at startup.
	Agents []AgentDef `yaml:"agents" toml:"agents"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn" toml:"dsn"`       // file path for sqlite, connection string for postgres
}

// SchedulerConfig locates the scheduler's command socket.
type SchedulerConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Disabled bool          `yaml:"disabled" toml:"disabled"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// AgentConfig holds agent runtime timing.
type AgentConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// ServerConfig holds the API listen address.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AgentDef declares one agent type and the agent types it depends on.
type AgentDef struct {
	Name      string   `yaml:"name" toml:"name"`
	DependsOn []string `yaml:"depends_on" toml:"depends_on"`
}

// Default returns sensible defaults. The sqlite DSN is left empty and
// resolved by ResolveDSN so that merely building a Config never touches the
// filesystem.
func Default() Config {
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite"},
		Scheduler: SchedulerConfig{Addr: "127.0.0.1:5555", Timeout: 10 * time.Second},
		Agent:     AgentConfig{HeartbeatInterval: 30 * time.Second},
		Server:    ServerConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		UserID:    1,
	}
}

// Load reads a configuration file on top of Default(). Files ending in
// .toml are decoded as TOML, everything else as YAML. Environment variables
// in the format ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	if !c.Scheduler.Disabled && c.Scheduler.Addr == "" {
		return fmt.Errorf("scheduler.addr is required unless scheduler.disabled is set")
	}
	if c.Agent.HeartbeatInterval <= 0 {
		return fmt.Errorf("agent.heartbeat_interval must be positive")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d].name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agent %q declared twice", a.Name)
		}
		seen[a.Name] = true
	}
	for _, a := range c.Agents {
		for _, dep := range a.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("agent %q depends on undeclared agent %q", a.Name, dep)
			}
		}
	}

	return nil
}

// ResolveDSN returns the database DSN, defaulting sqlite to
// ~/.agentq/agentq.db and creating its directory.
func (c *Config) ResolveDSN() (string, error) {
	if c.Database.DSN != "" || c.Database.Driver != "sqlite" {
		return c.Database.DSN, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".agentq")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "agentq.db"), nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Scheduler.TimeoutRaw != "" {
		cfg.Scheduler.Timeout, err = time.ParseDuration(cfg.Scheduler.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing scheduler.timeout %q: %w", cfg.Scheduler.TimeoutRaw, err)
		}
	}

	if cfg.Agent.HeartbeatIntervalRaw != "" {
		cfg.Agent.HeartbeatInterval, err = time.ParseDuration(cfg.Agent.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing agent.heartbeat_interval %q: %w", cfg.Agent.HeartbeatIntervalRaw, err)
		}
	}

	return nil
}
