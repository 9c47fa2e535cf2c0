// Package config reads and writes the YAML file holding the connection
// to the physical engine, the location of the metadata repository and
// the identity commits are made under.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/db"
	"github.com/nickyhof/orpheusplus/store"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPath overrides the default config location.
const EnvPath = "ORPHEUSPLUS_CONFIG"

const (
	defaultFile     = "config.yaml"
	duckdbFile      = "orpheusplus.duckdb"
	defaultDatabase = "orpheusplus"
)

type Config struct {
	Driver string `yaml:"driver"`
	// DataSource is passed to the driver unchanged when set.
	DataSource string `yaml:"dsn,omitempty"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Passwd     string `yaml:"passwd,omitempty"`
	Email      string `yaml:"email,omitempty"`

	// RootDir holds the metadata repository, and the DuckDB file when no
	// dsn is given. Empty keeps both in memory.
	RootDir  string `yaml:"root_dir"`
	GitURL   string `yaml:"git_url,omitempty"`
	LogLevel string `yaml:"log_level"`

	S3 db.S3Config `yaml:"s3,omitempty"`
}

func Default() Config {
	return Config{
		Driver:   "duckdb",
		Host:     "localhost",
		Port:     3306,
		Database: defaultDatabase,
		User:     "orpheus",
		LogLevel: "info",
	}
}

// Path returns the config file to use: $ORPHEUSPLUS_CONFIG, else
// config.yaml in the working directory.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return defaultFile
}

// Load reads path over the defaults. A missing file returns the defaults
// with an error matching os.ErrNotExist.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	log.WithField("path", path).Debug("loaded config")
	return cfg, nil
}

// LoadOrDefault is Load without the error for a missing file.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	return cfg, err
}

// Save writes cfg to path, readable by the owner only since it may hold
// a password.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func (cfg Config) Validate() error {
	if _, err := store.ParseDialect(cfg.Driver); err != nil {
		return err
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(cfg.User) == "":
		return errors.New("user is required")
	case strings.ContainsAny(cfg.User, " ./\\"):
		return fmt.Errorf("user %q cannot be part of a table name", cfg.User)
	case cfg.Database == "":
		return errors.New("database is required")
	}
	return nil
}

// DSN returns the data source name of the physical engine.
func (cfg Config) DSN() string {
	if cfg.DataSource != "" {
		return cfg.DataSource
	}
	dialect, _ := store.ParseDialect(cfg.Driver)
	if dialect == store.DuckDB {
		if cfg.RootDir == "" {
			return ""
		}
		return filepath.Join(cfg.RootDir, duckdbFile)
	}

	my := mysql.NewConfig()
	my.User = cfg.User
	my.Passwd = cfg.Passwd
	my.Net = "tcp"
	my.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	my.DBName = cfg.Database
	my.ParseTime = true
	return my.FormatDSN()
}

// Identity is the author of commits. Its name selects the workspace.
func (cfg Config) Identity() core.Identity {
	return core.Identity{Name: cfg.User, Email: cfg.Email}
}

func (cfg Config) Level() log.Level {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
