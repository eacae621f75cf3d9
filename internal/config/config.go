package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the API server.
// Values resolve from flags, then environment, then defaults.
type Config struct {
	Server   ServerConfig   `embed:"" prefix:"server-" envprefix:"SERVER_"`
	Database DatabaseConfig `embed:"" prefix:"db-" envprefix:"DB_"`
	Logging  LoggingConfig  `embed:"" prefix:"log-" envprefix:"LOG_"`
	Climate  ClimateConfig  `embed:"" prefix:"climate-" envprefix:"CLIMATE_"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `name:"host" env:"HOST" default:"0.0.0.0" help:"Interface to bind."`
	Port            int           `name:"port" env:"PORT" default:"8080" help:"Port to listen on."`
	ReadTimeout     time.Duration `name:"read-timeout" env:"READ_TIMEOUT" default:"15s" help:"Maximum duration for reading a request."`
	WriteTimeout    time.Duration `name:"write-timeout" env:"WRITE_TIMEOUT" default:"15s" help:"Maximum duration for writing a response."`
	IdleTimeout     time.Duration `name:"idle-timeout" env:"IDLE_TIMEOUT" default:"60s" help:"Keep-alive idle timeout."`
	ShutdownTimeout time.Duration `name:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"30s" help:"Grace period for in-flight requests on shutdown."`
}

// DatabaseConfig locates the read-only climate dataset
type DatabaseConfig struct {
	Driver          string        `name:"driver" env:"DRIVER" default:"sqlite" enum:"sqlite,postgres" help:"Dataset driver (sqlite or postgres)."`
	Path            string        `name:"path" env:"PATH" default:"Resources/hawaii.sqlite" help:"SQLite dataset file."`
	Host            string        `name:"host" env:"HOST" default:"localhost" help:"PostgreSQL host."`
	Port            int           `name:"port" env:"PORT" default:"5432" help:"PostgreSQL port."`
	User            string        `name:"user" env:"USER" default:"postgres" help:"PostgreSQL user."`
	Password        string        `name:"password" env:"PASSWORD" default:"" help:"PostgreSQL password."`
	Database        string        `name:"name" env:"NAME" default:"hawaii" help:"PostgreSQL database name."`
	SSLMode         string        `name:"sslmode" env:"SSLMODE" default:"disable" help:"PostgreSQL sslmode."`
	MaxOpenConns    int           `name:"max-open-conns" env:"MAX_OPEN_CONNS" default:"10" help:"Connection pool size."`
	MaxIdleConns    int           `name:"max-idle-conns" env:"MAX_IDLE_CONNS" default:"5" help:"Idle connections kept in the pool."`
	ConnMaxLifetime time.Duration `name:"conn-max-lifetime" env:"CONN_MAX_LIFETIME" default:"30m" help:"Maximum connection lifetime."`
	ConnMaxIdleTime time.Duration `name:"conn-max-idle-time" env:"CONN_MAX_IDLE_TIME" default:"5m" help:"Maximum connection idle time."`
	ConnectTimeout  time.Duration `name:"connect-timeout" env:"CONNECT_TIMEOUT" default:"30s" help:"How long to keep retrying the initial connection."`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level  string `name:"level" env:"LEVEL" default:"info" help:"Minimum level (debug, info, warn, error)."`
	Format string `name:"format" env:"FORMAT" default:"json" help:"Record format (json or console)."`
}

// ClimateConfig holds the dataset quirks the API is bound to
type ClimateConfig struct {
	ActiveStation string `name:"active-station" env:"ACTIVE_STATION" default:"USC00519281" help:"Station served by /api/v1.0/tobs."`
	WindowDays    int    `name:"window-days" env:"WINDOW_DAYS" default:"365" help:"Lookback window, in days before the latest measurement."`
}

// LoadConfig loads .env (when present) and resolves args and environment into a Config
func LoadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	parser, err := kong.New(&cfg,
		kong.Name("climate-api"),
		kong.Description("Read-only HTTP API over historical precipitation and temperature observations."),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build config parser: %w", err)
	}

	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Database.Path) == "" {
			problems = append(problems, "sqlite driver requires a dataset path")
		}
	case "postgres":
		if strings.TrimSpace(c.Database.Host) == "" {
			problems = append(problems, "postgres driver requires a host")
		}
		if strings.TrimSpace(c.Database.Database) == "" {
			problems = append(problems, "postgres driver requires a database name")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			problems = append(problems, fmt.Sprintf("database port %d out of range", c.Database.Port))
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported database driver %q (allowed: sqlite, postgres)", c.Database.Driver))
	}

	if c.Database.MaxOpenConns < 1 {
		problems = append(problems, "max open connections must be at least 1")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		problems = append(problems, "max idle connections cannot exceed max open connections")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level %q (allowed: debug, info, warn, error)", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format %q (allowed: json, console)", c.Logging.Format))
	}

	if strings.TrimSpace(c.Climate.ActiveStation) == "" {
		problems = append(problems, "active station must not be empty")
	}
	if c.Climate.WindowDays < 1 {
		problems = append(problems, "window days must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Address returns the listen address for http.Server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
