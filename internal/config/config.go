// Package config loads service and simulation settings from a YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ridesim/internal/dispatch"
	"ridesim/internal/instance"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Store      StoreConfig      `yaml:"store"`
	Broker     BrokerConfig     `yaml:"broker"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	RateRPS           float64       `yaml:"rate_rps"`
	RateBurst         int           `yaml:"rate_burst"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
}

type SimulationConfig struct {
	Policy   string `yaml:"policy"`
	Restarts int    `yaml:"restarts"`
	Workers  int    `yaml:"workers"`
	Seed     int64  `yaml:"seed"`
	// SortPool orders the initial pool by start turn.
	SortPool *bool `yaml:"sort_pool"`
	// Upper bounds on submitted instances.
	MaxVehicles int `yaml:"max_vehicles"`
	MaxRides    int `yaml:"max_rides"`
	MaxTurns    int `yaml:"max_turns"`
}

type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
}

type BrokerConfig struct {
	RedisURL string `yaml:"redis_url"`
}

type NotifyConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	MaxAttempts   int    `yaml:"max_attempts"`
	AMQPURL       string `yaml:"amqp_url"`
	Exchange      string `yaml:"exchange"`
	RoutingKey    string `yaml:"routing_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	sorted := true
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateRPS:           20,
			RateBurst:         40,
			MaxBodyBytes:      32 << 20,
		},
		Simulation: SimulationConfig{
			Policy:      "greedy",
			Restarts:    1,
			Workers:     4,
			Seed:        1,
			SortPool:    &sorted,
			MaxVehicles: 10_000,
			MaxRides:    100_000,
			MaxTurns:    1_000_000_000,
		},
		Store:  StoreConfig{Migrate: true},
		Notify: NotifyConfig{MaxAttempts: 5, Exchange: "ridesim.events", RoutingKey: "simulation.completed"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	setString(&c.Store.DatabaseURL, "DATABASE_URL")
	setString(&c.Broker.RedisURL, "REDIS_URL")
	setString(&c.Notify.AMQPURL, "AMQP_URL")
	setString(&c.Notify.WebhookURL, "WEBHOOK_URL")
	setString(&c.Notify.WebhookSecret, "WEBHOOK_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_MIGRATE: %w", err)
		}
		c.Store.Migrate = b
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.Server.RateRPS = f
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.Server.RateBurst = n
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Notify.MaxAttempts = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(dispatch.PolicyNames, strings.ToLower(c.Simulation.Policy)) {
		errs = append(errs, fmt.Errorf("simulation.policy: unknown policy %q", c.Simulation.Policy))
	}
	if c.Simulation.Restarts < 1 {
		errs = append(errs, errors.New("simulation.restarts must be >= 1"))
	}
	if c.Simulation.Workers < 1 {
		errs = append(errs, errors.New("simulation.workers must be >= 1"))
	}
	if c.Simulation.MaxVehicles < 1 || c.Simulation.MaxRides < 1 || c.Simulation.MaxTurns < 1 {
		errs = append(errs, errors.New("simulation.max_vehicles, max_rides and max_turns must be >= 1"))
	}
	if c.Server.RateRPS <= 0 {
		errs = append(errs, errors.New("server.rate_rps must be > 0"))
	}
	if c.Server.RateBurst < 1 {
		errs = append(errs, errors.New("server.rate_burst must be >= 1"))
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, errors.New("notify.max_attempts must be >= 1"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: want json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Limits returns the instance size caps.
func (s SimulationConfig) Limits() instance.Limits {
	return instance.Limits{Vehicles: s.MaxVehicles, Rides: s.MaxRides, Turns: s.MaxTurns}
}

// SortedPool reports whether the initial pool is ordered by start turn.
func (s SimulationConfig) SortedPool() bool {
	return s.SortPool == nil || *s.SortPool
}
