package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the YAML file Load reads when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	FollowUp FollowUpConfig `yaml:"followup"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type FollowUpConfig struct {
	CronSecret          string        `yaml:"cron_secret"`
	Schedule            string        `yaml:"schedule"`
	BatchSize           int           `yaml:"batch_size"`
	Pacing              time.Duration `yaml:"pacing"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
	MaxDispatchFailures int           `yaml:"max_dispatch_failures"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "postgres"},
		OpenAI:   OpenAIConfig{Model: "gpt-4o-mini", Timeout: 30 * time.Second},
		FollowUp: FollowUpConfig{
			Schedule:            "*/5 * * * *",
			BatchSize:           50,
			Pacing:              2 * time.Second,
			RunTimeout:          5 * time.Minute,
			MaxDispatchFailures: 12,
		},
		AMQP: AMQPConfig{Exchange: "followup"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file (if present) and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// .env is optional; the OS environment is authoritative either way.
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "API_ADDR")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	if cfg.Database.DSN == "" && os.Getenv("DB_HOST") != "" {
		cfg.Database.DSN = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"), envOr("DB_PORT", "5432"), os.Getenv("DB_NAME"),
		)
	}

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.FollowUp.CronSecret, "CRON_SECRET")
	setString(&cfg.FollowUp.Schedule, "FOLLOWUP_SCHEDULE")
	setString(&cfg.AMQP.URL, "AMQP_URL")
	setString(&cfg.AMQP.Exchange, "AMQP_EXCHANGE")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Path, "LOG_PATH")

	if err := setDuration(&cfg.OpenAI.Timeout, "ANALYZER_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.FollowUp.Pacing, "FOLLOWUP_PACING"); err != nil {
		return err
	}
	if err := setDuration(&cfg.FollowUp.RunTimeout, "FOLLOWUP_RUN_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&cfg.FollowUp.BatchSize, "FOLLOWUP_BATCH_SIZE"); err != nil {
		return err
	}
	return setInt(&cfg.FollowUp.MaxDispatchFailures, "FOLLOWUP_MAX_DISPATCH_FAILURES")
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.FollowUp.BatchSize <= 0 {
		return fmt.Errorf("followup batch size must be positive, got %d", c.FollowUp.BatchSize)
	}
	if c.FollowUp.RunTimeout <= 0 {
		return fmt.Errorf("followup run timeout must be positive, got %s", c.FollowUp.RunTimeout)
	}
	if c.FollowUp.Pacing < 0 {
		return fmt.Errorf("followup pacing cannot be negative")
	}
	if c.FollowUp.MaxDispatchFailures < 0 {
		return fmt.Errorf("max dispatch failures cannot be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
