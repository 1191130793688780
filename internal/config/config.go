package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendPostgres StorageBackend = "postgres"
)

type ConfigBasicClient struct {
	Username string
	Password string
}

type Config struct {
	App struct {
		Version  string      `env:"APP_VERSION" envDefault:"local"`
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"UTC"`
		LogLevel string      `env:"APP_LOG_LEVEL"`
	}

	HTTP struct {
		Port           string        `env:"HTTP_SERVER_PORT" envDefault:"8080"`
		Host           string        `env:"HTTP_SERVER_HOST" envDefault:"localhost"`
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"10s"`
	}

	Auth struct {
		BasicClientsString string `env:"AUTH_BASIC_CLIENTS" envDefault:"console:console"`
		BasicClients       []ConfigBasicClient
	}

	Scheduling struct {
		DefaultDurationMinutes int           `env:"SCHEDULING_DEFAULT_DURATION_MINUTES" envDefault:"60"`
		MinDurationMinutes     int           `env:"SCHEDULING_MIN_DURATION_MINUTES" envDefault:"15"`
		MaxDurationMinutes     int           `env:"SCHEDULING_MAX_DURATION_MINUTES" envDefault:"240"`
		BufferMinutes          int           `env:"SCHEDULING_BUFFER_MINUTES" envDefault:"10"`
		GranularityMinutes     int           `env:"SCHEDULING_GRANULARITY_MINUTES" envDefault:"0"`
		HoursFile              string        `env:"SCHEDULING_HOURS_FILE" envDefault:"config/operating_hours.yaml"`
		NotifyTimeout          time.Duration `env:"SCHEDULING_NOTIFY_TIMEOUT" envDefault:"15s"`
	}

	Storage struct {
		Backend      StorageBackend `env:"STORAGE_BACKEND" envDefault:"memory"`
		DatabaseURL  string         `env:"DATABASE_URL"`
		MaxOpenConns int            `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
		MaxIdleConns int            `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"25"`
	}

	Directory struct {
		URL      string `env:"DIRECTORY_URL"`
		Username string `env:"DIRECTORY_USERNAME"`
		Password string `env:"DIRECTORY_PASSWORD"`
	}

	RabbitMQ struct {
		Enabled    bool   `env:"RABBITMQ_ENABLED"`
		URL        string `env:"RABBITMQ_URL"`
		Exchange   string `env:"RABBITMQ_EXCHANGE" envDefault:"testdrive"`
		Queue      string `env:"RABBITMQ_QUEUE" envDefault:"testdrive-scheduler.calendar"`
		RoutingKey string `env:"RABBITMQ_ROUTING_KEY" envDefault:"testdrive.scheduler.appointment.#"`
	}

	Cache struct {
		Enabled      bool `env:"CACHE_ENABLED" envDefault:"true"`
		CalendarSize int  `env:"CACHE_CALENDAR_SIZE" envDefault:"256"`
	}

	Mail struct {
		Enabled  bool   `env:"MAIL_ENABLED"`
		Host     string `env:"MAIL_SMTP_HOST"`
		Port     int    `env:"MAIL_SMTP_PORT" envDefault:"587"`
		Username string `env:"MAIL_SMTP_USERNAME"`
		Password string `env:"MAIL_SMTP_PASSWORD"`
		From     string `env:"MAIL_FROM"`
	}

	Push struct {
		Enabled     bool   `env:"PUSH_ENABLED"`
		AccessToken string `env:"PUSH_EXPO_ACCESS_TOKEN"`
		Host        string `env:"PUSH_EXPO_HOST"`
	}
}

// NewConfig reads the process environment, preloaded from .env files when
// they exist.
func NewConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// godotenv does not override variables that are already set
		if err := godotenv.Load(file); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("config.dotenv.load_failed: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))
	cfg.Storage.Backend = StorageBackend(strings.ToLower(string(cfg.Storage.Backend)))
	if cfg.App.LogLevel == "" {
		if cfg.IsLocal() || cfg.App.Env == EnvDev {
			cfg.App.LogLevel = "DEBUG"
		} else {
			cfg.App.LogLevel = "INFO"
		}
	}

	cfg.Auth.BasicClients = parseBasicClients(cfg.Auth.BasicClientsString)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseBasicClients(raw string) []ConfigBasicClient {
	clients := []ConfigBasicClient{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			clients = append(clients, ConfigBasicClient{
				Username: parts[0],
				Password: parts[1],
			})
		}
	}
	return clients
}

func (c *Config) Validate() error {
	s := c.Scheduling
	if s.MinDurationMinutes <= 0 {
		return errors.New("SCHEDULING_MIN_DURATION_MINUTES must be positive")
	}
	if s.MinDurationMinutes > s.MaxDurationMinutes {
		return errors.New("SCHEDULING_MIN_DURATION_MINUTES must not exceed SCHEDULING_MAX_DURATION_MINUTES")
	}
	if s.DefaultDurationMinutes < s.MinDurationMinutes || s.DefaultDurationMinutes > s.MaxDurationMinutes {
		return fmt.Errorf("SCHEDULING_DEFAULT_DURATION_MINUTES must be within [%d, %d]", s.MinDurationMinutes, s.MaxDurationMinutes)
	}
	if s.BufferMinutes < 0 {
		return errors.New("SCHEDULING_BUFFER_MINUTES must not be negative")
	}
	if s.GranularityMinutes < 0 {
		return errors.New("SCHEDULING_GRANULARITY_MINUTES must not be negative")
	}

	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND value: %s", c.Storage.Backend)
	}

	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return errors.New("RABBITMQ_URL is required when RABBITMQ_ENABLED=true")
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return errors.New("MAIL_SMTP_HOST and MAIL_FROM are required when MAIL_ENABLED=true")
	}

	return nil
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

func (c *Config) IsNotLocal() bool {
	return c.App.Env == EnvDev || c.App.Env == EnvStage || c.App.Env == EnvProduction
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
