package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrEmptyDBPassword   = errors.New("database password is required")
	ErrEmptySMTPPassword = errors.New("smtp password is required")
)

type Config struct {
	App       AppConfig       `yaml:"app" env:"APP"`
	Database  DatabaseConfig  `yaml:"database" env:"DB"`
	SMTP      SMTPConfig      `yaml:"smtp" env:"SMTP"`
	Generator GeneratorConfig `yaml:"generator" env:"GENERATOR"`
	Delivery  DeliveryConfig  `yaml:"delivery" env:"DELIVERY"`
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME" env-default:"daily-jokes"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" env-default:"5432"`
	User           string `yaml:"user" env:"USER" env-default:"dailyjokes"`
	Password       string `yaml:"password" env:"PASSWORD"`
	Name           string `yaml:"name" env:"NAME" env-default:"dailyjokes"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"25"`
	MinConnections int    `yaml:"min_connections" env:"MIN_CONNECTIONS" env-default:"5"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"HOST" env-default:"smtp.gmail.com"`
	Port     int    `yaml:"port" env:"PORT" env-default:"587"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	From     string `yaml:"from" env:"FROM"`
}

func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GeneratorConfig struct {
	APIKey      string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"MODEL" env-default:"gpt-3.5-turbo"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS" env-default:"2000"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE" env-default:"0.7"`
}

type DeliveryConfig struct {
	// StalenessWindow is how long a joke stays ineligible after a send.
	StalenessWindow time.Duration `yaml:"staleness_window" env:"STALENESS_WINDOW" env-default:"168h"`
	// Schedule is "minutely" (wildcard-minute cron) or "daily".
	Schedule string `yaml:"schedule" env:"SCHEDULE" env-default:"minutely"`
	// DailyAt is the HH:MM a daily schedule fires; ignored when minutely.
	DailyAt string `yaml:"daily_at" env:"DAILY_AT" env-default:"09:00"`
}

type ServerConfig struct {
	Port           int    `yaml:"port" env:"PORT" env-default:"8080"`
	HealthEndpoint string `yaml:"health_endpoint" env:"HEALTH_ENDPOINT" env-default:"/healthz"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.prod.yaml"
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}

	cleanenv.ReadEnv(&cfg)

	if cfg.Database.Password == "" {
		return nil, ErrEmptyDBPassword
	}

	if cfg.SMTP.Password == "" {
		return nil, ErrEmptySMTPPassword
	}

	return &cfg, nil
}
