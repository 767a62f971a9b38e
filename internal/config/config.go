package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type App struct {
	Env     string `yaml:"env"`
	Port    int    `yaml:"port"`
	Timeout string `yaml:"shutdown_timeout"`
	Rate    int    `yaml:"rate_limit_per_min"`
}

func (a *App) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a *App) Development() bool { return a.Env != "production" }

type Mongo struct {
	URI string `yaml:"uri"`
	DB  string `yaml:"db"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type JWT struct {
	Alg           string `yaml:"alg"`
	PublicKeyPath string `yaml:"public_key_path"`
	HSSecret      string `yaml:"hs_secret"`
}

type Classifier struct {
	BaseURL                string `yaml:"base_url"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	RetryMaxElapsedSeconds int    `yaml:"retry_max_elapsed_seconds"`
	PollIntervalSeconds    int    `yaml:"poll_interval_seconds"`
	PollMaxAttempts        int    `yaml:"poll_max_attempts"`
	JobRetentionMinutes    int    `yaml:"job_retention_minutes"`
	DiseaseTable           string `yaml:"disease_table"`
	ReplyDelayMilliseconds int    `yaml:"reply_delay_ms"`
}

func (c *Classifier) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Classifier) RetryMaxElapsed() time.Duration {
	if c.RetryMaxElapsedSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.RetryMaxElapsedSeconds) * time.Second
}

func (c *Classifier) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Classifier) JobRetention() time.Duration {
	if c.JobRetentionMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JobRetentionMinutes) * time.Minute
}

func (c *Classifier) ReplyDelay() time.Duration {
	if c.ReplyDelayMilliseconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ReplyDelayMilliseconds) * time.Millisecond
}

type Config struct {
	App        App        `yaml:"app"`
	Mongo      Mongo      `yaml:"mongo"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	JWT        JWT        `yaml:"jwt"`
	Classifier Classifier `yaml:"classifier"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		b, _ := os.ReadFile("config.yaml")
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	overrideFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		n, _ := strconv.Atoi(v)
		cfg.App.Port = n
	}

	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_NAME"); v != "" {
		cfg.Mongo.DB = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}

	if v := os.Getenv("JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.JWT.PublicKeyPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.HSSecret = v
	}

	if v := os.Getenv("MODEL_BASE_URL"); v != "" {
		cfg.Classifier.BaseURL = v
	}
}

func validate(cfg *Config) error {
	if cfg.App.Port == 0 {
		return errors.New("app.port missing or invalid")
	}

	// Mongo is optional: without it the service falls back to the
	// in-memory store (development only).
	if cfg.Mongo.URI != "" && cfg.Mongo.DB == "" {
		return errors.New("mongo.db missing")
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.New("kafka.topic missing")
	}

	switch strings.ToUpper(cfg.JWT.Alg) {
	case "RS256":
		if cfg.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if cfg.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	return nil
}
