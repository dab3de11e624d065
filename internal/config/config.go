package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
		Migrations   string `yaml:"migrations"`
	} `yaml:"database"`
	Server struct {
		Port         string  `yaml:"port"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
		RateBurst    int     `yaml:"rate_limit_burst"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
	NLP struct {
		URL              string        `yaml:"url"`
		Timeout          time.Duration `yaml:"timeout"`
		ServiceToken     string        `yaml:"service_token"`
		BreakerFailures  uint32        `yaml:"breaker_failures"`
		BreakerOpenDelay time.Duration `yaml:"breaker_open_delay"`
	} `yaml:"nlp"`
	Training struct {
		MinIntents     int `yaml:"min_intents"`
		MinEvaluations int `yaml:"min_evaluations"`
	} `yaml:"training"`
	Versioning struct {
		CloneAtomic bool `yaml:"clone_atomic"`
	} `yaml:"versioning"`
	Worker struct {
		Embedded     bool          `yaml:"embedded"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"worker"`
	Jobs struct {
		TrainingsInterval      time.Duration `yaml:"trainings_interval"`
		TrainingTimeout        time.Duration `yaml:"training_timeout"`
		PruneInterval          time.Duration `yaml:"prune_interval"`
		LogRetentionDays       int           `yaml:"log_retention_days"`
		PruneBatchSize         int           `yaml:"prune_batch_size"`
		AuthorizationsInterval time.Duration `yaml:"authorizations_interval"`
	} `yaml:"jobs"`
	Artifacts struct {
		Backend   string `yaml:"backend"` // inline or sftp
		MasterKey string `yaml:"master_key"`
		SFTP      struct {
			Host     string        `yaml:"host"`
			Port     int           `yaml:"port"`
			User     string        `yaml:"user"`
			Password string        `yaml:"password"`
			Path     string        `yaml:"path"`
			Timeout  time.Duration `yaml:"timeout"`
		} `yaml:"sftp"`
	} `yaml:"artifacts"`
	Notifications struct {
		Enabled          bool     `yaml:"enabled"`
		EmailURLs        []string `yaml:"email_urls"`
		TelegramBotToken string   `yaml:"telegram_bot_token"`
		WebURL           string   `yaml:"web_url"`
	} `yaml:"notifications"`
	Sentry struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`
	Cache struct {
		CategoriesTTL time.Duration `yaml:"categories_ttl"`
	} `yaml:"cache"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	c := &Config{}
	c.Database.MaxOpenConns = 20
	c.Database.MaxIdleConns = 5
	c.Database.Migrations = "file://migrations"
	c.Server.Port = ":8080"
	c.Server.RateLimitRPS = 50
	c.Server.RateBurst = 100
	c.Auth.TokenTTL = 24 * time.Hour
	c.Logging.Level = "info"
	c.NLP.Timeout = 30 * time.Second
	c.NLP.BreakerFailures = 5
	c.NLP.BreakerOpenDelay = 30 * time.Second
	c.Training.MinIntents = 2
	c.Training.MinEvaluations = 1
	c.Versioning.CloneAtomic = true
	c.Worker.PollInterval = 5 * time.Second
	c.Jobs.TrainingsInterval = time.Minute
	c.Jobs.TrainingTimeout = 2 * time.Hour
	c.Jobs.PruneInterval = 24 * time.Hour
	c.Jobs.LogRetentionDays = 90
	c.Jobs.PruneBatchSize = 5000
	c.Jobs.AuthorizationsInterval = 24 * time.Hour
	c.Artifacts.Backend = "inline"
	c.Artifacts.SFTP.Port = 22
	c.Artifacts.SFTP.Timeout = 30 * time.Second
	c.Cache.CategoriesTTL = 10 * time.Minute
	return c
}

// applyEnv lets deployment secrets override the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("NLUHUB_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("NLUHUB_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("NLUHUB_MASTER_KEY"); v != "" {
		c.Artifacts.MasterKey = v
	}
	if v := os.Getenv("NLUHUB_NLP_URL"); v != "" {
		c.NLP.URL = v
	}
	if v := os.Getenv("NLUHUB_SENTRY_DSN"); v != "" {
		c.Sentry.DSN = v
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.NLP.URL == "" {
		return errors.New("config: nlp.url is required")
	}
	switch c.Artifacts.Backend {
	case "inline":
	case "sftp":
		if c.Artifacts.SFTP.Host == "" || c.Artifacts.SFTP.User == "" {
			return errors.New("config: artifacts.sftp.host and artifacts.sftp.user are required for the sftp backend")
		}
	default:
		return fmt.Errorf("config: unknown artifacts.backend %q", c.Artifacts.Backend)
	}
	if c.Training.MinIntents < 1 {
		return errors.New("config: training.min_intents must be positive")
	}
	if c.Jobs.PruneBatchSize <= 0 {
		return errors.New("config: jobs.prune_batch_size must be positive")
	}
	return nil
}
