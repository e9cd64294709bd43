package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NotifyConfig holds the delivery provider contract: base URL, API key, and the
// two fixed summary template ids (one per channel). The templates each expose a
// title plus ten numbered slots; see internal/notify.
type NotifyConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	EmailTemplateID string `yaml:"email_template_id"`
	SmsTemplateID   string `yaml:"sms_template_id"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type ScheduleConfig struct {
	SendSpec string `yaml:"send_spec"` // cron spec for the send job
}

type QueryConfig struct {
	DefaultMonths int `yaml:"default_months"` // month window for history queries
}

type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	MQ       MQConfig       `yaml:"mq"`
	Redis    RedisConfig    `yaml:"redis"`
	Notify   NotifyConfig   `yaml:"notify"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Query    QueryConfig    `yaml:"query"`
	Server   ServerConfig   `yaml:"server"`
}

// Load reads the YAML config file (CONFIG_FILE env, default config/config.yaml)
// and applies environment variable overrides on top.
func Load() (*Config, error) {
	path := GetEnv("CONFIG_FILE", "config/config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideNotifyFromEnv(&cfg.Notify)

	if cfg.Schedule.SendSpec == "" {
		cfg.Schedule.SendSpec = "*/15 * * * *"
	}
	if cfg.Query.DefaultMonths == 0 {
		cfg.Query.DefaultMonths = 3
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}

	return &cfg, nil
}

func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideNotifyFromEnv(cfg *NotifyConfig) {
	if url := os.Getenv("NOTIFY_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if key := os.Getenv("NOTIFY_API_KEY"); key != "" {
		cfg.APIKey = key
	}
}

// GetEnv returns an environment variable or the default when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
