package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

type Config struct {
	AppHost  string `yaml:"app_host"`
	HTTPPort string `yaml:"http_port"`
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	DB struct {
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
		// Path: файл базы для driver=sqlite.
		Path string `yaml:"path"`
	} `yaml:"db"`

	// LLM: классификатор тикетов. Пустой APIKey отключает классификацию, это не ошибка.
	LLM struct {
		Provider string        `yaml:"provider"`
		APIKey   string        `yaml:"api_key"`
		Model    string        `yaml:"model"`
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Events struct {
		KafkaBrokers     []string `yaml:"kafka_brokers"`
		KafkaTopicTicket string   `yaml:"kafka_topic_ticket"`
		RabbitMQURL      string   `yaml:"rabbitmq_url"`
		RabbitMQExchange string   `yaml:"rabbitmq_exchange"`
		// WebhookURL: если задан, события тикетов отправляются POST-запросом на этот адрес.
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"events"`

	Redis struct {
		Addr           string        `yaml:"addr"`
		Password       string        `yaml:"password"`
		DB             int           `yaml:"db"`
		IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	} `yaml:"redis"`
}

func defaults() *Config {
	cfg := &Config{
		AppHost:  "0.0.0.0",
		HTTPPort: "8097",
		AppEnv:   "development",
		LogLevel: "info",
	}
	cfg.DB.Driver = DriverPostgres
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "5432"
	cfg.DB.User = "postgres"
	cfg.DB.Password = "postgres"
	cfg.DB.Database = "support_tickets"
	cfg.DB.SSLMode = "disable"
	cfg.DB.Path = "support_tickets.db"
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.Timeout = 30 * time.Second
	cfg.Events.KafkaTopicTicket = "ticket-events"
	cfg.Events.RabbitMQExchange = "ticket.events"
	cfg.Redis.IdempotencyTTL = 24 * time.Hour
	return cfg
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (CONFIG_FILE или ./config.yaml, если есть), затем переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := defaults()
	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	cfg.AppHost = getEnv("APP_HOST", cfg.AppHost)
	cfg.HTTPPort = firstEnv("APP_PORT", "HTTP_PORT", cfg.HTTPPort)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", cfg.DB.Driver))
	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnv("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Database = getEnv("DB_DATABASE", cfg.DB.Database)
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.Path = getEnv("DB_PATH", cfg.DB.Path)

	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Timeout = getDuration("LLM_TIMEOUT", cfg.LLM.Timeout)
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel(cfg.LLM.Provider)
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = ParseList(v)
	}
	cfg.Events.KafkaTopicTicket = getEnv("KAFKA_TOPIC_TICKET", cfg.Events.KafkaTopicTicket)
	cfg.Events.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.Events.RabbitMQURL)
	cfg.Events.RabbitMQExchange = getEnv("RABBITMQ_EXCHANGE", cfg.Events.RabbitMQExchange)
	cfg.Events.WebhookURL = getEnv("EVENTS_WEBHOOK_URL", cfg.Events.WebhookURL)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.IdempotencyTTL = getDuration("IDEMPOTENCY_TTL", cfg.Redis.IdempotencyTTL)
	return cfg, nil
}

func loadFile(cfg *Config) error {
	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	slog.Info("config: loaded file", "path", path)
	return nil
}

func defaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultOpenAIModel
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return errors.New("config: DB_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.LLM.Provider != ProviderOpenAI && c.LLM.Provider != ProviderAnthropic {
		return fmt.Errorf("config: unsupported LLM_PROVIDER %q (openai, anthropic)", c.LLM.Provider)
	}
	return nil
}

func (c *Config) DSN() string {
	if c.DB.Driver == DriverSQLite {
		return c.DB.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// ParseList разбивает строку "a,b , c" на непустые элементы.
func ParseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
