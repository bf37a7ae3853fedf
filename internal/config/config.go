package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

const (
	DispatchModeChannel = "channel"
	DispatchModeRedis   = "redis"

	// DefaultAssistantAPIKeyRef points the API key at the environment.
	DefaultAssistantAPIKeyRef = "ENV:ASSISTANT_API_KEY"

	// DefaultIngestAPIKeyRef names the key callers of the HTTP API present.
	DefaultIngestAPIKeyRef = "ENV:INBOXHOOKS_API_KEY"
)

// Config holds all configuration for the inboxhooks service.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// IngestAPIKeyRef resolves to the X-Api-Key value the HTTP API requires.
	// It must resolve at startup.
	IngestAPIKeyRef string `json:"ingest_api_key_ref"`

	// AMQP ingestion is disabled when AMQPURL is empty.
	AMQPURL      string `json:"amqp_url,omitempty"`
	AMQPExchange string `json:"amqp_exchange"`
	AMQPQueue    string `json:"amqp_queue"`

	// AssistantWebhookURL is the fallback outgoing URL for the assistant and
	// the base URL that decides when the API key header is sent. Either may
	// be an ENV:NAME reference.
	AssistantWebhookURL string `json:"assistant_webhook_url,omitempty"`
	AssistantAPIKeyRef  string `json:"assistant_api_key_ref"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	WebhookTimeout            time.Duration `json:"-"`
	WebhookTimeoutStr         string        `json:"webhook_timeout"`
	HTTPShutdownTimeout       time.Duration `json:"-"`
	HTTPShutdownTimeoutStr    string        `json:"http_shutdown_timeout"`
	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// DispatchMode: "channel" (in-memory) or "redis" (priority lists, survives restarts).
	DispatchMode      string `json:"dispatch_mode"`
	DispatcherWorkers int    `json:"dispatcher_workers"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		AMQPURL:                   os.Getenv("AMQP_URL"),
		AMQPExchange:              os.Getenv("AMQP_EXCHANGE"),
		AMQPQueue:                 os.Getenv("AMQP_QUEUE"),
		AssistantWebhookURL:       strings.TrimSpace(os.Getenv("ASSISTANT_WEBHOOK_URL")),
		AssistantAPIKeyRef:        strings.TrimSpace(os.Getenv("ASSISTANT_API_KEY_REF")),
		IngestAPIKeyRef:           strings.TrimSpace(os.Getenv("INGEST_API_KEY_REF")),
		DBOpTimeoutStr:            os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:      os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:      os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		WebhookTimeoutStr:         os.Getenv("WEBHOOK_TIMEOUT"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DispatcherDrainTimeoutStr: os.Getenv("DISPATCHER_DRAIN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		DispatchMode:              os.Getenv("DISPATCH_MODE"),
	}

	cfg.EventBusBufferSize = positiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.DispatcherWorkers = positiveInt("DISPATCHER_WORKERS", 4)
	cfg.DBMaxOpenConns = positiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = positiveInt("DB_MAX_IDLE_CONNS", 5)

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DispatchMode == "" {
		cfg.DispatchMode = DispatchModeChannel
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "inbox.events"
	}
	if cfg.AMQPQueue == "" {
		cfg.AMQPQueue = "inboxhooks.assistant"
	}
	if cfg.AssistantAPIKeyRef == "" {
		cfg.AssistantAPIKeyRef = DefaultAssistantAPIKeyRef
	}
	if cfg.IngestAPIKeyRef == "" {
		cfg.IngestAPIKeyRef = DefaultIngestAPIKeyRef
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}

	defaultStr(&cfg.DBOpTimeoutStr, "5s")
	defaultStr(&cfg.DBConnMaxLifetimeStr, "30m")
	defaultStr(&cfg.DBConnMaxIdleTimeStr, "5m")
	defaultStr(&cfg.WebhookTimeoutStr, "5s")
	defaultStr(&cfg.HTTPShutdownTimeoutStr, "10s")
	defaultStr(&cfg.DispatcherDrainTimeoutStr, "30s")

	// Parse durations; validation is handled separately by Validate().
	parseDuration(cfg.DBOpTimeoutStr, &cfg.DBOpTimeout)
	parseDuration(cfg.DBConnMaxLifetimeStr, &cfg.DBConnMaxLifetime)
	parseDuration(cfg.DBConnMaxIdleTimeStr, &cfg.DBConnMaxIdleTime)
	parseDuration(cfg.WebhookTimeoutStr, &cfg.WebhookTimeout)
	parseDuration(cfg.HTTPShutdownTimeoutStr, &cfg.HTTPShutdownTimeout)
	parseDuration(cfg.DispatcherDrainTimeoutStr, &cfg.DispatcherDrainTimeout)

	return cfg
}

func positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

func defaultStr(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

func parseDuration(s string, out *time.Duration) {
	if d, err := time.ParseDuration(s); err == nil {
		*out = d
	}
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	masked.AMQPURL = maskSecret(c.AMQPURL)
	masked.AssistantWebhookURL = maskReference(c.AssistantWebhookURL)
	masked.AssistantAPIKeyRef = maskReference(c.AssistantAPIKeyRef)
	masked.IngestAPIKeyRef = maskReference(c.IngestAPIKeyRef)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "amqp://", "amqps://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}

// maskReference keeps ENV: references readable since they name a variable,
// not a value. Literal values are masked.
func maskReference(s string) string {
	if s == "" || strings.HasPrefix(s, "ENV:") {
		return s
	}
	return maskSecret(s)
}
