package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	for _, d := range []struct {
		field string
		value string
	}{
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr},
		{"DB_CONN_MAX_IDLE_TIME", cfg.DBConnMaxIdleTimeStr},
		{"WEBHOOK_TIMEOUT", cfg.WebhookTimeoutStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"DISPATCHER_DRAIN_TIMEOUT", cfg.DispatcherDrainTimeoutStr},
	} {
		if err := validatePositiveDuration(d.value); err != "" {
			errs = append(errs, ValidationError{Field: d.field, Message: err})
		}
	}

	switch cfg.DispatchMode {
	case "", DispatchModeChannel:
	case DispatchModeRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, ValidationError{
				Field:   "REDIS_ADDR",
				Message: "required when DISPATCH_MODE=redis",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "DISPATCH_MODE",
			Message: fmt.Sprintf("must be 'channel' or 'redis', got %q", cfg.DispatchMode),
		})
	}

	if cfg.AssistantWebhookURL != "" && !strings.HasPrefix(cfg.AssistantWebhookURL, "ENV:") {
		if u, err := url.Parse(cfg.AssistantWebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "ASSISTANT_WEBHOOK_URL",
				Message: "must be an http(s) URL or an ENV: reference",
			})
		}
	}

	if cfg.AMQPURL != "" && cfg.AMQPExchange == "" {
		errs = append(errs, ValidationError{
			Field:   "AMQP_EXCHANGE",
			Message: "required when AMQP_URL is set",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validatePositiveDuration returns an error message, or "" if s is empty or valid.
func validatePositiveDuration(s string) string {
	if s == "" {
		return ""
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Sprintf("invalid duration: %v", err)
	}
	if d <= 0 {
		return "must be positive"
	}
	return ""
}
