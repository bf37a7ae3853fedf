package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/resolver"
)

var validate = validator.New()

func validateDispatch(req DispatchRequest) (domain.DispatchCommand, domain.Priority, error) {
	if err := validate.Struct(req); err != nil {
		return domain.DispatchCommand{}, "", err
	}

	kind, err := domain.ParseWebhookKind(req.Kind)
	if err != nil {
		return domain.DispatchCommand{}, "", err
	}
	// Assistant deliveries carry the assistant API key and are produced by
	// the listener only.
	if kind == domain.KindAssistantWebhook {
		return domain.DispatchCommand{}, "", fmt.Errorf("kind %s cannot be dispatched directly", kind)
	}

	if domain.PayloadEvent(req.Payload) == "" {
		return domain.DispatchCommand{}, "", fmt.Errorf("payload.event is required")
	}

	target := strings.TrimSpace(req.Target)
	if !strings.HasPrefix(target, resolver.Prefix) {
		if err := validateWebhookURL(target); err != nil {
			return domain.DispatchCommand{}, "", fmt.Errorf("invalid target: %w", err)
		}
	} else if strings.TrimSpace(strings.TrimPrefix(target, resolver.Prefix)) == "" {
		return domain.DispatchCommand{}, "", fmt.Errorf("invalid target: empty %s reference", resolver.Prefix)
	}

	priority := domain.Priority(req.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}

	return domain.DispatchCommand{Target: target, Payload: req.Payload, Kind: kind}, priority, nil
}

func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
