package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// APIKeyHeader carries the assistant service shared secret.
const APIKeyHeader = "X-Api-Key"

// TargetResolver turns stored target references into URLs.
type TargetResolver interface {
	Resolve(ref string) (string, error)
	ResolveOptional(ref string) (string, error)
}

// FailureHandler receives every failed delivery.
type FailureHandler interface {
	Handle(ctx context.Context, errText string, kind domain.WebhookKind, payload map[string]any) bool
}

type ClientConfig struct {
	// AssistantBaseURL is a reference to the assistant service webhook URL.
	// Blank means the assistant integration is not configured.
	AssistantBaseURL string
	// AssistantAPIKey is a reference to the shared secret, e.g. "ENV:ASSISTANT_API_KEY".
	AssistantAPIKey string
	Timeout         time.Duration
}

// Client performs exactly one delivery attempt per command.
type Client struct {
	client   *http.Client
	resolver TargetResolver
	failures FailureHandler // optional
	cfg      ClientConfig
}

func NewClient(resolver TargetResolver, failures FailureHandler, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:   &http.Client{CheckRedirect: noRedirect},
		resolver: resolver,
		failures: failures,
		cfg:      cfg,
	}
}

// WithHTTPClient replaces the underlying HTTP client. Redirects are still
// not followed unless hc sets its own CheckRedirect.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *hc
	if cp.CheckRedirect == nil {
		cp.CheckRedirect = noRedirect
	}
	c.client = &cp
	return c
}

// noRedirect makes a 3xx the final response. A redirect is a failed
// delivery and must not carry the API key to another host.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Deliver sends cmd once. Configuration problems are returned as errors and
// nothing is sent. Transport errors and non-2xx responses are never returned
// as errors: they come back as a failed Outcome after the failure handler
// has seen them.
func (c *Client) Deliver(ctx context.Context, cmd domain.DispatchCommand) (domain.Outcome, error) {
	url, err := c.resolver.Resolve(cmd.Target)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("resolve target: %w", err)
	}

	apiKey, err := c.apiKeyFor(cmd.Kind, url)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("resolve api key: %w", err)
	}

	outcome := c.post(ctx, url, apiKey, cmd.Payload)
	if outcome.Success() {
		return outcome, nil
	}

	log.Printf("dispatcher: webhook failed kind=%s url=%s event=%s: %s", cmd.Kind, url, cmd.Event(), outcome.Err)
	if c.failures != nil {
		c.failures.Handle(ctx, outcome.Err, cmd.Kind, cmd.Payload)
	}
	return outcome, nil
}

// apiKeyFor returns the shared secret when the request goes to the assistant
// service, and "" otherwise. The key is only sent to URLs under the
// configured assistant base URL.
func (c *Client) apiKeyFor(kind domain.WebhookKind, url string) (string, error) {
	if kind != domain.KindAssistantWebhook {
		return "", nil
	}

	base, err := c.resolver.ResolveOptional(c.cfg.AssistantBaseURL)
	if err != nil {
		return "", err
	}
	if base == "" || !strings.HasPrefix(url, base) {
		return "", nil
	}

	return c.resolver.Resolve(c.cfg.AssistantAPIKey)
}

func (c *Client) post(ctx context.Context, url, apiKey string, payload map[string]any) domain.Outcome {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Outcome{Err: fmt.Sprintf("marshal: %v", err), Duration: time.Since(start)}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Outcome{Err: fmt.Sprintf("create request: %v", err), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Outcome{Err: fmt.Sprintf("timeout after %s", c.cfg.Timeout), Duration: time.Since(start)}
		}
		return domain.Outcome{Err: fmt.Sprintf("send: %v", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	outcome := domain.Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome.Err = resp.Status
		if outcome.Err == "" {
			outcome.Err = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
	}
	return outcome
}
