// Package classifier asks a language model to suggest a category and a
// priority for a ticket description. Any failure yields no suggestion.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/psds-microservice/support-ticket-service/internal/config"
	"github.com/psds-microservice/support-ticket-service/internal/model"
)

// UnavailableMessage is shown to the client when no suggestion could be made.
const UnavailableMessage = "LLM classification unavailable. Please select manually."

const (
	temperature = 0.1
	maxTokens   = 100
)

const (
	outcomeOK            = "ok"
	outcomeUnconfigured  = "unconfigured"
	outcomeProviderError = "provider_error"
	outcomeInvalidReply  = "invalid_reply"
)

var classifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "support_ticket_classifications_total",
	Help: "Ticket classification attempts by outcome.",
}, []string{"provider", "outcome"})

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type Suggestion struct {
	Category model.Category `json:"suggested_category"`
	Priority model.Priority `json:"suggested_priority"`
}

// completer sends one system+user exchange and returns the raw reply text.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

type Classifier struct {
	cfg Config
	llm completer
}

func New(cfg Config) *Classifier {
	if cfg.Provider == "" {
		cfg.Provider = config.ProviderOpenAI
	}
	c := &Classifier{cfg: cfg}
	if cfg.APIKey == "" {
		return c
	}
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c.llm = newAnthropicCompleter(cfg)
	default:
		c.llm = newOpenAICompleter(cfg)
	}
	return c
}

// Enabled reports whether a credential is configured.
func (c *Classifier) Enabled() bool {
	return c.llm != nil
}

// Classify returns nil whenever a valid suggestion cannot be produced.
// It never returns an error and never retries.
func (c *Classifier) Classify(ctx context.Context, description string) *Suggestion {
	if c.llm == nil {
		slog.Warn("classifier: LLM_API_KEY not set, classification disabled")
		classifications.WithLabelValues(c.cfg.Provider, outcomeUnconfigured).Inc()
		return nil
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := c.llm.complete(ctx, systemPrompt, userPrompt(description))
	if err != nil {
		slog.Error("classifier: provider call failed", "provider", c.cfg.Provider, "model", c.cfg.Model, "error", err)
		classifications.WithLabelValues(c.cfg.Provider, outcomeProviderError).Inc()
		return nil
	}
	s, err := parseReply(raw)
	if err != nil {
		slog.Warn("classifier: unusable reply", "provider", c.cfg.Provider, "reply", raw, "error", err)
		classifications.WithLabelValues(c.cfg.Provider, outcomeInvalidReply).Inc()
		return nil
	}
	slog.Debug("classifier: suggestion",
		"provider", c.cfg.Provider,
		"category", s.Category,
		"priority", s.Priority,
		"took", time.Since(start))
	classifications.WithLabelValues(c.cfg.Provider, outcomeOK).Inc()
	return s
}

// parseReply is strict: the trimmed reply must be a JSON object whose two
// fields are strings naming known values. Case is folded.
func parseReply(raw string) (*Suggestion, error) {
	var reply struct {
		Category *string `json:"suggested_category"`
		Priority *string `json:"suggested_priority"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Category == nil || reply.Priority == nil {
		return nil, fmt.Errorf("reply lacks suggested_category or suggested_priority")
	}
	cat := model.Category(strings.ToLower(*reply.Category))
	if !cat.Valid() {
		return nil, fmt.Errorf("unknown category %q", *reply.Category)
	}
	pri := model.Priority(strings.ToLower(*reply.Priority))
	if !pri.Valid() {
		return nil, fmt.Errorf("unknown priority %q", *reply.Priority)
	}
	return &Suggestion{Category: cat, Priority: pri}, nil
}
