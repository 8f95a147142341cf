package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered prompt sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Params are the sampling controls for a completion call.
type Params struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// DefaultParams returns the tuned persona-chat sampling defaults.
func DefaultParams() Params {
	return Params{
		Temperature:      0.8,
		MaxTokens:        300,
		TopP:             0.9,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.3,
	}
}

func (p Params) normalized() Params {
	d := DefaultParams()
	if p.Temperature <= 0 {
		p.Temperature = d.Temperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.MaxTokens
	}
	if p.TopP <= 0 {
		p.TopP = d.TopP
	}
	return p
}

// Provider produces one chat completion. Implementations normalize every
// failure into *Error so callers never branch on vendor identity. The
// gateway performs no retries; retry budget belongs to the caller.
type Provider interface {
	Complete(ctx context.Context, messages []Message, params Params) (string, error)
	Name() string
}

// Config controls provider construction. The selection happens once at
// startup; nothing else in the system branches on the provider kind.
type Config struct {
	Kind             string
	Timeout          time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
}

func New(cfg Config) (Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = "mock"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch kind {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAI(client, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropic(client, cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Kind)
	}
}
