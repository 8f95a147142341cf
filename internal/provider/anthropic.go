package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Anthropic calls the messages endpoint. The system prompt travels in the
// top-level system field rather than as a message, so the gateway splits it
// out of the ordered message list here.
type Anthropic struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewAnthropic(client *http.Client, baseURL, apiKey, model string) *Anthropic {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if strings.TrimSpace(model) == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{client: client, baseURL: baseURL, apiKey: apiKey, model: model}
}

func (p *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Anthropic) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	params = params.normalized()
	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			if reqBody.System == "" {
				reqBody.System = m.Content
			} else {
				reqBody.System += "\n\n" + m.Content
			}
			continue
		}
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", wrapMalformed(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", wrapTransport(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", wrapTransport(ctx.Err())
		}
		return "", wrapTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", wrapTransport(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", wrapStatus(resp.StatusCode, truncateDetail(body))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", wrapMalformed(err)
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", wrapMalformed(fmt.Errorf("response has no text content"))
	}
	return text, nil
}
