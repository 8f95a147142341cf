package provider

import (
	"context"
	"fmt"
	"strings"
)

// Mock provides deterministic local replies when no real provider is
// configured.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (p *Mock) Name() string { return "mock" }

func (p *Mock) Complete(ctx context.Context, messages []Message, _ Params) (string, error) {
	select {
	case <-ctx.Done():
		return "", wrapTransport(ctx.Err())
	default:
	}

	var lastUser string
	for _, m := range messages {
		if m.Role == RoleUser {
			lastUser = m.Content
		}
	}
	lastUser = strings.TrimSpace(lastUser)
	if lastUser == "" {
		return "I am not sure what you are asking.", nil
	}
	return fmt.Sprintf("I think I follow. About %q: it seems reasonable to me, though I would want to try it myself first.", firstWords(lastUser, 8)), nil
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ") + "..."
}
