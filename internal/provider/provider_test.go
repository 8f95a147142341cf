package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSelectsByConfig(t *testing.T) {
	p, err := New(Config{Kind: "mock"})
	if err != nil {
		t.Fatalf("New(mock) error = %v", err)
	}
	if p.Name() != "mock" {
		t.Fatalf("Name() = %q, want mock", p.Name())
	}

	if _, err := New(Config{Kind: "openai"}); err == nil {
		t.Fatalf("New(openai) without key should fail")
	}
	if _, err := New(Config{Kind: "anthropic"}); err == nil {
		t.Fatalf("New(anthropic) without key should fail")
	}
	if _, err := New(Config{Kind: "carrier-pigeon"}); err == nil {
		t.Fatalf("New() should reject unknown provider kinds")
	}
}

func TestOpenAICompleteParsesChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  sounds useful to me  "}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.Client(), srv.URL, "k", "gpt-4o-mini")
	text, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Params{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "sounds useful to me" {
		t.Fatalf("text = %q", text)
	}
}

func TestOpenAINormalizesStatusErrors(t *testing.T) {
	cases := []struct {
		status    int
		code      string
		retryable bool
	}{
		{429, CodeRateLimited, true},
		{500, CodeUpstream, true},
		{503, CodeUpstream, true},
		{401, CodeBadRequest, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		p := NewOpenAI(srv.Client(), srv.URL, "k", "")
		_, err := p.Complete(context.Background(), nil, Params{})
		srv.Close()
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: error %T is not *Error", tc.status, err)
		}
		if pe.Code != tc.code {
			t.Fatalf("status %d: code = %q, want %q", tc.status, pe.Code, tc.code)
		}
		if IsRetryable(err) != tc.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tc.status, IsRetryable(err), tc.retryable)
		}
	}
}

func TestOpenAIMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.Client(), srv.URL, "k", "")
	_, err := p.Complete(context.Background(), nil, Params{})
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != CodeMalformed {
		t.Fatalf("error = %v, want malformed_response", err)
	}
	if IsRetryable(err) {
		t.Fatalf("malformed responses must not be retryable")
	}
}

func TestAnthropicSplitsSystemMessage(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"fine by me"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropic(srv.Client(), srv.URL, "k", "")
	msgs := []Message{
		{Role: RoleSystem, Content: "stay in character"},
		{Role: RoleUser, Content: "what do you think?"},
	}
	text, err := p.Complete(context.Background(), msgs, Params{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "fine by me" {
		t.Fatalf("text = %q", text)
	}
	if !strings.Contains(gotBody, `"system":"stay in character"`) {
		t.Fatalf("system prompt not lifted to top-level field: %s", gotBody)
	}
	if strings.Contains(gotBody, `"role":"system"`) {
		t.Fatalf("system role must not appear in the messages array: %s", gotBody)
	}
}

func TestCompleteTimeoutNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOpenAI(srv.Client(), srv.URL, "k", "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Complete(ctx, nil, Params{})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *Error", err)
	}
	if pe.Code != CodeTimeout {
		t.Fatalf("code = %q, want %q", pe.Code, CodeTimeout)
	}
}

func TestMockIsDeterministic(t *testing.T) {
	p := NewMock()
	msgs := []Message{{Role: RoleUser, Content: "would you pay for this?"}}
	a, err := p.Complete(context.Background(), msgs, Params{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	b, err := p.Complete(context.Background(), msgs, Params{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if a != b {
		t.Fatalf("mock replies differ: %q vs %q", a, b)
	}
}
