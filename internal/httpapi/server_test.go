package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/simonepiga/synthpanel/internal/behavior"
	"github.com/simonepiga/synthpanel/internal/config"
	"github.com/simonepiga/synthpanel/internal/convo"
	"github.com/simonepiga/synthpanel/internal/observability"
	"github.com/simonepiga/synthpanel/internal/orchestrator"
	"github.com/simonepiga/synthpanel/internal/persona"
	"github.com/simonepiga/synthpanel/internal/provider"
	"github.com/simonepiga/synthpanel/internal/stream"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *observability.Metrics
)

func metricsForTest() *observability.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = observability.NewMetrics("httpapi_test")
	})
	return testMetrics
}

func newTestServer(t *testing.T) (*httptest.Server, persona.Store, convo.Store) {
	t.Helper()
	cfg := config.Config{
		LLMProvider:     "mock",
		AllowAnyOrigin:  true,
		FanoutDeadline:  10 * time.Second,
		HistoryLimit:    20,
		StreamQueueSize: 64,
	}
	agents := persona.NewInMemoryStore()
	convos := convo.NewInMemoryStore()
	streams := stream.NewRegistry(cfg.StreamQueueSize)
	metrics := metricsForTest()
	stages := observability.NewStageWindow(64)
	orch := orchestrator.New(
		agents, convos, provider.NewMock(),
		behavior.NewEngine(nil, behavior.AllToggles()),
		streams, metrics, stages, zap.NewNop(),
		orchestrator.Config{FanoutDeadline: cfg.FanoutDeadline, HistoryLimit: cfg.HistoryLimit},
	)
	srv := New(cfg, agents, convos, orch, streams, metrics, stages, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, agents, convos
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createAgentViaAPI(t *testing.T, ts *httptest.Server, name string) persona.Agent {
	t.Helper()
	resp := postJSON(t, ts.URL+"/v1/agents", map[string]any{
		"name":       name,
		"occupation": "Product designer",
		"location":   "Turin",
		"cognitive":  map[string]any{"comprehension_speed": "fast", "patience": 2},
		"emotional":  map[string]any{"baseline": "enthusiastic"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create agent status = %d, want 201", resp.StatusCode)
	}
	var a persona.Agent
	decodeBody(t, resp, &a)
	if a.ID == "" || a.SystemPrompt == "" {
		t.Fatalf("agent = %+v, want id and compiled prompt", a)
	}
	return a
}

func TestAgentLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t)
	a := createAgentViaAPI(t, ts, "Dana")

	resp, err := http.Get(ts.URL + "/v1/agents/" + a.ID)
	if err != nil {
		t.Fatalf("GET agent: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get agent status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/agents/"+a.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE agent: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(ts.URL + "/v1/agents")
	var list struct {
		Agents []persona.Agent `json:"agents"`
	}
	decodeBody(t, resp, &list)
	if len(list.Agents) != 0 {
		t.Fatalf("default list = %d agents, want archived hidden", len(list.Agents))
	}

	resp, _ = http.Get(ts.URL + "/v1/agents?include_archived=true")
	decodeBody(t, resp, &list)
	if len(list.Agents) != 1 || !list.Agents[0].Archived {
		t.Fatalf("archived list = %+v, want one archived agent", list.Agents)
	}

	resp, _ = http.Get(ts.URL + "/v1/agents/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown agent status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateAgentFromSignals(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/agents/from-signals", map[string]any{
		"name":       "Marco",
		"occupation": "Accountant",
		"location":   "Bari",
		"signals": map[string]any{
			"speech_patterns": map[string]any{
				"sentence_length": "short",
				"filler_words":    []string{"well"},
			},
			"cognitive_profile": map[string]any{
				"comprehension_speed": "not-a-speed",
				"patience":            14,
			},
			"emotional_profile": map[string]any{
				"baseline": "anxious",
			},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("from-signals status = %d, want 201", resp.StatusCode)
	}
	var a persona.Agent
	decodeBody(t, resp, &a)
	if a.Cognitive.ComprehensionSpeed != persona.ComprehensionMedium {
		t.Fatalf("unknown speed mapped to %q, want default medium", a.Cognitive.ComprehensionSpeed)
	}
	if a.Cognitive.Patience != 10 {
		t.Fatalf("patience = %d, want clamped 10", a.Cognitive.Patience)
	}
	if a.Emotional.Baseline != persona.BaselineAnxious {
		t.Fatalf("baseline = %q, want anxious", a.Emotional.Baseline)
	}

	resp = postJSON(t, ts.URL+"/v1/agents/from-signals", map[string]any{"name": "NoSignals"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing signals status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)
	a := createAgentViaAPI(t, ts, "Dana")

	resp := postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{"ghost"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown participant status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{a.ID}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d, want 201", resp.StatusCode)
	}
	var c convo.Conversation
	decodeBody(t, resp, &c)

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/messages", map[string]any{"text": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/conversations/ghost/messages", map[string]any{"text": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown conversation status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/close", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/messages", map[string]any{"text": "hi"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("closed conversation status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGroupConversationOverStream(t *testing.T) {
	ts, _, _ := newTestServer(t)
	a1 := createAgentViaAPI(t, ts, "Dana")
	a2 := createAgentViaAPI(t, ts, "Marco")

	resp := postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{a1.ID, a2.ID}})
	var c convo.Conversation
	decodeBody(t, resp, &c)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/conversations/" + c.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	var ready stream.Event
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Type != stream.TypeReady {
		t.Fatalf("first event = %q, want ready", ready.Type)
	}

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/messages", map[string]any{
		"text": "Walk me through your first impression.",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("post message status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()

	// Collect events until both agents delivered their message.
	firstEvent := make(map[string]stream.EventType)
	messages := make(map[string]stream.Event)
	deadline := time.Now().Add(20 * time.Second)
	for len(messages) < 2 {
		_ = conn.SetReadDeadline(deadline)
		var e stream.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read event: %v (got %d messages)", err, len(messages))
		}
		if e.AgentID == "" {
			continue
		}
		if _, seen := firstEvent[e.AgentID]; !seen {
			firstEvent[e.AgentID] = e.Type
		}
		if e.Type == stream.TypeMessage {
			messages[e.AgentID] = e
		}
	}

	for _, id := range []string{a1.ID, a2.ID} {
		if firstEvent[id] != stream.TypeTypingStart {
			t.Fatalf("agent %s first event = %q, want typing_start before message", id, firstEvent[id])
		}
		m := messages[id]
		if m.Content == "" || m.DelayMS < behavior.DelayFloor.Milliseconds() {
			t.Fatalf("agent %s message = %+v, want content and delay", id, m)
		}
	}

	// Replies are persisted and readable through the turn log.
	resp, err = http.Get(ts.URL + "/v1/conversations/" + c.ID + "/turns?limit=10")
	if err != nil {
		t.Fatalf("GET turns: %v", err)
	}
	var page struct {
		Turns []convo.Turn `json:"turns"`
	}
	decodeBody(t, resp, &page)
	if len(page.Turns) != 3 {
		t.Fatalf("turn log = %d entries, want user + 2 replies", len(page.Turns))
	}
}

func TestHealthAndStats(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/stats/pipeline"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestPipelineStatsReset(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/stats/pipeline/reset", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "reset" {
		t.Fatalf("reset body status = %q, want reset", body.Status)
	}
}

func TestPostMessageThreadsContextRef(t *testing.T) {
	ts, _, convos := newTestServer(t)
	a := createAgentViaAPI(t, ts, "Dana")
	resp := postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{a.ID}})
	var c convo.Conversation
	decodeBody(t, resp, &c)

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/messages", map[string]any{
		"text":        "This checkout flow is so frustrating",
		"context_ref": "screen:checkout-v2",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("post message status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()

	// The round runs in the background, so wait for the user turn to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		turns, err := convos.RecentTurns(context.Background(), c.ID, 5)
		if err == nil && len(turns) > 0 {
			if turns[0].ContextRef != "screen:checkout-v2" {
				t.Fatalf("user turn context_ref = %q, want screen:checkout-v2", turns[0].ContextRef)
			}
			if turns[0].Emotion == "" {
				t.Fatalf("user turn emotion empty, want a tag")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("user turn never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSUnknownConversation(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/conversations/ghost/ws")
	if err != nil {
		t.Fatalf("GET ws: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ws for unknown conversation status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCloseDeliversSessionClosed(t *testing.T) {
	ts, _, _ := newTestServer(t)
	a := createAgentViaAPI(t, ts, "Dana")
	resp := postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{a.ID}})
	var c convo.Conversation
	decodeBody(t, resp, &c)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/conversations/" + c.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	var ready stream.Event
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}

	resp = postJSON(t, ts.URL+"/v1/conversations/"+c.ID+"/close", nil)
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var closedEvt stream.Event
	if err := conn.ReadJSON(&closedEvt); err != nil {
		t.Fatalf("read session_closed: %v", err)
	}
	if closedEvt.Type != stream.TypeSessionClosed {
		t.Fatalf("event = %q, want session_closed", closedEvt.Type)
	}
	if closedEvt.ConversationID != c.ID {
		t.Fatalf("conversation id = %q, want %q", closedEvt.ConversationID, c.ID)
	}
}

func TestTurnsPaginationQuery(t *testing.T) {
	ts, _, convos := newTestServer(t)
	a := createAgentViaAPI(t, ts, "Dana")
	resp := postJSON(t, ts.URL+"/v1/conversations", map[string]any{"agent_ids": []string{a.ID}})
	var c convo.Conversation
	decodeBody(t, resp, &c)

	for i := 0; i < 5; i++ {
		if _, err := convos.AppendTurn(context.Background(), c.ID, convo.Turn{
			Author:  convo.AuthorUser,
			Content: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/conversations/" + c.ID + "/turns?limit=2&offset=1")
	if err != nil {
		t.Fatalf("GET turns: %v", err)
	}
	var page struct {
		Turns []convo.Turn `json:"turns"`
	}
	decodeBody(t, resp, &page)
	if len(page.Turns) != 2 || page.Turns[0].Content != "m1" || page.Turns[1].Content != "m2" {
		t.Fatalf("page = %+v, want m1,m2", page.Turns)
	}
}
