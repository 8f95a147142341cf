package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/simonepiga/synthpanel/internal/config"
	"github.com/simonepiga/synthpanel/internal/convo"
	"github.com/simonepiga/synthpanel/internal/observability"
	"github.com/simonepiga/synthpanel/internal/orchestrator"
	"github.com/simonepiga/synthpanel/internal/persona"
	"github.com/simonepiga/synthpanel/internal/stream"
)

// Orchestrator is the fan-out entry point the server dispatches to.
type Orchestrator interface {
	HandleMessage(ctx context.Context, conversationID string, msg orchestrator.UserMessage) (*orchestrator.Result, error)
}

type Server struct {
	cfg      config.Config
	agents   persona.Store
	convos   convo.Store
	orch     Orchestrator
	streams  *stream.Registry
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(
	cfg config.Config,
	agents persona.Store,
	convos convo.Store,
	orch Orchestrator,
	streams *stream.Registry,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		agents:  agents,
		convos:  convos,
		orch:    orch,
		streams: streams,
		metrics: metrics,
		stages:  stages,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so a foreign page cannot attach to a panel
				// stream if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/agents", s.handleCreateAgent)
	r.Post("/v1/agents/from-signals", s.handleCreateAgentFromSignals)
	r.Get("/v1/agents", s.handleListAgents)
	r.Get("/v1/agents/{id}", s.handleGetAgent)
	r.Delete("/v1/agents/{id}", s.handleArchiveAgent)

	r.Post("/v1/conversations", s.handleCreateConversation)
	r.Post("/v1/conversations/{id}/messages", s.handlePostMessage)
	r.Get("/v1/conversations/{id}/ws", s.handleConversationWS)
	r.Post("/v1/conversations/{id}/close", s.handleCloseConversation)
	r.Get("/v1/conversations/{id}/turns", s.handleListTurns)

	r.Get("/v1/stats/pipeline", s.handlePipelineStats)
	r.Post("/v1/stats/pipeline/reset", s.handlePipelineStatsReset)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.cfg.LLMProvider,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.agents.List(r.Context(), false); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type createAgentRequest struct {
	Name       string                   `json:"name"`
	Occupation string                   `json:"occupation"`
	Location   string                   `json:"location"`
	Voice      persona.VoiceProfile     `json:"voice"`
	Cognitive  persona.CognitiveProfile `json:"cognitive"`
	Emotional  persona.EmotionalProfile `json:"emotional"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a, err := persona.New(req.Name, req.Occupation, req.Location, req.Voice, req.Cognitive, req.Emotional)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_agent", err.Error())
		return
	}
	if err := s.agents.Create(r.Context(), a); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.log.Info("agent created", zap.String("agent_id", a.ID), zap.String("name", a.Name))
	respondJSON(w, http.StatusCreated, a)
}

type createAgentFromSignalsRequest struct {
	Name       string          `json:"name"`
	Occupation string          `json:"occupation"`
	Location   string          `json:"location"`
	Signals    json.RawMessage `json:"signals"`
}

func (s *Server) handleCreateAgentFromSignals(w http.ResponseWriter, r *http.Request) {
	var req createAgentFromSignalsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Signals) == 0 {
		respondError(w, http.StatusBadRequest, "missing_signals", "signals payload is required")
		return
	}
	signals, err := persona.ParseSignals(req.Signals)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_signals", err.Error())
		return
	}
	a, err := persona.FromSignals(req.Name, req.Occupation, req.Location, signals)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_agent", err.Error())
		return
	}
	if err := s.agents.Create(r.Context(), a); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.log.Info("agent created from signals", zap.String("agent_id", a.ID), zap.String("name", a.Name))
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	list, err := s.agents.List(r.Context(), includeArchived)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleArchiveAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.agents.Archive(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	s.log.Info("agent archived", zap.String("agent_id", id))
	respondJSON(w, http.StatusOK, map[string]any{"status": "archived", "agent_id": id})
}

type createConversationRequest struct {
	AgentIDs []string `json:"agent_ids"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.AgentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "missing_agents", "agent_ids is required")
		return
	}
	for _, id := range req.AgentIDs {
		a, err := s.agents.Get(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusNotFound, "agent_not_found", id)
			return
		}
		if a.Archived {
			respondError(w, http.StatusBadRequest, "agent_archived", id)
			return
		}
	}
	c, err := s.convos.CreateConversation(r.Context(), req.AgentIDs)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	s.log.Info("conversation created",
		zap.String("conversation_id", c.ID),
		zap.Int("participants", len(c.AgentIDs)),
	)
	respondJSON(w, http.StatusCreated, c)
}

type postMessageRequest struct {
	Text       string   `json:"text"`
	AgentIDs   []string `json:"agent_ids,omitempty"`
	ContextRef string   `json:"context_ref,omitempty"`
}

// handlePostMessage validates synchronously and fans out in the background.
// Replies arrive on the conversation's websocket stream, not in this
// response.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "text is required")
		return
	}
	c, err := s.convos.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if c.Status != convo.StatusOpen {
		respondError(w, http.StatusConflict, "conversation_closed", id)
		return
	}

	go func() {
		res, err := s.orch.HandleMessage(context.Background(), id, orchestrator.UserMessage{
			Text:       req.Text,
			TargetIDs:  req.AgentIDs,
			ContextRef: req.ContextRef,
		})
		if err != nil {
			s.log.Warn("fan-out round rejected", zap.String("conversation_id", id), zap.Error(err))
			return
		}
		if res.Failed() > 0 || len(res.InvalidAgents) > 0 {
			s.log.Warn("fan-out round partial",
				zap.String("conversation_id", id),
				zap.Int("succeeded", res.Succeeded()),
				zap.Int("failed", res.Failed()),
				zap.Strings("invalid_agents", res.InvalidAgents),
			)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":          "accepted",
		"conversation_id": id,
	})
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.convos.CloseConversation(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	s.streams.Publish(id, stream.SessionClosed(id))
	s.log.Info("conversation closed", zap.String("conversation_id", id))
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	turns, err := s.convos.Turns(r.Context(), id, limit, offset)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"limit":           limit,
		"offset":          offset,
		"turns":           turns,
	})
}

func (s *Server) handlePipelineStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.stages.Snapshot())
}

func (s *Server) handlePipelineStatsReset(w http.ResponseWriter, _ *http.Request) {
	s.stages.Reset()
	s.log.Info("pipeline stats window reset")
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, convo.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
	case errors.Is(err, persona.ErrNotFound):
		respondError(w, http.StatusNotFound, "agent_not_found", err.Error())
	case errors.Is(err, convo.ErrConversationClosed):
		respondError(w, http.StatusConflict, "conversation_closed", err.Error())
	case errors.Is(err, convo.ErrNotParticipant):
		respondError(w, http.StatusBadRequest, "not_a_participant", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
