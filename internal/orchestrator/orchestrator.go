package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simonepiga/synthpanel/internal/behavior"
	"github.com/simonepiga/synthpanel/internal/convo"
	"github.com/simonepiga/synthpanel/internal/emotion"
	"github.com/simonepiga/synthpanel/internal/observability"
	"github.com/simonepiga/synthpanel/internal/persona"
	"github.com/simonepiga/synthpanel/internal/provider"
	"github.com/simonepiga/synthpanel/internal/reliability"
	"github.com/simonepiga/synthpanel/internal/stream"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrNoTargets    = errors.New("no valid target agents")
)

// Config bounds one fan-out round.
type Config struct {
	FanoutDeadline time.Duration
	HistoryLimit   int
	RetryMax       int
	RetryBase      time.Duration
	RetryCap       time.Duration
}

func (c Config) withDefaults() Config {
	if c.FanoutDeadline <= 0 {
		c.FanoutDeadline = 30 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 250 * time.Millisecond
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 2 * time.Second
	}
	return c
}

// Orchestrator runs the reply fan-out: one pipeline goroutine per target
// agent, each isolated from its siblings, all racing a global deadline.
type Orchestrator struct {
	agents  persona.Store
	convos  convo.Store
	llm     provider.Provider
	engine  *behavior.Engine
	streams *stream.Registry
	metrics *observability.Metrics
	stages  *observability.StageWindow
	log     *zap.Logger
	cfg     Config
}

func New(
	agents persona.Store,
	convos convo.Store,
	llm provider.Provider,
	engine *behavior.Engine,
	streams *stream.Registry,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
	log *zap.Logger,
	cfg Config,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		agents:  agents,
		convos:  convos,
		llm:     llm,
		engine:  engine,
		streams: streams,
		metrics: metrics,
		stages:  stages,
		log:     log,
		cfg:     cfg.withDefaults(),
	}
}

type target struct {
	agent   persona.Agent
	history []convo.Turn
}

// UserMessage is one inbound panel message. ContextRef optionally points at
// the design artifact the user was reacting to (screen id, ticket, url).
type UserMessage struct {
	Text       string
	TargetIDs  []string
	ContextRef string
}

// HandleMessage appends the user turn and fans replies out to the target
// agents. TargetIDs nil or empty means every active participant; an explicit
// list is validated and unknown, archived, or non-participant ids are
// reported in Result.InvalidAgents rather than failing the round. The call
// blocks until every pipeline finished or the fan-out deadline passed;
// replies reach the panel stream as soon as each agent is ready.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID string, msg UserMessage) (*Result, error) {
	userText := strings.TrimSpace(msg.Text)
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := o.convos.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != convo.StatusOpen {
		return nil, convo.ErrConversationClosed
	}

	res := &Result{ConversationID: conversationID}
	valid := o.resolveTargets(ctx, conv, msg.TargetIDs, res)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoTargets, msg.TargetIDs)
	}

	start := time.Now()
	// The user's affect is tagged the same way agent replies are, so the
	// panel can color both sides of the transcript.
	if _, err := o.convos.AppendTurn(ctx, conversationID, convo.Turn{
		Author:     convo.AuthorUser,
		Content:    userText,
		Emotion:    string(emotion.Detect(userText, nil)),
		ContextRef: msg.ContextRef,
	}); err != nil {
		return nil, err
	}

	// Each agent's context is frozen here, before any pipeline starts, so
	// sibling replies from this round never leak into each other's prompts.
	dispatch := make([]target, 0, len(valid))
	for _, a := range valid {
		history, err := o.convos.AgentVisibleTurns(ctx, conversationID, a.ID, o.cfg.HistoryLimit)
		if err != nil {
			res.Failures = append(res.Failures, AgentFailure{AgentID: a.ID, AgentName: a.Name, Reason: "history_unavailable", Err: err})
			continue
		}
		dispatch = append(dispatch, target{agent: a, history: history})
	}

	o.metrics.FanoutTargets.Observe(float64(len(dispatch)))

	fanCtx, cancel := context.WithTimeout(ctx, o.cfg.FanoutDeadline)
	defer cancel()

	out := make(chan pipelineOutcome, len(dispatch))
	for _, t := range dispatch {
		go o.runPipeline(fanCtx, conversationID, t, userText, out)
	}
	for range dispatch {
		pr := <-out
		if pr.failure != nil {
			res.Failures = append(res.Failures, *pr.failure)
			continue
		}
		res.Replies = append(res.Replies, *pr.reply)
	}

	res.Elapsed = time.Since(start)
	o.log.Info("fan-out round finished",
		zap.String("conversation_id", conversationID),
		zap.Int("succeeded", res.Succeeded()),
		zap.Int("failed", res.Failed()),
		zap.Int("invalid", len(res.InvalidAgents)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// resolveTargets maps the requested target ids to live agents. With no
// explicit targets every non-archived participant replies.
func (o *Orchestrator) resolveTargets(ctx context.Context, conv convo.Conversation, targetIDs []string, res *Result) []persona.Agent {
	requested := targetIDs
	explicit := len(requested) > 0
	if !explicit {
		requested = conv.AgentIDs
	}

	seen := make(map[string]bool, len(requested))
	var valid []persona.Agent
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		if explicit && !conv.HasParticipant(id) {
			res.InvalidAgents = append(res.InvalidAgents, id)
			continue
		}
		a, err := o.agents.Get(ctx, id)
		if err != nil || a.Archived {
			res.InvalidAgents = append(res.InvalidAgents, id)
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

type pipelineOutcome struct {
	reply   *AgentReply
	failure *AgentFailure
}

func (o *Orchestrator) runPipeline(ctx context.Context, conversationID string, t target, userText string, out chan<- pipelineOutcome) {
	a := t.agent
	start := time.Now()
	fail := func(reason string, err error) {
		o.metrics.PipelineOutcomes.WithLabelValues(reason).Inc()
		o.push(conversationID, stream.AgentError(conversationID, a.ID, reason))
		o.log.Warn("agent pipeline failed",
			zap.String("conversation_id", conversationID),
			zap.String("agent_id", a.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		out <- pipelineOutcome{failure: &AgentFailure{AgentID: a.ID, AgentName: a.Name, Reason: reason, Err: err}}
	}

	o.push(conversationID, stream.TypingStart(conversationID, a.ID, a.Name))

	messages := promptMessages(a, t.history)
	providerStart := time.Now()
	var raw string
	attempt := 0
	err := reliability.Do(ctx, o.cfg.RetryMax, o.cfg.RetryBase, o.cfg.RetryCap, provider.IsRetryable, func() error {
		if attempt > 0 {
			o.stages.ObserveIndicator("provider_retry")
		}
		attempt++
		var callErr error
		raw, callErr = o.llm.Complete(ctx, messages, provider.DefaultParams())
		return callErr
	})
	o.stages.Observe(observability.StageProviderCall, time.Since(providerStart))
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues(o.llm.Name(), providerErrCode(err)).Inc()
		if ctx.Err() != nil {
			fail("timeout", err)
			return
		}
		fail("provider_failed", err)
		return
	}

	bctx := behavior.Context{
		TurnCount:    len(t.history),
		TimeOfDay:    behavior.BucketFor(time.Now()),
		UserText:     userText,
		UserConfused: behavior.SignalsConfusion(userText),
		ContextAware: true,
	}
	humanizeStart := time.Now()
	reply := o.engine.Humanize(a, raw, bctx)
	o.stages.Observe(observability.StageHumanize, time.Since(humanizeStart))

	delay := o.engine.ComputeDelay(a, userText, reply, bctx)
	o.metrics.ObserveReplyDelay(delay)
	tag := emotion.Detect(reply, &a.Emotional)

	delayStart := time.Now()
	if err := o.waitDelay(ctx, conversationID, a.ID, delay); err != nil {
		fail("timeout", err)
		return
	}
	o.stages.Observe(observability.StageDelayWait, time.Since(delayStart))

	// AppendTurn runs on the fan-out context: a pipeline that crossed the
	// deadline during its wait persists nothing, so no orphan turns appear
	// after the round is reported aborted.
	if _, err := o.convos.AppendTurn(ctx, conversationID, convo.Turn{
		Author:  convo.AuthorAgent,
		AgentID: a.ID,
		Content: reply,
		Emotion: string(tag),
		DelayMS: delay.Milliseconds(),
	}); err != nil {
		switch {
		case errors.Is(err, convo.ErrConversationClosed):
			fail("conversation_closed", err)
		case ctx.Err() != nil:
			fail("timeout", err)
		default:
			fail("persist_failed", err)
		}
		return
	}

	o.push(conversationID, stream.AgentMessage(conversationID, a.ID, a.Name, reply, string(tag), delay))
	elapsed := time.Since(start)
	o.stages.Observe(observability.StageReplyTotal, elapsed)
	o.metrics.ObserveReplyLatency(elapsed)
	o.metrics.PipelineOutcomes.WithLabelValues("ok").Inc()

	out <- pipelineOutcome{reply: &AgentReply{
		AgentID:   a.ID,
		AgentName: a.Name,
		Content:   reply,
		Emotion:   string(tag),
		Delay:     delay,
		Elapsed:   elapsed,
	}}
}

// waitDelay sleeps the computed typing delay in quarters, publishing
// cosmetic progress between them. The wait aborts with the context, so
// closure or the global deadline cancels the timer instead of leaking it.
func (o *Orchestrator) waitDelay(ctx context.Context, conversationID, agentID string, delay time.Duration) error {
	quarter := delay / 4
	for i := 1; i <= 4; i++ {
		timer := time.NewTimer(quarter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if i < 4 {
			o.push(conversationID, stream.TypingProgress(conversationID, agentID, i*25))
		}
	}
	return nil
}

func (o *Orchestrator) push(conversationID string, e stream.Event) {
	if o.streams.Publish(conversationID, e) {
		o.metrics.WSMessages.WithLabelValues(string(e.Type)).Inc()
	}
}

// promptMessages assembles the provider prompt: compiled system prompt first,
// then the agent's visible history in arrival order. The current user turn is
// already part of the snapshot.
func promptMessages(a persona.Agent, history []convo.Turn) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+1)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: a.SystemPrompt})
	for _, t := range history {
		switch t.Author {
		case convo.AuthorAgent:
			msgs = append(msgs, provider.Message{Role: provider.RoleAssistant, Content: t.Content})
		case convo.AuthorSystem:
			msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: t.Content})
		default:
			msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: t.Content})
		}
	}
	return msgs
}

func providerErrCode(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "unknown"
}
