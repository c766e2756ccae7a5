package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/config"
	"github.com/labtrace/labtrace/pkg/llm"
	"github.com/labtrace/labtrace/pkg/masking"
	"github.com/labtrace/labtrace/pkg/schema"
	"github.com/labtrace/labtrace/pkg/session"
	"github.com/labtrace/labtrace/pkg/sse"
	"github.com/labtrace/labtrace/pkg/store"
	"github.com/labtrace/labtrace/pkg/toolloop"
)

// Orchestrator drives the per-turn chat state machine: schema-grounded
// system prompt assembly, a streaming LLM call, the tool-dispatch loop,
// and SSE event emission, one turn at a time per session.
//
// A turn moves through idle -> counting -> (initialized on first turn) ->
// running -> {tool_loop}* -> ended. "counting" re-verifies patient
// visibility on every message, not just the first, since a patient can be
// reassigned or deleted between turns. "ended" emits message_end for every
// message_start, whether the turn finished cleanly, failed, or hit the
// iteration ceiling. A turn stopped by the patient visibility check ends
// before message_start, so it emits patient_unavailable and no message pair.
type Orchestrator struct {
	cfg        *config.Config
	sessions   *session.Manager
	sse        *sse.Registry
	chat       llm.ChatClient
	dispatcher *toolloop.Dispatcher
	snapshots  *schema.Snapshotter
	store      *store.Store
	masker     *masking.Service
	logger     *slog.Logger

	mu          sync.Mutex
	onboardings map[string]*OnboardingContext // sessionID -> pending first-turn context
}

// New builds an Orchestrator. logger may be nil, in which case
// slog.Default is used.
func New(cfg *config.Config, sessions *session.Manager, registry *sse.Registry, chatClient llm.ChatClient, dispatcher *toolloop.Dispatcher, snapshots *schema.Snapshotter, st *store.Store, masker *masking.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:         cfg,
		sessions:    sessions,
		sse:         registry,
		chat:        chatClient,
		dispatcher:  dispatcher,
		snapshots:   snapshots,
		store:       st,
		masker:      masker,
		logger:      logger,
		onboardings: make(map[string]*OnboardingContext),
	}
}

// CreateSession starts a new session for userID, optionally pre-scoped to
// selectedPatientID (verified visible under row-level security before the
// session is created) and carrying an onboarding context folded into the
// first turn's system prompt.
func (o *Orchestrator) CreateSession(ctx context.Context, userID, selectedPatientID string, onboarding *OnboardingContext) (*session.Session, error) {
	if selectedPatientID != "" {
		visible, err := o.patientVisible(ctx, userID, selectedPatientID)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, ErrPatientNotFound
		}
	}

	sess := o.sessions.Create(userID)
	if selectedPatientID != "" {
		if err := o.sessions.SelectPatient(sess.ID, selectedPatientID); err != nil {
			return nil, err
		}
		sess.SelectedPatient = selectedPatientID
	}
	if onboarding != nil {
		o.mu.Lock()
		o.onboardings[sess.ID] = onboarding
		o.mu.Unlock()
	}
	return sess, nil
}

// OpenStream takes over the HTTP response as the SSE sink for sessionID,
// emitting session_start synchronously as part of the handshake so a
// reconnecting client immediately learns which session it attached to and
// which patient (if any) it's scoped to.
func (o *Orchestrator) OpenStream(w http.ResponseWriter, r *http.Request, sessionID string) error {
	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s", apierr.ErrNotFound, sessionID)
	}
	sessionStart := sse.Event{Type: "session_start", Data: map[string]string{
		"sessionId":         sess.ID,
		"selectedPatientId": sess.SelectedPatient,
	}}
	return o.sse.Attach(w, r, sessionID, sessionStart)
}

// PostMessage appends userText to the session's history and dispatches
// the turn asynchronously, returning as soon as the turn lock is
// acquired. The caller learns the turn's outcome over the SSE stream, not
// from this call's return value.
func (o *Orchestrator) PostMessage(sessionID, userID, userText string) error {
	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s", apierr.ErrNotFound, sessionID)
	}
	if sess.UserID != userID {
		return ErrForbidden
	}

	acquired, err := o.sessions.Acquire(sessionID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrSessionBusy
	}

	if err := o.sessions.AppendMessages(sessionID, session.Message{Role: session.RoleUser, Content: userText}); err != nil {
		o.sessions.Release(sessionID)
		return err
	}

	go o.handleTurn(sessionID, userID)
	return nil
}

// handleTurn runs one complete turn: re-verify patient visibility, build
// (or reuse) the system prompt, stream the model, dispatch any tool
// calls, and loop until the model produces a final answer with no tool
// calls or a safety limit is hit. Once message_start is published,
// message_end is always emitted, however the turn ends (before any hard
// cancel detaches the stream), so the client's UI never hangs waiting for
// a close.
func (o *Orchestrator) handleTurn(sessionID, userID string) {
	ctx := context.Background()
	defer o.sessions.Release(sessionID)

	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return // session expired mid-dispatch
	}

	visible, err := o.patientVisible(ctx, userID, sess.SelectedPatient)
	if err != nil {
		o.emitError(sessionID, "", errCodeInternal, fmt.Errorf("checking patient visibility: %w", err))
		o.hardCancel(sessionID, "patient visibility check failed")
		return
	}
	if sess.SelectedPatient != "" && !visible {
		o.publish(sessionID, "patient_unavailable", map[string]string{
			"sessionId":         sessionID,
			"selectedPatientId": sess.SelectedPatient,
			"message":           "the selected patient is no longer visible to this account",
		})
		o.hardCancel(sessionID, "selected patient no longer visible")
		return
	}

	system, err := o.systemPromptFor(ctx, sessionID, sess.SelectedPatient)
	if err != nil {
		o.emitError(sessionID, "", errCodeInternal, fmt.Errorf("building system prompt: %w", err))
		return
	}

	messageID := uuid.NewString()
	// The session's current message id must be set before message_start
	// is published: pkg/sse's Publish drops any message-tagged event that
	// doesn't match it, message_start included.
	_ = o.sessions.SetCurrentMessage(sessionID, messageID)
	o.publishMessageEvent(sessionID, messageID, "message_start", nil)
	var cancelReason string
	defer func() {
		o.publishMessageEvent(sessionID, messageID, "message_end", nil)
		_ = o.sessions.SetCurrentMessage(sessionID, "")
		if cancelReason != "" {
			o.hardCancel(sessionID, cancelReason)
		}
	}()

	tools := toolDefinitionsForLLM()

	for iteration := 1; iteration <= o.cfg.MaxConversationIterations; iteration++ {
		sess, ok = o.sessions.Get(sessionID)
		if !ok {
			return // session expired between iterations
		}

		history := pruneHistory(system, sess.Messages, estimatedPromptBudget, pruneKeepRecent)
		chunks, err := o.chat.StreamChat(llm.ChatRequest{
			Model:     o.cfg.ChatModel,
			System:    system,
			Messages:  toLLMMessages(history),
			Tools:     tools,
			MaxTokens: 4096,
		})
		if err != nil {
			o.emitError(sessionID, messageID, errCodeInternal, fmt.Errorf("starting chat stream: %w", err))
			return
		}

		text, toolCalls, streamErr := o.drainChunks(sessionID, messageID, chunks)
		if streamErr != nil {
			o.emitError(sessionID, messageID, errCodeInternal, streamErr)
			return
		}

		assistantMsg := session.Message{Role: session.RoleAssistant, Content: text}
		for _, tc := range toolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, session.ToolCall{
				ID: tc.ID, Name: tc.Name, Arguments: string(tc.Input),
			})
		}
		if err := o.sessions.AppendMessages(sessionID, assistantMsg); err != nil {
			return // session expired mid-append
		}

		if len(toolCalls) == 0 {
			return // final answer, no tool calls — turn complete
		}

		if _, ok := o.sessions.Get(sessionID); !ok {
			return // re-check after suspension before dispatching tools
		}

		for _, tc := range toolCalls {
			result := o.runTool(ctx, sessionID, messageID, userID, sess.SelectedPatient, tc)
			if err := o.sessions.AppendMessages(sessionID, session.Message{
				Role:      session.RoleTool,
				Content:   result.Content,
				ToolUseID: tc.ID,
			}); err != nil {
				return
			}
		}
	}

	o.emitError(sessionID, messageID, errCodeIterationLimit, errors.New("max conversation iterations reached"))
	cancelReason = "max conversation iterations reached"
}

// runTool executes one tool call, publishing tool_start/tool_complete and
// any display event, and returns the result to fold into history.
func (o *Orchestrator) runTool(ctx context.Context, sessionID, messageID, userID, selectedPatient string, tc llm.ToolCall) toolloop.Result {
	start := time.Now()
	o.publishMessageEvent(sessionID, messageID, "tool_start", map[string]any{
		"tool":   tc.Name,
		"params": tc.Input,
	})

	result := o.dispatcher.Execute(ctx, sessionID, userID, toolloop.ToolName(tc.Name), tc.Input, selectedPatient)

	complete := map[string]any{
		"tool":        tc.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if result.IsError {
		complete["error"] = result.Content
	}
	o.publishMessageEvent(sessionID, messageID, "tool_complete", complete)

	if result.DisplayEvent != nil {
		titleField := "plot_title"
		if result.DisplayEvent.Type == "table_result" {
			titleField = "table_title"
		}
		o.publishMessageEvent(sessionID, messageID, result.DisplayEvent.Type, map[string]any{
			titleField:         result.DisplayEvent.Title,
			"rows":             result.DisplayEvent.Data,
			"replace_previous": result.DisplayEvent.ReplacePrevious,
		})
	}
	return result
}

// drainChunks collects one streamed model turn, emitting a text event per
// text delta as it arrives and accumulating tool calls, which the
// provider emits whole (one per completed content block) rather than as
// fragments needing index-based reassembly.
func (o *Orchestrator) drainChunks(sessionID, messageID string, chunks <-chan llm.ChatChunk) (string, []llm.ToolCall, error) {
	var text strings.Builder
	var toolCalls []llm.ToolCall

	for c := range chunks {
		if c.Error != nil {
			return "", nil, c.Error
		}
		if c.Text != "" {
			text.WriteString(c.Text)
			o.publishMessageEvent(sessionID, messageID, "text", map[string]any{"content": c.Text})
		}
		if c.ToolCall != nil {
			toolCalls = append(toolCalls, *c.ToolCall)
		}
	}
	return text.String(), toolCalls, nil
}

// hardCancel tears a session down entirely: deleted from the manager and
// detached from SSE, matching the safety-limit and lost-visibility
// cancellation paths, which must not leave a zombie session a client can
// keep posting messages into.
func (o *Orchestrator) hardCancel(sessionID, reason string) {
	o.logger.Warn("chat session hard-cancelled", "session_id", sessionID, "reason", reason)
	o.sessions.Delete(sessionID)
	o.sse.Detach(sessionID)

	o.mu.Lock()
	delete(o.onboardings, sessionID)
	o.mu.Unlock()
}

// emitError logs and publishes an error event with the given code.
// messageID is "" for failures that occur before message_start has been
// published (patient visibility, system prompt build); those reach every
// attached client unconditionally rather than risking a drop against a
// not-yet-set current message id.
func (o *Orchestrator) emitError(sessionID, messageID, code string, err error) {
	o.logger.Error("chat turn failed", "session_id", sessionID, "code", code, "error", o.masker.Redact(err.Error()))
	data := map[string]string{"code": code, "message": err.Error()}
	if messageID == "" {
		o.publish(sessionID, "error", data)
		return
	}
	o.publishMessageEvent(sessionID, messageID, "error", map[string]any{"code": code, "message": err.Error()})
}

func (o *Orchestrator) publish(sessionID, eventType string, data any) {
	o.sse.Publish(sessionID, sse.Event{Type: eventType, Data: data})
}

// publishMessageEvent publishes an event scoped to an in-flight assistant
// message, injecting message_id into the payload and tagging the envelope
// so pkg/sse's Publish can drop it once the message has been finalized.
func (o *Orchestrator) publishMessageEvent(sessionID, messageID, eventType string, fields map[string]any) {
	data := map[string]any{"message_id": messageID}
	for k, v := range fields {
		data[k] = v
	}
	o.sse.Publish(sessionID, sse.Event{Type: eventType, Data: data, MessageID: messageID})
}

const (
	errCodeInternal       = "INTERNAL_ERROR"
	errCodeIterationLimit = "ITERATION_LIMIT_EXCEEDED"
)

// patientVisible reports whether patientID exists and is visible to
// userID under row-level security. An empty patientID (no patient
// selected yet) is always visible.
func (o *Orchestrator) patientVisible(ctx context.Context, userID, patientID string) (bool, error) {
	if patientID == "" {
		return true, nil
	}
	var found bool
	err := o.store.WithUserScope(ctx, userID, func(tx pgx.Tx) error {
		_, err := o.store.Patients.WithTx(tx).Get(ctx, patientID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// systemPromptFor returns the system prompt for the session's next turn,
// folding in the session's onboarding context exactly once (on the first
// turn) and discarding it afterward so retried turns never duplicate it.
func (o *Orchestrator) systemPromptFor(ctx context.Context, sessionID, selectedPatient string) (string, error) {
	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("session not found: %s", sessionID)
	}

	var onboarding *OnboardingContext
	if len(sess.Messages) <= 1 { // only the just-appended user message exists
		o.mu.Lock()
		onboarding = o.onboardings[sessionID]
		delete(o.onboardings, sessionID)
		o.mu.Unlock()
	}

	return buildSystemPrompt(ctx, o.snapshots, selectedPatient, onboarding)
}

// buildSystemPrompt assembles the full system prompt: the fixed
// preamble, the current schema manifest so execute_sql calls can be
// grounded in real column names, and (on the first turn only) the
// onboarding narrative from a just-completed ingestion.
func buildSystemPrompt(ctx context.Context, snapshots *schema.Snapshotter, selectedPatient string, onboarding *OnboardingContext) (string, error) {
	manifest, err := snapshots.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema manifest: %w", err)
	}

	var b strings.Builder
	b.WriteString(systemPromptPreamble)
	b.WriteString("\n\nSchema (snapshot ")
	b.WriteString(manifest.ID[:12])
	b.WriteString("):\n")
	for _, t := range manifest.Tables {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString("(")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			b.WriteString(" ")
			b.WriteString(c.Type)
		}
		b.WriteString(")\n")
	}

	if selectedPatient != "" {
		fmt.Fprintf(&b, "\nThe conversation is scoped to patient id %s. Every execute_sql query must filter to this patient.\n", selectedPatient)
	} else {
		b.WriteString("\nNo patient is selected yet. Use fuzzy_search with scope \"patient\" to help the user pick one before querying lab data.\n")
	}

	if onboarding != nil {
		b.WriteString("\nA report was just processed for this patient. Share this with the user before they ask:\n")
		if onboarding.Insight != "" {
			b.WriteString(onboarding.Insight)
			b.WriteString("\n")
		}
		if onboarding.ParameterTable != "" {
			b.WriteString(onboarding.ParameterTable)
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// toLLMMessages converts session history into the provider-agnostic
// shape pkg/llm expects, threading tool calls and tool results back onto
// their owning messages.
func toLLMMessages(msgs []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{Role: llm.Role(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Input: []byte(tc.Arguments)})
		}
		if m.Role == session.RoleTool {
			lm.ToolResults = append(lm.ToolResults, llm.ToolResult{ToolCallID: m.ToolUseID, Content: m.Content})
		}
		out = append(out, lm)
	}
	return out
}

func toolDefinitionsForLLM() []llm.Tool {
	defs := toolloop.Definitions()
	out := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.Tool{Name: string(d.Name), Description: d.Description, Schema: d.Schema})
	}
	return out
}

const (
	// estimatedPromptBudget is the token budget pruneHistory targets,
	// comfortably under typical provider context windows once the system
	// prompt and a margin for the model's own output are accounted for.
	estimatedPromptBudget = 60000
	// pruneKeepRecent is the minimum number of trailing messages kept
	// even when over budget.
	pruneKeepRecent = 20
)
