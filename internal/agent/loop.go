// Package agent implements the core orchestration loop: it resolves
// conversations, queries the completion service, dispatches tool calls
// the model requests, and persists every step until the model settles
// on a plain answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/tools"
)

// DefaultSystemPrompt seeds new conversations unless overridden in
// configuration.
const DefaultSystemPrompt = "You are a helpful assistant. " +
	"Keep responses concise - 1-2 sentences unless a longer response is requested. " +
	"Only call functions if needed. " +
	"Do not use markdown formatting."

// DefaultMaxToolRounds bounds tool-call cycles within one user turn. A
// model that keeps requesting tools past this many rounds gets its
// final completion issued without tool schemas, forcing a textual
// answer.
const DefaultMaxToolRounds = 8

// Config carries the orchestration loop's tunables. Process-wide
// defaults belong at the wiring boundary; the loop itself reads only
// this struct.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxToolRounds int
}

// Result is the outcome of one fully settled user turn.
type Result struct {
	ConversationName string `json:"conversation_name"`
	// Content is the assistant's final textual answer. It may be empty
	// when the model produced only tool calls with no trailing text.
	Content string `json:"content"`
}

// ConversationStore is the persistence surface the loop depends on.
// *store.Store satisfies it.
type ConversationStore interface {
	FindConversation(name string) (*store.Conversation, error)
	CreateConversation(name string) (*store.Conversation, error)
	AppendMessage(conversationName string, m store.Message) error
	LoadMessages(conversationName string) ([]store.Message, error)
	ListConversationNames() ([]string, error)
}

// Loop is the tool-dispatch orchestration engine.
type Loop struct {
	logger   *slog.Logger
	store    ConversationStore
	llm      llm.Client
	registry *tools.Registry
	namer    *Namer
	cfg      Config
}

// NewLoop creates an orchestration loop. Zero-value Config fields fall
// back to package defaults.
func NewLoop(logger *slog.Logger, st ConversationStore, client llm.Client, registry *tools.Registry, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Loop{
		logger:   logger,
		store:    st,
		llm:      client,
		registry: registry,
		namer:    NewNamer(client, cfg.Model),
		cfg:      cfg,
	}
}

// SubmitMessage runs one user turn to settlement: resolve or create the
// conversation, persist the user message, then alternate completion
// calls and tool dispatches until the model answers without requesting
// tools.
//
// A supplied conversationName that does not exist fails with
// InvalidConversationError before anything is written. An empty
// conversationName starts a new conversation with a model-derived name.
func (l *Loop) SubmitMessage(ctx context.Context, conversationName, content string) (*Result, error) {
	name, err := l.resolveConversation(ctx, conversationName, content)
	if err != nil {
		return nil, err
	}

	if err := l.store.AppendMessage(name, store.Message{Role: store.RoleUser, Content: content}); err != nil {
		return nil, err
	}

	l.logger.Info("turn started", "conversation", name)

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := l.store.LoadMessages(name)
		if err != nil {
			return nil, err
		}

		// Past the round cap, withhold tool schemas so the model must
		// settle with a textual answer instead of looping forever.
		capped := round >= l.cfg.MaxToolRounds
		schemas := l.registry.Schemas()
		if capped {
			l.logger.Warn("tool round cap reached, forcing settlement",
				"conversation", name, "rounds", round)
			schemas = nil
		}

		resp, err := l.llm.Chat(ctx, l.cfg.Model, ToModelMessages(rows), schemas)
		if err != nil {
			// Nothing from this round is persisted; prior history
			// stays intact.
			return nil, fmt.Errorf("completion failed: %w", err)
		}

		assistant := resp.Message

		// The capped completion was offered no tools. A model that
		// requests them anyway gets its calls dropped so the turn
		// still terminates; nothing is dispatched past the cap.
		if capped && len(assistant.ToolCalls) > 0 {
			l.logger.Warn("model requested tools past the round cap, dropping calls",
				"conversation", name, "calls", len(assistant.ToolCalls))
			assistant.ToolCalls = nil
		}

		if assistant.Content == "" && len(assistant.ToolCalls) == 0 {
			return nil, ErrEmptyCompletion
		}

		msg := store.Message{Role: store.RoleAssistant, Content: assistant.Content}
		if len(assistant.ToolCalls) > 0 {
			raw, err := json.Marshal(assistant.ToolCalls)
			if err != nil {
				return nil, fmt.Errorf("serialize tool calls: %w", err)
			}
			msg.ToolCalls = string(raw)
		}
		if err := l.store.AppendMessage(name, msg); err != nil {
			return nil, err
		}

		if len(assistant.ToolCalls) == 0 {
			l.logger.Info("turn settled",
				"conversation", name,
				"rounds", round,
				"content_len", len(assistant.Content))
			return &Result{ConversationName: name, Content: assistant.Content}, nil
		}

		if err := l.dispatchToolCalls(ctx, name, assistant.ToolCalls); err != nil {
			return nil, err
		}
	}
}

// dispatchToolCalls invokes each requested tool in the order presented
// and persists its result. Handler failures become the tool's textual
// result; only cancellation or a store failure aborts the turn.
func (l *Loop) dispatchToolCalls(ctx context.Context, conversation string, calls []llm.ToolCall) error {
	for _, call := range calls {
		result, err := l.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
		if err != nil {
			if ctx.Err() != nil {
				// Abandon the round entirely; no tool message is
				// written for a cancelled request.
				return ctx.Err()
			}
			l.logger.Warn("tool execution failed",
				"conversation", conversation,
				"tool", call.Function.Name,
				"error", err)
			result = fmt.Sprintf("Error: %v", err)
		}

		l.logger.Debug("tool dispatched",
			"conversation", conversation,
			"tool", call.Function.Name,
			"tool_call_id", call.ID,
			"result_len", len(result))

		err = l.store.AppendMessage(conversation, store.Message{
			Role:       store.RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Content:    result,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveConversation maps the caller's optional conversation name to
// an existing conversation, or creates a new one seeded with the system
// prompt.
func (l *Loop) resolveConversation(ctx context.Context, conversationName, content string) (string, error) {
	if conversationName != "" {
		conv, err := l.store.FindConversation(conversationName)
		if err != nil {
			return "", err
		}
		if conv == nil {
			return "", &InvalidConversationError{Name: conversationName}
		}
		return conv.Name, nil
	}

	return l.createConversation(ctx, content)
}

// createConversation derives a name from the opening message, creates
// the conversation, and persists the leading system message. A naming
// collision at create time gets one re-resolution attempt before the
// error surfaces.
func (l *Loop) createConversation(ctx context.Context, openingUserText string) (string, error) {
	base, err := l.namer.ProposeName(ctx, openingUserText)
	if err != nil {
		return "", err
	}

	exists := func(candidate string) (bool, error) {
		conv, err := l.store.FindConversation(candidate)
		return conv != nil, err
	}

	var conv *store.Conversation
	for attempt := 0; attempt < 2; attempt++ {
		name, err := ResolveUniqueName(base, exists)
		if err != nil {
			return "", err
		}

		conv, err = l.store.CreateConversation(name)
		if err == nil {
			break
		}

		var dup *store.DuplicateNameError
		if errors.As(err, &dup) && attempt == 0 {
			// Lost a naming race; re-probe against current state.
			l.logger.Debug("conversation name collided, re-resolving", "name", name)
			continue
		}
		return "", err
	}

	l.logger.Info("conversation created", "name", conv.Name)

	err = l.store.AppendMessage(conv.Name, store.Message{
		Role:    store.RoleSystem,
		Content: l.cfg.SystemPrompt,
	})
	if err != nil {
		return "", err
	}

	return conv.Name, nil
}

// ListConversationNames returns all distinct non-empty conversation names.
func (l *Loop) ListConversationNames() ([]string, error) {
	return l.store.ListConversationNames()
}
