package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/store"
)

// namingPrompt instructs the model to summarize an opening message into
// a short conversation name.
const namingPrompt = "You are an expert summarizer. Provided is the first message from a user to an assistant. Create a few-word name for this conversation based on the user's first message."

// fallbackName is used when the model returns nothing usable; the
// unique-name resolver suffixes it as needed.
const fallbackName = "New Conversation"

// Namer derives human-readable, collision-free conversation names.
type Namer struct {
	llm   llm.Client
	model string
}

// NewNamer creates a Namer backed by the given completion client.
func NewNamer(client llm.Client, model string) *Namer {
	return &Namer{llm: client, model: model}
}

// ProposeName asks the model for a short descriptive name based on the
// conversation's opening user message. Surrounding quotes and
// whitespace are trimmed. The result is not guaranteed unique; pass it
// through ResolveUniqueName.
func (n *Namer) ProposeName(ctx context.Context, openingUserText string) (string, error) {
	resp, err := n.llm.Chat(ctx, n.model, []llm.Message{
		{Role: store.RoleSystem, Content: namingPrompt},
		{Role: store.RoleUser, Content: openingUserText},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("propose name: %w", err)
	}

	name := strings.TrimSpace(resp.Message.Content)
	name = strings.Trim(name, `"'`)
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackName
	}
	return name, nil
}

// ResolveUniqueName returns baseName if it is free, otherwise probes
// "{baseName} (n)" for n = 1, 2, 3, … until a free name is found.
// exists reports whether a name is already taken; its errors abort the
// probe. Sequential re-probing never skips numbers; concurrent races
// are caught by the store's uniqueness constraint at creation time.
func ResolveUniqueName(baseName string, exists func(string) (bool, error)) (string, error) {
	taken, err := exists(baseName)
	if err != nil {
		return "", fmt.Errorf("resolve name: %w", err)
	}
	if !taken {
		return baseName, nil
	}

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", baseName, n)
		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve name: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
}
