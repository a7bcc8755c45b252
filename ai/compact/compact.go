// Package compact condenses long conversation histories so the prompt
// stays inside model context limits. A failed compaction falls back to
// the original history.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/store"
)

// ChatCompleter is the single LLM call compaction needs.
type ChatCompleter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, *llm.Usage, error)
}

// Threshold is the history length above which compaction kicks in.
const Threshold = 12

// keepRecent is how many trailing messages stay verbatim after
// compaction.
const keepRecent = 4

const compactPrompt = `Summarize the following conversation so it can replace the original turns in a prompt.
Preserve decisions, facts, names, numbers, and anything the user asked to remember.
Write a compact third-person summary. Respond with only the summary.`

// Compactor condenses histories.
type Compactor struct{}

// NewCompactor creates a compactor.
func NewCompactor() *Compactor {
	return &Compactor{}
}

// Compact returns the history to send to the model. Histories at or
// under the threshold pass through untouched. Above it, older turns
// collapse into a single system summary followed by the most recent
// turns. On any failure the original history is returned.
func (c *Compactor) Compact(ctx context.Context, completer ChatCompleter, history []llm.Message) []llm.Message {
	if len(history) <= Threshold {
		return history
	}

	cut := len(history) - keepRecent
	older, recent := history[:cut], history[cut:]

	var sb strings.Builder
	for _, m := range older {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	summary, _, err := completer.Chat(ctx, []llm.Message{
		{Role: "system", Content: compactPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		slog.Warn("history compaction failed, using full history", "turns", len(history), "error", err)
		return history
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return history
	}

	compacted := make([]llm.Message, 0, len(recent)+1)
	compacted = append(compacted, llm.Message{
		Role:    "system",
		Content: "Summary of the conversation so far:\n" + summary,
	})
	compacted = append(compacted, recent...)
	slog.Debug("history compacted", "from", len(history), "to", len(compacted))
	return compacted
}

// FromMessages converts stored messages to prompt turns, skipping
// failed assistant turns that never produced content.
func FromMessages(messages []*store.Message) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" && m.Error != nil {
			continue
		}
		history = append(history, llm.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return history
}
