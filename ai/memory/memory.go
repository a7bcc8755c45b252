// Package memory maintains a per-user condensed memory string that
// carries context across conversations. The memory is recompressed in
// the background after each completed generation; a recompression
// failure only costs freshness, never a generation.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/store"
)

// ChatCompleter is the single LLM call memory needs.
type ChatCompleter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, *llm.Usage, error)
}

const compressPrompt = `You maintain a user's long-term memory for an AI assistant.
Merge the existing memory with the new conversation exchange into an updated memory.
Keep stable facts, preferences, and ongoing projects. Drop small talk and transient details.
Write plain prose, at most 300 words. Respond with only the updated memory text.`

// maxMemoryRunes caps the stored memory so it stays a cheap prompt
// prefix.
const maxMemoryRunes = 4000

// Service loads and recompresses user memory.
type Service struct {
	store *store.Store
}

// NewService creates a memory service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Load returns the user's memory text, or "" when none exists.
func (s *Service) Load(ctx context.Context, userID int32) (string, error) {
	memory, err := s.store.GetUserMemory(ctx, userID)
	if err != nil {
		return "", err
	}
	if memory == nil {
		return "", nil
	}
	return memory.Content, nil
}

// Compress merges the latest exchange into the stored memory.
func (s *Service) Compress(ctx context.Context, completer ChatCompleter, userID int32, userText, assistantText string) error {
	prior, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	if prior != "" {
		fmt.Fprintf(&sb, "Existing memory:\n%s\n\n", prior)
	} else {
		sb.WriteString("Existing memory: (empty)\n\n")
	}
	fmt.Fprintf(&sb, "New exchange:\nUser: %s\nAssistant: %s", userText, assistantText)

	updated, _, err := completer.Chat(ctx, []llm.Message{
		{Role: "system", Content: compressPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return fmt.Errorf("compress memory: %w", err)
	}
	updated = strings.TrimSpace(updated)
	if updated == "" {
		return fmt.Errorf("compress memory: empty result")
	}
	if runes := []rune(updated); len(runes) > maxMemoryRunes {
		updated = string(runes[:maxMemoryRunes])
	}

	_, err = s.store.UpsertUserMemory(ctx, &store.UserMemory{
		UserID:    userID,
		Content:   updated,
		UpdatedTs: time.Now().Unix(),
	})
	return err
}

// CompressAsync runs Compress in the background with its own deadline.
// Failures are logged and dropped.
func (s *Service) CompressAsync(completer ChatCompleter, userID int32, userText, assistantText string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.Compress(ctx, completer, userID, userText, assistantText); err != nil {
			slog.Warn("memory recompression failed", "user_id", userID, "error", err)
		}
	}()
}
