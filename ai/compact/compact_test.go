package compact

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/store"
)

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Chat(_ context.Context, _ []llm.Message) (string, *llm.Usage, error) {
	s.calls++
	return s.response, nil, s.err
}

func makeHistory(n int) []llm.Message {
	history := make([]llm.Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return history
}

func TestCompactBelowThresholdPassesThrough(t *testing.T) {
	completer := &stubCompleter{response: "summary"}
	compactor := NewCompactor()

	history := makeHistory(Threshold)
	result := compactor.Compact(context.Background(), completer, history)

	assert.Equal(t, history, result)
	assert.Zero(t, completer.calls, "no LLM call at or below threshold")
}

func TestCompactAboveThreshold(t *testing.T) {
	completer := &stubCompleter{response: "the story so far"}
	compactor := NewCompactor()

	history := makeHistory(Threshold + 6)
	result := compactor.Compact(context.Background(), completer, history)

	require.Len(t, result, keepRecent+1)
	assert.Equal(t, "system", result[0].Role)
	assert.Contains(t, result[0].Content, "the story so far")
	// The trailing turns survive verbatim.
	assert.Equal(t, history[len(history)-keepRecent:], result[1:])
}

func TestCompactFailureFallsBack(t *testing.T) {
	completer := &stubCompleter{err: assert.AnError}
	compactor := NewCompactor()

	history := makeHistory(Threshold + 2)
	result := compactor.Compact(context.Background(), completer, history)

	assert.Equal(t, history, result)
}

func TestCompactEmptySummaryFallsBack(t *testing.T) {
	completer := &stubCompleter{response: "   "}
	compactor := NewCompactor()

	history := makeHistory(Threshold + 2)
	result := compactor.Compact(context.Background(), completer, history)

	assert.Equal(t, history, result)
}

func TestFromMessagesSkipsFailedTurns(t *testing.T) {
	errorText := "boom"
	history := FromMessages([]*store.Message{
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "", Error: &errorText},
		{Role: store.RoleAssistant, Content: "hello"},
	})

	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
}
