package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/ai/search"
	"github.com/driftchat/driftchat/store"
)

type staticMemory struct {
	content string
	err     error
}

func (m *staticMemory) Load(_ context.Context, _ int32) (string, error) {
	return m.content, m.err
}

func newTestBuilder(driver *fakeDriver, mem MemoryLoader) *ContextBuilder {
	st := store.New(driver, testProfile())
	// No search endpoint and no URLs in the test messages, so those
	// enrichments stay inert.
	return NewContextBuilder(st, nil, nil, mem, nil)
}

func TestBuildEmptyContextOmitsSystemTurn(t *testing.T) {
	builder := newTestBuilder(newFakeDriver(), nil)

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:      1,
		UserMessage: "plain question",
	})
	assert.Empty(t, built.System)
	assert.Zero(t, built.EnrichmentCostUsd)
}

func TestBuildBlockOrder(t *testing.T) {
	driver := newFakeDriver()
	_, err := driver.CreateRule(context.Background(), &store.Rule{
		UID:          "r1",
		CreatorID:    1,
		Name:         "style",
		Content:      "Answer briefly.",
		AlwaysAttach: true,
	})
	require.NoError(t, err)

	builder := newTestBuilder(driver, &staticMemory{content: "Likes Go."})

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:        1,
		UserMessage:   "plain question",
		MemoryEnabled: true,
	})

	memoryIdx := strings.Index(built.System, "Likes Go.")
	rulesIdx := strings.Index(built.System, "Answer briefly.")
	require.GreaterOrEqual(t, memoryIdx, 0)
	require.GreaterOrEqual(t, rulesIdx, 0)
	assert.Less(t, memoryIdx, rulesIdx, "memory block precedes rules block")
}

func TestBuildMemoryFailureIsTolerated(t *testing.T) {
	builder := newTestBuilder(newFakeDriver(), &staticMemory{err: assert.AnError})

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:        1,
		UserMessage:   "hello",
		MemoryEnabled: true,
	})
	assert.Empty(t, built.System)
}

func TestBuildSearchFailureIsTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "search backend down", http.StatusInternalServerError)
	}))
	defer server.Close()

	st := store.New(newFakeDriver(), testProfile())
	builder := NewContextBuilder(st, search.NewSearcher(server.URL, "key"), nil, nil, nil)

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:      1,
		UserMessage: "what happened today?",
		SearchMode:  search.ModeStandard,
	})

	// The failed search leaves no block, no citations, and no charge.
	assert.Empty(t, built.System)
	assert.Empty(t, built.Citations)
	assert.Zero(t, built.EnrichmentCostUsd)
}

func TestBuildMemoryDisabledSkipsLoad(t *testing.T) {
	builder := newTestBuilder(newFakeDriver(), &staticMemory{content: "should not appear"})

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:      1,
		UserMessage: "hello",
	})
	assert.NotContains(t, built.System, "should not appear")
}

func TestRuleMentionsAcrossHistoryDeduplicated(t *testing.T) {
	driver := newFakeDriver()
	_, err := driver.CreateRule(context.Background(), &store.Rule{
		UID:       "r1",
		CreatorID: 1,
		Name:      "tone",
		Content:   "Be formal.",
	})
	require.NoError(t, err)

	builder := newTestBuilder(driver, nil)

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:      1,
		UserMessage: "please apply @tone again",
		History: []llm.Message{
			{Role: "user", Content: "use @tone here"},
			{Role: "assistant", Content: "done"},
			{Role: "user", Content: "and @tone once more"},
		},
	})

	assert.Equal(t, 1, strings.Count(built.System, "Be formal."),
		"a rule mentioned repeatedly is included once")
}

func TestRuleMentionUnknownNameIgnored(t *testing.T) {
	builder := newTestBuilder(newFakeDriver(), nil)

	built := builder.Build(context.Background(), &BuildOptions{
		UserID:      1,
		UserMessage: "apply @nonexistent",
	})
	assert.Empty(t, built.System)
}

func TestExtractMentions(t *testing.T) {
	names := extractMentions("check @alpha and @beta", []llm.Message{
		{Role: "user", Content: "earlier @alpha mention"},
	})
	assert.Equal(t, []string{"alpha", "beta"}, names)
}
