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

func TestGenerateNewConversationHappyPath(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{
			{ContentDelta: "Hello"},
			{ContentDelta: " there"},
			{Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		},
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "Hi",
		ModelID: "m1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, conversation.UID)
	assert.Equal(t, store.DefaultTitle, conversation.Title)

	require.True(t, waitUntil(func() bool {
		return !driver.conversation(conversation.ID).Generating
	}), "generation should settle")

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{
		ConversationID: &conversation.ID,
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "Hi", messages[0].Content)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hello there", messages[1].Content)
	require.NotNil(t, messages[1].TokenCount)
	assert.Equal(t, int32(15), *messages[1].TokenCount)
	require.NotNil(t, messages[1].ContentHTML)
	assert.Contains(t, *messages[1].ContentHTML, "Hello there")

	// Title remains the placeholder; no generator is configured.
	assert.Equal(t, store.DefaultTitle, driver.conversation(conversation.ID).Title)
	assert.False(t, o.registry.Active(conversation.UID))
}

func TestSuggestionsAttachedAfterCompletion(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{
			{ContentDelta: "answer"},
			{Usage: &llm.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}},
		},
		jsonResponse: `{"suggestions": ["one", " two ", "three", "four"]}`,
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "Hi",
		ModelID: "m1",
	})
	require.NoError(t, err)

	assistantSuggestions := func() []string {
		messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{
			ConversationID: &conversation.ID,
		})
		if err != nil || len(messages) < 2 {
			return nil
		}
		return messages[1].Suggestions
	}
	require.True(t, waitUntil(func() bool {
		return len(assistantSuggestions()) > 0
	}), "suggestions should land")

	// Capped at three, whitespace trimmed.
	assert.Equal(t, []string{"one", "two", "three"}, assistantSuggestions())
}

func TestGenerationCompletesWhenSearchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "search backend down", http.StatusInternalServerError)
	}))
	defer server.Close()

	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{
			{ContentDelta: "the answer"},
			{Usage: &llm.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}},
		},
	}
	o := newTestOrchestrator(driver, chatter)
	o.profile.SearchBaseURL = server.URL
	o.profile.SearchAPIKey = "key"

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message:    "what happened today?",
		ModelID:    "m1",
		SearchMode: "standard",
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		return !driver.conversation(conversation.ID).Generating
	}))

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{
		ConversationID: &conversation.ID,
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assistant := messages[1]
	assert.Equal(t, "the answer", assistant.Content)
	assert.Nil(t, assistant.Error, "search failure must not surface to the user")
	assert.Empty(t, assistant.Annotations)
	// No charge for the failed enrichment beyond token cost.
	require.NotNil(t, assistant.CostUsd)
	assert.InDelta(t, (4*1.0+2*2.0)/1e6, *assistant.CostUsd, 1e-12)
}

func TestGenerateRejectsMissingCredentialSynchronously(t *testing.T) {
	driver := newFakeDriver()
	driver.CreateEnabledModel(context.Background(), &store.EnabledModel{
		UserID:   1,
		ModelID:  "m9",
		Provider: "bare-provider",
		Modality: store.ModalityText,
	})
	o := newTestOrchestrator(driver, &fakeStreamChatter{})

	_, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "Hi",
		ModelID: "m9",
	})
	require.ErrorIs(t, err, ErrNotConfigured)

	// Nothing was scheduled or persisted.
	driver.mu.Lock()
	assert.Empty(t, driver.conversations)
	assert.Empty(t, driver.messages)
	driver.mu.Unlock()
	assert.Zero(t, o.registry.Len())
}

func TestGenerateRecordsImageAttachments(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{{ContentDelta: "ok"}},
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "what is in these?",
		ModelID: "m1",
		Images:  []string{"https://cdn.invalid/a.png", "https://cdn.invalid/b.png"},
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		return !driver.conversation(conversation.ID).Generating
	}))

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{
		ConversationID: &conversation.ID,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(messages), 1)
	require.Len(t, messages[0].Annotations, 2)
	assert.Equal(t, "image", messages[0].Annotations[0].Type)
	assert.Equal(t, "https://cdn.invalid/a.png", messages[0].Annotations[0].URL)
}

func TestSearchModeResolution(t *testing.T) {
	assert.Equal(t, search.ModeDeep, (&GenerateRequest{SearchMode: "deep"}).searchMode())
	// The explicit mode wins over the boolean switch.
	assert.Equal(t, search.ModeDeep, (&GenerateRequest{SearchMode: "deep", WebSearchEnabled: true}).searchMode())
	assert.Equal(t, search.ModeStandard, (&GenerateRequest{WebSearchEnabled: true}).searchMode())
	assert.Equal(t, search.Mode(""), (&GenerateRequest{}).searchMode())
}

func TestGenerateRequiresMessageForNewConversation(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	o := newTestOrchestrator(driver, &fakeStreamChatter{})

	_, err := o.Generate(context.Background(), 1, &GenerateRequest{ModelID: "m1"})
	assert.ErrorIs(t, err, ErrMessageRequired)
}

func TestGenerateRejectsWhileInFlight(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{{ContentDelta: "partial"}},
		block:  true,
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "first",
		ModelID: "m1",
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		return o.registry.Active(conversation.UID)
	}))

	_, err = o.Generate(context.Background(), 1, &GenerateRequest{
		ConversationUID: conversation.UID,
		Message:         "second",
		ModelID:         "m1",
	})
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	// Cleanup.
	cancelled, err := o.Cancel(context.Background(), 1, conversation.UID)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestCancellationKeepsPartialContent(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{{ContentDelta: "partial answer"}},
		block:  true,
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "long question",
		ModelID: "m1",
	})
	require.NoError(t, err)

	// Wait until the partial snapshot landed so cancellation hits a
	// mid-stream run.
	require.True(t, waitUntil(func() bool {
		messages, _ := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
		return len(messages) == 2 && messages[1].Content != ""
	}))

	cancelled, err := o.Cancel(context.Background(), 1, conversation.UID)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.False(t, driver.conversation(conversation.ID).Generating)

	require.True(t, waitUntil(func() bool {
		messages, _ := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
		return messages[1].Error != nil
	}))

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", messages[1].Content)
	assert.Equal(t, cancelledErrorText, *messages[1].Error)
}

func TestCancelIdleConversationReturnsFalse(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	o := newTestOrchestrator(driver, &fakeStreamChatter{})

	conversation, err := o.store.CreateConversation(context.Background(), &store.Conversation{
		UID:       "idle",
		CreatorID: 1,
		Title:     store.DefaultTitle,
	})
	require.NoError(t, err)

	cancelled, err := o.Cancel(context.Background(), 1, conversation.UID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestSnapshotMonotonicity(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{
			{ContentDelta: "a"},
			{ContentDelta: "b"},
			{ContentDelta: "c"},
			{ContentDelta: "d"},
		},
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "go",
		ModelID: "m1",
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		return !driver.conversation(conversation.ID).Generating
	}))

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assistantID := messages[1].ID

	snapshots := driver.messageSnapshots(assistantID)
	require.NotEmpty(t, snapshots)
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]),
			"snapshot %d must extend snapshot %d", i, i-1)
	}
	assert.Equal(t, "abcd", snapshots[len(snapshots)-1])
}

func TestFinalizeIdempotence(t *testing.T) {
	driver := newFakeDriver()
	model := enableTestModel(driver, 1)
	o := newTestOrchestrator(driver, &fakeStreamChatter{})

	conversation, err := o.store.CreateConversation(context.Background(), &store.Conversation{
		UID:       "c1",
		CreatorID: 1,
		Title:     store.DefaultTitle,
	})
	require.NoError(t, err)
	assistant, err := o.store.CreateMessage(context.Background(), &store.Message{
		UID:            "a1",
		ConversationID: conversation.ID,
		Role:           store.RoleAssistant,
	})
	require.NoError(t, err)

	run := &generationRun{
		orchestrator: o,
		userID:       1,
		conversation: conversation,
		model:        model,
	}
	usage := &llm.Usage{PromptTokens: 1000, CompletionTokens: 2000, TotalTokens: 3000}

	run.finalize(assistant.ID, "done", "", usage, 0.008, nil)
	run.finalize(assistant.ID, "done", "", usage, 0.008, nil)

	// One increment only: (1000×1 + 2000×2)/1e6 + 0.008 = 0.013.
	assert.InDelta(t, 0.013, driver.conversation(conversation.ID).CostUsd, 1e-9)
}

func TestMissingUsageLeavesCostUnset(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{{ContentDelta: "no usage here"}},
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "hi",
		ModelID: "m1",
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		return !driver.conversation(conversation.ID).Generating
	}))

	messages, err := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assert.Nil(t, messages[1].TokenCount)
	assert.Nil(t, messages[1].CostUsd)
	assert.Zero(t, driver.conversation(conversation.ID).CostUsd)
}

func TestStreamFailureRecordsErrorAndClearsFlag(t *testing.T) {
	driver := newFakeDriver()
	enableTestModel(driver, 1)
	chatter := &fakeStreamChatter{
		chunks: []llm.StreamChunk{{ContentDelta: "partial"}},
		err:    assert.AnError,
	}
	o := newTestOrchestrator(driver, chatter)

	conversation, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "hi",
		ModelID: "m1",
	})
	require.NoError(t, err)

	require.True(t, waitUntil(func() bool {
		messages, _ := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
		return len(messages) == 2 && messages[1].Error != nil
	}))

	assert.False(t, driver.conversation(conversation.ID).Generating)
	messages, _ := o.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversation.ID})
	assert.Equal(t, "partial", messages[1].Content)
	assert.False(t, o.registry.Active(conversation.UID))
}

func TestGenerateUnknownModelRejected(t *testing.T) {
	driver := newFakeDriver()
	o := newTestOrchestrator(driver, &fakeStreamChatter{})

	// Catalog endpoint is unreachable; the model is simply not
	// enabled.
	_, err := o.Generate(context.Background(), 1, &GenerateRequest{
		Message: "hi",
		ModelID: "missing",
	})
	assert.ErrorIs(t, err, ErrModelNotEnabled)
}
