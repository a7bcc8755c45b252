// Package ai orchestrates message generation: model resolution,
// context enrichment, streamed completion with incremental
// persistence, cost accounting, and out-of-band cancellation.
package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/driftchat/driftchat/ai/compact"
	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/ai/memory"
	"github.com/driftchat/driftchat/ai/metrics"
	"github.com/driftchat/driftchat/ai/scrape"
	"github.com/driftchat/driftchat/ai/search"
	"github.com/driftchat/driftchat/ai/titlegen"
	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/plugin/markdown"
	"github.com/driftchat/driftchat/store"
)

var (
	// ErrGenerationInFlight is returned when a conversation already
	// has a running generation. The first request wins.
	ErrGenerationInFlight = errors.New("a generation is already running for this conversation")
	// ErrModelNotEnabled is returned when the requested model is
	// neither enabled for the user nor present in the catalog.
	ErrModelNotEnabled = errors.New("model is not enabled")
	// ErrMessageRequired is returned when a new conversation is
	// requested without an opening message.
	ErrMessageRequired = errors.New("message is required to start a conversation")
)

const cancelledErrorText = "Generation cancelled by user."

// maxConcurrentGenerations bounds how many runs stream at once.
const maxConcurrentGenerations = 8

// GenerateRequest is one inbound generate-message call.
type GenerateRequest struct {
	// ConversationUID is empty to start a new conversation.
	ConversationUID string
	// Message is the user's text. Required for new conversations;
	// optional for regeneration on an existing one.
	Message string
	ModelID string
	// Title, when set on a new conversation, is a user-provided title
	// and suppresses auto-generation.
	Title string
	// WebSearchEnabled requests web-search enrichment in its default
	// mode when SearchMode is not set explicitly.
	WebSearchEnabled bool
	// SearchMode is "", "standard" or "deep".
	SearchMode string
	// ReasoningEffort is forwarded to reasoning-capable models.
	ReasoningEffort string
	// Images are attachment URLs recorded on the user message.
	Images []string
}

// searchMode resolves the effective search mode: an explicit mode
// wins, the boolean switch alone means standard.
func (r *GenerateRequest) searchMode() search.Mode {
	if r.SearchMode != "" {
		return search.Mode(r.SearchMode)
	}
	if r.WebSearchEnabled {
		return search.ModeStandard
	}
	return ""
}

// Orchestrator drives generation runs.
type Orchestrator struct {
	store       *store.Store
	profile     *profile.Profile
	registry    *CancelRegistry
	catalog     *Catalog
	credentials *CredentialResolver
	memory      *memory.Service
	compactor   *compact.Compactor
	titler      *titlegen.Generator
	markdown    markdown.Service
	metrics     *metrics.Exporter
	sem         *semaphore.Weighted

	// newClient is swappable for tests.
	newClient func(cfg *llm.Config) StreamChatter
	// newJobClient likewise.
	newJobClient func(baseURL, apiKey string) JobRunner
}

// StreamChatter is the slice of the LLM client the text loop needs.
type StreamChatter interface {
	StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, <-chan error)
	Chat(ctx context.Context, messages []llm.Message) (string, *llm.Usage, error)
	ChatJSON(ctx context.Context, messages []llm.Message) (string, error)
}

// JobRunner is the slice of the job client the image/video loop needs.
type JobRunner interface {
	Wait(ctx context.Context, req *llm.JobRequest) (*llm.JobResult, error)
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(st *store.Store, prof *profile.Profile, exporter *metrics.Exporter) *Orchestrator {
	var titler *titlegen.Generator
	if prof.UtilityModel != "" {
		key := prof.FallbackKeys["openrouter"]
		titler = titlegen.NewGenerator(titlegen.Config{
			APIKey:  key,
			BaseURL: prof.GatewayBaseURL,
			Model:   prof.UtilityModel,
		})
	}

	return &Orchestrator{
		store:       st,
		profile:     prof,
		registry:    NewCancelRegistry(),
		catalog:     NewCatalog(prof.GatewayBaseURL),
		credentials: NewCredentialResolver(st, prof),
		memory:      memory.NewService(st),
		compactor:   compact.NewCompactor(),
		titler:      titler,
		markdown:    markdown.NewService(),
		metrics:     exporter,
		sem:         semaphore.NewWeighted(maxConcurrentGenerations),
		newClient: func(cfg *llm.Config) StreamChatter {
			return llm.NewClient(cfg)
		},
		newJobClient: func(baseURL, apiKey string) JobRunner {
			return llm.NewJobClient(baseURL, apiKey)
		},
	}
}

// Registry exposes the cancellation registry for the cancel handler.
func (o *Orchestrator) Registry() *CancelRegistry {
	return o.registry
}

// ContextBuilder builds the enrichment context. Constructed lazily so
// tests can slot their own collaborators first.
func (o *Orchestrator) contextBuilder() *ContextBuilder {
	return NewContextBuilder(
		o.store,
		search.NewSearcher(o.profile.SearchBaseURL, o.profile.SearchAPIKey),
		scrape.NewScraper(o.profile.ScrapeProxyURL),
		o.memory,
		o.metrics,
	)
}

// Generate validates the request, persists the user turn, marks the
// conversation generating and kicks off the asynchronous run. It
// returns the conversation as soon as the run is scheduled; all
// progress is observable only through the stored rows.
func (o *Orchestrator) Generate(ctx context.Context, userID int32, req *GenerateRequest) (*store.Conversation, error) {
	isNew := req.ConversationUID == ""
	if isNew && req.Message == "" {
		return nil, ErrMessageRequired
	}

	model, err := ResolveModel(ctx, o.store, o.catalog, userID, req.ModelID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.Wrapf(ErrModelNotEnabled, "model %s", req.ModelID)
	}

	// A missing credential is a configuration error the caller must see
	// before any row is written or background work starts.
	apiKey, err := o.credentials.Resolve(ctx, userID, model.Provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	var conversation *store.Conversation
	if isNew {
		title, titleSource := store.DefaultTitle, store.TitleSourceDefault
		if req.Title != "" {
			title, titleSource = req.Title, store.TitleSourceUser
		}
		conversation, err = o.store.CreateConversation(ctx, &store.Conversation{
			UID:         shortuuid.New(),
			CreatorID:   userID,
			Title:       title,
			TitleSource: titleSource,
			CreatedTs:   now,
			UpdatedTs:   now,
		})
		if err != nil {
			return nil, err
		}
	} else {
		conversation, err = o.store.GetConversation(ctx, &store.FindConversation{
			UID:       &req.ConversationUID,
			CreatorID: &userID,
		})
		if err != nil {
			return nil, err
		}
		if conversation == nil {
			return nil, errors.Errorf("conversation %s not found", req.ConversationUID)
		}
		if conversation.Generating {
			return nil, ErrGenerationInFlight
		}
	}

	var userText string
	if req.Message != "" {
		userText = req.Message
		var attachments []store.Annotation
		for _, image := range req.Images {
			attachments = append(attachments, store.Annotation{
				Type: "image",
				URL:  image,
			})
		}
		if _, err := o.store.CreateMessage(ctx, &store.Message{
			UID:            shortuuid.New(),
			ConversationID: conversation.ID,
			Role:           store.RoleUser,
			Content:        req.Message,
			Annotations:    attachments,
			CreatedTs:      now,
			UpdatedTs:      now,
		}); err != nil {
			return nil, err
		}
	}

	generating := true
	if _, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:         conversation.ID,
		Generating: &generating,
		UpdatedTs:  &now,
	}); err != nil {
		return nil, err
	}
	conversation.Generating = true

	// The run outlives the HTTP request, so it is rooted in a fresh
	// context bound only to the cancellation registry.
	runCtx, cancel := context.WithCancel(context.Background())
	token := o.registry.Register(conversation.UID, cancel)

	run := &generationRun{
		id:            uuid.NewString(),
		orchestrator:  o,
		userID:        userID,
		conversation:  conversation,
		model:         model,
		request:       req,
		userText:      userText,
		apiKey:        apiKey,
		isNew:         isNew,
		registryToken: token,
	}
	go run.execute(runCtx)

	return conversation, nil
}

// Cancel fires the cancellation handle for a conversation. It returns
// false when no generation is in flight; cancelling an idle
// conversation is not an error.
func (o *Orchestrator) Cancel(ctx context.Context, userID int32, conversationUID string) (bool, error) {
	conversation, err := o.store.GetConversation(ctx, &store.FindConversation{
		UID:       &conversationUID,
		CreatorID: &userID,
	})
	if err != nil {
		return false, err
	}
	if conversation == nil {
		return false, errors.Errorf("conversation %s not found", conversationUID)
	}

	cancelled := o.registry.Cancel(conversationUID)
	if cancelled && o.metrics != nil {
		o.metrics.Cancelled()
	}

	// Clear the flag here as well: the cancelled run clears it too,
	// but the caller observes generating=false as part of this call.
	if conversation.Generating {
		generating := false
		now := time.Now().Unix()
		if _, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
			ID:         conversation.ID,
			Generating: &generating,
			UpdatedTs:  &now,
		}); err != nil {
			return cancelled, err
		}
	}
	return cancelled, nil
}

// generationRun is one asynchronous generation.
type generationRun struct {
	// id correlates the run's log lines.
	id           string
	orchestrator *Orchestrator
	userID       int32
	conversation *store.Conversation
	model        *store.EnabledModel
	request      *GenerateRequest
	userText     string
	// apiKey was resolved synchronously before the run was scheduled.
	apiKey string
	isNew  bool
	// registryToken scopes the deferred release to this registration.
	registryToken uint64

	// finalized guards the single cost increment.
	finalized bool
}

// execute drives the run to a terminal state. Whatever happens, the
// registry entry is released and the generating flag cleared.
func (r *generationRun) execute(ctx context.Context) {
	o := r.orchestrator
	started := time.Now()
	status := "completed"

	if o.metrics != nil {
		o.metrics.GenerationStarted()
	}
	slog.Debug("generation run started",
		"run_id", r.id,
		"conversation", r.conversation.UID,
		"model", r.model.ModelID,
		"modality", r.model.Modality,
	)
	defer func() {
		o.registry.Release(r.conversation.UID, r.registryToken)
		if o.metrics != nil {
			o.metrics.GenerationFinished(string(r.model.Modality), status, time.Since(started))
		}
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		r.fail(err)
		status = statusFor(ctx, err)
		return
	}
	defer o.sem.Release(1)

	var err error
	switch r.model.Modality {
	case store.ModalityImage, store.ModalityVideo:
		err = r.runJob(ctx)
	default:
		err = r.runText(ctx)
	}
	if err != nil {
		status = statusFor(ctx, err)
	}
}

func statusFor(ctx context.Context, err error) string {
	if err == nil {
		return "completed"
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "failed"
}

// runText is the streamed text loop.
func (r *generationRun) runText(ctx context.Context) error {
	o := r.orchestrator

	messages, err := o.store.ListMessages(ctx, &store.FindMessage{
		ConversationID: &r.conversation.ID,
	})
	if err != nil {
		r.fail(err)
		return err
	}
	history := compact.FromMessages(messages)

	setting, err := o.store.GetUserSetting(ctx, &store.FindUserSetting{UserID: r.userID})
	if err != nil {
		slog.Warn("user setting load failed, using defaults", "user_id", r.userID, "error", err)
		setting = &store.UserSetting{UserID: r.userID}
	}

	built := o.contextBuilder().Build(ctx, &BuildOptions{
		UserID:        r.userID,
		UserMessage:   r.userText,
		History:       history,
		SearchMode:    r.request.searchMode(),
		MemoryEnabled: setting.MemoryEnabled,
	})

	client := o.newClient(&llm.Config{
		BaseURL:         o.profile.GatewayBaseURL,
		APIKey:          r.apiKey,
		Model:           r.model.ModelID,
		ReasoningEffort: r.request.ReasoningEffort,
		Timeout:         time.Duration(o.profile.GatewayTimeout) * time.Second,
	})

	if setting.CompressionEnabled {
		history = o.compactor.Compact(ctx, client, history)
	}

	prompt := make([]llm.Message, 0, len(history)+1)
	if built.System != "" {
		prompt = append(prompt, llm.Message{Role: "system", Content: built.System})
	}
	prompt = append(prompt, history...)

	assistant, err := r.createAssistantRow(ctx, built.Citations)
	if err != nil {
		r.fail(err)
		return err
	}

	chunks, errs := client.StreamChat(ctx, prompt)

	var content, reasoning string
	var usage *llm.Usage
	var streamErr error

loop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// Pick up a stream error that raced with the close.
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						streamErr = err
					}
				default:
				}
				break loop
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
				continue
			}
			content += chunk.ContentDelta
			reasoning += chunk.ReasoningDelta
			if content != "" || reasoning != "" {
				r.persistSnapshot(ctx, assistant.ID, content, reasoning)
			}
		case err, ok := <-errs:
			if !ok {
				// Closed without an error; keep draining chunks.
				errs = nil
				continue
			}
			if err != nil {
				streamErr = err
				break loop
			}
		case <-ctx.Done():
			streamErr = ctx.Err()
			break loop
		}
	}
	// A stream that ends because the run was cancelled is a
	// cancellation regardless of which channel closed first.
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	r.finalize(assistant.ID, content, reasoning, usage, built.EnrichmentCostUsd, streamErr)

	if streamErr == nil || errors.Is(streamErr, context.Canceled) {
		// Partial content from a cancelled run still feeds the async
		// followups when there is any.
		if content != "" {
			r.afterCompletion(assistant.ID, content, setting.MemoryEnabled, client)
		}
	}
	return streamErr
}

// createAssistantRow inserts the empty placeholder the stream mutates.
func (r *generationRun) createAssistantRow(ctx context.Context, citations []store.Annotation) (*store.Message, error) {
	now := time.Now().Unix()
	return r.orchestrator.store.CreateMessage(ctx, &store.Message{
		UID:            shortuuid.New(),
		ConversationID: r.conversation.ID,
		Role:           store.RoleAssistant,
		ModelID:        r.model.ModelID,
		Provider:       r.model.Provider,
		Annotations:    citations,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
}

// persistSnapshot writes the full accumulated state, never a delta, so
// the row is consistent for any concurrent reader.
func (r *generationRun) persistSnapshot(ctx context.Context, messageID int64, content, reasoning string) {
	now := time.Now().Unix()
	update := &store.UpdateMessage{
		ID:        messageID,
		Content:   &content,
		UpdatedTs: &now,
	}
	if reasoning != "" {
		update.Reasoning = &reasoning
	}
	if _, err := r.orchestrator.store.UpdateMessage(ctx, update); err != nil {
		slog.Warn("snapshot persist failed", "message_id", messageID, "error", err)
	}
}

// finalize writes the terminal message row, charges the conversation
// and clears the generating flag. It runs at most once per run; a
// second call is a no-op so cost is never double-counted.
func (r *generationRun) finalize(messageID int64, content, reasoning string, usage *llm.Usage, enrichmentCostUsd float64, streamErr error) {
	if r.finalized {
		return
	}
	r.finalized = true
	o := r.orchestrator

	// The run context may already be cancelled; cleanup writes get
	// their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().Unix()
	update := &store.UpdateMessage{
		ID:        messageID,
		Content:   &content,
		UpdatedTs: &now,
	}
	if reasoning != "" {
		update.Reasoning = &reasoning
	}
	if content != "" {
		if rendered, err := o.markdown.Render(content); err != nil {
			slog.Warn("markdown render failed, persisting without html", "message_id", messageID, "error", err)
		} else {
			update.ContentHTML = &rendered
		}
	}
	if streamErr != nil {
		errorText := streamErr.Error()
		if errors.Is(streamErr, context.Canceled) {
			errorText = cancelledErrorText
		}
		update.Error = &errorText
	}

	cost := ComputeCost(r.model, usage, enrichmentCostUsd)
	if usage != nil {
		tokenCount := int32(usage.TotalTokens)
		update.TokenCount = &tokenCount
		update.CostUsd = cost
		if o.metrics != nil {
			o.metrics.TokensUsed(r.model.ModelID, usage.PromptTokens, usage.CompletionTokens)
		}
	}

	if _, err := o.store.UpdateMessage(ctx, update); err != nil {
		slog.Error("terminal message persist failed", "message_id", messageID, "error", err)
	}

	generating := false
	conversationUpdate := &store.UpdateConversation{
		ID:         r.conversation.ID,
		Generating: &generating,
		UpdatedTs:  &now,
	}
	if cost != nil {
		conversationUpdate.AddCostUsd = cost
		if o.metrics != nil {
			o.metrics.CostAdded(r.model.ModelID, *cost)
		}
	}
	if _, err := o.store.UpdateConversation(ctx, conversationUpdate); err != nil {
		slog.Error("conversation finalize failed", "conversation_id", r.conversation.ID, "error", err)
	}
}

// fail records an error on the run before any assistant row exists.
func (r *generationRun) fail(cause error) {
	o := r.orchestrator
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Error("generation failed", "run_id", r.id, "conversation", r.conversation.UID, "error", cause)

	now := time.Now().Unix()
	errorText := cause.Error()
	if _, err := o.store.CreateMessage(ctx, &store.Message{
		UID:            shortuuid.New(),
		ConversationID: r.conversation.ID,
		Role:           store.RoleAssistant,
		ModelID:        r.model.ModelID,
		Provider:       r.model.Provider,
		Error:          &errorText,
		CreatedTs:      now,
		UpdatedTs:      now,
	}); err != nil {
		slog.Error("failure message persist failed", "conversation", r.conversation.UID, "error", err)
	}

	generating := false
	if _, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:         r.conversation.ID,
		Generating: &generating,
		UpdatedTs:  &now,
	}); err != nil {
		slog.Error("generating flag clear failed", "conversation", r.conversation.UID, "error", err)
	}
}

// afterCompletion runs the async followups of a finished exchange:
// title generation for fresh conversations, follow-up suggestions and
// memory recompression.
func (r *generationRun) afterCompletion(assistantID int64, assistantContent string, memoryEnabled bool, client StreamChatter) {
	o := r.orchestrator

	if r.isNew && o.titler != nil {
		go r.generateTitle(assistantContent)
	}
	if r.userText != "" {
		go r.generateSuggestions(assistantID, assistantContent, client)
	}
	if memoryEnabled && r.userText != "" {
		o.memory.CompressAsync(client, r.userID, r.userText, assistantContent)
	}
}

const suggestPrompt = `Given the last exchange of a conversation, propose up to 3 short follow-up questions the user might ask next.
Respond with a JSON object of the form {"suggestions": ["...", "..."]}. Respond with only the JSON.`

// generateSuggestions attaches follow-up suggestions to the finished
// assistant message. Failures only cost the suggestions.
func (r *generationRun) generateSuggestions(assistantID int64, assistantContent string, client StreamChatter) {
	o := r.orchestrator
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := client.ChatJSON(ctx, []llm.Message{
		{Role: "system", Content: suggestPrompt},
		{Role: "user", Content: "User: " + r.userText + "\nAssistant: " + assistantContent},
	})
	if err != nil {
		slog.Warn("suggestion generation failed", "run_id", r.id, "error", err)
		return
	}

	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("suggestion parse failed", "run_id", r.id, "error", err)
		return
	}
	suggestions := make([]string, 0, 3)
	for _, s := range parsed.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
		if len(suggestions) == 3 {
			break
		}
	}
	if len(suggestions) == 0 {
		return
	}

	now := time.Now().Unix()
	if _, err := o.store.UpdateMessage(ctx, &store.UpdateMessage{
		ID:          assistantID,
		Suggestions: suggestions,
		UpdatedTs:   &now,
	}); err != nil {
		slog.Warn("suggestion persist failed", "message_id", assistantID, "error", err)
	}
}

// generateTitle fills in an automatic title, but only while the
// conversation still carries the untouched placeholder. A user rename
// that lands first wins.
func (r *generationRun) generateTitle(assistantContent string) {
	o := r.orchestrator
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	current, err := o.store.GetConversation(ctx, &store.FindConversation{ID: &r.conversation.ID})
	if err != nil || current == nil {
		return
	}
	if current.TitleSource != store.TitleSourceDefault || current.Title != store.DefaultTitle {
		return
	}

	title, err := o.titler.Generate(ctx, r.userText, assistantContent)
	if err != nil {
		slog.Warn("title generation failed", "conversation", r.conversation.UID, "error", err)
		return
	}

	titleSource := store.TitleSourceAuto
	now := time.Now().Unix()
	if _, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:          r.conversation.ID,
		Title:       &title,
		TitleSource: &titleSource,
		UpdatedTs:   &now,
	}); err != nil {
		slog.Warn("title persist failed", "conversation", r.conversation.UID, "error", err)
	}
}
