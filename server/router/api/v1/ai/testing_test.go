package ai

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/store"
)

// fakeDriver is an in-memory store driver for orchestrator tests.
type fakeDriver struct {
	mu sync.Mutex

	conversations map[int32]*store.Conversation
	messages      map[int64]*store.Message
	models        map[int32]*store.EnabledModel
	rules         map[int32]*store.Rule
	settings      map[int32]*store.UserSetting
	credentials   map[int32][]*store.UserCredential
	memories      map[int32]*store.UserMemory

	nextConversationID int32
	nextMessageID      int64
	nextModelID        int32
	nextRuleID         int32

	// snapshots records every persisted content state of each message,
	// in write order.
	snapshots map[int64][]string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		conversations: map[int32]*store.Conversation{},
		messages:      map[int64]*store.Message{},
		models:        map[int32]*store.EnabledModel{},
		rules:         map[int32]*store.Rule{},
		settings:      map[int32]*store.UserSetting{},
		credentials:   map[int32][]*store.UserCredential{},
		memories:      map[int32]*store.UserMemory{},
		snapshots:     map[int64][]string{},
	}
}

func (d *fakeDriver) GetDB() *sql.DB                  { return nil }
func (d *fakeDriver) Close() error                    { return nil }
func (d *fakeDriver) Migrate(_ context.Context) error { return nil }

func (d *fakeDriver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextConversationID++
	create.ID = d.nextConversationID
	clone := *create
	d.conversations[create.ID] = &clone
	return create, nil
}

func (d *fakeDriver) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.Conversation{}
	for _, c := range d.conversations {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.CreatorID != nil && c.CreatorID != *find.CreatorID {
			continue
		}
		clone := *c
		list = append(list, &clone)
	}
	return list, nil
}

func (d *fakeDriver) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conversations[update.ID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.TitleSource != nil {
		c.TitleSource = *update.TitleSource
	}
	if update.Generating != nil {
		c.Generating = *update.Generating
	}
	if update.AddCostUsd != nil {
		c.CostUsd += *update.AddCostUsd
	}
	if update.Pinned != nil {
		c.Pinned = *update.Pinned
	}
	if update.Public != nil {
		c.Public = *update.Public
	}
	if update.UpdatedTs != nil {
		c.UpdatedTs = *update.UpdatedTs
	}
	clone := *c
	return &clone, nil
}

func (d *fakeDriver) DeleteConversation(_ context.Context, del *store.DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, m := range d.messages {
		if m.ConversationID == del.ID {
			delete(d.messages, id)
		}
	}
	delete(d.conversations, del.ID)
	return nil
}

func (d *fakeDriver) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextMessageID++
	create.ID = d.nextMessageID
	clone := *create
	d.messages[create.ID] = &clone
	return create, nil
}

func (d *fakeDriver) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.Message{}
	for id := int64(1); id <= d.nextMessageID; id++ {
		m, ok := d.messages[id]
		if !ok {
			continue
		}
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UID != nil && m.UID != *find.UID {
			continue
		}
		if find.ConversationID != nil && m.ConversationID != *find.ConversationID {
			continue
		}
		if find.Role != nil && m.Role != *find.Role {
			continue
		}
		clone := *m
		list = append(list, &clone)
	}
	return list, nil
}

func (d *fakeDriver) UpdateMessage(_ context.Context, update *store.UpdateMessage) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.messages[update.ID]
	if !ok {
		return nil, errors.New("message not found")
	}
	if update.Content != nil {
		m.Content = *update.Content
		d.snapshots[m.ID] = append(d.snapshots[m.ID], m.Content)
	}
	if update.ContentHTML != nil {
		m.ContentHTML = update.ContentHTML
	}
	if update.Reasoning != nil {
		m.Reasoning = update.Reasoning
	}
	if update.Error != nil {
		m.Error = update.Error
	}
	if update.TokenCount != nil {
		m.TokenCount = update.TokenCount
	}
	if update.CostUsd != nil {
		m.CostUsd = update.CostUsd
	}
	if update.Annotations != nil {
		m.Annotations = update.Annotations
	}
	if update.Suggestions != nil {
		m.Suggestions = update.Suggestions
	}
	if update.UpdatedTs != nil {
		m.UpdatedTs = *update.UpdatedTs
	}
	clone := *m
	return &clone, nil
}

func (d *fakeDriver) CreateEnabledModel(_ context.Context, create *store.EnabledModel) (*store.EnabledModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextModelID++
	create.ID = d.nextModelID
	clone := *create
	d.models[create.ID] = &clone
	return create, nil
}

func (d *fakeDriver) ListEnabledModels(_ context.Context, find *store.FindEnabledModel) ([]*store.EnabledModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.EnabledModel{}
	for _, m := range d.models {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UserID != nil && m.UserID != *find.UserID {
			continue
		}
		if find.ModelID != nil && m.ModelID != *find.ModelID {
			continue
		}
		clone := *m
		list = append(list, &clone)
	}
	return list, nil
}

func (d *fakeDriver) DeleteEnabledModel(_ context.Context, del *store.DeleteEnabledModel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.models, del.ID)
	return nil
}

func (d *fakeDriver) CreateRule(_ context.Context, create *store.Rule) (*store.Rule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextRuleID++
	create.ID = d.nextRuleID
	clone := *create
	d.rules[create.ID] = &clone
	return create, nil
}

func (d *fakeDriver) ListRules(_ context.Context, find *store.FindRule) ([]*store.Rule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.Rule{}
	for id := int32(1); id <= d.nextRuleID; id++ {
		r, ok := d.rules[id]
		if !ok {
			continue
		}
		if find.ID != nil && r.ID != *find.ID {
			continue
		}
		if find.UID != nil && r.UID != *find.UID {
			continue
		}
		if find.CreatorID != nil && r.CreatorID != *find.CreatorID {
			continue
		}
		if find.Name != nil && r.Name != *find.Name {
			continue
		}
		if find.AlwaysAttach != nil && r.AlwaysAttach != *find.AlwaysAttach {
			continue
		}
		clone := *r
		list = append(list, &clone)
	}
	return list, nil
}

func (d *fakeDriver) UpdateRule(_ context.Context, update *store.UpdateRule) (*store.Rule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rules[update.ID]
	if !ok {
		return nil, errors.New("rule not found")
	}
	if update.Name != nil {
		r.Name = *update.Name
	}
	if update.Content != nil {
		r.Content = *update.Content
	}
	if update.AlwaysAttach != nil {
		r.AlwaysAttach = *update.AlwaysAttach
	}
	clone := *r
	return &clone, nil
}

func (d *fakeDriver) DeleteRule(_ context.Context, del *store.DeleteRule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rules, del.ID)
	return nil
}

func (d *fakeDriver) GetUserSetting(_ context.Context, find *store.FindUserSetting) (*store.UserSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.settings[find.UserID]; ok {
		clone := *s
		return &clone, nil
	}
	return &store.UserSetting{UserID: find.UserID}, nil
}

func (d *fakeDriver) UpsertUserSetting(_ context.Context, upsert *store.UserSetting) (*store.UserSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	d.settings[upsert.UserID] = &clone
	return upsert, nil
}

func (d *fakeDriver) ListUserCredentials(_ context.Context, find *store.FindUserCredential) ([]*store.UserCredential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.UserCredential{}
	for userID, credentials := range d.credentials {
		if find.UserID != nil && userID != *find.UserID {
			continue
		}
		for _, c := range credentials {
			if find.Provider != nil && c.Provider != *find.Provider {
				continue
			}
			clone := *c
			list = append(list, &clone)
		}
	}
	return list, nil
}

func (d *fakeDriver) UpsertUserCredential(_ context.Context, upsert *store.UserCredential) (*store.UserCredential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	d.credentials[upsert.UserID] = append(d.credentials[upsert.UserID], &clone)
	return upsert, nil
}

func (d *fakeDriver) DeleteUserCredential(_ context.Context, del *store.DeleteUserCredential) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := []*store.UserCredential{}
	for _, c := range d.credentials[del.UserID] {
		if c.Provider != del.Provider {
			kept = append(kept, c)
		}
	}
	d.credentials[del.UserID] = kept
	return nil
}

func (d *fakeDriver) GetUserMemory(_ context.Context, userID int32) (*store.UserMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memories[userID]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, nil
}

func (d *fakeDriver) UpsertUserMemory(_ context.Context, upsert *store.UserMemory) (*store.UserMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	d.memories[upsert.UserID] = &clone
	return upsert, nil
}

// messageSnapshots returns the recorded content snapshots of a message.
func (d *fakeDriver) messageSnapshots(id int64) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.snapshots[id]...)
}

func (d *fakeDriver) conversation(id int32) *store.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.conversations[id]; ok {
		clone := *c
		return &clone
	}
	return nil
}

// fakeStreamChatter scripts a stream for the text loop.
type fakeStreamChatter struct {
	chunks []llm.StreamChunk
	// err, when set, is emitted after the scripted chunks.
	err error
	// block, when set, parks the stream until the context dies.
	block bool

	chatResponse string
	chatErr      error

	jsonResponse string
}

func (f *fakeStreamChatter) Chat(_ context.Context, _ []llm.Message) (string, *llm.Usage, error) {
	return f.chatResponse, nil, f.chatErr
}

func (f *fakeStreamChatter) ChatJSON(_ context.Context, _ []llm.Message) (string, error) {
	if f.jsonResponse == "" {
		return "", errors.New("no scripted json response")
	}
	return f.jsonResponse, nil
}

func (f *fakeStreamChatter) StreamChat(ctx context.Context, _ []llm.Message) (<-chan llm.StreamChunk, <-chan error) {
	chunkChan := make(chan llm.StreamChunk, len(f.chunks))
	errChan := make(chan error, 1)
	go func() {
		defer close(chunkChan)
		defer close(errChan)
		for _, chunk := range f.chunks {
			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if f.block {
			<-ctx.Done()
			return
		}
		if f.err != nil {
			errChan <- f.err
		}
	}()
	return chunkChan, errChan
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:           "dev",
		Secret:         "0123456789abcdef0123456789abcdef",
		GatewayBaseURL: "http://gateway.invalid/v1",
		FallbackKeys:   map[string]string{"openrouter": "fallback-key"},
	}
}

// newTestOrchestrator wires an orchestrator over the fake driver with
// a scripted stream.
func newTestOrchestrator(driver *fakeDriver, chatter *fakeStreamChatter) *Orchestrator {
	prof := testProfile()
	st := store.New(driver, prof)
	o := NewOrchestrator(st, prof, nil)
	o.titler = nil
	o.newClient = func(_ *llm.Config) StreamChatter {
		return chatter
	}
	return o
}

// enableTestModel registers a text model priced $1/$2 per 1M tokens.
func enableTestModel(driver *fakeDriver, userID int32) *store.EnabledModel {
	model, _ := driver.CreateEnabledModel(context.Background(), &store.EnabledModel{
		UserID:          userID,
		ModelID:         "m1",
		Provider:        "openrouter",
		Modality:        store.ModalityText,
		PromptPrice:     1,
		CompletionPrice: 2,
	})
	return model
}

// waitUntil polls cond until it holds or two seconds pass.
func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
