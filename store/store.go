package store

import (
	"context"

	"github.com/driftchat/driftchat/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the single conversation matching find, or nil.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error) {
	return s.driver.UpdateMessage(ctx, update)
}

func (s *Store) CreateEnabledModel(ctx context.Context, create *EnabledModel) (*EnabledModel, error) {
	return s.driver.CreateEnabledModel(ctx, create)
}

func (s *Store) ListEnabledModels(ctx context.Context, find *FindEnabledModel) ([]*EnabledModel, error) {
	return s.driver.ListEnabledModels(ctx, find)
}

func (s *Store) DeleteEnabledModel(ctx context.Context, delete *DeleteEnabledModel) error {
	return s.driver.DeleteEnabledModel(ctx, delete)
}

func (s *Store) CreateRule(ctx context.Context, create *Rule) (*Rule, error) {
	return s.driver.CreateRule(ctx, create)
}

func (s *Store) ListRules(ctx context.Context, find *FindRule) ([]*Rule, error) {
	return s.driver.ListRules(ctx, find)
}

func (s *Store) UpdateRule(ctx context.Context, update *UpdateRule) (*Rule, error) {
	return s.driver.UpdateRule(ctx, update)
}

func (s *Store) DeleteRule(ctx context.Context, delete *DeleteRule) error {
	return s.driver.DeleteRule(ctx, delete)
}

func (s *Store) GetUserSetting(ctx context.Context, find *FindUserSetting) (*UserSetting, error) {
	return s.driver.GetUserSetting(ctx, find)
}

func (s *Store) UpsertUserSetting(ctx context.Context, upsert *UserSetting) (*UserSetting, error) {
	return s.driver.UpsertUserSetting(ctx, upsert)
}

func (s *Store) ListUserCredentials(ctx context.Context, find *FindUserCredential) ([]*UserCredential, error) {
	return s.driver.ListUserCredentials(ctx, find)
}

func (s *Store) UpsertUserCredential(ctx context.Context, upsert *UserCredential) (*UserCredential, error) {
	return s.driver.UpsertUserCredential(ctx, upsert)
}

func (s *Store) DeleteUserCredential(ctx context.Context, delete *DeleteUserCredential) error {
	return s.driver.DeleteUserCredential(ctx, delete)
}

func (s *Store) GetUserMemory(ctx context.Context, userID int32) (*UserMemory, error) {
	return s.driver.GetUserMemory(ctx, userID)
}

func (s *Store) UpsertUserMemory(ctx context.Context, upsert *UserMemory) (*UserMemory, error) {
	return s.driver.UpsertUserMemory(ctx, upsert)
}
