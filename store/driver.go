package store

import (
	"context"
	"database/sql"
)

// Driver is the interface every database backend must implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error)

	CreateEnabledModel(ctx context.Context, create *EnabledModel) (*EnabledModel, error)
	ListEnabledModels(ctx context.Context, find *FindEnabledModel) ([]*EnabledModel, error)
	DeleteEnabledModel(ctx context.Context, delete *DeleteEnabledModel) error

	CreateRule(ctx context.Context, create *Rule) (*Rule, error)
	ListRules(ctx context.Context, find *FindRule) ([]*Rule, error)
	UpdateRule(ctx context.Context, update *UpdateRule) (*Rule, error)
	DeleteRule(ctx context.Context, delete *DeleteRule) error

	GetUserSetting(ctx context.Context, find *FindUserSetting) (*UserSetting, error)
	UpsertUserSetting(ctx context.Context, upsert *UserSetting) (*UserSetting, error)

	ListUserCredentials(ctx context.Context, find *FindUserCredential) ([]*UserCredential, error)
	UpsertUserCredential(ctx context.Context, upsert *UserCredential) (*UserCredential, error)
	DeleteUserCredential(ctx context.Context, delete *DeleteUserCredential) error

	GetUserMemory(ctx context.Context, userID int32) (*UserMemory, error)
	UpsertUserMemory(ctx context.Context, upsert *UserMemory) (*UserMemory, error)
}
