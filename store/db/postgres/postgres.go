// Package postgres implements the store driver on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection with the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	return &DB{db: postgresDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	title_source TEXT NOT NULL DEFAULT 'default',
	parent_uid TEXT,
	generating BOOLEAN NOT NULL DEFAULT FALSE,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	pinned BOOLEAN NOT NULL DEFAULT FALSE,
	public BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS message (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	conversation_id INTEGER NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	content_html TEXT,
	reasoning TEXT,
	error TEXT,
	model_id TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	token_count INTEGER,
	cost_usd DOUBLE PRECISION,
	annotations TEXT NOT NULL DEFAULT '[]',
	suggestions TEXT NOT NULL DEFAULT '[]',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message (conversation_id);

CREATE TABLE IF NOT EXISTS enabled_model (
	id SERIAL PRIMARY KEY,
	user_id INTEGER NOT NULL,
	model_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	modality TEXT NOT NULL DEFAULT 'text',
	prompt_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	completion_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	UNIQUE (user_id, model_id)
);

CREATE TABLE IF NOT EXISTS rule (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	always_attach BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	UNIQUE (creator_id, name)
);

CREATE TABLE IF NOT EXISTS user_setting (
	user_id INTEGER PRIMARY KEY,
	memory_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	compression_enabled BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS user_credential (
	id SERIAL PRIMARY KEY,
	user_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	key_cipher TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS user_memory (
	user_id INTEGER PRIMARY KEY,
	content TEXT NOT NULL DEFAULT '',
	updated_ts BIGINT NOT NULL
);
`

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// placeholder returns the nth positional parameter, e.g. $1.
func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

// placeholders returns n positional parameters joined with commas,
// starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
