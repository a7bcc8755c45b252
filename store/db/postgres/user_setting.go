package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/store"
)

func (d *DB) GetUserSetting(ctx context.Context, find *store.FindUserSetting) (*store.UserSetting, error) {
	setting := &store.UserSetting{}
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, memory_enabled, compression_enabled
		FROM user_setting
		WHERE user_id = $1`, find.UserID,
	).Scan(&setting.UserID, &setting.MemoryEnabled, &setting.CompressionEnabled)
	if err == sql.ErrNoRows {
		return &store.UserSetting{UserID: find.UserID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user setting")
	}
	return setting, nil
}

func (d *DB) UpsertUserSetting(ctx context.Context, upsert *store.UserSetting) (*store.UserSetting, error) {
	stmt := `
		INSERT INTO user_setting (user_id, memory_enabled, compression_enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			memory_enabled = EXCLUDED.memory_enabled,
			compression_enabled = EXCLUDED.compression_enabled`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, upsert.MemoryEnabled, upsert.CompressionEnabled); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user setting")
	}
	return upsert, nil
}

func (d *DB) ListUserCredentials(ctx context.Context, find *store.FindUserCredential) ([]*store.UserCredential, error) {
	where, args := []string{"TRUE"}, []any{}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Provider; v != nil {
		where, args = append(where, "provider = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, user_id, provider, key_cipher, created_ts, updated_ts
		FROM user_credential
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY provider ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user credentials")
	}
	defer rows.Close()

	list := []*store.UserCredential{}
	for rows.Next() {
		credential := &store.UserCredential{}
		if err := rows.Scan(
			&credential.ID,
			&credential.UserID,
			&credential.Provider,
			&credential.KeyCipher,
			&credential.CreatedTs,
			&credential.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user credential")
		}
		list = append(list, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpsertUserCredential(ctx context.Context, upsert *store.UserCredential) (*store.UserCredential, error) {
	stmt := `
		INSERT INTO user_credential (user_id, provider, key_cipher, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			key_cipher = EXCLUDED.key_cipher,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID, upsert.Provider, upsert.KeyCipher, upsert.CreatedTs, upsert.UpdatedTs,
	).Scan(&upsert.ID); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user credential")
	}
	return upsert, nil
}

func (d *DB) DeleteUserCredential(ctx context.Context, delete *store.DeleteUserCredential) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM user_credential WHERE user_id = $1 AND provider = $2", delete.UserID, delete.Provider); err != nil {
		return errors.Wrap(err, "failed to delete user credential")
	}
	return nil
}

func (d *DB) GetUserMemory(ctx context.Context, userID int32) (*store.UserMemory, error) {
	memory := &store.UserMemory{}
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, content, updated_ts
		FROM user_memory
		WHERE user_id = $1`, userID,
	).Scan(&memory.UserID, &memory.Content, &memory.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user memory")
	}
	return memory, nil
}

func (d *DB) UpsertUserMemory(ctx context.Context, upsert *store.UserMemory) (*store.UserMemory, error) {
	stmt := `
		INSERT INTO user_memory (user_id, content, updated_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, upsert.Content, upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user memory")
	}
	return upsert, nil
}
