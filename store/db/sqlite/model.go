package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/store"
)

func (d *DB) CreateEnabledModel(ctx context.Context, create *store.EnabledModel) (*store.EnabledModel, error) {
	stmt := `
		INSERT INTO enabled_model (user_id, model_id, provider, modality, prompt_price, completion_price, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, model_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			modality = EXCLUDED.modality,
			prompt_price = EXCLUDED.prompt_price,
			completion_price = EXCLUDED.completion_price
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UserID, create.ModelID, create.Provider, create.Modality, create.PromptPrice, create.CompletionPrice, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create enabled model")
	}
	return create, nil
}

func (d *DB) ListEnabledModels(ctx context.Context, find *store.FindEnabledModel) ([]*store.EnabledModel, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := find.ModelID; v != nil {
		where, args = append(where, "model_id = ?"), append(args, *v)
	}

	query := `
		SELECT id, user_id, model_id, provider, modality, prompt_price, completion_price, created_ts
		FROM enabled_model
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enabled models")
	}
	defer rows.Close()

	list := []*store.EnabledModel{}
	for rows.Next() {
		model := &store.EnabledModel{}
		if err := rows.Scan(
			&model.ID,
			&model.UserID,
			&model.ModelID,
			&model.Provider,
			&model.Modality,
			&model.PromptPrice,
			&model.CompletionPrice,
			&model.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan enabled model")
		}
		list = append(list, model)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) DeleteEnabledModel(ctx context.Context, delete *store.DeleteEnabledModel) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM enabled_model WHERE id = ? AND user_id = ?", delete.ID, delete.UserID); err != nil {
		return errors.Wrap(err, "failed to delete enabled model")
	}
	return nil
}
