package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/store"
)

func (d *DB) CreateRule(ctx context.Context, create *store.Rule) (*store.Rule, error) {
	stmt := `
		INSERT INTO rule (uid, creator_id, name, content, always_attach, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.CreatorID, create.Name, create.Content, create.AlwaysAttach, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create rule")
	}
	return create, nil
}

func (d *DB) ListRules(ctx context.Context, find *store.FindRule) ([]*store.Rule, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.CreatorID; v != nil {
		where, args = append(where, "creator_id = ?"), append(args, *v)
	}
	if v := find.Name; v != nil {
		where, args = append(where, "name = ?"), append(args, *v)
	}
	if v := find.AlwaysAttach; v != nil {
		where, args = append(where, "always_attach = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, creator_id, name, content, always_attach, created_ts, updated_ts
		FROM rule
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rules")
	}
	defer rows.Close()

	list := []*store.Rule{}
	for rows.Next() {
		rule := &store.Rule{}
		if err := rows.Scan(
			&rule.ID,
			&rule.UID,
			&rule.CreatorID,
			&rule.Name,
			&rule.Content,
			&rule.AlwaysAttach,
			&rule.CreatedTs,
			&rule.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan rule")
		}
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateRule(ctx context.Context, update *store.UpdateRule) (*store.Rule, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = ?"), append(args, *v)
	}
	if v := update.Content; v != nil {
		set, args = append(set, "content = ?"), append(args, *v)
	}
	if v := update.AlwaysAttach; v != nil {
		set, args = append(set, "always_attach = ?"), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := `
		UPDATE rule
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ?
		RETURNING id, uid, creator_id, name, content, always_attach, created_ts, updated_ts`
	rule := &store.Rule{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&rule.ID,
		&rule.UID,
		&rule.CreatorID,
		&rule.Name,
		&rule.Content,
		&rule.AlwaysAttach,
		&rule.CreatedTs,
		&rule.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to update rule")
	}
	return rule, nil
}

func (d *DB) DeleteRule(ctx context.Context, delete *store.DeleteRule) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM rule WHERE id = ? AND creator_id = ?", delete.ID, delete.CreatorID); err != nil {
		return errors.Wrap(err, "failed to delete rule")
	}
	return nil
}
