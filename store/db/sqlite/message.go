package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	annotations, err := marshalAnnotations(create.Annotations)
	if err != nil {
		return nil, err
	}
	suggestions, err := marshalSuggestions(create.Suggestions)
	if err != nil {
		return nil, err
	}

	fields := []string{"uid", "conversation_id", "role", "content", "content_html", "reasoning", "error", "model_id", "provider", "token_count", "cost_usd", "annotations", "suggestions", "created_ts", "updated_ts"}
	args := []any{create.UID, create.ConversationID, create.Role, create.Content, create.ContentHTML, create.Reasoning, create.Error, create.ModelID, create.Provider, create.TokenCount, create.CostUsd, annotations, suggestions, create.CreatedTs, create.UpdatedTs}

	stmt := "INSERT INTO message (" + strings.Join(fields, ", ") + ") VALUES (" + strings.Repeat("?, ", len(fields)-1) + "?) RETURNING id"
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.ConversationID; v != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *v)
	}
	if v := find.Role; v != nil {
		where, args = append(where, "role = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, conversation_id, role, content, content_html, reasoning, error, model_id, provider, token_count, cost_usd, annotations, suggestions, created_ts, updated_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		message, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	set, args := []string{}, []any{}
	if v := update.Content; v != nil {
		set, args = append(set, "content = ?"), append(args, *v)
	}
	if v := update.ContentHTML; v != nil {
		set, args = append(set, "content_html = ?"), append(args, *v)
	}
	if v := update.Reasoning; v != nil {
		set, args = append(set, "reasoning = ?"), append(args, *v)
	}
	if v := update.Error; v != nil {
		set, args = append(set, "error = ?"), append(args, *v)
	}
	if v := update.TokenCount; v != nil {
		set, args = append(set, "token_count = ?"), append(args, *v)
	}
	if v := update.CostUsd; v != nil {
		set, args = append(set, "cost_usd = ?"), append(args, *v)
	}
	if update.Annotations != nil {
		annotations, err := marshalAnnotations(update.Annotations)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "annotations = ?"), append(args, annotations)
	}
	if update.Suggestions != nil {
		suggestions, err := marshalSuggestions(update.Suggestions)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "suggestions = ?"), append(args, suggestions)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := `
		UPDATE message
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ?
		RETURNING id, uid, conversation_id, role, content, content_html, reasoning, error, model_id, provider, token_count, cost_usd, annotations, suggestions, created_ts, updated_ts`
	message, err := scanMessage(func(dest ...any) error {
		return d.db.QueryRowContext(ctx, stmt, args...).Scan(dest...)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to update message")
	}
	return message, nil
}

func scanMessage(scan func(dest ...any) error) (*store.Message, error) {
	message := &store.Message{}
	var annotations, suggestions string
	if err := scan(
		&message.ID,
		&message.UID,
		&message.ConversationID,
		&message.Role,
		&message.Content,
		&message.ContentHTML,
		&message.Reasoning,
		&message.Error,
		&message.ModelID,
		&message.Provider,
		&message.TokenCount,
		&message.CostUsd,
		&annotations,
		&suggestions,
		&message.CreatedTs,
		&message.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan message")
	}
	if err := json.Unmarshal([]byte(annotations), &message.Annotations); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal annotations")
	}
	if err := json.Unmarshal([]byte(suggestions), &message.Suggestions); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal suggestions")
	}
	return message, nil
}

func marshalAnnotations(annotations []store.Annotation) (string, error) {
	if annotations == nil {
		annotations = []store.Annotation{}
	}
	bytes, err := json.Marshal(annotations)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal annotations")
	}
	return string(bytes), nil
}

func marshalSuggestions(suggestions []string) (string, error) {
	if suggestions == nil {
		suggestions = []string{}
	}
	bytes, err := json.Marshal(suggestions)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal suggestions")
	}
	return string(bytes), nil
}
