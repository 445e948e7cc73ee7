package sqlstore

import (
	"context"

	"github.com/linesmerrill/camp-cad-api/models"
)

type callUpdateTable struct {
	db *DB
}

func (t *callUpdateTable) InsertOne(ctx context.Context, update *models.CallUpdate) error {
	meta := "{}"
	if len(update.Metadata) > 0 {
		var err error
		if meta, err = encodeJSON(update.Metadata); err != nil {
			return err
		}
	}
	_, err := t.db.q(ctx).ExecContext(ctx, `INSERT INTO call_updates
		(id, call_id, user_id, user_name, update_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		update.ID, update.CallID, update.ActorID, update.ActorName, string(update.Type),
		update.Description, meta, toNanos(update.CreatedAt))
	return sqlErr(err)
}

// FindByCall returns the trail newest first
func (t *callUpdateTable) FindByCall(ctx context.Context, callID string) ([]models.CallUpdate, error) {
	rows, err := t.db.q(ctx).QueryContext(ctx, `SELECT id, call_id, user_id, user_name, update_type, description, metadata, created_at
		FROM call_updates WHERE call_id = ? ORDER BY created_at DESC, rowid DESC`, callID)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	updates := []models.CallUpdate{}
	for rows.Next() {
		var (
			u         models.CallUpdate
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &u.CallID, &u.ActorID, &u.ActorName, &u.Type, &u.Description, &meta, &createdAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(meta, &u.Metadata); err != nil {
			return nil, err
		}
		if len(u.Metadata) == 0 {
			u.Metadata = nil
		}
		u.CreatedAt = fromNanos(createdAt)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}
