package sqlstore

import (
	"context"
	"time"
)

type lockTable struct {
	db *DB
}

// TryAcquireLock takes the lease when it is free, expired or already ours
func (t *lockTable) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := t.db.q(ctx).ExecContext(ctx, `INSERT INTO scheduler_locks (name, owner, expires_at, acquired_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at, acquired_at = excluded.acquired_at
		WHERE scheduler_locks.expires_at < ? OR scheduler_locks.owner = excluded.owner`,
		name, owner, now.Add(ttl).UnixNano(), now.UnixNano(), now.UnixNano())
	if err != nil {
		return false, sqlErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *lockTable) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := t.db.q(ctx).ExecContext(ctx, `DELETE FROM scheduler_locks WHERE name = ? AND owner = ?`, name, owner)
	return sqlErr(err)
}
