package sqlstore

import "context"

type counterTable struct {
	db *DB
}

// Seed raises the counter to at least floor
func (t *counterTable) Seed(ctx context.Context, name string, floor int64) error {
	_, err := t.db.q(ctx).ExecContext(ctx, `INSERT INTO counters (name, seq) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET seq = MAX(seq, excluded.seq)`, name, floor)
	return sqlErr(err)
}

// Next increments the counter and returns the new value
func (t *counterTable) Next(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := t.db.q(ctx).QueryRowContext(ctx, `INSERT INTO counters (name, seq) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET seq = seq + 1 RETURNING seq`, name).Scan(&seq)
	if err != nil {
		return 0, sqlErr(err)
	}
	return seq, nil
}
