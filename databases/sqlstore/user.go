package sqlstore

import (
	"context"

	"github.com/linesmerrill/camp-cad-api/models"
)

type userTable struct {
	db *DB
}

func (t *userTable) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var (
		u         models.User
		active    int
		createdAt int64
	)
	err := t.db.q(ctx).QueryRowContext(ctx, `SELECT id, username, name, email, role, password_hash, is_active, created_at
		FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &active, &createdAt)
	if err != nil {
		return nil, sqlErr(err)
	}
	u.IsActive = active == 1
	u.CreatedAt = fromNanos(createdAt)
	return &u, nil
}

func (t *userTable) InsertOne(ctx context.Context, user *models.User) error {
	_, err := t.db.q(ctx).ExecContext(ctx, `INSERT INTO users (id, username, name, email, role, password_hash, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Name, user.Email, user.Role, user.PasswordHash, boolInt(user.IsActive), toNanos(user.CreatedAt))
	return sqlErr(err)
}
