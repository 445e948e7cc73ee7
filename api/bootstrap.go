package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/models"
)

// SupervisorRole is the role of the bootstrap account
const SupervisorRole = "supervisor"

// EnsureAdmin creates the bootstrap supervisor account when it does not exist
// yet. An empty password disables the bootstrap.
func EnsureAdmin(ctx context.Context, users databases.UserDatabase, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := users.FindByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, databases.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Name:         username,
		Role:         SupervisorRole,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.InsertOne(ctx, user); err != nil && !errors.Is(err, databases.ErrDuplicateKey) {
		return err
	}
	zap.S().Infow("bootstrap account ready", "username", username)
	return nil
}
