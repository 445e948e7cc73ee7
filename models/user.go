package models

import "time"

// User holds the structure for the users collection; dispatchers and supervisors sign in with it
type User struct {
	ID           string    `json:"id" bson:"_id" yaml:"id"`
	Username     string    `json:"username" bson:"username" yaml:"username"`
	Name         string    `json:"name" bson:"name" yaml:"name"`
	Email        string    `json:"email,omitempty" bson:"email,omitempty" yaml:"email"`
	Role         string    `json:"role" bson:"role" yaml:"role"`
	PasswordHash string    `json:"-" bson:"password_hash" yaml:"password_hash"`
	IsActive     bool      `json:"is_active" bson:"is_active" yaml:"is_active"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" yaml:"-"`
}
