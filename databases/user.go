package databases

// go generate: mockery --name UserDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/camp-cad-api/models"
)

const userName = "users"

// UserDatabase contains the methods to use with the user database
type UserDatabase interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	InsertOne(ctx context.Context, user *models.User) error
}

type userDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) UserDatabase {
	return &userDatabase{
		db: db,
	}
}

func (u *userDatabase) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := u.db.Collection(userName).FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		return nil, mongoErr(err)
	}
	return user, nil
}

func (u *userDatabase) InsertOne(ctx context.Context, user *models.User) error {
	_, err := u.db.Collection(userName).InsertOne(ctx, user)
	return mongoErr(err)
}
