package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/camp-cad-api/models"
)

const callUpdateName = "call_updates"

// CallUpdateDatabase is the append-only audit trail of calls
type CallUpdateDatabase interface {
	InsertOne(ctx context.Context, update *models.CallUpdate) error
	FindByCall(ctx context.Context, callID string) ([]models.CallUpdate, error)
}

type callUpdateDatabase struct {
	db DatabaseHelper
}

// NewCallUpdateDatabase initializes a new instance of call update database with the provided db connection
func NewCallUpdateDatabase(db DatabaseHelper) CallUpdateDatabase {
	return &callUpdateDatabase{
		db: db,
	}
}

func (c *callUpdateDatabase) InsertOne(ctx context.Context, update *models.CallUpdate) error {
	_, err := c.db.Collection(callUpdateName).InsertOne(ctx, update)
	return mongoErr(err)
}

// FindByCall returns the trail newest first
func (c *callUpdateDatabase) FindByCall(ctx context.Context, callID string) ([]models.CallUpdate, error) {
	var updates []models.CallUpdate
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cr, err := c.db.Collection(callUpdateName).Find(ctx, bson.M{"call_id": callID}, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	if err = cr.Decode(&updates); err != nil {
		return nil, err
	}
	if updates == nil {
		updates = []models.CallUpdate{}
	}
	return updates, nil
}
