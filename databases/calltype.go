package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/camp-cad-api/models"
)

const callTypeName = "call_types"

// CallTypeDatabase contains the methods to use with the call type database
type CallTypeDatabase interface {
	FindByID(ctx context.Context, id string) (*models.CallType, error)
	Find(ctx context.Context, activeOnly bool) ([]models.CallType, error)
	InsertOne(ctx context.Context, callType *models.CallType) error
}

type callTypeDatabase struct {
	db DatabaseHelper
}

// NewCallTypeDatabase initializes a new instance of call type database with the provided db connection
func NewCallTypeDatabase(db DatabaseHelper) CallTypeDatabase {
	return &callTypeDatabase{
		db: db,
	}
}

func (c *callTypeDatabase) FindByID(ctx context.Context, id string) (*models.CallType, error) {
	callType := &models.CallType{}
	err := c.db.Collection(callTypeName).FindOne(ctx, bson.M{"_id": id}).Decode(&callType)
	if err != nil {
		return nil, mongoErr(err)
	}
	return callType, nil
}

func (c *callTypeDatabase) Find(ctx context.Context, activeOnly bool) ([]models.CallType, error) {
	query := bson.M{}
	if activeOnly {
		query["is_active"] = true
	}

	var callTypes []models.CallType
	cr, err := c.db.Collection(callTypeName).Find(ctx, query, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mongoErr(err)
	}
	if err = cr.Decode(&callTypes); err != nil {
		return nil, err
	}
	if callTypes == nil {
		callTypes = []models.CallType{}
	}
	return callTypes, nil
}

func (c *callTypeDatabase) InsertOne(ctx context.Context, callType *models.CallType) error {
	_, err := c.db.Collection(callTypeName).InsertOne(ctx, callType)
	return mongoErr(err)
}
