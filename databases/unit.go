package databases

// go generate: mockery --name UnitDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/camp-cad-api/models"
)

const unitName = "units"

// UnitDatabase contains the methods to use with the unit database
type UnitDatabase interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	InsertOne(ctx context.Context, unit *models.Unit) error
	ReplaceOne(ctx context.Context, unit *models.Unit) error
	Find(ctx context.Context, filter UnitFilter) ([]models.Unit, error)
}

type unitDatabase struct {
	db DatabaseHelper
}

// NewUnitDatabase initializes a new instance of unit database with the provided db connection
func NewUnitDatabase(db DatabaseHelper) UnitDatabase {
	return &unitDatabase{
		db: db,
	}
}

func (u *unitDatabase) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	unit := &models.Unit{}
	err := u.db.Collection(unitName).FindOne(ctx, bson.M{"_id": id}).Decode(&unit)
	if err != nil {
		return nil, mongoErr(err)
	}
	return unit, nil
}

func (u *unitDatabase) InsertOne(ctx context.Context, unit *models.Unit) error {
	_, err := u.db.Collection(unitName).InsertOne(ctx, unit)
	return mongoErr(err)
}

func (u *unitDatabase) ReplaceOne(ctx context.Context, unit *models.Unit) error {
	res, err := u.db.Collection(unitName).ReplaceOne(ctx, bson.M{"_id": unit.ID}, unit)
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *unitDatabase) Find(ctx context.Context, filter UnitFilter) ([]models.Unit, error) {
	query := bson.M{}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if len(filter.Types) > 0 {
		query["unit_type"] = bson.M{"$in": filter.Types}
	}
	if filter.AssignedCallID != "" {
		query["assigned_call_id"] = filter.AssignedCallID
	}

	var units []models.Unit
	cr, err := u.db.Collection(unitName).Find(ctx, query, options.Find().SetSort(bson.D{{Key: "unit_number", Value: 1}}))
	if err != nil {
		return nil, mongoErr(err)
	}
	if err = cr.Decode(&units); err != nil {
		return nil, err
	}
	if units == nil {
		units = []models.Unit{}
	}
	return units, nil
}
