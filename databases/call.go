package databases

// go generate: mockery --name CallDatabase

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/camp-cad-api/models"
)

const callName = "calls"

// CallDatabase contains the methods to use with the call database
type CallDatabase interface {
	FindByID(ctx context.Context, id string) (*models.Call, error)
	InsertOne(ctx context.Context, call *models.Call) error
	ReplaceOne(ctx context.Context, call *models.Call) error
	Find(ctx context.Context, filter CallFilter) ([]models.Call, int64, error)
	FindActive(ctx context.Context) ([]models.Call, error)
	CallNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

type callDatabase struct {
	db DatabaseHelper
}

// NewCallDatabase initializes a new instance of call database with the provided db connection
func NewCallDatabase(db DatabaseHelper) CallDatabase {
	return &callDatabase{
		db: db,
	}
}

func (c *callDatabase) FindByID(ctx context.Context, id string) (*models.Call, error) {
	call := &models.Call{}
	err := c.db.Collection(callName).FindOne(ctx, bson.M{"_id": id}).Decode(&call)
	if err != nil {
		return nil, mongoErr(err)
	}
	normalizeCall(call)
	return call, nil
}

func (c *callDatabase) InsertOne(ctx context.Context, call *models.Call) error {
	normalizeCall(call)
	_, err := c.db.Collection(callName).InsertOne(ctx, call)
	return mongoErr(err)
}

func (c *callDatabase) ReplaceOne(ctx context.Context, call *models.Call) error {
	normalizeCall(call)
	res, err := c.db.Collection(callName).ReplaceOne(ctx, bson.M{"_id": call.ID}, call)
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *callDatabase) Find(ctx context.Context, filter CallFilter) ([]models.Call, int64, error) {
	query := callQuery(filter)

	total, err := c.db.Collection(callName).CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, mongoErr(err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	calls, err := c.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

func (c *callDatabase) FindActive(ctx context.Context) ([]models.Call, error) {
	query := bson.M{"status": bson.M{"$in": models.ActiveCallStatuses}}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "created_at", Value: 1}})
	return c.find(ctx, query, opts)
}

func (c *callDatabase) CallNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	query := bson.M{"call_number": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetProjection(bson.M{"call_number": 1})

	cr, err := c.db.Collection(callName).Find(ctx, query, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	var rows []struct {
		CallNumber string `bson:"call_number"`
	}
	if err = cr.Decode(&rows); err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(rows))
	for _, r := range rows {
		numbers = append(numbers, r.CallNumber)
	}
	return numbers, nil
}

func (c *callDatabase) find(ctx context.Context, query interface{}, opts *options.FindOptions) ([]models.Call, error) {
	var calls []models.Call
	cr, err := c.db.Collection(callName).Find(ctx, query, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	err = cr.Decode(&calls)
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []models.Call{}
	}
	for i := range calls {
		normalizeCall(&calls[i])
	}
	return calls, nil
}

func callQuery(f CallFilter) bson.M {
	query := bson.M{}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		query["created_at"] = created
	}
	if len(f.Statuses) > 0 {
		query["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.Priorities) > 0 {
		query["priority"] = bson.M{"$in": f.Priorities}
	}
	if len(f.CallTypeIDs) > 0 {
		query["call_type_id"] = bson.M{"$in": f.CallTypeIDs}
	}
	if f.UnitID != "" {
		query["assigned_units"] = f.UnitID
	}
	if f.DispatcherID != "" {
		query["dispatcher_id"] = f.DispatcherID
	}
	return query
}

func normalizeCall(call *models.Call) {
	if call.AssignedUnits == nil {
		call.AssignedUnits = []string{}
	}
}
