package databases

// go generate: mockery --name CounterDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const counterName = "counters"

// CounterDatabase hands out atomic, strictly increasing sequence values
type CounterDatabase interface {
	// Seed raises the counter to at least floor; it never lowers it
	Seed(ctx context.Context, name string, floor int64) error
	// Next increments the counter and returns the new value
	Next(ctx context.Context, name string) (int64, error)
}

type counterDatabase struct {
	db DatabaseHelper
}

type counterDoc struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// NewCounterDatabase initializes a new instance of counter database with the provided db connection
func NewCounterDatabase(db DatabaseHelper) CounterDatabase {
	return &counterDatabase{
		db: db,
	}
}

func (c *counterDatabase) Seed(ctx context.Context, name string, floor int64) error {
	_, err := c.db.Collection(counterName).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$max": bson.M{"seq": floor}},
		options.Update().SetUpsert(true),
	)
	return mongoErr(err)
}

func (c *counterDatabase) Next(ctx context.Context, name string) (int64, error) {
	doc := counterDoc{}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := c.db.Collection(counterName).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, mongoErr(err)
	}
	return doc.Seq, nil
}
