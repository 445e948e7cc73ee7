package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/models"
)

// Store bundles every collection the dispatch core works with, plus the
// unit of work that spans them
type Store struct {
	Calls       CallDatabase
	Units       UnitDatabase
	CallUpdates CallUpdateDatabase
	CallTypes   CallTypeDatabase
	Questions   ProtocolQuestionDatabase
	Answers     ProtocolAnswerDatabase
	Counters    CounterDatabase
	Users       UserDatabase
	Locks       SchedulerLockDatabase
	Tx          Transactor
}

// CallFilter narrows a call search. Zero values mean no restriction.
type CallFilter struct {
	From         *time.Time
	To           *time.Time
	Statuses     []models.CallStatus
	Priorities   []int
	CallTypeIDs  []string
	UnitID       string
	DispatcherID string
	Limit        int
	Offset       int
}

// UnitFilter narrows a unit listing
type UnitFilter struct {
	Statuses       []models.UnitStatus
	Types          []models.UnitType
	AssignedCallID string
}

// AnswerFilter narrows stored protocol evaluations
type AnswerFilter struct {
	CallID     string
	CallTypeID string
	From       *time.Time
	To         *time.Time
}

// NewMongoStore wires every collection of db into a Store
func NewMongoStore(db DatabaseHelper) *Store {
	return &Store{
		Calls:       NewCallDatabase(db),
		Units:       NewUnitDatabase(db),
		CallUpdates: NewCallUpdateDatabase(db),
		CallTypes:   NewCallTypeDatabase(db),
		Questions:   NewProtocolQuestionDatabase(db),
		Answers:     NewProtocolAnswerDatabase(db),
		Counters:    NewCounterDatabase(db),
		Users:       NewUserDatabase(db),
		Locks:       NewSchedulerLockDatabase(db),
		Tx:          NewMongoTransactor(db.Client()),
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		callName: {
			{Keys: bson.D{{Key: "call_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_units", Value: 1}}},
		},
		unitName: {
			{Keys: bson.D{{Key: "unit_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "assigned_call_id", Value: 1}}},
		},
		callUpdateName: {
			{Keys: bson.D{{Key: "call_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		protocolQuestionName: {
			{Keys: bson.D{{Key: "call_type_id", Value: 1}, {Key: "order", Value: 1}}},
		},
		protocolAnswerName: {
			{Keys: bson.D{{Key: "call_id", Value: 1}}},
			{Keys: bson.D{{Key: "call_type_id", Value: 1}, {Key: "completed_at", Value: 1}}},
		},
		userName: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
	}

	for collection, idx := range indexes {
		for _, model := range idx {
			name, err := db.Collection(collection).CreateIndex(ctx, model)
			if err != nil {
				return err
			}
			zap.S().Debugw("index ready", "collection", collection, "index", name)
		}
	}
	return nil
}
