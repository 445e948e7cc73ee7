package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/camp-cad-api/models"
)

const (
	protocolQuestionName = "protocol_questions"
	protocolAnswerName   = "call_protocol_answers"
)

// ProtocolQuestionDatabase contains the methods to use with the protocol question database
type ProtocolQuestionDatabase interface {
	FindByCallType(ctx context.Context, callTypeID string) ([]models.ProtocolQuestion, error)
	InsertOne(ctx context.Context, question *models.ProtocolQuestion) error
}

// ProtocolAnswerDatabase stores one row per questionnaire submission
type ProtocolAnswerDatabase interface {
	InsertOne(ctx context.Context, answer *models.CallProtocolAnswer) error
	Find(ctx context.Context, filter AnswerFilter) ([]models.CallProtocolAnswer, error)
}

type protocolQuestionDatabase struct {
	db DatabaseHelper
}

type protocolAnswerDatabase struct {
	db DatabaseHelper
}

// NewProtocolQuestionDatabase initializes a new instance of protocol question database with the provided db connection
func NewProtocolQuestionDatabase(db DatabaseHelper) ProtocolQuestionDatabase {
	return &protocolQuestionDatabase{
		db: db,
	}
}

// NewProtocolAnswerDatabase initializes a new instance of protocol answer database with the provided db connection
func NewProtocolAnswerDatabase(db DatabaseHelper) ProtocolAnswerDatabase {
	return &protocolAnswerDatabase{
		db: db,
	}
}

// FindByCallType returns the questions in display order
func (p *protocolQuestionDatabase) FindByCallType(ctx context.Context, callTypeID string) ([]models.ProtocolQuestion, error) {
	var questions []models.ProtocolQuestion
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}})
	cr, err := p.db.Collection(protocolQuestionName).Find(ctx, bson.M{"call_type_id": callTypeID}, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	if err = cr.Decode(&questions); err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []models.ProtocolQuestion{}
	}
	return questions, nil
}

func (p *protocolQuestionDatabase) InsertOne(ctx context.Context, question *models.ProtocolQuestion) error {
	_, err := p.db.Collection(protocolQuestionName).InsertOne(ctx, question)
	return mongoErr(err)
}

func (p *protocolAnswerDatabase) InsertOne(ctx context.Context, answer *models.CallProtocolAnswer) error {
	_, err := p.db.Collection(protocolAnswerName).InsertOne(ctx, answer)
	return mongoErr(err)
}

// Find returns matching evaluations, most recent first
func (p *protocolAnswerDatabase) Find(ctx context.Context, filter AnswerFilter) ([]models.CallProtocolAnswer, error) {
	query := bson.M{}
	if filter.CallID != "" {
		query["call_id"] = filter.CallID
	}
	if filter.CallTypeID != "" {
		query["call_type_id"] = filter.CallTypeID
	}
	if filter.From != nil || filter.To != nil {
		completed := bson.M{}
		if filter.From != nil {
			completed["$gte"] = *filter.From
		}
		if filter.To != nil {
			completed["$lte"] = *filter.To
		}
		query["completed_at"] = completed
	}

	var answers []models.CallProtocolAnswer
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	cr, err := p.db.Collection(protocolAnswerName).Find(ctx, query, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	if err = cr.Decode(&answers); err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []models.CallProtocolAnswer{}
	}
	return answers, nil
}
