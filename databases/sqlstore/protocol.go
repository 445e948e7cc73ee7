package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/models"
)

type questionTable struct {
	db *DB
}

type answerTable struct {
	db *DB
}

// FindByCallType returns the questions in display order
func (t *questionTable) FindByCallType(ctx context.Context, callTypeID string) ([]models.ProtocolQuestion, error) {
	rows, err := t.db.q(ctx).QueryContext(ctx, `SELECT id, call_type_id, question, type, required, options, display_order, conditional_logic
		FROM protocol_questions WHERE call_type_id = ? ORDER BY display_order ASC, id ASC`, callTypeID)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	questions := []models.ProtocolQuestion{}
	for rows.Next() {
		var (
			q        models.ProtocolQuestion
			required int
			options  string
			logic    sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.CallTypeID, &q.Question, &q.Type, &required, &options, &q.Order, &logic); err != nil {
			return nil, err
		}
		q.Required = required == 1
		if err := decodeJSON(options, &q.Options); err != nil {
			return nil, err
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if logic.Valid {
			q.ConditionalLogic = &models.ConditionalLogic{}
			if err := decodeJSON(logic.String, q.ConditionalLogic); err != nil {
				return nil, err
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (t *questionTable) InsertOne(ctx context.Context, question *models.ProtocolQuestion) error {
	options := question.Options
	if options == nil {
		options = []string{}
	}
	encoded, err := encodeJSON(options)
	if err != nil {
		return err
	}
	var logic sql.NullString
	if question.ConditionalLogic != nil {
		s, err := encodeJSON(question.ConditionalLogic)
		if err != nil {
			return err
		}
		logic = sql.NullString{String: s, Valid: true}
	}
	_, err = t.db.q(ctx).ExecContext(ctx, `INSERT INTO protocol_questions
		(id, call_type_id, question, type, required, options, display_order, conditional_logic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		question.ID, question.CallTypeID, question.Question, string(question.Type),
		boolInt(question.Required), encoded, question.Order, logic)
	return sqlErr(err)
}

func (t *answerTable) InsertOne(ctx context.Context, answer *models.CallProtocolAnswer) error {
	answers, err := encodeJSON(answer.Answers)
	if err != nil {
		return err
	}
	units := answer.RecommendedUnits
	if units == nil {
		units = []string{}
	}
	encodedUnits, err := encodeJSON(units)
	if err != nil {
		return err
	}
	_, err = t.db.q(ctx).ExecContext(ctx, `INSERT INTO call_protocol_answers
		(id, call_id, call_type_id, answers, calculated_priority, recommended_units, response_plan,
		 rule_version, protocol_completed, submitted_by, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		answer.ID, answer.CallID, answer.CallTypeID, answers, answer.CalculatedPriority, encodedUnits,
		answer.ResponsePlan, answer.RuleVersion, boolInt(answer.ProtocolCompleted), answer.SubmittedBy,
		toNanos(answer.StartedAt), toNanos(answer.CompletedAt))
	return sqlErr(err)
}

// Find returns matching evaluations, most recent first
func (t *answerTable) Find(ctx context.Context, filter databases.AnswerFilter) ([]models.CallProtocolAnswer, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CallID != "" {
		clauses = append(clauses, "call_id = ?")
		args = append(args, filter.CallID)
	}
	if filter.CallTypeID != "" {
		clauses = append(clauses, "call_type_id = ?")
		args = append(args, filter.CallTypeID)
	}
	if filter.From != nil {
		clauses = append(clauses, "completed_at >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if filter.To != nil {
		clauses = append(clauses, "completed_at <= ?")
		args = append(args, filter.To.UnixNano())
	}
	query := `SELECT id, call_id, call_type_id, answers, calculated_priority, recommended_units, response_plan,
		rule_version, protocol_completed, submitted_by, started_at, completed_at FROM call_protocol_answers`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY completed_at DESC, rowid DESC"

	rows, err := t.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	result := []models.CallProtocolAnswer{}
	for rows.Next() {
		var (
			a                     models.CallProtocolAnswer
			answers, units        string
			completed             int
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&a.ID, &a.CallID, &a.CallTypeID, &answers, &a.CalculatedPriority, &units, &a.ResponsePlan,
			&a.RuleVersion, &completed, &a.SubmittedBy, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(answers, &a.Answers); err != nil {
			return nil, err
		}
		if a.Answers == nil {
			a.Answers = map[string]interface{}{}
		}
		if err := decodeJSON(units, &a.RecommendedUnits); err != nil {
			return nil, err
		}
		a.ProtocolCompleted = completed == 1
		a.StartedAt = fromNanos(startedAt)
		a.CompletedAt = fromNanos(finishedAt)
		result = append(result, a)
	}
	return result, rows.Err()
}
