package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/camp-cad-api/api"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
	"github.com/linesmerrill/camp-cad-api/protocol"
)

// ProtocolService serves questionnaires and evaluates answers
type ProtocolService interface {
	GetWorkflow(ctx context.Context, callTypeID string) (*models.ProtocolWorkflow, error)
	Evaluate(ctx context.Context, sub protocol.Submission, actor models.Actor) (*models.EvaluationResult, error)
	Statistics(ctx context.Context, filter databases.AnswerFilter) (*models.ProtocolStats, error)
	ListAnswers(ctx context.Context, callID string) ([]models.CallProtocolAnswer, error)
}

// Protocol exported for testing purposes
type Protocol struct {
	Engine ProtocolService
}

// WorkflowHandler returns the questionnaire of a call type
func (p Protocol) WorkflowHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	wf, err := p.Engine.GetWorkflow(ctx, mux.Vars(r)["call_type_id"])
	if err != nil {
		writeError(w, r, "failed to get protocol workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// ProcessProtocolHandler evaluates submitted answers for a call
func (p Protocol) ProcessProtocolHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		CallID    string                 `json:"call_id"`
		Answers   map[string]interface{} `json:"answers"`
		StartedAt *time.Time             `json:"started_at"`
	}
	if err := decodeBody(r, processProtocolSchema, &req); err != nil {
		writeError(w, r, "invalid protocol submission", err)
		return
	}

	res, err := p.Engine.Evaluate(r.Context(), protocol.Submission{
		CallID:    req.CallID,
		Answers:   req.Answers,
		StartedAt: req.StartedAt,
	}, actor)
	if err != nil {
		writeError(w, r, "failed to process protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ProtocolStatisticsHandler aggregates stored evaluations
func (p Protocol) ProtocolStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, "invalid date range", dispatch.NewValidationError(err))
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	stats, err := p.Engine.Statistics(ctx, databases.AnswerFilter{
		CallTypeID: r.URL.Query().Get("call_type_id"),
		From:       from,
		To:         to,
	})
	if err != nil {
		writeError(w, r, "failed to get protocol statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CallAnswersHandler returns every evaluation stored for a call
func (p Protocol) CallAnswersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	answers, err := p.Engine.ListAnswers(ctx, mux.Vars(r)["call_id"])
	if err != nil {
		writeError(w, r, "failed to get protocol answers", err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}
