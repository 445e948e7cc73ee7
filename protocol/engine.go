package protocol

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

// CallUpdater is the lifecycle path priority changes are routed through
type CallUpdater interface {
	UpdateCall(ctx context.Context, id string, patch models.CallPatch, actor models.Actor) (*models.Call, error)
}

// WorkflowCache keeps assembled workflows between requests. Misses and
// backend failures both report ok=false.
type WorkflowCache interface {
	Get(ctx context.Context, callTypeID string) (*models.ProtocolWorkflow, bool)
	Set(ctx context.Context, workflow *models.ProtocolWorkflow)
}

// Submission is one questionnaire submitted for a call
type Submission struct {
	CallID    string
	Answers   map[string]interface{}
	StartedAt *time.Time
}

// Engine serves questionnaires and evaluates submitted answers
type Engine struct {
	store    *databases.Store
	calls    CallUpdater
	notifier dispatch.ChangeNotifier
	cache    WorkflowCache
	now      func() time.Time

	mu    sync.RWMutex
	rules *Rules
}

// NewEngine returns an engine evaluating with rules
func NewEngine(store *databases.Store, calls CallUpdater, rules *Rules, notifier dispatch.ChangeNotifier) *Engine {
	if notifier == nil {
		notifier = dispatch.NopNotifier{}
	}
	return &Engine{
		store:    store,
		calls:    calls,
		notifier: notifier,
		rules:    rules,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithCache puts cache in front of workflow lookups
func (e *Engine) WithCache(cache WorkflowCache) *Engine {
	e.cache = cache
	return e
}

// Rules returns the rule table in use
func (e *Engine) Rules() *Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// SetRules swaps the rule table for later evaluations
func (e *Engine) SetRules(rules *Rules) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	zap.S().Infow("protocol rules loaded", "version", rules.Version)
}

// GetWorkflow returns the ordered questionnaire of a call type
func (e *Engine) GetWorkflow(ctx context.Context, callTypeID string) (*models.ProtocolWorkflow, error) {
	if e.cache != nil {
		if wf, ok := e.cache.Get(ctx, callTypeID); ok {
			return wf, nil
		}
	}

	callType, err := e.store.CallTypes.FindByID(ctx, callTypeID)
	if errors.Is(err, databases.ErrNotFound) {
		return nil, &dispatch.NotFoundError{Entity: "protocol workflow", ID: callTypeID}
	}
	if err != nil {
		return nil, dispatch.Classify(ctx, "load call type", err)
	}
	questions, err := e.store.Questions.FindByCallType(ctx, callTypeID)
	if err != nil {
		return nil, dispatch.Classify(ctx, "load protocol questions", err)
	}

	baseUnits := callType.RecommendedUnits
	if len(baseUnits) == 0 {
		baseUnits = e.Rules().PlanUnits(callType.ResponsePlan)
	}
	if baseUnits == nil {
		baseUnits = []string{}
	}
	wf := &models.ProtocolWorkflow{
		CallTypeID:      callType.ID,
		CallTypeName:    callType.Name,
		Description:     callType.Description,
		DefaultPriority: callType.DefaultPriority,
		Questions:       questions,
		BaseUnits:       baseUnits,
		ResponsePlan:    callType.ResponsePlan,
	}
	if e.cache != nil {
		e.cache.Set(ctx, wf)
	}
	return wf, nil
}

// Evaluate validates a submission against the call's workflow, stores the
// evaluation and moves the call to the calculated priority when it differs.
// Everything happens in one unit of work.
func (e *Engine) Evaluate(ctx context.Context, sub Submission, actor models.Actor) (*models.EvaluationResult, error) {
	if strings.TrimSpace(sub.CallID) == "" {
		return nil, dispatch.NewValidationError(errors.New("call_id is required"))
	}
	answers := sub.Answers
	if answers == nil {
		answers = map[string]interface{}{}
	}
	rules := e.Rules()

	var result *models.EvaluationResult
	err := e.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		call, err := e.store.Calls.FindByID(ctx, sub.CallID)
		if err != nil {
			return dispatch.LookupErr(ctx, "call", sub.CallID, err)
		}
		wf, err := e.GetWorkflow(ctx, call.CallTypeID)
		if err != nil {
			return err
		}
		if err := dispatch.NewValidationError(validateAnswers(wf.Questions, answers)); err != nil {
			return err
		}

		texts := answerTexts(wf.Questions, answers)
		completed := e.now()
		started := completed
		if sub.StartedAt != nil && !sub.StartedAt.After(completed) {
			started = sub.StartedAt.UTC()
		}
		row := &models.CallProtocolAnswer{
			ID:                 uuid.NewString(),
			CallID:             call.ID,
			CallTypeID:         call.CallTypeID,
			Answers:            answers,
			CalculatedPriority: rules.Priority(call.Priority, texts),
			RecommendedUnits:   rules.RecommendUnits(wf.BaseUnits, texts),
			ResponsePlan:       rules.ResponsePlan(wf.ResponsePlan, texts),
			RuleVersion:        rules.Version,
			ProtocolCompleted:  true,
			SubmittedBy:        actor.ID,
			StartedAt:          started,
			CompletedAt:        completed,
		}
		if err := e.store.Answers.InsertOne(ctx, row); err != nil {
			return dispatch.Classify(ctx, "insert protocol answer", err)
		}

		// closed calls keep the priority they were worked at
		changed := !call.Status.Terminal() && row.CalculatedPriority != call.Priority
		if changed {
			priority := row.CalculatedPriority
			if _, err := e.calls.UpdateCall(ctx, call.ID, models.CallPatch{Priority: &priority}, actor); err != nil {
				return err
			}
		}

		result = &models.EvaluationResult{
			AnswerID:           row.ID,
			CallID:             call.ID,
			PreviousPriority:   call.Priority,
			CalculatedPriority: row.CalculatedPriority,
			PriorityChanged:    changed,
			RecommendedUnits:   row.RecommendedUnits,
			ResponsePlan:       row.ResponsePlan,
			RuleVersion:        row.RuleVersion,
			ProtocolCompleted:  row.ProtocolCompleted,
			CompletedAt:        row.CompletedAt,
		}
		databases.AfterCommit(ctx, func(ctx context.Context) {
			e.notifier.Notify(ctx, models.ChangeEvent{
				EntityType: models.EntityProtocolAnswers,
				EntityID:   row.ID,
				ChangeKind: models.ChangeCreated,
				OccurredAt: e.now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, dispatch.Classify(ctx, "evaluate protocol", err)
	}

	logging.FromContext(ctx).Infow("protocol evaluated",
		"callID", result.CallID,
		"priority", result.CalculatedPriority,
		"priorityChanged", result.PriorityChanged,
		"ruleVersion", result.RuleVersion,
	)
	return result, nil
}

// ListAnswers returns every evaluation stored for a call, most recent first
func (e *Engine) ListAnswers(ctx context.Context, callID string) ([]models.CallProtocolAnswer, error) {
	if _, err := e.store.Calls.FindByID(ctx, callID); err != nil {
		return nil, dispatch.LookupErr(ctx, "call", callID, err)
	}
	answers, err := e.store.Answers.Find(ctx, databases.AnswerFilter{CallID: callID})
	if err != nil {
		return nil, dispatch.Classify(ctx, "list protocol answers", err)
	}
	return answers, nil
}

// answerTexts lowercases every given answer, workflow questions first in
// display order, then any other keys sorted
func answerTexts(questions []models.ProtocolQuestion, answers map[string]interface{}) []string {
	texts := make([]string, 0, len(answers))
	used := map[string]bool{}
	for _, q := range questions {
		used[q.ID] = true
		if v, ok := answers[q.ID]; ok && isSet(v) {
			texts = append(texts, strings.ToLower(answerText(v)))
		}
	}

	var extra []string
	for id, v := range answers {
		if !used[id] && isSet(v) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		texts = append(texts, strings.ToLower(answerText(answers[id])))
	}
	return texts
}
