package protocol_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/databases/sqlstore"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
	"github.com/linesmerrill/camp-cad-api/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

var dispatcher = models.Actor{ID: "user-1", Name: "Dispatch One", Role: "dispatcher"}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.ProtocolWorkflow
	hits    int
}

func (c *memoryCache) Get(_ context.Context, id string) (*models.ProtocolWorkflow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wf, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return wf, ok
}

func (c *memoryCache) Set(_ context.Context, wf *models.ProtocolWorkflow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[wf.CallTypeID] = wf
}

type testEnv struct {
	store  *databases.Store
	mgr    *dispatch.Manager
	engine *protocol.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "protocol.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlstore.NewStore(db)
	data, err := databases.DefaultReferenceData()
	require.NoError(t, err)
	_, err = databases.SeedReferenceData(ctx, store, data)
	require.NoError(t, err)

	rules, err := protocol.DefaultRules()
	require.NoError(t, err)

	notifier := dispatch.NopNotifier{}
	coord := dispatch.NewCoordinator(store, notifier)
	mgr := dispatch.NewManager(store, dispatch.NewSequencer(store.Calls, store.Counters), coord, notifier)
	return &testEnv{
		store:  store,
		mgr:    mgr,
		engine: protocol.NewEngine(store, mgr, rules, notifier),
	}
}

func (e *testEnv) createCall(t *testing.T, callTypeID string, priority int) *models.Call {
	t.Helper()
	call, err := e.mgr.CreateCall(context.Background(), models.NewCall{
		CallTypeID:  callTypeID,
		Priority:    priority,
		Location:    models.Location{Latitude: gofakeit.Latitude(), Longitude: gofakeit.Longitude()},
		Caller:      models.CallerInfo{Name: gofakeit.Name(), Phone: gofakeit.Phone()},
		Description: gofakeit.Sentence(6),
	}, dispatcher)
	require.NoError(t, err)
	return call
}

func TestGetWorkflow(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	wf, err := env.engine.GetWorkflow(ctx, "medical-emergency")
	require.NoError(t, err)
	assert.Equal(t, "Medical Emergency", wf.CallTypeName)
	assert.Equal(t, []string{"EMS"}, wf.BaseUnits)
	require.Len(t, wf.Questions, 5)
	for i, q := range wf.Questions {
		assert.Equal(t, i+1, q.Order)
	}
	assert.Equal(t, "med-conscious", wf.Questions[0].ID)
	require.NotNil(t, wf.Questions[3].ConditionalLogic)
	assert.Equal(t, "med-bleeding", wf.Questions[3].ConditionalLogic.DependsOn)

	wf, err = env.engine.GetWorkflow(ctx, "equipment-failure")
	require.NoError(t, err)
	assert.Empty(t, wf.Questions)
	assert.Equal(t, []string{}, wf.BaseUnits)

	_, err = env.engine.GetWorkflow(ctx, "meteor-strike")
	var nf *dispatch.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "protocol workflow", nf.Entity)
}

func TestGetWorkflow_UsesCache(t *testing.T) {
	env := newEnv(t)
	cache := &memoryCache{entries: map[string]*models.ProtocolWorkflow{}}
	env.engine.WithCache(cache)
	ctx := context.Background()

	first, err := env.engine.GetWorkflow(ctx, "fire")
	require.NoError(t, err)
	second, err := env.engine.GetWorkflow(ctx, "fire")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Same(t, first, second)
}

func TestEvaluate_EscalatesPriority(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, "medical-emergency", 3)
	started := time.Now().UTC().Add(-90 * time.Second)

	res, err := env.engine.Evaluate(ctx, protocol.Submission{
		CallID: call.ID,
		Answers: map[string]interface{}{
			"med-conscious": "no",
			"med-nature":    "Patient is unconscious",
		},
		StartedAt: &started,
	}, dispatcher)
	require.NoError(t, err)

	assert.Equal(t, 3, res.PreviousPriority)
	assert.Equal(t, 1, res.CalculatedPriority)
	assert.True(t, res.PriorityChanged)
	assert.True(t, res.ProtocolCompleted)
	assert.Equal(t, []string{"EMS"}, res.RecommendedUnits)
	assert.Equal(t, "Dispatch nearest EMS unit. Notify the medical center.\n"+
		"- Check for responsiveness and breathing\n"+
		"- Begin CPR if necessary", res.ResponsePlan)

	stored, err := env.store.Calls.FindByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Priority)

	timeline, err := env.store.CallUpdates.FindByCall(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, models.UpdateTypePriorityChange, timeline[0].Type)
	assert.Equal(t, "3", timeline[0].Metadata["previous_priority"])
	assert.Equal(t, "1", timeline[0].Metadata["priority"])
	assert.Equal(t, dispatcher.ID, timeline[0].ActorID)

	rows, err := env.engine.ListAnswers(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, res.AnswerID, rows[0].ID)
	assert.Equal(t, "Patient is unconscious", rows[0].Answers["med-nature"])
	assert.Equal(t, dispatcher.ID, rows[0].SubmittedBy)
}

func TestEvaluate_UnchangedPriorityWritesNoAudit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, "medical-emergency", 2)

	res, err := env.engine.Evaluate(ctx, protocol.Submission{
		CallID: call.ID,
		Answers: map[string]interface{}{
			"med-conscious": true,
			"med-nature":    "twisted ankle after a fall on the trail",
			"med-bleeding":  "no",
		},
	}, dispatcher)
	require.NoError(t, err)
	assert.False(t, res.PriorityChanged)
	assert.Equal(t, 2, res.CalculatedPriority)
	assert.Equal(t, []string{"EMS", "Search_Rescue"}, res.RecommendedUnits)

	timeline, err := env.store.CallUpdates.FindByCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 1)
}

func TestEvaluate_Validation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, "medical-emergency", 3)

	_, err := env.engine.Evaluate(ctx, protocol.Submission{
		CallID: call.ID,
		Answers: map[string]interface{}{
			"med-bleeding": "yes",
			"med-patients": "a few",
		},
	}, dispatcher)
	var ve *dispatch.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{
		`question "Is the patient conscious and breathing?" is required`,
		`question "What is the nature of the medical emergency?" is required`,
		`question "Where is the bleeding?" is required`,
		`question "How many patients are involved?" requires a number`,
	}, ve.Problems())

	rows, err := env.engine.ListAnswers(ctx, call.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	stored, err := env.store.Calls.FindByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Priority)
}

func TestEvaluate_NotFound(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.engine.Evaluate(ctx, protocol.Submission{CallID: "missing"}, dispatcher)
	var nf *dispatch.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "call", nf.Entity)

	_, err = env.engine.Evaluate(ctx, protocol.Submission{}, dispatcher)
	var ve *dispatch.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = env.engine.ListAnswers(ctx, "missing")
	assert.True(t, errors.As(err, &nf))
}

func TestEvaluate_Retriage(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, "fire", 4)

	for _, trapped := range []string{"no", "yes"} {
		_, err := env.engine.Evaluate(ctx, protocol.Submission{
			CallID: call.ID,
			Answers: map[string]interface{}{
				"fire-active":    "yes",
				"fire-structure": "Wildland",
				"fire-trapped":   trapped,
				"fire-smoke":     true,
			},
		}, dispatcher)
		require.NoError(t, err)
	}

	rows, err := env.engine.ListAnswers(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	stored, err := env.store.Calls.FindByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Priority)
}

func TestEvaluate_ClosedCallKeepsPriority(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, "equipment-failure", 4)
	_, err := env.mgr.CloseCall(ctx, call.ID, dispatcher, "generator restarted")
	require.NoError(t, err)

	res, err := env.engine.Evaluate(ctx, protocol.Submission{
		CallID:  call.ID,
		Answers: map[string]interface{}{"notes": "patient unconscious"},
	}, dispatcher)
	require.NoError(t, err)
	assert.False(t, res.PriorityChanged)
	assert.Equal(t, 1, res.CalculatedPriority)
	assert.Equal(t, 4, res.PreviousPriority)

	stored, err := env.store.Calls.FindByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Priority)
	assert.Equal(t, models.CallStatusCleared, stored.Status)

	rows, err := env.engine.ListAnswers(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStatistics(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	medical := env.createCall(t, "medical-emergency", 3)
	fire := env.createCall(t, "fire", 4)
	started := time.Now().UTC().Add(-time.Minute)

	_, err := env.engine.Evaluate(ctx, protocol.Submission{
		CallID:    medical.ID,
		Answers:   map[string]interface{}{"med-conscious": "no", "med-nature": "bleeding badly"},
		StartedAt: &started,
	}, dispatcher)
	require.NoError(t, err)
	_, err = env.engine.Evaluate(ctx, protocol.Submission{
		CallID:  fire.ID,
		Answers: map[string]interface{}{"fire-active": "no", "fire-structure": "Vehicle", "fire-trapped": "no"},
	}, dispatcher)
	require.NoError(t, err)

	stats, err := env.engine.Statistics(ctx, databases.AnswerFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProtocols)
	assert.Equal(t, map[string]int{"1": 1, "4": 1}, stats.PriorityDistribution)
	assert.Equal(t, map[string]int{"Vehicle": 1}, stats.MostCommonAnswers["fire-structure"])
	assert.InDelta(t, 30, stats.AverageCompletionTime, 5)

	stats, err = env.engine.Statistics(ctx, databases.AnswerFilter{CallTypeID: "fire"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalProtocols)

	from := time.Now().UTC().Add(time.Hour)
	stats, err = env.engine.Statistics(ctx, databases.AnswerFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalProtocols)
	assert.Empty(t, stats.PriorityDistribution)

	to := from.Add(-2 * time.Hour)
	_, err = env.engine.Statistics(ctx, databases.AnswerFilter{From: &from, To: &to})
	var ve *dispatch.ValidationError
	assert.True(t, errors.As(err, &ve))
}
