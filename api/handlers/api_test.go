package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/camp-cad-api/api"
	"github.com/linesmerrill/camp-cad-api/config"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/databases/sqlstore"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
	"github.com/linesmerrill/camp-cad-api/notify"
	"github.com/linesmerrill/camp-cad-api/protocol"
)

const (
	adminUser = "admin"
	adminPass = "camp-admin"
)

type testServer struct {
	app    *App
	router *mux.Router
	token  string
}

// newTestServer wires an App over a seeded sqlite store and returns a bearer
// token for the bootstrap account
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlstore.NewStore(db)
	data, err := databases.DefaultReferenceData()
	require.NoError(t, err)
	_, err = databases.SeedReferenceData(ctx, store, data)
	require.NoError(t, err)
	require.NoError(t, api.EnsureAdmin(ctx, store.Users, adminUser, adminPass))

	rules, err := protocol.DefaultRules()
	require.NoError(t, err)

	a := &App{
		Config: config.Config{RequestTimeout: 10 * time.Second, TokenTTL: time.Hour},
		Store:  store,
		Hub:    NewChangeHub(),
	}
	a.Notifier = notify.NewFanout(a.Hub)
	a.Coordinator = dispatch.NewCoordinator(store, a.Notifier)
	a.Manager = dispatch.NewManager(store, dispatch.NewSequencer(store.Calls, store.Counters), a.Coordinator, a.Notifier)
	a.Engine = protocol.NewEngine(store, a.Manager, rules, a.Notifier)
	a.Auth = api.MiddlewareDB{DB: store.Users, Secret: []byte("handlers-test"), TTL: time.Hour}
	a.Auth.SetupGoGuardian(ctx)
	a.initializeRoutes()

	s := &testServer{app: a, router: a.Router}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth(adminUser, adminPass)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tok map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))
	s.token = tok["token"]
	require.NotEmpty(t, s.token)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) createCall(t *testing.T, priority int) models.Call {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/v1/calls", map[string]interface{}{
		"call_type_id": "medical-emergency",
		"priority":     priority,
		"description":  "participant collapsed near the main stage",
		"location":     map[string]interface{}{"latitude": 39.5, "longitude": -119.8, "address": "Main stage"},
		"caller_info":  map[string]interface{}{"name": "Sam", "phone": "555-0100"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var call models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &call))
	return call
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.MessageError {
	t.Helper()
	var body models.ErrorMessageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Response
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alive": true}`, rr.Body.String())
}

func TestRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/active", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateCallHandler(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 3)

	assert.Equal(t, models.CallStatusPending, call.Status)
	assert.Equal(t, 3, call.Priority)
	assert.Regexp(t, `^\d{4}-\d+$`, call.CallNumber)
	assert.Equal(t, "Main stage", call.Location.Address)

	rr := s.do(t, http.MethodGet, "/api/v1/calls/"+call.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, call.CallNumber, got.CallNumber)
}

func TestCreateCallHandler_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     interface{}
		problems int
	}{
		{
			name:     "missing location",
			body:     map[string]interface{}{"call_type_id": "fire", "priority": 1, "description": "smoke"},
			problems: 1,
		},
		{
			name: "bad fields",
			body: map[string]interface{}{
				"call_type_id": "no-such-type",
				"priority":     9,
				"location":     map[string]interface{}{"latitude": 1, "longitude": 2},
			},
			problems: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/v1/calls", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			msg := decodeError(t, rr)
			assert.Equal(t, "invalid call", msg.Message)
			assert.Len(t, msg.Problems, tt.problems)
		})
	}
}

func TestCallHandlers_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/calls/missing", "/api/v1/calls/missing/details", "/api/v1/protocol/calls/missing/answers"} {
		rr := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
	rr := s.do(t, http.MethodPost, "/api/v1/calls/missing/close", map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCloseCallHandler_Twice(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 2)

	rr := s.do(t, http.MethodPost, "/api/v1/calls/"+call.ID+"/close", map[string]string{"notes": "resolved on scene"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var closed models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &closed))
	assert.Equal(t, models.CallStatusCleared, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	rr = s.do(t, http.MethodPost, "/api/v1/calls/"+call.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestUpdateCallHandlers(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 3)

	rr := s.do(t, http.MethodPatch, "/api/v1/calls/"+call.ID, map[string]interface{}{"priority": 2, "description": "patient now responsive"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, 2, updated.Priority)

	rr = s.do(t, http.MethodPatch, "/api/v1/calls/"+call.ID, map[string]interface{}{"call_number": "2020-000001"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPatch, "/api/v1/calls/"+call.ID+"/status", map[string]string{"status": "enroute"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPatch, "/api/v1/calls/"+call.ID+"/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/calls/"+call.ID+"/details", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var details models.CallDetails
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &details))
	assert.Equal(t, models.CallStatusEnroute, details.Call.Status)
	assert.NotEmpty(t, details.Timeline)
}

func TestAssignAndReleaseHandlers(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 1)
	base := "/api/v1/calls/" + call.ID + "/units"

	rr := s.do(t, http.MethodPost, base, map[string][]string{"unit_ids": {"med-1", "med-2"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var assigned models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &assigned))
	assert.ElementsMatch(t, []string{"med-1", "med-2"}, assigned.AssignedUnits)

	rr = s.do(t, http.MethodPost, base, map[string][]string{"unit_ids": {"no-such-unit"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPost, base, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodDelete, base+"/med-2", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var released models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &released))
	assert.Equal(t, []string{"med-1"}, released.AssignedUnits)

	rr = s.do(t, http.MethodGet, "/api/v1/units?available=true&type=ems", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var units []models.Unit
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &units))
	var ids []string
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, "med-2")
	assert.NotContains(t, ids, "med-1")

	rr = s.do(t, http.MethodGet, "/api/v1/calls?unit_id=med-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list models.CallList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Calls, 1)
	assert.Equal(t, call.ID, list.Calls[0].ID)
}

func TestUnitStatusHandler(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 1)
	rr := s.do(t, http.MethodPost, "/api/v1/calls/"+call.ID+"/units", map[string][]string{"unit_ids": {"med-1"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPatch, "/api/v1/units/med-1/status", map[string]string{"status": "on_scene"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var unit models.Unit
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &unit))
	assert.Equal(t, models.UnitStatusOnScene, unit.Status)

	rr = s.do(t, http.MethodPatch, "/api/v1/units/med-2/status", map[string]string{"status": "on_scene"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodPatch, "/api/v1/units/med-2/status", map[string]string{"status": "teleporting"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchHandler_BadQuery(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/api/v1/calls?priority=high&start_date=yesterday&limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, decodeError(t, rr).Problems, 3)
}

func TestActiveCallsAndStatsHandlers(t *testing.T) {
	s := newTestServer(t)
	low := s.createCall(t, 4)
	high := s.createCall(t, 1)

	rr := s.do(t, http.MethodGet, "/api/v1/calls/active", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var active []models.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &active))
	require.Len(t, active, 2)
	assert.Equal(t, high.ID, active[0].ID)
	assert.Equal(t, low.ID, active[1].ID)

	rr = s.do(t, http.MethodGet, "/api/v1/calls/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats models.CallStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Emergency)
}

func TestProtocolHandlers(t *testing.T) {
	s := newTestServer(t)
	call := s.createCall(t, 3)

	rr := s.do(t, http.MethodGet, "/api/v1/protocol/workflow/medical-emergency", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var wf models.ProtocolWorkflow
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wf))
	assert.NotEmpty(t, wf.Questions)

	rr = s.do(t, http.MethodGet, "/api/v1/protocol/workflow/no-such-type", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	started := time.Now().UTC().Add(-time.Minute)
	rr = s.do(t, http.MethodPost, "/api/v1/protocol/process", map[string]interface{}{
		"call_id": call.ID,
		"answers": map[string]interface{}{
			"med-conscious": "no",
			"med-nature":    "Patient is unconscious",
		},
		"started_at": started.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res models.EvaluationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.CalculatedPriority)
	assert.True(t, res.PriorityChanged)
	assert.Equal(t, []string{"EMS"}, res.RecommendedUnits)
	assert.True(t, strings.Contains(res.ResponsePlan, "Begin CPR if necessary"))

	rr = s.do(t, http.MethodPost, "/api/v1/protocol/process", map[string]interface{}{
		"call_id": call.ID,
		"answers": map[string]interface{}{},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, decodeError(t, rr).Problems, 2)

	rr = s.do(t, http.MethodPost, "/api/v1/protocol/process", map[string]interface{}{"answers": map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/protocol/calls/"+call.ID+"/answers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var answers []models.CallProtocolAnswer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &answers))
	assert.Len(t, answers, 1)

	rr = s.do(t, http.MethodGet, "/api/v1/protocol/statistics?call_type_id=medical-emergency", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var stats models.ProtocolStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalProtocols)
	assert.Equal(t, map[string]int{"1": 1}, stats.PriorityDistribution)

	rr = s.do(t, http.MethodGet, "/api/v1/protocol/statistics?start_date=2024-06-02T00:00:00Z&end_date=2024-06-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
