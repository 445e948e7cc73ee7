package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/api"
	"github.com/linesmerrill/camp-cad-api/config"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
)

// CallService is the call lifecycle the handlers drive
type CallService interface {
	CreateCall(ctx context.Context, in models.NewCall, actor models.Actor) (*models.Call, error)
	GetCall(ctx context.Context, id string) (*models.Call, error)
	GetCallDetails(ctx context.Context, id string) (*models.CallDetails, error)
	UpdateCall(ctx context.Context, id string, patch models.CallPatch, actor models.Actor) (*models.Call, error)
	UpdateStatus(ctx context.Context, id string, status models.CallStatus, actor models.Actor) (*models.Call, error)
	CloseCall(ctx context.Context, id string, actor models.Actor, notes string) (*models.Call, error)
	SearchCalls(ctx context.Context, filter databases.CallFilter) (*models.CallList, error)
	ActiveCalls(ctx context.Context) ([]models.Call, error)
	Stats(ctx context.Context, from, to *time.Time) (*models.CallStats, error)
}

// AssignmentService pairs units with calls
type AssignmentService interface {
	Assign(ctx context.Context, callID string, unitIDs []string, actor models.Actor) (*models.Call, error)
	Release(ctx context.Context, callID string, unitIDs []string, actor models.Actor) (*models.Call, error)
	SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus, actor models.Actor) (*models.Unit, error)
}

// Call exported for testing purposes
type Call struct {
	Calls       CallService
	Assignments AssignmentService
}

type unitIDsRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

// CreateCallHandler opens a new call
func (c Call) CreateCallHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in models.NewCall
	if err := decodeBody(r, createCallSchema, &in); err != nil {
		writeError(w, r, "invalid call", err)
		return
	}

	call, err := c.Calls.CreateCall(r.Context(), in, actor)
	if err != nil {
		var ve *dispatch.ValidationError
		if errors.As(err, &ve) {
			writeError(w, r, "invalid call", err)
			return
		}
		writeError(w, r, "failed to create call", err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// CallHandler searches calls
func (c Call) CallHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := callFilterFromQuery(r)
	if err != nil {
		writeError(w, r, "invalid search", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	list, err := c.Calls.SearchCalls(ctx, filter)
	if err != nil {
		writeError(w, r, "failed to search calls", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ActiveCallsHandler returns every open call, most urgent first
func (c Call) ActiveCallsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	calls, err := c.Calls.ActiveCalls(ctx)
	if err != nil {
		writeError(w, r, "failed to get active calls", err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// CallStatsHandler summarizes call volume between start_date and end_date
func (c Call) CallStatsHandler(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, "invalid date range", dispatch.NewValidationError(err))
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	stats, err := c.Calls.Stats(ctx, from, to)
	if err != nil {
		writeError(w, r, "failed to get call stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CallByIDHandler returns a call by ID
func (c Call) CallByIDHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	call, err := c.Calls.GetCall(ctx, mux.Vars(r)["call_id"])
	if err != nil {
		writeError(w, r, "failed to get call by ID", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// CallDetailsHandler returns a call with its units and timeline
func (c Call) CallDetailsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	details, err := c.Calls.GetCallDetails(ctx, mux.Vars(r)["call_id"])
	if err != nil {
		writeError(w, r, "failed to get call details", err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// UpdateCallHandler applies a partial update to a call
func (c Call) UpdateCallHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var patch models.CallPatch
	if err := decodeBody(r, updateCallSchema, &patch); err != nil {
		writeError(w, r, "invalid call update", err)
		return
	}

	call, err := c.Calls.UpdateCall(r.Context(), mux.Vars(r)["call_id"], patch, actor)
	if err != nil {
		writeError(w, r, "failed to update call", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// UpdateCallStatusHandler moves a call to another status
func (c Call) UpdateCallStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.CallStatus `json:"status"`
	}
	if err := decodeBody(r, callStatusSchema, &req); err != nil {
		writeError(w, r, "invalid status update", err)
		return
	}

	call, err := c.Calls.UpdateStatus(r.Context(), mux.Vars(r)["call_id"], req.Status, actor)
	if err != nil {
		writeError(w, r, "failed to update call status", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// CloseCallHandler clears a call and releases its units
func (c Call) CloseCallHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, closeCallSchema, &req); err != nil {
		writeError(w, r, "invalid close request", err)
		return
	}

	call, err := c.Calls.CloseCall(r.Context(), mux.Vars(r)["call_id"], actor, req.Notes)
	if err != nil {
		writeError(w, r, "failed to close call", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// AssignUnitsHandler attaches units to a call
func (c Call) AssignUnitsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req unitIDsRequest
	if err := decodeBody(r, unitIDsSchema, &req); err != nil {
		writeError(w, r, "invalid unit assignment", err)
		return
	}

	call, err := c.Assignments.Assign(r.Context(), mux.Vars(r)["call_id"], req.UnitIDs, actor)
	if err != nil {
		writeError(w, r, "failed to assign units", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// ReleaseUnitsHandler detaches units from a call. A unit_id path variable
// releases that single unit.
func (c Call) ReleaseUnitsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req unitIDsRequest
	if unitID := mux.Vars(r)["unit_id"]; unitID != "" {
		req.UnitIDs = []string{unitID}
	} else if err := decodeBody(r, unitIDsSchema, &req); err != nil {
		writeError(w, r, "invalid unit release", err)
		return
	}

	call, err := c.Assignments.Release(r.Context(), mux.Vars(r)["call_id"], req.UnitIDs, actor)
	if err != nil {
		writeError(w, r, "failed to release units", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, errors.New("no authenticated actor"))
	}
	return actor, ok
}

func callFilterFromQuery(r *http.Request) (databases.CallFilter, error) {
	q := r.URL.Query()
	var problems error
	filter := databases.CallFilter{
		CallTypeIDs:  splitList(q.Get("call_type_id")),
		UnitID:       q.Get("unit_id"),
		DispatcherID: q.Get("dispatcher_id"),
	}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.CallStatus(s))
	}
	for _, s := range splitList(q.Get("priority")) {
		p, err := strconv.Atoi(s)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("priority %q is not a number", s))
			continue
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	var err error
	filter.From, filter.To, err = dateRange(r)
	problems = multierr.Append(problems, err)
	filter.Limit, err = intParam(q.Get("limit"), "limit")
	problems = multierr.Append(problems, err)
	filter.Offset, err = intParam(q.Get("offset"), "offset")
	problems = multierr.Append(problems, err)

	return filter, dispatch.NewValidationError(problems)
}

// dateRange reads start_date and end_date as RFC3339 timestamps. The error
// lists every malformed parameter.
func dateRange(r *http.Request) (*time.Time, *time.Time, error) {
	var problems error
	parse := func(name string) *time.Time {
		v := r.URL.Query().Get(name)
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s must be an RFC3339 timestamp", name))
			return nil
		}
		return &t
	}
	from, to := parse("start_date"), parse("end_date")
	return from, to, problems
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
