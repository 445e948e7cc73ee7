package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/camp-cad-api/api"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
)

// Unit exported for testing purposes
type Unit struct {
	DB          databases.UnitDatabase
	Assignments AssignmentService
}

// UnitsHandler lists units, optionally narrowed by status, type or availability
func (u Unit) UnitsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := databases.UnitFilter{}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, models.UnitStatus(s))
	}
	for _, t := range splitList(q.Get("type")) {
		filter.Types = append(filter.Types, models.UnitType(t))
	}
	if v := q.Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, "invalid unit filter", dispatch.NewValidationError(err))
			return
		}
		if available {
			filter.Statuses = []models.UnitStatus{models.UnitStatusAvailable}
		}
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	units, err := u.DB.Find(ctx, filter)
	if err != nil {
		writeError(w, r, "failed to get units", dispatch.Classify(ctx, "list units", err))
		return
	}
	if units == nil {
		units = []models.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// UnitStatusHandler changes a unit's status through the coordinator
func (u Unit) UnitStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.UnitStatus `json:"status"`
	}
	if err := decodeBody(r, unitStatusSchema, &req); err != nil {
		writeError(w, r, "invalid unit status", err)
		return
	}

	unit, err := u.Assignments.SetUnitStatus(r.Context(), mux.Vars(r)["unit_id"], req.Status, actor)
	if err != nil {
		writeError(w, r, "failed to update unit status", err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}
