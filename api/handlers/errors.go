package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/linesmerrill/camp-cad-api/config"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/logging"
)

var errOperationFailed = errors.New("operation failed")

// writeError maps the dispatch error taxonomy onto HTTP statuses. Anything
// untyped is reported as a generic failure so store details never leak.
func writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var (
		nf *dispatch.NotFoundError
		ve *dispatch.ValidationError
		ce *dispatch.ConflictError
	)
	switch {
	case errors.As(err, &nf):
		config.ErrorStatus(message, http.StatusNotFound, w, nf)
	case errors.As(err, &ve):
		config.ErrorStatusWithProblems(message, http.StatusBadRequest, w, ve, ve.Problems())
	case errors.As(err, &ce):
		config.ErrorStatus(message, http.StatusConflict, w, ce)
	default:
		logging.FromContext(r.Context()).Errorw(message, "error", err)
		config.ErrorStatus(message, http.StatusInternalServerError, w, errOperationFailed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
