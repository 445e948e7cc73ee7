// Package docs Camp CAD API.
//
// Documentation of the Camp CAD call lifecycle and dispatch protocol API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//     - bearer
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/linesmerrill/camp-cad-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route POST /api/v1/calls calls createCall
// Opens a new call in pending status with the next call number.
// responses:
//   201: callResponse
//   400: errorResponse

// swagger:route GET /api/v1/calls/{call_id} calls callByID
// Gets a single call by ID.
// responses:
//   200: callResponse
//   404: errorResponse

// A single call
// swagger:response callResponse
type callResponseWrapper struct {
	// in:body
	Body models.Call
}

// swagger:parameters createCall
type createCallParamsWrapper struct {
	// in:body
	Body models.NewCall
}

// swagger:parameters callByID
type callIDParamsWrapper struct {
	// in:path
	CallID string `json:"call_id"`
}

// swagger:route GET /api/v1/calls calls searchCalls
// Searches calls by status, priority, call type, unit, dispatcher and creation date.
// responses:
//   200: callListResponse
//   400: errorResponse

// A page of calls
// swagger:response callListResponse
type callListResponseWrapper struct {
	// in:body
	Body models.CallList
}

// swagger:route POST /api/v1/protocol/process protocol processProtocol
// Evaluates questionnaire answers for a call.
// responses:
//   200: evaluationResponse
//   400: errorResponse
//   404: errorResponse

// The outcome of a protocol evaluation
// swagger:response evaluationResponse
type evaluationResponseWrapper struct {
	// in:body
	Body models.EvaluationResult
}

// An error with the individual problems, if any
// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorMessageResponse
}
