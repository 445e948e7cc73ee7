package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qri-io/jsonschema"
	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/dispatch"
)

const maxBodyBytes = 1 << 20

const locationSchema = `{
	"type": "object",
	"required": ["latitude", "longitude"],
	"properties": {
		"latitude": {"type": "number", "minimum": -90, "maximum": 90},
		"longitude": {"type": "number", "minimum": -180, "maximum": 180},
		"address": {"type": "string"},
		"poi_id": {"type": "string"},
		"location_notes": {"type": "string"}
	}
}`

const callerSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"phone": {"type": "string"},
		"callback_number": {"type": "string"},
		"is_anonymous": {"type": "boolean"}
	}
}`

var (
	createCallSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"call_type_id": {"type": "string"},
			"priority": {"type": "integer"},
			"description": {"type": "string"},
			"location": ` + locationSchema + `,
			"caller_info": ` + callerSchema + `,
			"assigned_units": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["location"]
	}`)

	updateCallSchema = mustSchema(`{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"call_type_id": {"type": "string"},
			"priority": {"type": "integer"},
			"status": {"type": "string"},
			"description": {"type": "string"},
			"location": ` + locationSchema + `,
			"caller_info": ` + callerSchema + `,
			"assigned_units": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	callStatusSchema = mustSchema(`{
		"type": "object",
		"required": ["status"],
		"properties": {"status": {"type": "string"}}
	}`)

	closeCallSchema = mustSchema(`{
		"type": "object",
		"properties": {"notes": {"type": "string"}}
	}`)

	unitIDsSchema = mustSchema(`{
		"type": "object",
		"required": ["unit_ids"],
		"properties": {
			"unit_ids": {"type": "array", "items": {"type": "string", "minLength": 1}}
		}
	}`)

	unitStatusSchema = mustSchema(`{
		"type": "object",
		"required": ["status"],
		"properties": {"status": {"type": "string"}}
	}`)

	processProtocolSchema = mustSchema(`{
		"type": "object",
		"required": ["call_id", "answers"],
		"properties": {
			"call_id": {"type": "string", "minLength": 1},
			"answers": {"type": "object"},
			"started_at": {"type": "string"}
		}
	}`)
)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return rs
}

// decodeBody validates the request body against schema and decodes it into
// dst. Every schema violation is reported as a validation problem.
func decodeBody(r *http.Request, schema *jsonschema.Schema, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return dispatch.NewValidationError(errors.New("failed to read request body"))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	keyErrs, err := schema.ValidateBytes(r.Context(), body)
	if err != nil {
		return dispatch.NewValidationError(errors.New("request body is not valid JSON"))
	}
	if len(keyErrs) > 0 {
		var problems error
		for _, ke := range keyErrs {
			path := strings.TrimPrefix(ke.PropertyPath, "/")
			if path == "" {
				problems = multierr.Append(problems, errors.New(ke.Message))
				continue
			}
			problems = multierr.Append(problems, fmt.Errorf("%s: %s", path, ke.Message))
		}
		return dispatch.NewValidationError(problems)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return dispatch.NewValidationError(fmt.Errorf("invalid request body: %v", err))
	}
	return nil
}
