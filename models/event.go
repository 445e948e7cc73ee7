package models

import "time"

// Entity names used in change events
const (
	EntityCalls           = "calls"
	EntityUnits           = "units"
	EntityProtocolAnswers = "call_protocol_answers"
)

// Change kinds used in change events
const (
	ChangeCreated  = "created"
	ChangeUpdated  = "updated"
	ChangeClosed   = "closed"
	ChangeAssigned = "assigned"
	ChangeReleased = "released"
)

// ChangeEvent signals that a record in a collection changed
type ChangeEvent struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ChangeKind string    `json:"change_kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Actor is the authenticated identity performing an action
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
