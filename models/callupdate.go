package models

import "time"

// UpdateType classifies an audit event
type UpdateType string

// Audit event types
const (
	UpdateTypeStatusChange      UpdateType = "status_change"
	UpdateTypeUnitAssignment    UpdateType = "unit_assignment"
	UpdateTypeLocationUpdate    UpdateType = "location_update"
	UpdateTypeDescriptionUpdate UpdateType = "description_update"
	UpdateTypePriorityChange    UpdateType = "priority_change"
	UpdateTypeGeneral           UpdateType = "general"
)

// CallUpdate is an append-only audit event on a call
type CallUpdate struct {
	ID          string            `json:"id" bson:"_id"`
	CallID      string            `json:"call_id" bson:"call_id"`
	ActorID     string            `json:"user_id" bson:"user_id"`
	ActorName   string            `json:"user_name,omitempty" bson:"user_name,omitempty"`
	Type        UpdateType        `json:"update_type" bson:"update_type"`
	Description string            `json:"description" bson:"description"`
	Metadata    map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
}
