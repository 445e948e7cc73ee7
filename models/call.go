package models

import "time"

// CallStatus is the lifecycle state of a call
type CallStatus string

// Call statuses, in lifecycle order. Cleared and cancelled are terminal.
const (
	CallStatusPending    CallStatus = "pending"
	CallStatusDispatched CallStatus = "dispatched"
	CallStatusEnroute    CallStatus = "enroute"
	CallStatusOnScene    CallStatus = "on_scene"
	CallStatusCleared    CallStatus = "cleared"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s CallStatus) Terminal() bool {
	return s == CallStatusCleared || s == CallStatusCancelled
}

// Valid reports whether s is one of the known call statuses
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusDispatched, CallStatusEnroute, CallStatusOnScene, CallStatusCleared, CallStatusCancelled:
		return true
	}
	return false
}

// ActiveCallStatuses are the non-terminal statuses
var ActiveCallStatuses = []CallStatus{CallStatusPending, CallStatusDispatched, CallStatusEnroute, CallStatusOnScene}

// Priority bounds, 1 is the most urgent
const (
	MostUrgentPriority  = 1
	LeastUrgentPriority = 5
)

// Call holds the structure for the calls collection
type Call struct {
	ID                string     `json:"id" bson:"_id"`
	CallNumber        string     `json:"call_number" bson:"call_number"`
	CallTypeID        string     `json:"call_type_id" bson:"call_type_id"`
	Priority          int        `json:"priority" bson:"priority"`
	Status            CallStatus `json:"status" bson:"status"`
	Location          Location   `json:"location" bson:"location"`
	Caller            CallerInfo `json:"caller_info" bson:"caller_info"`
	Description       string     `json:"description" bson:"description"`
	AssignedUnits     []string   `json:"assigned_units" bson:"assigned_units"`
	DispatcherID      string     `json:"dispatcher_id" bson:"dispatcher_id"`
	ActualArrivalTime *time.Time `json:"actual_arrival_time,omitempty" bson:"actual_arrival_time,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	ClearedTime       *time.Time `json:"cleared_time,omitempty" bson:"cleared_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" bson:"updated_at"`
}

// HasUnit reports whether unitID is in the call's assigned set
func (c *Call) HasUnit(unitID string) bool {
	for _, id := range c.AssignedUnits {
		if id == unitID {
			return true
		}
	}
	return false
}

// Location holds where the incident is
type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Address   string  `json:"address,omitempty" bson:"address,omitempty"`
	POIID     string  `json:"poi_id,omitempty" bson:"poi_id,omitempty"`
	Notes     string  `json:"location_notes,omitempty" bson:"location_notes,omitempty"`
}

// CallerInfo holds who reported the incident
type CallerInfo struct {
	Name           string `json:"name,omitempty" bson:"name,omitempty"`
	Phone          string `json:"phone,omitempty" bson:"phone,omitempty"`
	CallbackNumber string `json:"callback_number,omitempty" bson:"callback_number,omitempty"`
	IsAnonymous    bool   `json:"is_anonymous" bson:"is_anonymous"`
}

// NewCall is the input for creating a call
type NewCall struct {
	CallTypeID    string     `json:"call_type_id"`
	Priority      int        `json:"priority"`
	Location      Location   `json:"location"`
	Caller        CallerInfo `json:"caller_info"`
	Description   string     `json:"description"`
	AssignedUnits []string   `json:"assigned_units,omitempty"`
}

// CallPatch is a partial update; nil fields are left untouched
type CallPatch struct {
	CallTypeID    *string     `json:"call_type_id,omitempty"`
	Priority      *int        `json:"priority,omitempty"`
	Status        *CallStatus `json:"status,omitempty"`
	Location      *Location   `json:"location,omitempty"`
	Caller        *CallerInfo `json:"caller_info,omitempty"`
	Description   *string     `json:"description,omitempty"`
	AssignedUnits *[]string   `json:"assigned_units,omitempty"`
}

// CallDetails is a call joined with its units and audit timeline
type CallDetails struct {
	Call     Call         `json:"call"`
	Units    []Unit       `json:"units"`
	Timeline []CallUpdate `json:"timeline"`
}

// CallList is a page of search results
type CallList struct {
	Calls  []Call `json:"calls"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// CallStats summarizes call volume over a window
type CallStats struct {
	Total                  int     `json:"total"`
	Active                 int     `json:"active"`
	Emergency              int     `json:"emergency"`
	AverageResponseSeconds float64 `json:"average_response_seconds"`
}
