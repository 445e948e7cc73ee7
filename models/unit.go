package models

import "time"

// UnitStatus is the availability of a response unit
type UnitStatus string

// Unit statuses
const (
	UnitStatusAvailable    UnitStatus = "available"
	UnitStatusDispatched   UnitStatus = "dispatched"
	UnitStatusEnroute      UnitStatus = "enroute"
	UnitStatusOnScene      UnitStatus = "on_scene"
	UnitStatusTransporting UnitStatus = "transporting"
	UnitStatusOutOfService UnitStatus = "out_of_service"
	UnitStatusMaintenance  UnitStatus = "maintenance"
	UnitStatusTraining     UnitStatus = "training"
)

// CommittedUnitStatuses are the statuses of a unit attached to a call
var CommittedUnitStatuses = []UnitStatus{UnitStatusDispatched, UnitStatusEnroute, UnitStatusOnScene, UnitStatusTransporting}

// Committed reports whether the unit is working a call in this status
func (s UnitStatus) Committed() bool {
	for _, c := range CommittedUnitStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known unit status
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitStatusAvailable, UnitStatusOutOfService, UnitStatusMaintenance, UnitStatusTraining:
		return true
	}
	return s.Committed()
}

// UnitType is the kind of resource a unit provides
type UnitType string

// Unit types
const (
	UnitTypeEMS            UnitType = "ems"
	UnitTypeFire           UnitType = "fire"
	UnitTypeSecurity       UnitType = "security"
	UnitTypeLawEnforcement UnitType = "law_enforcement"
	UnitTypeSearchRescue   UnitType = "search_rescue"
	UnitTypeSupport        UnitType = "support"
)

// Unit holds the structure for the units collection
type Unit struct {
	ID               string       `json:"id" bson:"_id"`
	UnitNumber       string       `json:"unit_number" bson:"unit_number"`
	Name             string       `json:"unit_name" bson:"unit_name"`
	Type             UnitType     `json:"unit_type" bson:"unit_type"`
	GroupID          string       `json:"group_id,omitempty" bson:"group_id,omitempty"`
	Status           UnitStatus   `json:"status" bson:"status"`
	CurrentLocation  *Coordinates `json:"current_location,omitempty" bson:"current_location,omitempty"`
	AssignedCallID   string       `json:"assigned_call_id,omitempty" bson:"assigned_call_id,omitempty"`
	IsActive         bool         `json:"is_active" bson:"is_active"`
	LastStatusUpdate time.Time    `json:"last_status_update" bson:"last_status_update"`
	CreatedAt        time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" bson:"updated_at"`
}

// Coordinates is a latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Label is the unit number, falling back to the id
func (u *Unit) Label() string {
	if u.UnitNumber != "" {
		return u.UnitNumber
	}
	return u.ID
}
