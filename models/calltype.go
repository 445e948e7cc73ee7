package models

import "time"

// CallType holds the structure for the call_types collection
type CallType struct {
	ID               string    `json:"id" bson:"_id" yaml:"id"`
	Name             string    `json:"name" bson:"name" yaml:"name"`
	Description      string    `json:"description,omitempty" bson:"description,omitempty" yaml:"description"`
	DefaultPriority  int       `json:"default_priority" bson:"default_priority" yaml:"default_priority"`
	ResponsePlan     string    `json:"response_plan,omitempty" bson:"response_plan,omitempty" yaml:"response_plan"`
	RecommendedUnits []string  `json:"recommended_units,omitempty" bson:"recommended_units,omitempty" yaml:"recommended_units"`
	Color            string    `json:"color,omitempty" bson:"color,omitempty" yaml:"color"`
	IsActive         bool      `json:"is_active" bson:"is_active" yaml:"is_active"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at" yaml:"-"`
}
