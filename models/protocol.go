package models

import "time"

// QuestionType is the expected answer format of a protocol question
type QuestionType string

// Question types
const (
	QuestionTypeText        QuestionType = "text"
	QuestionTypeNumber      QuestionType = "number"
	QuestionTypeBoolean     QuestionType = "boolean"
	QuestionTypeSelect      QuestionType = "select"
	QuestionTypeMultiSelect QuestionType = "multi_select"
)

// ConditionOperator compares a prior answer against a value
type ConditionOperator string

// Condition operators
const (
	ConditionEquals      ConditionOperator = "equals"
	ConditionNotEquals   ConditionOperator = "not_equals"
	ConditionContains    ConditionOperator = "contains"
	ConditionGreaterThan ConditionOperator = "greater_than"
	ConditionLessThan    ConditionOperator = "less_than"
)

// ConditionalLogic makes a question visible only when another answer matches
type ConditionalLogic struct {
	DependsOn string            `json:"depends_on" bson:"depends_on" yaml:"depends_on"`
	Condition ConditionOperator `json:"condition" bson:"condition" yaml:"condition"`
	Value     interface{}       `json:"value" bson:"value" yaml:"value"`
}

// ProtocolQuestion holds the structure for the protocol_questions collection
type ProtocolQuestion struct {
	ID               string            `json:"id" bson:"_id" yaml:"id"`
	CallTypeID       string            `json:"call_type_id" bson:"call_type_id" yaml:"call_type_id"`
	Question         string            `json:"question" bson:"question" yaml:"question"`
	Type             QuestionType      `json:"type" bson:"type" yaml:"type"`
	Required         bool              `json:"required" bson:"required" yaml:"required"`
	Options          []string          `json:"options,omitempty" bson:"options,omitempty" yaml:"options"`
	Order            int               `json:"order" bson:"order" yaml:"order"`
	ConditionalLogic *ConditionalLogic `json:"conditional_logic,omitempty" bson:"conditional_logic,omitempty" yaml:"conditional_logic"`
}

// ProtocolWorkflow is the ordered questionnaire of one call type
type ProtocolWorkflow struct {
	CallTypeID      string             `json:"call_type_id"`
	CallTypeName    string             `json:"call_type_name"`
	Description     string             `json:"description,omitempty"`
	DefaultPriority int                `json:"default_priority"`
	Questions       []ProtocolQuestion `json:"questions"`
	BaseUnits       []string           `json:"recommended_units"`
	ResponsePlan    string             `json:"response_plan,omitempty"`
}

// CallProtocolAnswer holds the structure for the call_protocol_answers collection
type CallProtocolAnswer struct {
	ID                 string                 `json:"id" bson:"_id"`
	CallID             string                 `json:"call_id" bson:"call_id"`
	CallTypeID         string                 `json:"call_type_id" bson:"call_type_id"`
	Answers            map[string]interface{} `json:"answers" bson:"answers"`
	CalculatedPriority int                    `json:"calculated_priority" bson:"calculated_priority"`
	RecommendedUnits   []string               `json:"recommended_units" bson:"recommended_units"`
	ResponsePlan       string                 `json:"response_plan" bson:"response_plan"`
	RuleVersion        string                 `json:"rule_version" bson:"rule_version"`
	ProtocolCompleted  bool                   `json:"protocol_completed" bson:"protocol_completed"`
	SubmittedBy        string                 `json:"submitted_by,omitempty" bson:"submitted_by,omitempty"`
	StartedAt          time.Time              `json:"started_at" bson:"started_at"`
	CompletedAt        time.Time              `json:"completed_at" bson:"completed_at"`
}

// EvaluationResult is returned after a questionnaire submission
type EvaluationResult struct {
	AnswerID           string    `json:"answer_id"`
	CallID             string    `json:"call_id"`
	PreviousPriority   int       `json:"previous_priority"`
	CalculatedPriority int       `json:"calculated_priority"`
	PriorityChanged    bool      `json:"priority_changed"`
	RecommendedUnits   []string  `json:"recommended_units"`
	ResponsePlan       string    `json:"response_plan"`
	RuleVersion        string    `json:"rule_version"`
	ProtocolCompleted  bool      `json:"protocol_completed"`
	CompletedAt        time.Time `json:"completed_at"`
}

// ProtocolStats aggregates stored evaluations
type ProtocolStats struct {
	TotalProtocols        int                       `json:"total_protocols"`
	AverageCompletionTime float64                   `json:"average_completion_time"`
	PriorityDistribution  map[string]int            `json:"priority_distribution"`
	MostCommonAnswers     map[string]map[string]int `json:"most_common_answers"`
}
