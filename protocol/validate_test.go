package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/models"
)

func TestConditionMet(t *testing.T) {
	answers := map[string]interface{}{
		"bleeding": "Yes",
		"count":    float64(3),
		"nature":   "Twisted ankle",
		"flag":     true,
	}
	tests := []struct {
		name  string
		logic models.ConditionalLogic
		want  bool
	}{
		{"equals ignores case", models.ConditionalLogic{DependsOn: "bleeding", Condition: models.ConditionEquals, Value: "yes"}, true},
		{"equals compares yes with true", models.ConditionalLogic{DependsOn: "flag", Condition: models.ConditionEquals, Value: "yes"}, true},
		{"equals numeric", models.ConditionalLogic{DependsOn: "count", Condition: models.ConditionEquals, Value: "3"}, true},
		{"equals on missing answer", models.ConditionalLogic{DependsOn: "absent", Condition: models.ConditionEquals, Value: "yes"}, false},
		{"not equals", models.ConditionalLogic{DependsOn: "bleeding", Condition: models.ConditionNotEquals, Value: "no"}, true},
		{"not equals on missing answer", models.ConditionalLogic{DependsOn: "absent", Condition: models.ConditionNotEquals, Value: "no"}, true},
		{"contains", models.ConditionalLogic{DependsOn: "nature", Condition: models.ConditionContains, Value: "ANKLE"}, true},
		{"contains miss", models.ConditionalLogic{DependsOn: "nature", Condition: models.ConditionContains, Value: "wrist"}, false},
		{"greater than", models.ConditionalLogic{DependsOn: "count", Condition: models.ConditionGreaterThan, Value: 2}, true},
		{"less than", models.ConditionalLogic{DependsOn: "count", Condition: models.ConditionLessThan, Value: "2"}, false},
		{"greater than on text", models.ConditionalLogic{DependsOn: "nature", Condition: models.ConditionGreaterThan, Value: 1}, false},
		{"unknown operator shows question", models.ConditionalLogic{DependsOn: "nature", Condition: "matches", Value: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conditionMet(tt.logic, answers))
		})
	}
}

func TestValidateAnswers(t *testing.T) {
	questions := []models.ProtocolQuestion{
		{ID: "conscious", Question: "Conscious?", Type: models.QuestionTypeBoolean, Required: true},
		{ID: "patients", Question: "How many?", Type: models.QuestionTypeNumber},
		{ID: "site", Question: "Where?", Type: models.QuestionTypeSelect, Options: []string{"Lake", "Trail"}},
		{ID: "hazards", Question: "Hazards?", Type: models.QuestionTypeMultiSelect, Options: []string{"Smoke", "Water"}},
		{ID: "bleeding", Question: "Bleeding?", Type: models.QuestionTypeBoolean},
		{
			ID: "bleeding-site", Question: "Bleeding where?", Type: models.QuestionTypeText, Required: true,
			ConditionalLogic: &models.ConditionalLogic{DependsOn: "bleeding", Condition: models.ConditionEquals, Value: "yes"},
		},
	}

	t.Run("valid", func(t *testing.T) {
		err := validateAnswers(questions, map[string]interface{}{
			"conscious": false,
			"patients":  "2",
			"site":      "Lake",
			"hazards":   []interface{}{"Smoke"},
			"bleeding":  "no",
		})
		assert.NoError(t, err)
	})

	t.Run("hidden question is skipped", func(t *testing.T) {
		assert.NoError(t, validateAnswers(questions, map[string]interface{}{"conscious": "YES"}))
	})

	t.Run("every problem is reported", func(t *testing.T) {
		err := validateAnswers(questions, map[string]interface{}{
			"patients": "several",
			"site":     "Cave",
			"hazards":  []interface{}{"Smoke", "Lava", "Ice"},
			"bleeding": true,
		})
		errs := multierr.Errors(err)
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		assert.Equal(t, []string{
			`question "Conscious?" is required`,
			`question "How many?" requires a number`,
			`question "Where?" requires one of the available options`,
			`question "Hazards?" contains invalid option: Lava`,
			`question "Hazards?" contains invalid option: Ice`,
			`question "Bleeding where?" is required`,
		}, msgs)
	})

	t.Run("format checks", func(t *testing.T) {
		err := validateAnswers(questions, map[string]interface{}{
			"conscious": "maybe",
			"hazards":   "Smoke",
		})
		assert.Len(t, multierr.Errors(err), 2)
	})
}

func TestAnswerText(t *testing.T) {
	assert.Equal(t, "true", answerText(true))
	assert.Equal(t, "2.5", answerText(2.5))
	assert.Equal(t, "Smoke,Water", answerText([]interface{}{"Smoke", "Water"}))
	assert.Equal(t, "", answerText(nil))
}
