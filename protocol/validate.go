package protocol

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/models"
)

// validateAnswers checks every question that applies to answers and returns
// all problems combined
func validateAnswers(questions []models.ProtocolQuestion, answers map[string]interface{}) error {
	var errs error
	for _, q := range questions {
		if q.ConditionalLogic != nil && !conditionMet(*q.ConditionalLogic, answers) {
			continue
		}
		v, ok := answers[q.ID]
		if !ok || !isSet(v) {
			if q.Required {
				errs = multierr.Append(errs, fmt.Errorf("question %q is required", q.Question))
			}
			continue
		}
		errs = multierr.Append(errs, checkFormat(q, v))
	}
	return errs
}

func checkFormat(q models.ProtocolQuestion, v interface{}) error {
	switch q.Type {
	case models.QuestionTypeNumber:
		if _, ok := asNumber(v); !ok {
			return fmt.Errorf("question %q requires a number", q.Question)
		}
	case models.QuestionTypeBoolean:
		if _, ok := asBool(v); !ok {
			return fmt.Errorf("question %q requires a yes/no answer", q.Question)
		}
	case models.QuestionTypeSelect:
		s, ok := v.(string)
		if len(q.Options) > 0 && (!ok || !hasOption(q.Options, s)) {
			return fmt.Errorf("question %q requires one of the available options", q.Question)
		}
	case models.QuestionTypeMultiSelect:
		items, ok := listItems(v)
		if !ok {
			return fmt.Errorf("question %q requires a list of selections", q.Question)
		}
		var errs error
		for _, item := range items {
			s, isString := item.(string)
			if len(q.Options) > 0 && (!isString || !hasOption(q.Options, s)) {
				errs = multierr.Append(errs, fmt.Errorf("question %q contains invalid option: %v", q.Question, item))
			}
		}
		return errs
	}
	return nil
}

func listItems(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		items := make([]interface{}, len(t))
		for i, s := range t {
			items[i] = s
		}
		return items, true
	}
	return nil, false
}

func hasOption(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
