package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/linesmerrill/camp-cad-api/models"
)

// conditionMet reports whether a question guarded by logic should be asked
// given the answers supplied so far. Unknown operators always show the question.
func conditionMet(logic models.ConditionalLogic, answers map[string]interface{}) bool {
	answer, ok := answers[logic.DependsOn]
	answered := ok && isSet(answer)

	switch logic.Condition {
	case models.ConditionEquals:
		return answered && valuesEqual(answer, logic.Value)
	case models.ConditionNotEquals:
		return !answered || !valuesEqual(answer, logic.Value)
	case models.ConditionContains:
		return answered && strings.Contains(strings.ToLower(answerText(answer)), strings.ToLower(answerText(logic.Value)))
	case models.ConditionGreaterThan, models.ConditionLessThan:
		a, okA := asNumber(answer)
		b, okB := asNumber(logic.Value)
		if !answered || !okA || !okB {
			return false
		}
		if logic.Condition == models.ConditionGreaterThan {
			return a > b
		}
		return a < b
	}
	return true
}

// valuesEqual compares as booleans, then as numbers, then as case-insensitive text
func valuesEqual(a, b interface{}) bool {
	if x, ok := asBool(a); ok {
		if y, ok := asBool(b); ok {
			return x == y
		}
	}
	if x, ok := asNumber(a); ok {
		if y, ok := asNumber(b); ok {
			return x == y
		}
	}
	return strings.EqualFold(answerText(a), answerText(b))
}

// isSet reports whether an answer counts as given. false and 0 do.
func isSet(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []interface{}:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

func asBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// answerText is the text form keyword rules are matched against. Lists are
// comma joined.
func answerText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, ",")
	case []interface{}:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = answerText(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}
