// Package conditions evaluates workflow condition lists against subject records.
package conditions

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/careloop/careloop/pkg/models"
)

// Evaluator applies a workflow's condition list to a subject record. It is a
// pure matcher: no I/O, no side effects beyond warning logs.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate returns true only when every condition holds for the subject.
// An empty condition list places no restriction and evaluates to true.
// An unknown operator evaluates to true and logs a warning, so a config typo
// cannot silently drop a workflow from matching.
func (e *Evaluator) Evaluate(conditions []models.Condition, subject map[string]any) bool {
	for _, condition := range conditions {
		if !e.evaluateOne(condition, subject) {
			return false
		}
	}

	return true
}

func (e *Evaluator) evaluateOne(condition models.Condition, subject map[string]any) bool {
	value, present := Resolve(subject, condition.Field)

	switch condition.Operator {
	case models.OpEquals:
		return present && looselyEqual(value, condition.Value)
	case models.OpNotEquals:
		return !present || !looselyEqual(value, condition.Value)
	case models.OpGreaterThan:
		return compareNumeric(value, condition.Value, func(a, b float64) bool { return a > b })
	case models.OpLessThan:
		return compareNumeric(value, condition.Value, func(a, b float64) bool { return a < b })
	case models.OpContains:
		return contains(value, condition.Value)
	case models.OpNotContains:
		return !contains(value, condition.Value)
	case models.OpIsEmpty:
		return isEmpty(value, present)
	case models.OpIsNotEmpty:
		return !isEmpty(value, present)
	case models.OpIn:
		return present && inSet(value, condition.Value)
	case models.OpNotIn:
		return !present || !inSet(value, condition.Value)
	default:
		e.logger.Warn("Unknown condition operator, evaluating as true",
			"operator", condition.Operator,
			"field", condition.Field)

		return true
	}
}

// Resolve walks a dotted path into a nested record. A missing intermediate
// key yields (nil, false) rather than an error.
func Resolve(record map[string]any, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	current := any(record)

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// looselyEqual compares with an explicit coercion rule: when both sides
// coerce to numbers they compare numerically ("5" equals 5), otherwise both
// sides compare as their string rendering.
func looselyEqual(a, b any) bool {
	aNum, aOK := toFloat(a)
	bNum, bOK := toFloat(b)

	if aOK && bOK {
		return aNum == bNum
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(a, b any, cmp func(a, b float64) bool) bool {
	aNum, aOK := toFloat(a)
	bNum, bOK := toFloat(b)

	if !aOK || !bOK {
		return false
	}

	return cmp(aNum, bNum)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// contains performs substring match on scalars and membership on sequences.
func contains(haystack, needle any) bool {
	if haystack == nil {
		return false
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			if looselyEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}

		return false
	}

	return strings.Contains(fmt.Sprintf("%v", haystack), fmt.Sprintf("%v", needle))
}

// isEmpty treats absent fields, nil, empty strings, and empty sequences as empty.
func isEmpty(value any, present bool) bool {
	if !present || value == nil {
		return true
	}

	switch v := value.(type) {
	case string:
		return v == ""
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array || rv.Kind() == reflect.Map {
			return rv.Len() == 0
		}

		return false
	}
}

// inSet compares against a literal set; a non-sequence set value is treated
// as a singleton.
func inSet(value, set any) bool {
	if set == nil {
		return false
	}

	rv := reflect.ValueOf(set)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return looselyEqual(value, set)
	}

	for i := range rv.Len() {
		if looselyEqual(value, rv.Index(i).Interface()) {
			return true
		}
	}

	return false
}
