// Package conditions evaluates the boolean trigger DSL against event contexts.
package conditions

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"

	"github.com/tidewater/conveyor/pkg/models"
)

// absent is the sentinel for a field path that does not resolve in the
// context. It compares false for every operator except ne.
type absent struct{}

// Evaluator evaluates condition trees. Evaluation is referentially pure and
// side-effect free apart from diagnostics, so the same evaluator serves both
// live trigger matching and dry-run simulation.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate returns whether the condition tree holds for the given context.
// A nil or empty condition always matches. Malformed leaves and unknown
// operators are logged and treated as non-matching; Evaluate never fails.
func (e *Evaluator) Evaluate(cond *models.Condition, context map[string]any) bool {
	if cond.IsEmpty() {
		return true
	}

	switch {
	case len(cond.And) > 0:
		for _, child := range cond.And {
			if !e.Evaluate(child, context) {
				return false
			}
		}

		return true
	case len(cond.Or) > 0:
		for _, child := range cond.Or {
			if e.Evaluate(child, context) {
				return true
			}
		}

		return false
	case cond.Not != nil:
		return !e.Evaluate(cond.Not, context)
	default:
		return e.evaluateLeaf(cond, context)
	}
}

func (e *Evaluator) evaluateLeaf(cond *models.Condition, context map[string]any) bool {
	if cond.Field == "" {
		e.logger.Warn("Malformed condition leaf: missing field", "operator", cond.Operator)

		return false
	}

	fieldValue := resolvePath(context, cond.Field)

	if _, missing := fieldValue.(absent); missing {
		// A missing path compares false for everything except ne.
		return cond.Operator == models.OperatorNe
	}

	switch cond.Operator {
	case models.OperatorEq:
		return looseEqual(fieldValue, cond.Value)
	case models.OperatorNe:
		return !looseEqual(fieldValue, cond.Value)
	case models.OperatorGt:
		return compareNumeric(fieldValue, cond.Value, func(a, b float64) bool { return a > b })
	case models.OperatorGte:
		return compareNumeric(fieldValue, cond.Value, func(a, b float64) bool { return a >= b })
	case models.OperatorLt:
		return compareNumeric(fieldValue, cond.Value, func(a, b float64) bool { return a < b })
	case models.OperatorLte:
		return compareNumeric(fieldValue, cond.Value, func(a, b float64) bool { return a <= b })
	case models.OperatorIn:
		return memberOf(fieldValue, cond.Value)
	case models.OperatorContains:
		return containsValue(fieldValue, cond.Value)
	case models.OperatorStartsWith:
		return stringPair(fieldValue, cond.Value, strings.HasPrefix)
	case models.OperatorEndsWith:
		return stringPair(fieldValue, cond.Value, strings.HasSuffix)
	default:
		e.logger.Warn("Unknown condition operator", "operator", cond.Operator, "field", cond.Field)

		return false
	}
}

// resolvePath walks a dot-notation path through nested maps.
func resolvePath(context map[string]any, path string) any {
	var current any = context

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return absent{}
		}

		current, ok = node[segment]
		if !ok {
			return absent{}
		}
	}

	return current
}

// looseEqual compares values with numeric coercion, so an event carrying
// json-decoded float64(3) equals a condition value of int(3).
func looseEqual(a, b any) bool {
	aNum, aOK := toFloat(a)
	bNum, bOK := toFloat(b)

	if aOK && bOK {
		return aNum == bNum
	}

	return reflect.DeepEqual(a, b)
}

func compareNumeric(a, b any, cmp func(a, b float64) bool) bool {
	aNum, aOK := toFloat(a)
	bNum, bOK := toFloat(b)

	if !aOK || !bOK {
		return false
	}

	return cmp(aNum, bNum)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// memberOf implements the "in" operator: the field value must be a member of
// the condition value, which is required to be a sequence.
func memberOf(fieldValue, value any) bool {
	seq := reflect.ValueOf(value)
	if !seq.IsValid() || (seq.Kind() != reflect.Slice && seq.Kind() != reflect.Array) {
		return false
	}

	for i := range seq.Len() {
		if looseEqual(fieldValue, seq.Index(i).Interface()) {
			return true
		}
	}

	return false
}

// containsValue implements the "contains" operator: the condition value must
// be contained in the field value, which may be a string, a sequence, or a map
// (keyed membership).
func containsValue(fieldValue, value any) bool {
	switch holder := fieldValue.(type) {
	case string:
		needle, ok := value.(string)

		return ok && strings.Contains(holder, needle)
	case map[string]any:
		key, ok := value.(string)
		if !ok {
			return false
		}

		_, present := holder[key]

		return present
	default:
		seq := reflect.ValueOf(fieldValue)
		if !seq.IsValid() || (seq.Kind() != reflect.Slice && seq.Kind() != reflect.Array) {
			return false
		}

		for i := range seq.Len() {
			if looseEqual(seq.Index(i).Interface(), value) {
				return true
			}
		}

		return false
	}
}

func stringPair(a, b any, test func(s, affix string) bool) bool {
	aStr, aOK := a.(string)
	bStr, bOK := b.(string)

	return aOK && bOK && test(aStr, bStr)
}
