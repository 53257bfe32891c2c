package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"go.uber.org/zap"
)

// Evaluator decides whether a condition list holds against a context. It is
// a pure function of its inputs: no storage, no side effects, and no errors
// escape to the caller — a malformed condition evaluates to false.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scans the conditions in declared order, combining each result
// into an accumulator through the previous condition's logical operator.
// Evaluation short-circuits: once the accumulator is true and the next link
// is OR, or false and the next link is AND, the remaining conditions can not
// change the outcome.
func (e *Evaluator) Evaluate(conditions []model.Condition, context map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}
	result := e.evaluateOne(conditions[0], context)
	for i := 1; i < len(conditions); i++ {
		link := conditions[i-1].Link()
		if link == model.LOGICAL_OR && result {
			return true
		}
		if link == model.LOGICAL_AND && !result {
			return false
		}
		next := e.evaluateOne(conditions[i], context)
		if link == model.LOGICAL_OR {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

func (e *Evaluator) evaluateOne(condition model.Condition, context map[string]any) bool {
	if len(condition.Field) == 0 {
		logger.Debug("condition without field evaluates false")
		return false
	}
	fieldValue, ok := context[condition.Field]
	if !ok || fieldValue == nil {
		return false
	}
	if condition.Value == nil {
		return false
	}
	switch condition.NormalizedOperator() {
	case model.OP_EQUALS:
		return compareEqual(fieldValue, condition.Value)
	case model.OP_NOT_EQUALS:
		return !compareEqual(fieldValue, condition.Value)
	case model.OP_GREATER:
		cmp, comparable := compareOrdered(fieldValue, condition.Value)
		return comparable && cmp > 0
	case model.OP_LESS:
		cmp, comparable := compareOrdered(fieldValue, condition.Value)
		return comparable && cmp < 0
	case model.OP_CONTAINS:
		return strings.Contains(asString(fieldValue), asString(condition.Value))
	case model.OP_STARTS_WITH:
		return strings.HasPrefix(asString(fieldValue), asString(condition.Value))
	case model.OP_ENDS_WITH:
		return strings.HasSuffix(asString(fieldValue), asString(condition.Value))
	}
	logger.Debug("unknown condition operator", zap.String("operator", string(condition.Operator)))
	return false
}

// compareEqual prefers numeric comparison and falls back to ordinal string
// comparison when either operand does not coerce.
func compareEqual(fieldValue any, conditionValue any) bool {
	fn, fok := asNumber(fieldValue)
	cn, cok := asNumber(conditionValue)
	if fok && cok {
		return fn == cn
	}
	return asString(fieldValue) == asString(conditionValue)
}

// compareOrdered reports fieldValue relative to conditionValue as -1/0/1 and
// whether the pair is comparable at all. Numeric coercion is tried first,
// then timestamps; everything else is not ordered and fails the condition.
func compareOrdered(fieldValue any, conditionValue any) (int, bool) {
	fn, fok := asNumber(fieldValue)
	cn, cok := asNumber(conditionValue)
	if fok && cok {
		switch {
		case fn > cn:
			return 1, true
		case fn < cn:
			return -1, true
		}
		return 0, true
	}
	ft, fok := asTime(fieldValue)
	ct, cok := asTime(conditionValue)
	if fok && cok {
		switch {
		case ft.After(ct):
			return 1, true
		case ft.Before(ct):
			return -1, true
		}
		return 0, true
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
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
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "15:04"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
