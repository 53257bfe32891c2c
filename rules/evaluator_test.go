package rules

import (
	"testing"

	"github.com/flowops/cadenza/model"
	"github.com/stretchr/testify/require"
)

func TestEvaluator(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, ev *Evaluator){
		"test operators":            testOperators,
		"test missing field":        testMissingField,
		"test numeric coercion":     testNumericCoercion,
		"test time comparison":      testTimeComparison,
		"test logical combinations": testLogicalCombinations,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewEvaluator())
		})
	}
}

func testOperators(t *testing.T, ev *Evaluator) {
	context := map[string]any{
		"Department": "Engineering",
		"Email":      "dev@example.com",
		"WorkHours":  9.5,
	}
	cases := []struct {
		condition model.Condition
		expected  bool
	}{
		{model.Condition{Field: "Department", Operator: model.OP_EQUALS, Value: "Engineering"}, true},
		{model.Condition{Field: "Department", Operator: model.OP_NOT_EQUALS, Value: "Sales"}, true},
		{model.Condition{Field: "WorkHours", Operator: model.OP_GREATER, Value: "8"}, true},
		{model.Condition{Field: "WorkHours", Operator: model.OP_LESS, Value: "8"}, false},
		{model.Condition{Field: "Email", Operator: model.OP_CONTAINS, Value: "@example"}, true},
		{model.Condition{Field: "Email", Operator: model.OP_STARTS_WITH, Value: "dev"}, true},
		{model.Condition{Field: "Email", Operator: model.OP_ENDS_WITH, Value: ".com"}, true},
		// operators are matched case insensitively
		{model.Condition{Field: "Department", Operator: "EQUALS", Value: "Engineering"}, true},
		// ordering on a non numeric, non time value is not comparable
		{model.Condition{Field: "Department", Operator: model.OP_GREATER, Value: "Sales"}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, ev.Evaluate([]model.Condition{c.condition}, context), "condition %+v", c.condition)
	}
}

func testMissingField(t *testing.T, ev *Evaluator) {
	context := map[string]any{"Present": "yes", "Nil": nil}
	require.False(t, ev.Evaluate([]model.Condition{
		{Field: "Absent", Operator: model.OP_EQUALS, Value: "anything"},
	}, context))
	require.False(t, ev.Evaluate([]model.Condition{
		{Field: "Nil", Operator: model.OP_EQUALS, Value: "anything"},
	}, context))
	require.False(t, ev.Evaluate([]model.Condition{
		{Field: "Absent", Operator: model.OP_NOT_EQUALS, Value: "anything"},
	}, context))
	// empty condition list holds trivially
	require.True(t, ev.Evaluate(nil, context))
}

func testNumericCoercion(t *testing.T, ev *Evaluator) {
	context := map[string]any{"Count": "10", "Name": "10a"}
	// "10" == 10.0 numerically even though the strings differ
	require.True(t, ev.Evaluate([]model.Condition{
		{Field: "Count", Operator: model.OP_EQUALS, Value: 10.0},
	}, context))
	require.True(t, ev.Evaluate([]model.Condition{
		{Field: "Count", Operator: model.OP_GREATER, Value: "9"},
	}, context))
	// falls back to string equality when coercion fails
	require.True(t, ev.Evaluate([]model.Condition{
		{Field: "Name", Operator: model.OP_EQUALS, Value: "10a"},
	}, context))
	require.False(t, ev.Evaluate([]model.Condition{
		{Field: "Name", Operator: model.OP_GREATER, Value: "9"},
	}, context))
}

func testTimeComparison(t *testing.T, ev *Evaluator) {
	context := map[string]any{"CheckInTime": "09:45"}
	require.True(t, ev.Evaluate([]model.Condition{
		{Field: "CheckInTime", Operator: model.OP_GREATER, Value: "09:00", DataType: "Time"},
	}, context))
	require.False(t, ev.Evaluate([]model.Condition{
		{Field: "CheckInTime", Operator: model.OP_LESS, Value: "09:00", DataType: "Time"},
	}, context))
}

func testLogicalCombinations(t *testing.T, ev *Evaluator) {
	context := map[string]any{"A": 1, "B": 2}
	and := []model.Condition{
		{Field: "A", Operator: model.OP_EQUALS, Value: 1, LogicalOperator: model.LOGICAL_AND},
		{Field: "B", Operator: model.OP_EQUALS, Value: 3},
	}
	require.False(t, ev.Evaluate(and, context))

	or := []model.Condition{
		{Field: "A", Operator: model.OP_EQUALS, Value: 1, LogicalOperator: model.LOGICAL_OR},
		{Field: "Missing", Operator: model.OP_EQUALS, Value: "x"},
	}
	require.True(t, ev.Evaluate(or, context))

	// left to right: (false OR true) AND true
	mixed := []model.Condition{
		{Field: "A", Operator: model.OP_EQUALS, Value: 99, LogicalOperator: model.LOGICAL_OR},
		{Field: "B", Operator: model.OP_EQUALS, Value: 2, LogicalOperator: model.LOGICAL_AND},
		{Field: "A", Operator: model.OP_EQUALS, Value: 1},
	}
	require.True(t, ev.Evaluate(mixed, context))
}
