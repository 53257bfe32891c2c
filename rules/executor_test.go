package rules

import (
	"testing"

	"github.com/flowops/cadenza/model"
	"github.com/stretchr/testify/require"
)

func TestExecutor(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, ex *Executor){
		"test notification tokens": testNotificationTokens,
		"test update field":        testUpdateField,
		"test partial failure":     testPartialFailure,
		"test unknown action":      testUnknownAction,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewExecutor())
		})
	}
}

func testNotificationTokens(t *testing.T, ex *Executor) {
	context := map[string]any{"EmployeeName": "Jordan", "CheckInTime": "09:45"}
	record := ex.Execute(model.RuleAction{
		Type: model.ACTION_SEND_NOTIFICATION,
		Configuration: map[string]any{
			"recipients": []any{"manager"},
			"message":    "Employee {EmployeeName} arrived late at {CheckInTime}, badge {BadgeId}",
		},
	}, context)
	require.True(t, record.Success)
	require.Len(t, record.Effects, 1)
	require.Equal(t, EFFECT_NOTIFY, record.Effects[0].Kind)
	// known tokens substitute, unknown tokens resolve to empty string
	require.Equal(t, "Employee Jordan arrived late at 09:45, badge ", record.Effects[0].Payload["message"])
}

func testUpdateField(t *testing.T, ex *Executor) {
	context := map[string]any{"Status": "Submitted"}
	record := ex.Execute(model.RuleAction{
		Type:          model.ACTION_UPDATE_FIELD,
		Configuration: map[string]any{"field": "Status", "value": "Escalated"},
	}, context)
	require.True(t, record.Success)
	require.Equal(t, "Escalated", context["Status"])
}

func testPartialFailure(t *testing.T, ex *Executor) {
	context := map[string]any{}
	actions := []model.RuleAction{
		{Type: model.ACTION_SEND_NOTIFICATION, Configuration: map[string]any{}},
		{Type: model.ACTION_UPDATE_FIELD, Configuration: map[string]any{"field": "X", "value": 1}},
	}
	executed, failed := ex.ExecuteBatch(actions, context)
	require.Len(t, executed, 1)
	require.Len(t, failed, 1)
	require.Equal(t, model.ACTION_SEND_NOTIFICATION, failed[0].Type)
	require.Equal(t, 1, context["X"])
}

func testUnknownAction(t *testing.T, ex *Executor) {
	record := ex.Execute(model.RuleAction{Type: "Explode"}, map[string]any{})
	require.False(t, record.Success)
	require.NotEmpty(t, record.Error)
}
