package rules_test

import (
	"testing"

	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/notify"
	"github.com/flowops/cadenza/persistence/memory"
	"github.com/flowops/cadenza/rules"
	"github.com/stretchr/testify/require"
)

const testTenant = "acme"

func TestRuleEngine(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, eng *rules.Engine){
		"test rule crud":          testRuleCrud,
		"test evaluate rule":      testEvaluateRule,
		"test evaluate pipeline":  testEvaluatePipeline,
		"test inactive rules":     testInactiveRules,
		"test builtin templates":  testBuiltinTemplates,
		"test validation on save": testRuleValidation,
	} {
		t.Run(scenario, func(t *testing.T) {
			storage := memory.NewStorage()
			eng := rules.NewEngine(storage.Rules, notify.NewLogNotifier(), metrics.New())
			fn(t, eng)
		})
	}
}

func lateArrivalRule(priority int) model.BusinessRule {
	return model.BusinessRule{
		TenantId: testTenant,
		Name:     "late arrival",
		Category: "Attendance",
		Priority: priority,
		Active:   true,
		Conditions: []model.Condition{
			{Field: "CheckInTime", Operator: model.OP_GREATER, Value: "09:00", DataType: "Time"},
		},
		Actions: []model.RuleAction{
			{Type: model.ACTION_SEND_NOTIFICATION, Configuration: map[string]any{
				"recipients": []any{"manager"},
				"message":    "{EmployeeName} arrived late",
			}},
		},
	}
}

func testRuleCrud(t *testing.T, eng *rules.Engine) {
	created, err := eng.CreateRule(lateArrivalRule(10))
	require.NoError(t, err)
	require.NotEmpty(t, created.Id)
	require.NotZero(t, created.Seq)

	got, err := eng.GetRule(testTenant, created.Id)
	require.NoError(t, err)
	require.Equal(t, "late arrival", got.Name)

	updated, err := eng.UpdateRule(testTenant, created.Id, model.BusinessRule{Name: "late arrival v2", Active: true})
	require.NoError(t, err)
	require.Equal(t, "late arrival v2", updated.Name)
	require.Equal(t, created.Seq, updated.Seq)

	require.NoError(t, eng.DeleteRule(testTenant, created.Id))
	_, err = eng.GetRule(testTenant, created.Id)
	require.True(t, model.IsCode(err, model.CODE_NOT_FOUND))
}

func testEvaluateRule(t *testing.T, eng *rules.Engine) {
	created, err := eng.CreateRule(lateArrivalRule(10))
	require.NoError(t, err)

	result, err := eng.EvaluateRule(testTenant, created.Id, map[string]any{
		"EmployeeName": "Jordan",
		"CheckInTime":  "09:45",
	})
	require.NoError(t, err)
	require.True(t, result.ConditionsMet)
	require.Equal(t, []string{string(model.ACTION_SEND_NOTIFICATION)}, result.ActionsExecuted)

	result, err = eng.EvaluateRule(testTenant, created.Id, map[string]any{
		"CheckInTime": "08:30",
	})
	require.NoError(t, err)
	require.False(t, result.ConditionsMet)
	require.Empty(t, result.ActionsExecuted)
}

// An earlier rule's UpdateField mutation is visible to later rules in the
// same evaluation, in priority order.
func testEvaluatePipeline(t *testing.T, eng *rules.Engine) {
	first := model.BusinessRule{
		TenantId: testTenant,
		Name:     "escalate big orders",
		Category: "Orders",
		Priority: 1,
		Active:   true,
		Conditions: []model.Condition{
			{Field: "Amount", Operator: model.OP_GREATER, Value: 1000},
		},
		Actions: []model.RuleAction{
			{Type: model.ACTION_UPDATE_FIELD, Configuration: map[string]any{"field": "Tier", "value": "Gold"}},
		},
	}
	second := model.BusinessRule{
		TenantId: testTenant,
		Name:     "notify on gold tier",
		Category: "Orders",
		Priority: 2,
		Active:   true,
		Conditions: []model.Condition{
			{Field: "Tier", Operator: model.OP_EQUALS, Value: "Gold"},
		},
		Actions: []model.RuleAction{
			{Type: model.ACTION_SEND_NOTIFICATION, Configuration: map[string]any{
				"recipients": []any{"sales"},
				"message":    "gold order",
			}},
		},
	}
	_, err := eng.CreateRule(second)
	require.NoError(t, err)
	_, err = eng.CreateRule(first)
	require.NoError(t, err)

	results, err := eng.EvaluateRules(testTenant, "Orders", map[string]any{"Amount": 2000})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "escalate big orders", results[0].RuleName)
	require.True(t, results[0].ConditionsMet)
	require.Equal(t, "notify on gold tier", results[1].RuleName)
	require.True(t, results[1].ConditionsMet)
}

func testInactiveRules(t *testing.T, eng *rules.Engine) {
	rule := lateArrivalRule(10)
	rule.Active = false
	_, err := eng.CreateRule(rule)
	require.NoError(t, err)

	results, err := eng.EvaluateRules(testTenant, "Attendance", map[string]any{"CheckInTime": "10:00"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func testBuiltinTemplates(t *testing.T, eng *rules.Engine) {
	templates := eng.Templates()
	require.Len(t, templates, 3)
	ids := make([]string, 0, len(templates))
	for _, template := range templates {
		ids = append(ids, template.Id)
	}
	require.Contains(t, ids, "attendance-late-arrival")
	require.Contains(t, ids, "overtime-approval")
	require.Contains(t, ids, "leave-balance-warning")
}

func testRuleValidation(t *testing.T, eng *rules.Engine) {
	rule := lateArrivalRule(10)
	rule.Name = ""
	_, err := eng.CreateRule(rule)
	require.True(t, model.IsCode(err, model.CODE_VALIDATION))

	rule = lateArrivalRule(10)
	rule.Actions = []model.RuleAction{{Type: "Explode"}}
	_, err = eng.CreateRule(rule)
	require.True(t, model.IsCode(err, model.CODE_VALIDATION))
}
