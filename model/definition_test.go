package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validDefinition() WorkflowDefinition {
	return WorkflowDefinition{
		Name: "onboarding",
		Steps: []StepDefinition{
			{
				Id:   "check",
				Type: STEP_TYPE_CONDITION,
				Configuration: map[string]any{
					"condition": map[string]any{"field": "Probation", "operator": "equals", "value": true},
					"trueStep":  "wait",
					"falseStep": "welcome",
				},
			},
			{
				Id:            "wait",
				Type:          STEP_TYPE_DELAY,
				Configuration: map[string]any{"delayMinutes": 30},
				NextSteps:     []string{"welcome"},
			},
			{
				Id:   "welcome",
				Type: STEP_TYPE_NOTIFICATION,
				Configuration: map[string]any{
					"recipients": []any{"employee"},
					"message":    "Welcome aboard",
				},
			},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test valid definition":      testValidDefinition,
		"test empty name":            testEmptyName,
		"test no steps":              testNoSteps,
		"test duplicate step id":     testDuplicateStepId,
		"test unknown step type":     testUnknownStepType,
		"test dangling next step":    testDanglingNextStep,
		"test condition branches":    testConditionBranches,
		"test delay without minutes": testDelayWithoutMinutes,
		"test automation config":     testAutomationConfig,
		"test multiple next steps":   testMultipleNextSteps,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t)
		})
	}
}

func testValidDefinition(t *testing.T) {
	def := validDefinition()
	require.NoError(t, def.Validate())
	require.Equal(t, "check", def.FirstStep().Id)
	require.Nil(t, def.Step("missing"))
}

func testEmptyName(t *testing.T) {
	def := validDefinition()
	def.Name = ""
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testNoSteps(t *testing.T) {
	def := validDefinition()
	def.Steps = nil
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testDuplicateStepId(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Id = "check"
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testUnknownStepType(t *testing.T) {
	def := validDefinition()
	def.Steps[2].Type = "WEBHOOK"
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testDanglingNextStep(t *testing.T) {
	def := validDefinition()
	def.Steps[1].NextSteps = []string{"nowhere"}
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testConditionBranches(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Configuration["trueStep"] = "nowhere"
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))

	def = validDefinition()
	delete(def.Steps[0].Configuration, "condition")
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))

	// empty branches are allowed, they end the path
	def = validDefinition()
	def.Steps[0].Configuration["falseStep"] = ""
	require.NoError(t, def.Validate())
}

func testDelayWithoutMinutes(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Configuration = map[string]any{}
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))

	def.Steps[1].Configuration = map[string]any{"delayMinutes": -5}
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}

func testAutomationConfig(t *testing.T) {
	def := validDefinition()
	def.Steps[2] = StepDefinition{
		Id:            "welcome",
		Type:          STEP_TYPE_AUTOMATION,
		Configuration: map[string]any{"message": "no actions here"},
	}
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))

	def.Steps[2].Configuration = map[string]any{
		"actions": []any{map[string]any{"type": "LogAudit"}},
	}
	require.NoError(t, def.Validate())

	def.Steps[2].Configuration = map[string]any{
		"automationType": "sendnotification",
		"recipients":     []any{"employee"},
	}
	require.NoError(t, def.Validate())
}

func testMultipleNextSteps(t *testing.T) {
	def := validDefinition()
	def.Steps[2].NextSteps = []string{"check", "wait"}
	require.True(t, IsCode(def.Validate(), CODE_VALIDATION))
}
