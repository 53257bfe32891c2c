package model

import (
	"fmt"
	"strings"
	"time"
)

type StepType string

const (
	STEP_TYPE_APPROVAL     StepType = "APPROVAL"
	STEP_TYPE_NOTIFICATION StepType = "NOTIFICATION"
	STEP_TYPE_AUTOMATION   StepType = "AUTOMATION"
	STEP_TYPE_CONDITION    StepType = "CONDITION"
	STEP_TYPE_DELAY        StepType = "DELAY"
	STEP_TYPE_CUSTOM       StepType = "CUSTOM"
)

func ToStepType(st string) (StepType, error) {
	switch strings.ToUpper(st) {
	case "APPROVAL":
		return STEP_TYPE_APPROVAL, nil
	case "NOTIFICATION":
		return STEP_TYPE_NOTIFICATION, nil
	case "AUTOMATION":
		return STEP_TYPE_AUTOMATION, nil
	case "CONDITION":
		return STEP_TYPE_CONDITION, nil
	case "DELAY":
		return STEP_TYPE_DELAY, nil
	case "CUSTOM":
		return STEP_TYPE_CUSTOM, nil
	}
	return "", NewValidationError(fmt.Sprintf("unknown step type %s", st))
}

// WorkflowDefinition is the immutable-per-version template a workflow
// instance executes against. Edits never mutate a stored version in place,
// they overwrite with Version incremented.
type WorkflowDefinition struct {
	Id        string           `json:"id"`
	TenantId  string           `json:"tenantId"`
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Steps     []StepDefinition `json:"steps"`
	Variables map[string]any   `json:"variables"`
	Active    bool             `json:"active"`
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	CreatedBy string           `json:"createdBy"`
}

type StepDefinition struct {
	Id            string         `json:"id"`
	Name          string         `json:"name"`
	Type          StepType       `json:"type"`
	Configuration map[string]any `json:"configuration"`
	NextSteps     []string       `json:"nextSteps"`
}

// FirstStep returns the entry step of the definition, declared order.
func (wd *WorkflowDefinition) FirstStep() *StepDefinition {
	if len(wd.Steps) == 0 {
		return nil
	}
	return &wd.Steps[0]
}

func (wd *WorkflowDefinition) Step(stepId string) *StepDefinition {
	for i := range wd.Steps {
		if wd.Steps[i].Id == stepId {
			return &wd.Steps[i]
		}
	}
	return nil
}

func (wd *WorkflowDefinition) Validate() error {
	if len(wd.Name) == 0 {
		return NewValidationError("workflow name can not be empty")
	}
	if len(wd.Steps) == 0 {
		return NewValidationError("workflow should have at least one step")
	}
	stepIds := make(map[string]any)
	for _, step := range wd.Steps {
		if len(step.Id) == 0 {
			return NewValidationError("step id can not be empty")
		}
		if _, ok := stepIds[step.Id]; ok {
			return NewValidationError(fmt.Sprintf("step id %s is duplicate", step.Id))
		}
		stepIds[step.Id] = ""
		if _, err := ToStepType(string(step.Type)); err != nil {
			return err
		}
	}
	for _, step := range wd.Steps {
		for _, next := range step.NextSteps {
			if _, ok := stepIds[next]; !ok {
				return NewValidationError(fmt.Sprintf("stepId=%s, next step %s does not exist", step.Id, next))
			}
		}
		switch step.Type {
		case STEP_TYPE_CONDITION:
			if err := validateConditionStep(step, stepIds); err != nil {
				return err
			}
		case STEP_TYPE_DELAY:
			if minutes := ConfigInt(step.Configuration, "delayMinutes", 0); minutes <= 0 {
				return NewValidationError(fmt.Sprintf("stepId=%s, delayMinutes value %d wrong", step.Id, minutes))
			}
		case STEP_TYPE_AUTOMATION:
			_, hasActions := step.Configuration["actions"]
			if !hasActions && len(ConfigString(step.Configuration, "automationType", "")) == 0 {
				return NewValidationError(fmt.Sprintf("stepId=%s, automation step should have actions or automationType", step.Id))
			}
			if len(step.NextSteps) > 1 {
				return NewValidationError(fmt.Sprintf("stepId=%s, step type %s can have at most one next step", step.Id, step.Type))
			}
		case STEP_TYPE_APPROVAL, STEP_TYPE_NOTIFICATION, STEP_TYPE_CUSTOM:
			if len(step.NextSteps) > 1 {
				return NewValidationError(fmt.Sprintf("stepId=%s, step type %s can have at most one next step", step.Id, step.Type))
			}
		}
	}
	return nil
}

func validateConditionStep(step StepDefinition, stepIds map[string]any) error {
	if _, ok := step.Configuration["condition"]; !ok {
		return NewValidationError(fmt.Sprintf("stepId=%s, condition step should have condition", step.Id))
	}
	for _, key := range []string{"trueStep", "falseStep"} {
		branch := ConfigString(step.Configuration, key, "")
		if len(branch) == 0 {
			continue
		}
		if _, ok := stepIds[branch]; !ok {
			return NewValidationError(fmt.Sprintf("stepId=%s, %s %s does not exist", step.Id, key, branch))
		}
	}
	return nil
}

// ConfigString reads a string value out of a step or action configuration
// bag, tolerating missing keys and non-string values.
func ConfigString(configuration map[string]any, key string, def string) string {
	v, ok := configuration[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// ConfigInt reads an integer out of a configuration bag. JSON decoding hands
// numbers over as float64, so both forms are accepted.
func ConfigInt(configuration map[string]any, key string, def int) int {
	v, ok := configuration[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return def
}

// ConfigStrings reads a list of strings out of a configuration bag. A comma
// separated string form is accepted the way the step designer emits it.
func ConfigStrings(configuration map[string]any, key string) []string {
	v, ok := configuration[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if len(list) == 0 {
			return nil
		}
		parts := strings.Split(list, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	return nil
}
