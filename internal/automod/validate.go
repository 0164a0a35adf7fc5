package automod

import (
	"fmt"
	"regexp"
)

// clockPattern validates HH:MM 24-hour schedule times.
var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidateDefinition checks a rule definition and returns every problem found
// as a human-readable message. An empty slice means the definition is valid.
// Validation runs at rule-creation time only.
func ValidateDefinition(def *Definition) []string {
	errs := []string{}
	if def == nil {
		return append(errs, "Rule definition is required")
	}

	if !ValidTriggerType(def.TriggerType) {
		errs = append(errs, fmt.Sprintf("Invalid trigger type: %s", def.TriggerType))
	}
	if len(def.TargetTypes) == 0 {
		errs = append(errs, "Target types must be a non-empty array")
	}
	if len(def.Conditions) == 0 {
		errs = append(errs, "Conditions must be a non-empty array")
	}
	if len(def.Actions) == 0 {
		errs = append(errs, "Actions must be a non-empty array")
	}

	for i, cond := range def.Conditions {
		if cond.Type == "" || cond.Operator == "" || cond.Value == nil {
			errs = append(errs, fmt.Sprintf("Condition %d must have a type, operator, and value", i+1))
			continue
		}
		if !ValidConditionType(cond.Type) {
			errs = append(errs, fmt.Sprintf("Condition %d has invalid type: %s", i+1, cond.Type))
		}
		if !ValidOperator(cond.Operator) {
			errs = append(errs, fmt.Sprintf("Condition %d has invalid operator: %s", i+1, cond.Operator))
		}
		if cond.Weight != nil && *cond.Weight < 0 {
			errs = append(errs, fmt.Sprintf("Condition %d weight must be non-negative", i+1))
		}
	}

	for i, action := range def.Actions {
		if action.Type == "" {
			errs = append(errs, fmt.Sprintf("Action %d must have a type", i+1))
			continue
		}
		if !ValidActionType(action.Type) {
			errs = append(errs, fmt.Sprintf("Action %d has invalid type: %s", i+1, action.Type))
		}
	}

	if def.Schedule != nil && def.Schedule.Enabled {
		if !clockPattern.MatchString(def.Schedule.StartTime) {
			errs = append(errs, "Schedule start time must be in HH:MM format")
		}
		if !clockPattern.MatchString(def.Schedule.EndTime) {
			errs = append(errs, "Schedule end time must be in HH:MM format")
		}
	}

	if def.CooldownPeriod < 0 {
		errs = append(errs, "Cooldown period must be non-negative")
	}
	if def.MaxTriggersPerHour < 0 {
		errs = append(errs, "Max triggers per hour must be non-negative")
	}

	return errs
}
