package taxonomy

import (
	"fmt"

	"mise/internal/types"
)

// =============================================================================
// VALIDATION
// =============================================================================

// Violation codes. Callers branch on these to decide whether the repair
// pass can fix a violation or whether the step must be salvaged with
// degraded confidence.
const (
	CodeUnknownWorkType      = "unknown_work_type"
	CodeUnknownTechnique     = "unknown_technique"
	CodeUnknownTool          = "unknown_tool"
	CodeEmptyRoles           = "empty_roles"
	CodeUnknownRole          = "unknown_role"
	CodeUnknownSkillLevel    = "unknown_skill_level"
	CodeNegativeTime         = "negative_time"
	CodeTimeNotMonotonic     = "time_not_monotonic"
	CodeConfidenceOutOfRange = "confidence_out_of_range"
	CodeBadTemperatureUnit   = "bad_temperature_unit"
	CodeBadTemperatureType   = "bad_temperature_type"
	CodeUnknownConflictTool  = "unknown_conflict_tool"
)

// Violation is one specific validity failure in a classification.
type Violation struct {
	Code    string
	Field   string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// ValidationResult collects all violations found in one classification.
// A zero-violation result is Ok.
type ValidationResult struct {
	Violations []Violation
}

// OK reports whether the classification passed every validity rule.
func (r ValidationResult) OK() bool { return len(r.Violations) == 0 }

// Has reports whether a violation with the given code is present.
func (r ValidationResult) Has(code string) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Repairable reports whether every violation in the result is one the
// engine's repair pass can resolve (tool backfill, role defaulting,
// confidence clamping). Violations of the core enums or of the time
// monotonicity invariant are not mechanically repairable.
func (r ValidationResult) Repairable() bool {
	for _, v := range r.Violations {
		switch v.Code {
		case CodeUnknownTool, CodeEmptyRoles, CodeUnknownRole,
			CodeConfidenceOutOfRange, CodeUnknownConflictTool:
			// repair pass handles these
		default:
			return false
		}
	}
	return true
}

func (r *ValidationResult) add(code, field, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate checks a classification against the closed vocabularies and the
// cross-field invariants. It reports every violation, not just the first,
// so the repair pass can address them in one sweep. Membership violations
// are reported per offending entry, never silently dropped.
func Validate(c *types.Classification) ValidationResult {
	var res ValidationResult

	if !IsWorkType(c.WorkType) {
		res.add(CodeUnknownWorkType, "work_type", "unknown work type %q", c.WorkType)
	}

	if c.Technique != nil && !IsTechnique(*c.Technique) {
		res.add(CodeUnknownTechnique, "technique", "unknown technique %q", *c.Technique)
	}

	for _, tool := range c.Tools {
		if !IsTool(tool) {
			res.add(CodeUnknownTool, "tools", "unknown tool %q", tool)
		}
	}

	if len(c.Roles) == 0 {
		res.add(CodeEmptyRoles, "roles", "roles must not be empty")
	}
	for _, role := range c.Roles {
		if !IsRole(role) {
			res.add(CodeUnknownRole, "roles", "unknown role %q", role)
		}
	}

	if !IsSkillLevel(c.SkillLevelRequired) {
		res.add(CodeUnknownSkillLevel, "skill_level_required", "unknown skill level %q", c.SkillLevelRequired)
	}

	est := c.EstimatedTimeMinutes
	if est.Beginner < 0 || est.Intermediate < 0 || est.Advanced < 0 {
		res.add(CodeNegativeTime, "estimated_time_minutes", "time estimates must be >= 0")
	}
	// Monotonic non-increasing with skill: a beginner never finishes faster
	// than an advanced cook.
	if est.Beginner < est.Intermediate || est.Intermediate < est.Advanced {
		res.add(CodeTimeNotMonotonic, "estimated_time_minutes",
			"estimates must satisfy beginner >= intermediate >= advanced (got %.1f/%.1f/%.1f)",
			est.Beginner, est.Intermediate, est.Advanced)
	}

	if c.Confidence < 0 || c.Confidence > 1 {
		res.add(CodeConfidenceOutOfRange, "confidence", "confidence %.3f outside [0,1]", c.Confidence)
	}

	if c.Temperature != nil {
		if !IsTemperatureUnit(c.Temperature.Unit) {
			res.add(CodeBadTemperatureUnit, "temperature.unit", "unknown unit %q", c.Temperature.Unit)
		}
		if !IsTemperatureType(c.Temperature.Type) {
			res.add(CodeBadTemperatureType, "temperature.type", "unknown temperature type %q", c.Temperature.Type)
		}
	}

	for _, tool := range c.EquipmentConflicts {
		if !IsTool(tool) {
			res.add(CodeUnknownConflictTool, "equipment_conflicts", "unknown tool %q", tool)
		}
	}

	// prerequisite_steps carries no closed vocabulary; range checks belong
	// to the engine, which knows the recipe's step count. Treated as
	// best-effort signal per design.

	return res
}
