// Package types provides shared type definitions used across mise packages.
// This package exists so taxonomy, classify, batch, and store can exchange
// records without import cycles. Types here are foundational data structures
// with no external dependencies; JSON tags define both the LLM wire shape
// and the storage shape.
package types

import "time"

// =============================================================================
// INPUT TYPES (owned by the recipe store)
// =============================================================================

// InstructionStep is a single instruction line of a recipe as supplied by
// the recipe store. Immutable once fetched for a classification run.
type InstructionStep struct {
	StepIndex int    `json:"step_index"`
	StepText  string `json:"step_text"`
}

// RecipeContext carries optional disambiguating signal about a recipe.
// All fields may be empty; they are hints, never requirements.
type RecipeContext struct {
	Name               string `json:"name,omitempty"`
	Cuisine            string `json:"cuisine,omitempty"`
	DeclaredDifficulty string `json:"declared_difficulty,omitempty"`
}

// RecipeJob is one unit of work for the batch orchestrator: a recipe's
// ordered steps plus its context.
type RecipeJob struct {
	RecipeID string
	Steps    []InstructionStep
	Context  RecipeContext
}

// =============================================================================
// CLASSIFICATION TYPES
// =============================================================================

// TimeEstimate holds per-skill-level durations in minutes. The validator
// enforces Beginner >= Intermediate >= Advanced.
type TimeEstimate struct {
	Beginner     float64 `json:"beginner"`
	Intermediate float64 `json:"intermediate"`
	Advanced     float64 `json:"advanced"`
}

// Temperature describes a thermal target for a step. Nil when the step has
// no thermal component.
type Temperature struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"` // "F" or "C"
	Type  string  `json:"type"` // oven_preheat, surface, liquid, storage
}

// Classification is the structured metadata for one instruction step.
// This is the untrusted shape the LLM emits; it only becomes trusted after
// taxonomy validation (and, if needed, the repair pass).
type Classification struct {
	WorkType             string       `json:"work_type"`
	Technique            *string      `json:"technique"` // nil when no single technique dominates
	Tools                []string     `json:"tools"`
	Roles                []string     `json:"roles"`
	SkillLevelRequired   string       `json:"skill_level_required"`
	EstimatedTimeMinutes TimeEstimate `json:"estimated_time_minutes"`
	CanParallelize       bool         `json:"can_parallelize"`
	RequiresAttention    bool         `json:"requires_attention"`
	Temperature          *Temperature `json:"temperature"`
	EquipmentConflicts   []string     `json:"equipment_conflicts"`
	PrerequisiteSteps    []int        `json:"prerequisite_steps"`
	Notes                string       `json:"notes,omitempty"`
	Confidence           float64      `json:"confidence"`
}

// TechniqueName returns the technique or "" when unset.
func (c *Classification) TechniqueName() string {
	if c.Technique == nil {
		return ""
	}
	return *c.Technique
}

// =============================================================================
// PERSISTED TYPES
// =============================================================================

// InstructionMetadata is the persisted unit, one per step. StepText is a
// snapshot of the instruction at classification time and is the staleness
// sentinel: if the upstream text changes, the whole record is regenerated.
// Confidence duplicates Classification.Confidence for indexed filtering.
type InstructionMetadata struct {
	StepIndex      int            `json:"step_index"`
	StepText       string         `json:"step_text"`
	Classification Classification `json:"classification"`
	GeneratedAt    time.Time      `json:"generated_at"`
	ModelUsed      string         `json:"model_used"`
	Confidence     float64        `json:"confidence"`
}

// RecipeClassificationRecord is the full per-recipe artifact. It is created
// whole, replaced whole, and never patched field-by-field.
type RecipeClassificationRecord struct {
	RecipeID      string                `json:"recipe_id"`
	Steps         []InstructionMetadata `json:"steps"`
	SchemaVersion string                `json:"schema_version"`
	GeneratedAt   time.Time             `json:"generated_at"`
	ModelUsed     string                `json:"model_used"`
	Confidence    float64               `json:"confidence"` // min over step confidences
}

// MatchesSteps reports whether the stored step_text snapshots still match
// the current instruction steps. A mismatch in length, index, or text
// means the metadata is stale and must be regenerated wholesale.
func (r *RecipeClassificationRecord) MatchesSteps(steps []InstructionStep) bool {
	if len(r.Steps) != len(steps) {
		return false
	}
	for i, step := range steps {
		if r.Steps[i].StepIndex != step.StepIndex || r.Steps[i].StepText != step.StepText {
			return false
		}
	}
	return true
}

// =============================================================================
// ORCHESTRATOR OUTCOME TYPES
// =============================================================================

// RecipeState is the per-recipe position in the batch state machine.
type RecipeState string

const (
	StatePending         RecipeState = "pending"
	StateInFlight        RecipeState = "in_flight"
	StateSucceeded       RecipeState = "succeeded"
	StateFailedRetryable RecipeState = "failed_retryable"
	StateFailedTerminal  RecipeState = "failed_terminal"
)

// RecipeOutcome records how a single recipe fared in a batch run.
type RecipeOutcome struct {
	RecipeID      string        `json:"recipe_id"`
	State         RecipeState   `json:"state"`
	Attempts      int           `json:"attempts"`
	Elapsed       time.Duration `json:"elapsed"`
	EstimatedCost float64       `json:"estimated_cost"` // USD, prompt-size derived
	Confidence    float64       `json:"confidence"`
	Reason        string        `json:"reason,omitempty"`
}

// RunReport summarizes a batch run for the operator.
type RunReport struct {
	RunID             string          `json:"run_id"`
	Started           time.Time       `json:"started"`
	Finished          time.Time       `json:"finished"`
	Succeeded         int             `json:"succeeded"`
	FailedTerminal    int             `json:"failed_terminal"`
	RetriesExhausted  int             `json:"retries_exhausted"`
	Skipped           int             `json:"skipped"`
	AverageConfidence float64         `json:"average_confidence"`
	NeedsReview       []string        `json:"needs_review"` // recipe IDs below the confidence floor
	Outcomes          []RecipeOutcome `json:"outcomes"`
}
