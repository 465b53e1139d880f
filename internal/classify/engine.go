package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mise/internal/llm"
	"mise/internal/logging"
	"mise/internal/taxonomy"
	"mise/internal/types"
)

// salvageConfidenceCap is the ceiling applied to steps the repair pass
// could not fully fix. Partial-quality output with a low-confidence flag
// beats silent data loss: downstream review queues depend on the flag.
const salvageConfidenceCap = 0.5

// =============================================================================
// TYPED FAILURES
// =============================================================================

// MalformedResponseError indicates the LLM response was not a JSON array
// of the expected length. The whole recipe request is retryable as a unit;
// there is no partial patching.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed LLM response: %s", e.Reason)
}

// TaxonomyViolationError indicates a step violated the taxonomy in a way
// neither the repair pass nor degradation could resolve.
type TaxonomyViolationError struct {
	StepIndex  int
	Violations []taxonomy.Violation
}

func (e *TaxonomyViolationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("unrepairable taxonomy violation at step %d: %s", e.StepIndex, strings.Join(msgs, "; "))
}

// =============================================================================
// ENGINE
// =============================================================================

// Config holds engine generation and provenance settings.
type Config struct {
	Model         string
	Temperature   float64 // keep at/near 0.1 for reproducibility
	MaxTokens     int
	SchemaVersion string
	Now           func() time.Time // injectable clock; defaults to time.Now
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(model, schemaVersion string) Config {
	return Config{
		Model:         model,
		Temperature:   0.1,
		MaxTokens:     8192,
		SchemaVersion: schemaVersion,
		Now:           time.Now,
	}
}

// Engine invokes the LLM, validates the response against the taxonomy,
// and produces an unpersisted RecipeClassificationRecord. One outbound
// network call per invocation; persistence is the caller's job.
type Engine struct {
	client llm.Client
	cfg    Config
}

// NewEngine creates a classification engine.
func NewEngine(client llm.Client, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{client: client, cfg: cfg}
}

// ClassifyRecipe classifies all steps of one recipe in a single LLM call.
// Returns the record, or a typed failure: *MalformedResponseError,
// *TaxonomyViolationError, or a retryable upstream error from the client.
func (e *Engine) ClassifyRecipe(ctx context.Context, job types.RecipeJob) (*types.RecipeClassificationRecord, error) {
	timer := logging.StartTimer(logging.CategoryClassify, "ClassifyRecipe")
	defer timer.Stop()

	prompt, err := BuildPrompt(job.Steps, job.Context)
	if err != nil {
		return nil, err
	}

	raw, err := e.client.Complete(ctx, prompt, llm.Params{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err // upstream error; orchestrator decides retry policy
	}

	classifications, err := parseResponse(raw, len(job.Steps))
	if err != nil {
		return nil, err
	}

	now := e.cfg.Now().UTC()
	modelUsed := e.cfg.Model
	if modelUsed == "" {
		modelUsed = e.client.Model()
	}

	record := &types.RecipeClassificationRecord{
		RecipeID:      job.RecipeID,
		Steps:         make([]types.InstructionMetadata, len(job.Steps)),
		SchemaVersion: e.cfg.SchemaVersion,
		GeneratedAt:   now,
		ModelUsed:     modelUsed,
	}

	minConf := 1.0
	for i := range classifications {
		c := &classifications[i]
		if err := e.validateAndRepair(c, len(job.Steps)); err != nil {
			var tv *TaxonomyViolationError
			if errors.As(err, &tv) {
				tv.StepIndex = job.Steps[i].StepIndex
			}
			return nil, err
		}

		record.Steps[i] = types.InstructionMetadata{
			StepIndex:      job.Steps[i].StepIndex,
			StepText:       job.Steps[i].StepText,
			Classification: *c,
			GeneratedAt:    now,
			ModelUsed:      modelUsed,
			Confidence:     c.Confidence,
		}
		if c.Confidence < minConf {
			minConf = c.Confidence
		}
	}

	// Aggregate confidence is the minimum, not the average: one badly
	// classified step flags the whole recipe, since equipment checklists
	// and timelines need every step to be right.
	record.Confidence = minConf

	logging.Classify("classified recipe %s: steps=%d confidence=%.2f", job.RecipeID, len(record.Steps), record.Confidence)
	return record, nil
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

// parseResponse strips markdown fences, parses the JSON array, and checks
// the length invariant.
func parseResponse(raw string, expected int) ([]types.Classification, error) {
	cleaned := StripFences(raw)

	var classifications []types.Classification
	if err := json.Unmarshal([]byte(cleaned), &classifications); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("not a valid JSON array: %v", err)}
	}
	if len(classifications) != expected {
		return nil, &MalformedResponseError{
			Reason: fmt.Sprintf("array length %d does not match step count %d", len(classifications), expected),
		}
	}
	return classifications, nil
}

// StripFences removes markdown code-fence wrapping. LLMs frequently wrap
// JSON in ```json ... ``` despite instructions not to.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.Index(s, "\n"); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// =============================================================================
// VALIDATE + REPAIR
// =============================================================================

// validateAndRepair runs taxonomy validation and, on failure, a single
// repair pass. Steps the repair pass cannot fully fix are salvaged with
// confidence capped at salvageConfidenceCap and a notes explanation.
// Returns *TaxonomyViolationError only when the step cannot be salvaged
// at all (no valid work type and nothing to infer one from).
func (e *Engine) validateAndRepair(c *types.Classification, stepCount int) error {
	res := taxonomy.Validate(c)
	if res.OK() {
		e.clampPrerequisites(c, stepCount)
		return nil
	}

	logging.ClassifyDebug("repair pass: %d violations", len(res.Violations))
	var repairNotes []string

	// Tools: drop unknown entries, then backfill from the technique lookup
	// when the model under-specified.
	droppedTools := false
	if res.Has(taxonomy.CodeUnknownTool) {
		kept, dropped := partitionKnownTools(c.Tools)
		c.Tools = kept
		droppedTools = true
		repairNotes = append(repairNotes, fmt.Sprintf("dropped unrecognized tools %v", dropped))
	}
	if len(c.Tools) == 0 && c.Technique != nil {
		if inferred := taxonomy.ToolsForTechnique(*c.Technique); len(inferred) > 0 {
			c.Tools = inferred
			repairNotes = append(repairNotes, fmt.Sprintf("tools inferred from technique %q", *c.Technique))
		}
	}

	// Roles: drop unknown entries, default to home_cook when empty.
	if res.Has(taxonomy.CodeUnknownRole) {
		kept, dropped := partitionKnownRoles(c.Roles)
		c.Roles = kept
		repairNotes = append(repairNotes, fmt.Sprintf("dropped unrecognized roles %v", dropped))
	}
	if len(c.Roles) == 0 {
		if c.Technique != nil {
			if inferred := taxonomy.RolesForTechnique(*c.Technique); len(inferred) > 0 {
				c.Roles = inferred
			}
		}
		if len(c.Roles) == 0 {
			c.Roles = []string{taxonomy.DefaultRole}
		}
		repairNotes = append(repairNotes, "roles defaulted")
	}

	// Confidence clamp.
	if c.Confidence < 0 {
		c.Confidence = 0
	} else if c.Confidence > 1 {
		c.Confidence = 1
	}

	// Equipment conflicts share the tool vocabulary.
	if res.Has(taxonomy.CodeUnknownConflictTool) {
		kept, dropped := partitionKnownTools(c.EquipmentConflicts)
		c.EquipmentConflicts = kept
		repairNotes = append(repairNotes, fmt.Sprintf("dropped unrecognized conflict tools %v", dropped))
	}

	// Core enums: infer from the technique when possible.
	if res.Has(taxonomy.CodeUnknownTechnique) {
		repairNotes = append(repairNotes, fmt.Sprintf("unrecognized technique %q cleared", c.TechniqueName()))
		c.Technique = nil
	}
	if res.Has(taxonomy.CodeUnknownWorkType) && c.Technique != nil {
		if wt := taxonomy.WorkTypeForTechnique(*c.Technique); wt != "" {
			repairNotes = append(repairNotes, fmt.Sprintf("work_type inferred from technique %q", *c.Technique))
			c.WorkType = wt
		}
	}
	if res.Has(taxonomy.CodeUnknownSkillLevel) {
		if c.Technique != nil {
			if sk := taxonomy.SkillForTechnique(*c.Technique); sk != "" {
				c.SkillLevelRequired = sk
			}
		}
		if !taxonomy.IsSkillLevel(c.SkillLevelRequired) {
			c.SkillLevelRequired = taxonomy.SkillIntermediate
		}
		repairNotes = append(repairNotes, "skill level defaulted")
	}

	e.clampPrerequisites(c, stepCount)

	// Single repair pass done; revalidate.
	res = taxonomy.Validate(c)
	if res.OK() {
		// Dropped tools count as repaired only when the step still ends up
		// with valid tools (survivors or technique-inferred). A drop that
		// leaves the list empty lost information with no replacement, so
		// the step goes to the review queue instead of passing clean.
		if droppedTools && len(c.Tools) == 0 {
			if c.Confidence > salvageConfidenceCap {
				c.Confidence = salvageConfidenceCap
			}
			appendNote(c, "needs review: "+strings.Join(append(repairNotes, "unrecognized tools not inferable"), "; "))
			return nil
		}
		if len(repairNotes) > 0 {
			appendNote(c, "repaired: "+strings.Join(repairNotes, "; "))
		}
		return nil
	}

	// work_type is the one field with no safe default and no fallback
	// inference source; without it every downstream consumer is blind.
	if res.Has(taxonomy.CodeUnknownWorkType) {
		return &TaxonomyViolationError{Violations: res.Violations}
	}

	// Salvage: keep the step, cap its confidence, explain why.
	remaining := make([]string, len(res.Violations))
	for i, v := range res.Violations {
		remaining[i] = v.String()
	}
	if c.Confidence > salvageConfidenceCap {
		c.Confidence = salvageConfidenceCap
	}
	appendNote(c, "needs review: "+strings.Join(append(repairNotes, remaining...), "; "))
	logging.ClassifyDebug("salvaged step with %d residual violations", len(res.Violations))
	return nil
}

// clampPrerequisites drops out-of-range prerequisite indices and sorts the
// rest. prerequisite_steps is best-effort signal with no correctness
// oracle, so omissions never fail validation.
func (e *Engine) clampPrerequisites(c *types.Classification, stepCount int) {
	if len(c.PrerequisiteSteps) == 0 {
		return
	}
	kept := c.PrerequisiteSteps[:0]
	for _, idx := range c.PrerequisiteSteps {
		if idx >= 0 && idx < stepCount {
			kept = append(kept, idx)
		}
	}
	sort.Ints(kept)
	c.PrerequisiteSteps = kept
}

func partitionKnownTools(in []string) (kept, dropped []string) {
	for _, t := range in {
		if taxonomy.IsTool(t) {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, t)
		}
	}
	return kept, dropped
}

func partitionKnownRoles(in []string) (kept, dropped []string) {
	for _, r := range in {
		if taxonomy.IsRole(r) {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r)
		}
	}
	return kept, dropped
}

func appendNote(c *types.Classification, note string) {
	if c.Notes == "" {
		c.Notes = note
		return
	}
	c.Notes = c.Notes + " | " + note
}
