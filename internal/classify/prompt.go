// Package classify turns a recipe's instruction steps into validated,
// confidence-scored classification records using an LLM as the
// classification oracle. The request builder emits one batched prompt per
// recipe; the engine parses, validates, and repairs the response.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"mise/internal/taxonomy"
	"mise/internal/types"
)

// ErrEmptyInstructionSet is returned when a recipe has no instruction
// steps. Caller mistake; never retried.
var ErrEmptyInstructionSet = errors.New("empty instruction set")

// BuildPrompt constructs the single batched classification prompt for one
// recipe. All steps go into one request: the model can only reason about
// prerequisite_steps and equipment_conflicts if it sees the whole recipe
// at once, and one request per recipe is the cheapest token shape.
func BuildPrompt(steps []types.InstructionStep, rctx types.RecipeContext) (string, error) {
	if len(steps) == 0 {
		return "", ErrEmptyInstructionSet
	}

	var sb strings.Builder

	sb.WriteString("You are a culinary instruction classifier. Classify each numbered\n")
	sb.WriteString("recipe step below into a JSON object. Respond with ONLY a JSON array\n")
	sb.WriteString("containing exactly one object per step, in the same order as the\n")
	sb.WriteString("steps. No markdown fences, no commentary.\n\n")

	sb.WriteString("Each object must have this shape:\n")
	sb.WriteString(`{
  "work_type": string,            // exactly one of the work types below
  "technique": string or null,    // one of the techniques below, or null when no single technique dominates
  "tools": [string],              // tool identifiers from the list below; may be empty
  "roles": [string],              // kitchen role identifiers; use ["home_cook"] when no specialized role applies
  "skill_level_required": string, // "beginner" | "intermediate" | "advanced"
  "estimated_time_minutes": {"beginner": number, "intermediate": number, "advanced": number},
  "can_parallelize": bool,        // can this step proceed unattended while another step is worked
  "requires_attention": bool,     // must the cook remain present
  "temperature": {"value": number, "unit": "F"|"C", "type": "oven_preheat"|"surface"|"liquid"|"storage"} or null,
  "equipment_conflicts": [string],// tools that would conflict if another step used them concurrently
  "prerequisite_steps": [int],    // 0-based indices of steps that must complete first
  "notes": string,                // optional; "" when unused
  "confidence": number            // your confidence in this classification, 0.0-1.0
}`)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- estimated_time_minutes must satisfy beginner >= intermediate >= advanced.\n")
	sb.WriteString("- Use only identifiers from the vocabularies below; never invent new ones.\n")
	sb.WriteString("- can_parallelize and requires_attention are independent: a simmering\n")
	sb.WriteString("  sauce is parallel to other prep but still requires attention if it\n")
	sb.WriteString("  needs stirring.\n\n")

	sb.WriteString("Work types: ")
	sb.WriteString(strings.Join(taxonomy.WorkTypes, ", "))
	sb.WriteString("\n\nTechniques: ")
	sb.WriteString(strings.Join(taxonomy.TechniqueNames(), ", "))
	sb.WriteString("\n\nTools: ")
	sb.WriteString(strings.Join(taxonomy.ToolNames(), ", "))
	sb.WriteString("\n\nKitchen roles: ")
	sb.WriteString(strings.Join(taxonomy.Roles, ", "))
	sb.WriteString("\n\n")

	if ctxBlock := contextBlock(rctx); ctxBlock != "" {
		sb.WriteString(ctxBlock)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Instruction steps (%d):\n", len(steps)))
	for _, step := range steps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", step.StepIndex, step.StepText))
	}

	return sb.String(), nil
}

// contextBlock renders the optional recipe context. Context is
// disambiguating signal only (cuisine informs technique naming, declared
// difficulty informs skill estimates); it never overrides the step text.
func contextBlock(rctx types.RecipeContext) string {
	var parts []string
	if rctx.Name != "" {
		parts = append(parts, fmt.Sprintf("Recipe: %s", rctx.Name))
	}
	if rctx.Cuisine != "" {
		parts = append(parts, fmt.Sprintf("Cuisine: %s", rctx.Cuisine))
	}
	if rctx.DeclaredDifficulty != "" {
		parts = append(parts, fmt.Sprintf("Declared difficulty: %s", rctx.DeclaredDifficulty))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Context (signal only):\n" + strings.Join(parts, "\n") + "\n"
}
