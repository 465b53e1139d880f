package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"mise/internal/logging"
	"mise/internal/taxonomy"
	"mise/internal/types"
)

// =============================================================================
// METADATA SIDE
// =============================================================================

// Save stores a classification record, replacing any previous version
// wholesale. The record's summary columns (schema version, model,
// confidence) are denormalized for indexed filtering; the document column
// is the source of truth.
func (s *Store) Save(ctx context.Context, recipeID string, record *types.RecipeClassificationRecord) error {
	if record == nil {
		return fmt.Errorf("nil classification record for recipe %s", recipeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRecipe(ctx, recipeID); err != nil {
		return err
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO instruction_metadata (recipe_id, document, schema_version, model_used, confidence, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(recipe_id) DO UPDATE SET
			document = excluded.document,
			schema_version = excluded.schema_version,
			model_used = excluded.model_used,
			confidence = excluded.confidence,
			generated_at = excluded.generated_at`,
		recipeID, string(doc), record.SchemaVersion, record.ModelUsed,
		record.Confidence, record.GeneratedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.StoreDebug("saved metadata for %s (%d steps, confidence %.2f)",
		recipeID, len(record.Steps), record.Confidence)
	return nil
}

// Get returns the classification record for a recipe, or (nil, nil) when
// the recipe has never been classified.
func (s *Store) Get(ctx context.Context, recipeID string) (*types.RecipeClassificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM instruction_metadata WHERE recipe_id = ?`, recipeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	var record types.RecipeClassificationRecord
	if err := json.Unmarshal([]byte(doc), &record); err != nil {
		return nil, fmt.Errorf("corrupt metadata document for %s: %w", recipeID, err)
	}
	return &record, nil
}

// =============================================================================
// QUERY PRIMITIVES (json1 over the step array)
// =============================================================================

// StepHit is one step matched by a metadata query.
type StepHit struct {
	RecipeID  string
	StepIndex int
	StepText  string
}

// FindByTechnique returns all steps classified with the given technique.
func (s *Store) FindByTechnique(ctx context.Context, technique string) ([]StepHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.recipe_id,
		       json_extract(step.value, '$.step_index'),
		       json_extract(step.value, '$.step_text')
		FROM instruction_metadata m, json_each(m.document, '$.steps') step
		WHERE json_extract(step.value, '$.classification.technique') = ?
		ORDER BY m.recipe_id, json_extract(step.value, '$.step_index')`, technique)
	if err != nil {
		return nil, fmt.Errorf("failed to query by technique: %w", err)
	}
	defer rows.Close()
	return scanStepHits(rows)
}

// FindByRequiredTool returns all steps whose tool list contains the given
// tool. The tools array is nested under each step's classification, so the
// query walks json_each twice.
func (s *Store) FindByRequiredTool(ctx context.Context, tool string) ([]StepHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.recipe_id,
		       json_extract(step.value, '$.step_index'),
		       json_extract(step.value, '$.step_text')
		FROM instruction_metadata m, json_each(m.document, '$.steps') step
		WHERE EXISTS (
			SELECT 1 FROM json_each(step.value, '$.classification.tools') tool
			WHERE tool.value = ?
		)
		ORDER BY m.recipe_id, json_extract(step.value, '$.step_index')`, tool)
	if err != nil {
		return nil, fmt.Errorf("failed to query by tool: %w", err)
	}
	defer rows.Close()
	return scanStepHits(rows)
}

// FindAllBeginnerFriendly returns recipe IDs where every step is
// classified skill_level_required = beginner.
func (s *Store) FindAllBeginnerFriendly(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.recipe_id
		FROM instruction_metadata m
		WHERE NOT EXISTS (
			SELECT 1 FROM json_each(m.document, '$.steps') step
			WHERE json_extract(step.value, '$.classification.skill_level_required') != ?
		)
		ORDER BY m.recipe_id`, taxonomy.SkillBeginner)
	if err != nil {
		return nil, fmt.Errorf("failed to query beginner-friendly: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// TotalEstimatedTime sums the per-step time estimates for a recipe at the
// given skill level. This is a sequential-execution upper bound; it
// ignores can_parallelize.
func (s *Store) TotalEstimatedTime(ctx context.Context, recipeID, skill string) (float64, error) {
	if !taxonomy.IsSkillLevel(skill) {
		return 0, fmt.Errorf("unknown skill level %q", skill)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRecipe(ctx, recipeID); err != nil {
		return 0, err
	}

	// skill is vetted against the closed vocabulary above, so interpolating
	// it into the JSON path is safe.
	path := fmt.Sprintf("$.classification.estimated_time_minutes.%s", skill)
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(json_extract(step.value, ?))
		FROM instruction_metadata m, json_each(m.document, '$.steps') step
		WHERE m.recipe_id = ?`, path, recipeID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum time estimates: %w", err)
	}
	// The recipe exists, so a NULL sum means no metadata row to sum over.
	if !total.Valid {
		return 0, ErrNotClassified
	}
	return total.Float64, nil
}

// EquipmentChecklist returns the distinct tools across every step of a
// recipe, sorted.
func (s *Store) EquipmentChecklist(ctx context.Context, recipeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRecipe(ctx, recipeID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tool.value
		FROM instruction_metadata m,
		     json_each(m.document, '$.steps') step,
		     json_each(step.value, '$.classification.tools') tool
		WHERE m.recipe_id = ?`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to build equipment checklist: %w", err)
	}
	defer rows.Close()

	tools, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(tools)
	return tools, nil
}

// CountStepsWithEquipmentConflict counts the steps of one recipe that
// declare the given tool in equipment_conflicts. A count above one means
// the recipe has steps competing for the tool.
func (s *Store) CountStepsWithEquipmentConflict(ctx context.Context, recipeID, tool string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRecipe(ctx, recipeID); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM instruction_metadata m, json_each(m.document, '$.steps') step
		WHERE m.recipe_id = ?
		AND EXISTS (
			SELECT 1 FROM json_each(step.value, '$.classification.equipment_conflicts') c
			WHERE c.value = ?
		)`, recipeID, tool).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count equipment conflicts: %w", err)
	}
	return n, nil
}

// FindBelowConfidence returns steps whose classification confidence is
// below the threshold, for review queues.
func (s *Store) FindBelowConfidence(ctx context.Context, threshold float64) ([]StepHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.recipe_id,
		       json_extract(step.value, '$.step_index'),
		       json_extract(step.value, '$.step_text')
		FROM instruction_metadata m, json_each(m.document, '$.steps') step
		WHERE json_extract(step.value, '$.confidence') < ?
		ORDER BY m.recipe_id, json_extract(step.value, '$.step_index')`, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query by confidence: %w", err)
	}
	defer rows.Close()
	return scanStepHits(rows)
}

// MetadataSummary is one row of the status overview.
type MetadataSummary struct {
	RecipeID      string
	Name          string
	SchemaVersion string
	ModelUsed     string
	Confidence    float64
	Classified    bool
}

// Summaries lists every recipe with its classification status, for the
// status command.
func (s *Store) Summaries(ctx context.Context) ([]MetadataSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, m.schema_version, m.model_used, m.confidence
		FROM recipes r
		LEFT JOIN instruction_metadata m ON m.recipe_id = r.id
		ORDER BY r.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var out []MetadataSummary
	for rows.Next() {
		var sum MetadataSummary
		var schema, model sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&sum.RecipeID, &sum.Name, &schema, &model, &conf); err != nil {
			return nil, err
		}
		if schema.Valid {
			sum.Classified = true
			sum.SchemaVersion = schema.String
			sum.ModelUsed = model.String
			sum.Confidence = conf.Float64
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func scanStepHits(rows *sql.Rows) ([]StepHit, error) {
	var hits []StepHit
	for rows.Next() {
		var h StepHit
		if err := rows.Scan(&h.RecipeID, &h.StepIndex, &h.StepText); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
