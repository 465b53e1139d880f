package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mise/internal/logging"
	"mise/internal/types"
)

// ErrRecipeNotFound is returned when an operation references a recipe id
// that does not exist.
var ErrRecipeNotFound = errors.New("recipe not found")

// ErrNotClassified is returned when a query needs classification metadata
// for a recipe that exists but has none yet.
var ErrNotClassified = errors.New("recipe not classified")

// =============================================================================
// RECIPE SIDE
// =============================================================================

// AddRecipe inserts a recipe with its ordered instruction steps. Step
// indices are assigned 0-based from the slice order.
func (s *Store) AddRecipe(ctx context.Context, id, name string, rctx types.RecipeContext, steps []string) error {
	if len(steps) == 0 {
		return fmt.Errorf("recipe %s: at least one instruction step required", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recipes (id, name, cuisine, declared_difficulty) VALUES (?, ?, ?, ?)`,
		id, name, rctx.Cuisine, rctx.DeclaredDifficulty); err != nil {
		return fmt.Errorf("failed to insert recipe: %w", err)
	}
	for i, text := range steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instruction_steps (recipe_id, step_index, step_text) VALUES (?, ?, ?)`,
			id, i, text); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logging.StoreDebug("added recipe %s with %d steps", id, len(steps))
	return nil
}

// UpdateInstructions replaces a recipe's instruction steps. Existing
// metadata becomes stale by snapshot comparison and the recipe re-enters
// the classification backlog.
func (s *Store) UpdateInstructions(ctx context.Context, id string, steps []string) error {
	if len(steps) == 0 {
		return fmt.Errorf("recipe %s: at least one instruction step required", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRecipe(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruction_steps WHERE recipe_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	for i, text := range steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instruction_steps (recipe_id, step_index, step_text) VALUES (?, ?, ?)`,
			id, i, text); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// DeleteRecipe removes a recipe; instruction steps and metadata cascade.
func (s *Store) DeleteRecipe(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

// GetRecipeContext returns the optional context fields for a recipe.
func (s *Store) GetRecipeContext(ctx context.Context, id string) (types.RecipeContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rctx types.RecipeContext
	err := s.db.QueryRowContext(ctx,
		`SELECT name, cuisine, declared_difficulty FROM recipes WHERE id = ?`, id).
		Scan(&rctx.Name, &rctx.Cuisine, &rctx.DeclaredDifficulty)
	if errors.Is(err, sql.ErrNoRows) {
		return rctx, ErrRecipeNotFound
	}
	if err != nil {
		return rctx, fmt.Errorf("failed to load recipe context: %w", err)
	}
	return rctx, nil
}

// GetSteps returns a recipe's ordered instruction steps.
func (s *Store) GetSteps(ctx context.Context, id string) ([]types.InstructionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadSteps(ctx, id)
}

func (s *Store) loadSteps(ctx context.Context, id string) ([]types.InstructionStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_index, step_text FROM instruction_steps WHERE recipe_id = ? ORDER BY step_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var steps []types.InstructionStep
	for rows.Next() {
		var step types.InstructionStep
		if err := rows.Scan(&step.StepIndex, &step.StepText); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ListRecipesNeedingClassification returns recipes with no metadata
// record, or whose stored step_text snapshots differ from the current
// instructions (staleness). Fresh recipes are filtered out here so the
// orchestrator's backlog is already minimal.
func (s *Store) ListRecipesNeedingClassification(ctx context.Context) ([]types.RecipeJob, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListRecipesNeedingClassification")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.cuisine, r.declared_difficulty, m.document
		FROM recipes r
		LEFT JOIN instruction_metadata m ON m.recipe_id = r.id
		ORDER BY r.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	type row struct {
		job types.RecipeJob
		doc sql.NullString
	}
	var candidates []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.job.RecipeID, &r.job.Context.Name, &r.job.Context.Cuisine,
			&r.job.Context.DeclaredDifficulty, &r.doc); err != nil {
			return nil, err
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var jobs []types.RecipeJob
	for _, r := range candidates {
		steps, err := s.loadSteps(ctx, r.job.RecipeID)
		if err != nil {
			return nil, err
		}
		if len(steps) == 0 {
			continue // nothing to classify
		}
		if r.doc.Valid {
			var record types.RecipeClassificationRecord
			if err := json.Unmarshal([]byte(r.doc.String), &record); err == nil && record.MatchesSteps(steps) {
				continue // fresh metadata
			}
			// Unparseable or stale metadata: reclassify.
		}
		r.job.Steps = steps
		jobs = append(jobs, r.job)
	}

	logging.StoreDebug("backlog: %d of %d recipes need classification", len(jobs), len(candidates))
	return jobs, nil
}

// requireRecipe returns ErrRecipeNotFound unless the id exists. Callers
// must hold at least a read lock.
func (s *Store) requireRecipe(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM recipes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecipeNotFound
	}
	return err
}
