package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mise/internal/taxonomy"
	"mise/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mise.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strptr(s string) *string { return &s }

// makeRecord builds a classification record matching the given step texts,
// one technique per step.
func makeRecord(recipeID string, stepTexts []string, techniques []string, confidence float64) *types.RecipeClassificationRecord {
	record := &types.RecipeClassificationRecord{
		RecipeID:      recipeID,
		SchemaVersion: "1.0",
		ModelUsed:     "test-model",
		GeneratedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Confidence:    confidence,
	}
	for i, text := range stepTexts {
		c := types.Classification{
			WorkType:           "prep",
			Tools:              []string{"chef_knife", "cutting_board"},
			Roles:              []string{"prep_cook"},
			SkillLevelRequired: taxonomy.SkillBeginner,
			EstimatedTimeMinutes: types.TimeEstimate{
				Beginner: 10, Intermediate: 7, Advanced: 5,
			},
			Confidence: confidence,
		}
		if i < len(techniques) && techniques[i] != "" {
			c.Technique = strptr(techniques[i])
			c.Tools = taxonomy.ToolsForTechnique(techniques[i])
			c.WorkType = taxonomy.WorkTypeForTechnique(techniques[i])
			c.SkillLevelRequired = taxonomy.SkillForTechnique(techniques[i])
		}
		record.Steps = append(record.Steps, types.InstructionMetadata{
			StepIndex:      i,
			StepText:       text,
			Classification: c,
			GeneratedAt:    record.GeneratedAt,
			ModelUsed:      record.ModelUsed,
			Confidence:     confidence,
		})
	}
	return record
}

func addRecipe(t *testing.T, s *Store, id string, steps ...string) {
	t.Helper()
	rctx := types.RecipeContext{Name: id, Cuisine: "test"}
	if err := s.AddRecipe(context.Background(), id, id, rctx, steps); err != nil {
		t.Fatal(err)
	}
}

func classifyRecipe(t *testing.T, s *Store, id string, confidence float64, stepsAndTechniques ...[2]string) {
	t.Helper()
	var texts, techniques []string
	for _, st := range stepsAndTechniques {
		texts = append(texts, st[0])
		techniques = append(techniques, st[1])
	}
	if err := s.Save(context.Background(), id, makeRecord(id, texts, techniques, confidence)); err != nil {
		t.Fatal(err)
	}
}

// =============================================================================
// RECIPE SIDE
// =============================================================================

func TestAddAndGetRecipe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Preheat oven.", "Dice onions.")

	steps, err := s.GetSteps(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 || steps[0].StepText != "Preheat oven." || steps[1].StepIndex != 1 {
		t.Fatalf("steps = %+v", steps)
	}

	rctx, err := s.GetRecipeContext(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if rctx.Cuisine != "test" {
		t.Errorf("cuisine = %q", rctx.Cuisine)
	}

	if _, err := s.GetRecipeContext(ctx, "nope"); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}
}

func TestAddRecipeRequiresSteps(t *testing.T) {
	s := openTestStore(t)
	err := s.AddRecipe(context.Background(), "r1", "r1", types.RecipeContext{}, nil)
	if err == nil {
		t.Fatal("empty step list must be rejected")
	}
}

func TestAddRecipeDuplicateID(t *testing.T) {
	s := openTestStore(t)
	addRecipe(t, s, "r1", "Step one.")
	if err := s.AddRecipe(context.Background(), "r1", "r1", types.RecipeContext{}, []string{"Again."}); err == nil {
		t.Fatal("duplicate recipe id must be rejected")
	}
}

func TestDeleteRecipeCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Dice onions.")
	classifyRecipe(t, s, "r1", 0.9, [2]string{"Dice onions.", "dice"})

	if err := s.DeleteRecipe(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if record, err := s.Get(ctx, "r1"); err != nil || record != nil {
		t.Fatalf("metadata survived cascade: record=%v err=%v", record, err)
	}
	if steps, _ := s.GetSteps(ctx, "r1"); len(steps) != 0 {
		t.Error("steps survived cascade")
	}
	if err := s.DeleteRecipe(ctx, "r1"); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}
}

// =============================================================================
// METADATA SIDE
// =============================================================================

func TestSaveGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Dice onions.")
	original := makeRecord("r1", []string{"Dice onions."}, []string{"dice"}, 0.9)
	if err := s.Save(ctx, "r1", original); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record missing after save")
	}
	if got.SchemaVersion != "1.0" || got.Confidence != 0.9 || len(got.Steps) != 1 {
		t.Fatalf("record = %+v", got)
	}
	if got.Steps[0].Classification.TechniqueName() != "dice" {
		t.Errorf("technique = %q", got.Steps[0].Classification.TechniqueName())
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	s := openTestStore(t)
	record, err := s.Get(context.Background(), "never-classified")
	if err != nil || record != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", record, err)
	}
}

func TestSaveRequiresRecipe(t *testing.T) {
	s := openTestStore(t)
	record := makeRecord("ghost", []string{"Step."}, []string{""}, 0.9)
	if err := s.Save(context.Background(), "ghost", record); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}
}

func TestSaveReplacesWholesale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Dice onions.", "Simmer sauce.")
	classifyRecipe(t, s, "r1", 0.6,
		[2]string{"Dice onions.", "dice"}, [2]string{"Simmer sauce.", "simmer"})

	// Reclassification replaces the whole record, including step count.
	classifyRecipe(t, s, "r1", 0.95, [2]string{"Dice onions.", "mince"})

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Steps) != 1 || got.Confidence != 0.95 {
		t.Fatalf("old record not fully replaced: %+v", got)
	}
	if got.Steps[0].Classification.TechniqueName() != "mince" {
		t.Error("replacement did not take")
	}
}

// =============================================================================
// BACKLOG / STALENESS
// =============================================================================

func TestListRecipesNeedingClassification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "unclassified", "Dice onions.")
	addRecipe(t, s, "fresh", "Simmer sauce.")
	addRecipe(t, s, "stale", "Whisk the eggs.")

	classifyRecipe(t, s, "fresh", 0.9, [2]string{"Simmer sauce.", "simmer"})
	classifyRecipe(t, s, "stale", 0.9, [2]string{"Whisk eggs.", "whisk"}) // old snapshot text

	jobs, err := s.ListRecipesNeedingClassification(ctx)
	if err != nil {
		t.Fatal(err)
	}

	need := make(map[string]types.RecipeJob, len(jobs))
	for _, j := range jobs {
		need[j.RecipeID] = j
	}
	if _, ok := need["fresh"]; ok {
		t.Error("fresh recipe should not be in the backlog")
	}
	if _, ok := need["unclassified"]; !ok {
		t.Error("unclassified recipe missing from backlog")
	}
	if j, ok := need["stale"]; !ok {
		t.Error("stale recipe missing from backlog")
	} else if len(j.Steps) != 1 || j.Steps[0].StepText != "Whisk the eggs." {
		t.Errorf("stale job carries wrong steps: %+v", j.Steps)
	}
}

func TestUpdateInstructionsMakesMetadataStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Dice onions.")
	classifyRecipe(t, s, "r1", 0.9, [2]string{"Dice onions.", "dice"})

	if jobs, _ := s.ListRecipesNeedingClassification(ctx); len(jobs) != 0 {
		t.Fatal("freshly classified recipe should not be in backlog")
	}

	if err := s.UpdateInstructions(ctx, "r1", []string{"Dice onions.", "Mince garlic."}); err != nil {
		t.Fatal(err)
	}
	jobs, err := s.ListRecipesNeedingClassification(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].RecipeID != "r1" {
		t.Fatalf("updated recipe not back in backlog: %+v", jobs)
	}
}

// =============================================================================
// QUERY PRIMITIVES
// =============================================================================

func seedQueryFixtures(t *testing.T, s *Store) {
	t.Helper()
	addRecipe(t, s, "soup", "Dice onions.", "Simmer the broth.")
	addRecipe(t, s, "salad", "Dice the cucumber.")
	addRecipe(t, s, "bread", "Bake the loaf.")

	classifyRecipe(t, s, "soup", 0.9,
		[2]string{"Dice onions.", "dice"}, [2]string{"Simmer the broth.", "simmer"})
	classifyRecipe(t, s, "salad", 0.95, [2]string{"Dice the cucumber.", "dice"})
	classifyRecipe(t, s, "bread", 0.5, [2]string{"Bake the loaf.", "bake"})
}

func TestFindByTechnique(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)

	hits, err := s.FindByTechnique(context.Background(), "dice")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2: %+v", len(hits), hits)
	}
	// Ordered by recipe then step index.
	if hits[0].RecipeID != "salad" || hits[1].RecipeID != "soup" {
		t.Errorf("hit order: %+v", hits)
	}

	hits, err = s.FindByTechnique(context.Background(), "sear")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("unexpected hits for unused technique: %+v", hits)
	}
}

func TestFindByRequiredTool(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)

	hits, err := s.FindByRequiredTool(context.Background(), "chef_knife")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d chef_knife hits, want 2 (the dice steps)", len(hits))
	}

	hits, err = s.FindByRequiredTool(context.Background(), "oven")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].RecipeID != "bread" {
		t.Fatalf("oven hits: %+v", hits)
	}
}

func TestFindAllBeginnerFriendly(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)

	// All seeded techniques are beginner except none; make soup non-beginner
	// by reclassifying its second step with an intermediate technique.
	classifyRecipe(t, s, "soup", 0.9,
		[2]string{"Dice onions.", "dice"}, [2]string{"Simmer the broth.", "sear"})

	ids, err := s.FindAllBeginnerFriendly(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"salad": true, "bread": true}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want salad and bread", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected beginner-friendly recipe %q", id)
		}
	}
}

func TestTotalEstimatedTime(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)
	ctx := context.Background()

	total, err := s.TotalEstimatedTime(ctx, "soup", taxonomy.SkillBeginner)
	if err != nil {
		t.Fatal(err)
	}
	if total != 20 { // two steps at 10 beginner-minutes each
		t.Errorf("total = %.1f, want 20", total)
	}

	advanced, err := s.TotalEstimatedTime(ctx, "soup", taxonomy.SkillAdvanced)
	if err != nil {
		t.Fatal(err)
	}
	if advanced >= total {
		t.Errorf("advanced total %.1f should be below beginner total %.1f", advanced, total)
	}

	if _, err := s.TotalEstimatedTime(ctx, "soup", "expert"); err == nil {
		t.Fatal("unknown skill level must be rejected")
	}
	if _, err := s.TotalEstimatedTime(ctx, "ghost", taxonomy.SkillBeginner); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}

	// A recipe that exists but has no metadata is a different failure than
	// a recipe that does not exist.
	addRecipe(t, s, "pending", "Stir occasionally.")
	if _, err := s.TotalEstimatedTime(ctx, "pending", taxonomy.SkillBeginner); !errors.Is(err, ErrNotClassified) {
		t.Fatalf("got %v, want ErrNotClassified", err)
	}
}

func TestEquipmentChecklist(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)

	tools, err := s.EquipmentChecklist(context.Background(), "soup")
	if err != nil {
		t.Fatal(err)
	}
	// dice + simmer tools, distinct and sorted.
	want := []string{"chef_knife", "cutting_board", "saucepan", "stovetop"}
	if len(tools) != len(want) {
		t.Fatalf("tools = %v, want %v", tools, want)
	}
	for i := range want {
		if tools[i] != want[i] {
			t.Fatalf("tools = %v, want %v", tools, want)
		}
	}

	if _, err := s.EquipmentChecklist(context.Background(), "ghost"); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}
}

func TestCountStepsWithEquipmentConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "r1", "Roast the vegetables.", "Bake the bread.")
	record := makeRecord("r1",
		[]string{"Roast the vegetables.", "Bake the bread."},
		[]string{"roast", "bake"}, 0.9)
	record.Steps[0].Classification.EquipmentConflicts = []string{"oven"}
	record.Steps[1].Classification.EquipmentConflicts = []string{"oven"}
	if err := s.Save(ctx, "r1", record); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountStepsWithEquipmentConflict(ctx, "r1", "oven")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	n, err = s.CountStepsWithEquipmentConflict(ctx, "r1", "stand_mixer")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}

	if _, err := s.CountStepsWithEquipmentConflict(ctx, "ghost", "oven"); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("got %v, want ErrRecipeNotFound", err)
	}
}

func TestFindBelowConfidence(t *testing.T) {
	s := openTestStore(t)
	seedQueryFixtures(t, s)

	hits, err := s.FindBelowConfidence(context.Background(), 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].RecipeID != "bread" {
		t.Fatalf("hits = %+v, want only bread (0.5)", hits)
	}
}

func TestSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addRecipe(t, s, "classified", "Dice onions.")
	addRecipe(t, s, "pending", "Simmer sauce.")
	classifyRecipe(t, s, "classified", 0.9, [2]string{"Dice onions.", "dice"})

	sums, err := s.Summaries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	byID := make(map[string]MetadataSummary)
	for _, sum := range sums {
		byID[sum.RecipeID] = sum
	}
	if !byID["classified"].Classified || byID["classified"].Confidence != 0.9 {
		t.Errorf("classified summary: %+v", byID["classified"])
	}
	if byID["pending"].Classified {
		t.Error("pending recipe reported as classified")
	}
}
