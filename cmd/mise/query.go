package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mise/internal/store"
	"mise/internal/taxonomy"
)

// The query subcommands expose the json1 query primitives over classified
// metadata. Results reflect only classified recipes; run "mise classify"
// first if the backlog is non-empty.

var queryTechniqueCmd = &cobra.Command{
	Use:   "technique [technique]",
	Short: "Find all steps using a technique",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !taxonomy.IsTechnique(args[0]) {
			return fmt.Errorf("unknown technique %q", args[0])
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		hits, err := s.FindByTechnique(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printHits(hits)
		return nil
	},
}

var queryToolCmd = &cobra.Command{
	Use:   "tool [tool]",
	Short: "Find all steps requiring a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !taxonomy.IsTool(args[0]) {
			return fmt.Errorf("unknown tool %q", args[0])
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		hits, err := s.FindByRequiredTool(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printHits(hits)
		return nil
	},
}

var queryBeginnerCmd = &cobra.Command{
	Use:   "beginner",
	Short: "List recipes where every step is beginner-level",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		ids, err := s.FindAllBeginnerFriendly(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No fully beginner-friendly recipes.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var queryTimeCmd = &cobra.Command{
	Use:   "time [recipe-id] [skill-level]",
	Short: "Total estimated minutes for a recipe at a skill level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		total, err := s.TotalEstimatedTime(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s @ %s: %.0f minutes (sequential)\n", args[0], args[1], total)
		return nil
	},
}

var queryEquipmentCmd = &cobra.Command{
	Use:   "equipment [recipe-id]",
	Short: "Distinct equipment checklist for a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		tools, err := s.EquipmentChecklist(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Printf("%s (%s)\n", t, taxonomy.ToolCategory(t))
		}
		return nil
	},
}

var queryConflictsCmd = &cobra.Command{
	Use:   "conflicts [recipe-id] [tool]",
	Short: "Count steps of a recipe that tie up a tool exclusively",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !taxonomy.IsTool(args[1]) {
			return fmt.Errorf("unknown tool %q", args[1])
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		n, err := s.CountStepsWithEquipmentConflict(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%d steps of %s declare an exclusive hold on %s\n", n, args[0], args[1])
		return nil
	},
}

var queryReviewCmd = &cobra.Command{
	Use:   "review [threshold]",
	Short: "List steps with confidence below a threshold",
	Long: `Lists steps whose classification confidence falls below the given
threshold (default: the configured confidence floor). These are the steps
the repair pass salvaged or the model was unsure about.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold := cfg.Classification.ConfidenceFloor
		if len(args) == 1 {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil || v < 0 || v > 1 {
				return fmt.Errorf("threshold must be a number in [0, 1]")
			}
			threshold = v
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		hits, err := s.FindBelowConfidence(cmd.Context(), threshold)
		if err != nil {
			return err
		}
		printHits(hits)
		return nil
	},
}

func printHits(hits []store.StepHit) {
	if len(hits) == 0 {
		fmt.Println("No matching steps.")
		return
	}
	for _, h := range hits {
		fmt.Printf("%s[%d]: %s\n", h.RecipeID, h.StepIndex, h.StepText)
	}
}
