package main

import (
	"fmt"
	"strings"
	"time"

	"mise/internal/types"
)

const timeRounding = 100 * time.Millisecond

// printReport renders the run report for the operator.
func printReport(report *types.RunReport) {
	fmt.Printf("\nRun %s (%s)\n", report.RunID, report.Finished.Sub(report.Started).Round(timeRounding))
	fmt.Printf("  succeeded:         %d\n", report.Succeeded)
	fmt.Printf("  skipped (fresh):   %d\n", report.Skipped)
	fmt.Printf("  retries exhausted: %d\n", report.RetriesExhausted)
	fmt.Printf("  failed terminal:   %d\n", report.FailedTerminal)
	if report.Succeeded > 0 {
		fmt.Printf("  avg confidence:    %.2f\n", report.AverageConfidence)
	}

	var cost float64
	for _, o := range report.Outcomes {
		cost += o.EstimatedCost
	}
	if cost > 0 {
		fmt.Printf("  est. cost:         $%.4f\n", cost)
	}

	if len(report.NeedsReview) > 0 {
		fmt.Printf("\nNeeds review (below confidence floor):\n  %s\n", strings.Join(report.NeedsReview, "\n  "))
	}

	for _, o := range report.Outcomes {
		if o.State == types.StateFailedTerminal {
			fmt.Printf("\nFAILED %s (attempts=%d): %s\n", o.RecipeID, o.Attempts, o.Reason)
		}
	}
}
