package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mise/internal/batch"
	"mise/internal/classify"
	"mise/internal/config"
	"mise/internal/llm"
	"mise/internal/logging"
	"mise/internal/store"
	"mise/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded configuration
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mise",
	Short: "mise - instruction classification and metadata engine",
	Long: `mise classifies free-text recipe instruction steps into structured
metadata (work type, technique, tools, skill level, time estimates) using
an LLM as the classification oracle, validated against a closed culinary
taxonomy and stored versioned in SQLite.

Classification is batch-oriented: "mise classify" sweeps every recipe
whose metadata is missing or stale, under the configured rate budget.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Initialize(cfg.DataDir, cfg.Logging.Debug || verbose, level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// addCmd registers a recipe and its instruction steps
var addCmd = &cobra.Command{
	Use:   "add [recipe-id] [name]",
	Short: "Add a recipe with instruction steps from a file",
	Long: `Registers a recipe in the store. Steps are read from --steps-file,
one instruction per line. The recipe enters the classification backlog
immediately; run "mise classify" to process it.

Example:
  mise add pasta-carbonara "Pasta Carbonara" --steps-file carbonara.txt --cuisine italian`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

// classifyCmd runs a batch classification sweep
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify all recipes with missing or stale metadata",
	Long: `Sweeps the recipe backlog and classifies each unclassified or stale
recipe in one LLM call per recipe, respecting the configured per-minute
and per-day rate budget. Interruptible with Ctrl-C: in-flight recipes
remain unclassified and are picked up by the next run.`,
	RunE: runClassify,
}

// statusCmd shows per-recipe classification status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show classification status for every recipe",
	RunE:  runStatus,
}

// queryCmd groups the metadata query primitives
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query classified metadata",
}

var deleteCmd = &cobra.Command{
	Use:   "delete [recipe-id]",
	Short: "Delete a recipe and its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.DeleteRecipe(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// Flags for add
var (
	stepsFile  string
	cuisine    string
	difficulty string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mise.yaml", "path to config file")

	addCmd.Flags().StringVar(&stepsFile, "steps-file", "", "file with one instruction step per line (required)")
	addCmd.Flags().StringVar(&cuisine, "cuisine", "", "cuisine hint for the classifier")
	addCmd.Flags().StringVar(&difficulty, "difficulty", "", "declared difficulty hint")
	_ = addCmd.MarkFlagRequired("steps-file")

	queryCmd.AddCommand(
		queryTechniqueCmd,
		queryToolCmd,
		queryBeginnerCmd,
		queryTimeCmd,
		queryEquipmentCmd,
		queryConflictsCmd,
		queryReviewCmd,
	)

	rootCmd.AddCommand(addCmd, classifyCmd, statusCmd, queryCmd, deleteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func openStore() (*store.Store, error) {
	return store.Open(cfg.Store.DatabasePath)
}

func runAdd(cmd *cobra.Command, args []string) error {
	recipeID, name := args[0], args[1]

	data, err := os.ReadFile(stepsFile)
	if err != nil {
		return fmt.Errorf("failed to read steps file: %w", err)
	}
	var steps []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			steps = append(steps, line)
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rctx := types.RecipeContext{Name: name, Cuisine: cuisine, DeclaredDifficulty: difficulty}
	if err := s.AddRecipe(cmd.Context(), recipeID, name, rctx, steps); err != nil {
		return err
	}
	fmt.Printf("Added %s with %d steps\n", recipeID, len(steps))
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	workers, err := buildWorkers(ctx)
	if err != nil {
		return err
	}

	orch, err := batch.New(s, s, workers, batch.Config{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BackoffBase:       cfg.BackoffBase(),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		ConfidenceFloor:   cfg.Classification.ConfidenceFloor,
	}, nil)
	if err != nil {
		return err
	}

	logger.Info("starting classification run",
		zap.Int("workers", len(workers)),
		zap.String("model", cfg.LLM.Model))

	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

// buildWorkers creates one classification lane per API key, each with its
// own rate budget. Keys are the unit of rate limiting at every provider.
func buildWorkers(ctx context.Context) ([]batch.Worker, error) {
	if len(cfg.LLM.APIKeys) == 0 {
		return nil, fmt.Errorf("no API keys configured (set MISE_API_KEY or llm.api_keys)")
	}

	engineCfg := classify.Config{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		SchemaVersion: cfg.Classification.SchemaVersion,
	}
	budget := batch.Budget{
		PerMinute: cfg.Rate.RequestsPerMinute,
		PerDay:    cfg.Rate.RequestsPerDay,
	}

	workers := make([]batch.Worker, 0, len(cfg.LLM.APIKeys))
	for i, key := range cfg.LLM.APIKeys {
		client, err := buildClient(ctx, key)
		if err != nil {
			return nil, err
		}
		workers = append(workers, batch.Worker{
			Key:        fmt.Sprintf("key-%d", i),
			Classifier: classify.NewEngine(client, engineCfg),
			Limiter:    batch.NewLimiter(budget, nil),
		})
	}
	return workers, nil
}

func buildClient(ctx context.Context, apiKey string) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return llm.NewGeminiClient(ctx, apiKey, cfg.LLM.Model)
	default:
		hc := llm.DefaultHTTPConfig(apiKey)
		hc.Model = cfg.LLM.Model
		if cfg.LLM.BaseURL != "" {
			hc.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.LLM.TimeoutSeconds > 0 {
			hc.Timeout = cfg.LLMTimeout()
		}
		return llm.NewHTTPClient(hc), nil
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	sums, err := s.Summaries(cmd.Context())
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Println("No recipes in store.")
		return nil
	}

	fmt.Printf("%-24s %-28s %-10s %-18s %s\n", "RECIPE", "NAME", "SCHEMA", "MODEL", "CONFIDENCE")
	for _, sum := range sums {
		if !sum.Classified {
			fmt.Printf("%-24s %-28s %s\n", sum.RecipeID, sum.Name, "(unclassified)")
			continue
		}
		fmt.Printf("%-24s %-28s %-10s %-18s %.2f\n",
			sum.RecipeID, sum.Name, sum.SchemaVersion, sum.ModelUsed, sum.Confidence)
	}
	return nil
}
