package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/Yates-Labs/furrow/internal/rag"
	"github.com/spf13/cobra"
)

var (
	searchTopK    int
	searchMinSim  float64
	searchAsJSON  bool
	searchContext bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base without asking the LLM",
	Long: `Search the knowledge base and print the ranked excerpts.

When no excerpt clears the similarity threshold, the first chunks in title
order are shown instead and marked as unranked.

Examples:
  furrow search "companion plants for tomatoes"
  furrow search "frost dates" --topk 10 --min-similarity 0.3
  furrow search "soil pH" --prompt`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchTopK, "topk", 0, "Maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinSim, "min-similarity", -1, "Similarity threshold in [0, 1] (default from config)")
	searchCmd.Flags().BoolVar(&searchAsJSON, "json", false, "Print results as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "prompt", false, "Print the results as they would appear in a prompt")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	config := pipelineConfig()
	if searchTopK > 0 {
		config.TopK = searchTopK
	}
	if cmd.Flags().Changed("min-similarity") {
		config.MinSimilarity = searchMinSim
	}
	// Searching never calls the completion model.
	config.LLMProvider = orchestrator.ProviderMock

	pipeline, err := orchestrator.NewPipeline(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	outcome, err := pipeline.Search(ctx, args[0])
	if err != nil {
		return err
	}

	switch {
	case searchAsJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Outcome string             `json:"outcome"`
			Results []rag.SearchResult `json:"results"`
		}{outcome.Kind.String(), outcome.Results})
	case searchContext:
		fmt.Println(rag.FormatForPrompt(outcome.Results))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d results (%s)", len(outcome.Results), outcome.Kind)))
	if outcome.Kind == rag.OutcomeDegraded {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Retrieval degraded: %v", outcome.Reason)))
	}
	for i, r := range outcome.Results {
		fmt.Println(sourceBoxStyle.Render(formatSource(i+1, r)))
	}
	return nil
}
