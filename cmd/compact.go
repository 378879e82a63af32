package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Yates-Labs/furrow/internal/assistant"
	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	compactMaxTokens int
	compactKeepPairs int
	compactOutput    string
)

var compactCmd = &cobra.Command{
	Use:   "compact [history.json]",
	Short: "Fit a conversation history to the token budget",
	Long: `Compress older turns of a conversation so it fits the token budget.

The most recent turns are kept verbatim; earlier ones are condensed into a
digest (or an LLM summary with context.compression=summary) that is attached
to the first kept user message. The managed history is printed as JSON.

Examples:
  furrow compact chat.json
  furrow compact chat.json --max-tokens 2000 --keep 2 -o chat.compact.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
	compactCmd.Flags().IntVar(&compactMaxTokens, "max-tokens", 0, "Token budget (default from config)")
	compactCmd.Flags().IntVar(&compactKeepPairs, "keep", 0, "Recent user/assistant pairs to keep verbatim (default from config)")
	compactCmd.Flags().StringVarP(&compactOutput, "output", "o", "", "Write the managed history to this file instead of stdout")
}

func runCompact(cmd *cobra.Command, args []string) error {
	config := pipelineConfig()
	if compactMaxTokens > 0 {
		config.MaxTokens = compactMaxTokens
	}
	if compactKeepPairs > 0 {
		config.KeepRecentPairs = compactKeepPairs
	}

	history, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	if history == nil {
		return fmt.Errorf("history file %s not found or empty", args[0])
	}

	var llm assistant.LLM
	if config.Compression == orchestrator.CompressionSummary {
		if llm, err = orchestrator.NewLLM(config); err != nil {
			return fmt.Errorf("failed to create LLM: %w", err)
		}
	}
	manager, err := orchestrator.NewManager(config, llm)
	if err != nil {
		return err
	}

	result, err := manager.Manage(cmd.Context(), history, config.MaxTokens, config.KeepRecentPairs)
	if err != nil {
		return err
	}

	stats := result.Stats
	status := "unchanged"
	if stats.WasCompressed {
		status = "compressed"
	}
	fmt.Fprintln(os.Stderr, contextStyle.Render(fmt.Sprintf("%s: %d → %d messages, ~%d → ~%d tokens (budget %d)",
		status, stats.OriginalMessages, stats.FinalMessages, stats.OriginalTokens, stats.FinalTokens, config.MaxTokens)))

	if compactOutput != "" {
		return saveHistory(compactOutput, result.Messages)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Messages)
}
