package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Yates-Labs/furrow/internal/config"
	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	logLevel    string
	storeDriver string
	storeDSN    string
	llmProvider string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "furrow",
	Short: "Furrow - knowledge-grounded gardening assistant",
	Long: `Furrow answers gardening and farm-planning questions using a knowledge base.

It ingests documents, git repositories and GitHub issues into a passage store,
retrieves the excerpts most relevant to each question, keeps long conversations
within a token budget, and asks a language model for the answer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		cfg = loaded

		level := cfg.LogLevel()
		if cmd.Flags().Changed("log-level") {
			level = config.ParseLevel(logLevel)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&storeDriver, "store", "", "Knowledge store: memory, sqlite, postgres, milvus")
	flags.StringVar(&storeDSN, "dsn", "", "SQLite path, Postgres DSN or memory fixture file")
	flags.StringVar(&llmProvider, "llm", "", "LLM provider: openai or mock")
}

func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		c.Store.Driver = storeDriver
	}
	if flags.Changed("dsn") {
		c.Store.DSN = storeDSN
	}
	if flags.Changed("llm") {
		c.LLM.Provider = llmProvider
	}
}

// pipelineConfig returns the loaded settings as pipeline configuration.
func pipelineConfig() orchestrator.Config {
	if cfg == nil {
		d := config.Default()
		return d.Pipeline()
	}
	return cfg.Pipeline()
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
