package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/Yates-Labs/furrow/internal/source"
	"github.com/spf13/cobra"
)

var (
	forceReindex   bool
	deferEmbedding bool
	watchSource    bool
	githubToken    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Add documents to the knowledge base",
	Long: `Chunk, embed and store documents in the knowledge base.

The source may be:
- a directory of .md and .txt files
- a git repository (local path or clone URL); files at HEAD are read
- github:owner/repo to ingest the repository's issues and their comments

Sources already in the store are skipped unless --force is given. With
--watch, a directory source keeps being re-indexed as files change.

Examples:
  furrow ingest ./notes
  furrow ingest https://github.com/user/garden-notes.git
  furrow ingest github:user/garden-notes --force
  furrow ingest ./notes --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&forceReindex, "force", false, "Replace chunks of sources that are already indexed")
	ingestCmd.Flags().BoolVar(&deferEmbedding, "defer-embedding", false, "Store chunks without embeddings")
	ingestCmd.Flags().BoolVar(&watchSource, "watch", false, "Keep watching a directory source for changes")
	ingestCmd.Flags().StringVar(&githubToken, "github-token", "", "GitHub token (default: GITHUB_TOKEN)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := orchestrator.DetectSource(args[0])
	if err != nil {
		return err
	}
	if watchSource && src.Kind != source.KindFile {
		return fmt.Errorf("--watch only works with a directory source, got %s", src.Kind)
	}

	config := pipelineConfig()
	config.IndexOptions.ForceReindex = forceReindex
	config.IndexOptions.SkipExisting = !forceReindex
	if deferEmbedding {
		config.IndexOptions.DeferEmbedding = true
	}
	// Ingestion never calls the completion model.
	config.LLMProvider = orchestrator.ProviderMock

	token := githubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	fmt.Println(contextStyle.Render(fmt.Sprintf("→ Loading %s source %s...", src.Kind, src.Location)))
	docs, err := orchestrator.LoadDocuments(ctx, src, token)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Loaded %d documents", len(docs))))

	pipeline, err := orchestrator.NewPipeline(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	fmt.Println(contextStyle.Render("→ Indexing..."))
	report, err := pipeline.Index(ctx, docs)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Indexed %d documents (%d chunks, %d embedded), skipped %d",
		report.Documents, report.Chunks, report.Embedded, report.Skipped)))

	if total, err := pipeline.Count(ctx); err == nil {
		fmt.Println(contextStyle.Render(fmt.Sprintf("Knowledge base now holds %d chunks", total)))
	}

	if !watchSource {
		return nil
	}
	return watchDirectory(ctx, pipeline, src.Location)
}

func watchDirectory(ctx context.Context, pipeline *orchestrator.Pipeline, root string) error {
	watcher, err := source.NewWatcher(root, source.DefaultDebounce)
	if err != nil {
		return err
	}
	defer watcher.Close()

	fmt.Println(headerStyle.Render(fmt.Sprintf("Watching %s for changes (Ctrl-C to stop)", root)))
	err = watcher.Run(ctx, func(ctx context.Context, change source.Change) {
		report, err := pipeline.Sync(ctx, watcher.Root(), change)
		if err != nil {
			fmt.Println(errorStyle.Render("Error:"), err)
			return
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ %d updated, %d removed, %d chunks written",
			report.Documents, len(change.Removed), report.Chunks)))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
