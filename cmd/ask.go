package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Yates-Labs/furrow/internal/assistant"
	"github.com/Yates-Labs/furrow/internal/conversation"
	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/Yates-Labs/furrow/internal/rag"
	"github.com/spf13/cobra"
)

var (
	askTopK        int
	historyFile    string
	saveHistoryOut bool
	showSources    bool
	interactive    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question grounded in the knowledge base",
	Long: `Ask a natural language question answered with knowledge base excerpts.

This command:
1. Fits the conversation history to the token budget
2. Retrieves the most relevant knowledge chunks for your question
3. Assembles a prompt from instructions, knowledge and history
4. Generates an answer using an LLM (OpenAI)

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings and LLM

Examples:
  furrow ask "How deep should I plant garlic?"
  furrow ask "And when do I harvest it?" --history chat.json --save
  furrow ask -i --history chat.json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if interactive {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntVar(&askTopK, "topk", 0, "Number of knowledge chunks to retrieve (default from config)")
	askCmd.Flags().StringVar(&historyFile, "history", "", "JSON file with the conversation so far")
	askCmd.Flags().BoolVar(&saveHistoryOut, "save", false, "Append the question and answer to the history file")
	askCmd.Flags().BoolVar(&showSources, "sources", false, "Show the knowledge excerpts used for the answer")
	askCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Keep asking questions until EOF or \"exit\"")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config := pipelineConfig()
	if askTopK > 0 {
		config.TopK = askTopK
	}

	history, err := loadHistory(historyFile)
	if err != nil {
		return err
	}

	pipeline, err := orchestrator.NewPipeline(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	if !interactive {
		_, err := askOnce(ctx, pipeline, history, args[0])
		return err
	}

	fmt.Println(contextStyle.Render("Ask away. Type \"exit\" or press Ctrl-D to quit."))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(headerStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		history, err = askOnce(ctx, pipeline, history, question)
		if err != nil {
			fmt.Println(errorStyle.Render("Error:"), err)
		}
	}
}

// askOnce answers one question and returns the history extended with it.
func askOnce(ctx context.Context, pipeline *orchestrator.Pipeline, history []conversation.Message, question string) ([]conversation.Message, error) {
	fmt.Println()
	fmt.Println(headerStyle.Render("Question:"))
	fmt.Println(questionStyle.Render(question))
	fmt.Println()

	reply, stats, err := pipeline.Ask(ctx, history, question)
	if err != nil {
		return history, err
	}

	printReply(reply, stats)

	history = append(history, conversation.UserMessage(question), conversation.AssistantMessage(reply.Text))
	if saveHistoryOut && historyFile != "" {
		if err := saveHistory(historyFile, history); err != nil {
			return history, err
		}
	}
	return history, nil
}

func printReply(reply *assistant.Reply, stats conversation.CompressionStats) {
	fmt.Println(headerStyle.Render("Answer:"))
	fmt.Println(answerStyle.Render(reply.Text))
	fmt.Println()

	switch reply.Retrieval {
	case rag.OutcomeDegraded.String():
		fmt.Println(warnStyle.Render("Knowledge base unavailable; answered without excerpts."))
	case rag.OutcomeEmpty.String():
		fmt.Println(warnStyle.Render("Knowledge base is empty; run `furrow ingest` first."))
	case rag.OutcomeFallback.String():
		fmt.Println(contextStyle.Render("No closely matching excerpts; used general knowledge base context."))
	}
	if stats.WasCompressed {
		fmt.Println(contextStyle.Render(fmt.Sprintf("History compressed: %d → %d messages, ~%d → ~%d tokens",
			stats.OriginalMessages, stats.FinalMessages, stats.OriginalTokens, stats.FinalTokens)))
	}

	if showSources && len(reply.Sources) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("Sources:"))
		for i, s := range reply.Sources {
			fmt.Println(sourceBoxStyle.Render(formatSource(i+1, s)))
		}
	}
}

func formatSource(n int, s rag.SearchResult) string {
	label := fmt.Sprintf("[%d] %s", n, s.SourceTitle)
	if s.PageNumber != nil {
		label += fmt.Sprintf(", page %d", *s.PageNumber)
	}
	if s.Ranked {
		label += fmt.Sprintf(" (similarity %.2f)", s.Similarity)
	}
	return label + "\n" + truncate(s.ChunkText, 280)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
