package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"lexrag/graph"
	"lexrag/llm/chains"
	"lexrag/llm/providers"
	"lexrag/retrieval"
)

var flagTrace bool

var (
	citationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	warningStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	traceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against a knowledge base",
	Long: `Runs the corrective query pipeline: retrieves passages from the
knowledge base, grades them for relevance, rewrites the question if
nothing relevant comes back, generates a cited answer and verifies it
is grounded before showing it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		embedder, err := newEmbeddingService(ctx, cfg)
		if err != nil {
			return err
		}

		chatModel, err := providers.CreateChatModel(ctx, cfg)
		if err != nil {
			return fmt.Errorf("creating chat model: %w", err)
		}

		orchestrator := graph.New(
			retrieval.New(embedder, store, cfg.TopK),
			chains.NewRelevanceGrader(chatModel),
			chains.NewQuestionRewriter(chatModel),
			chains.NewGenerator(chatModel),
			chains.NewGroundednessChecker(chatModel),
			graph.Config{
				Namespace:            cfg.Namespace,
				MaxRetrievalRetries:  cfg.MaxRetrievalRetries,
				MaxGenerationRetries: cfg.MaxGenerationRetries,
			},
		)

		result, err := orchestrator.Run(ctx, question)
		if err != nil {
			return err
		}

		return renderResult(result)
	},
}

func init() {
	askCmd.Flags().BoolVar(&flagTrace, "trace", false, "print the pipeline trace after the answer")
	rootCmd.AddCommand(askCmd)
}

func renderResult(result *graph.Result) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	rendered, err := renderer.Render(result.Answer.Text)
	if err != nil {
		// Fall back to the raw text rather than losing the answer.
		rendered = result.Answer.Text
	}
	fmt.Println(rendered)

	if len(result.Answer.Citations) > 0 {
		fmt.Println(citationStyle.Render("Fuentes:"))
		for i, c := range result.Answer.Citations {
			fmt.Println(citationStyle.Render(fmt.Sprintf("  [%d] %s (fragmento %d)", i+1, c.SourcePath, c.ChunkIndex+1)))
			fmt.Println(citationStyle.Render("      " + c.Excerpt))
		}
	}

	if !result.Answer.Verified && !result.Answer.Insufficient {
		fmt.Println(warningStyle.Render("Advertencia: esta respuesta no pudo ser verificada contra las fuentes."))
	}

	if flagTrace {
		fmt.Println(traceStyle.Render(fmt.Sprintf("run %s", result.RunID)))
		for _, step := range result.Trace {
			fmt.Println(traceStyle.Render(fmt.Sprintf("  %-9s %s", step.State, step.Detail)))
		}
		if result.FinalQuestion != result.Question {
			fmt.Println(traceStyle.Render("  final question: " + result.FinalQuestion))
		}
	}
	return nil
}
