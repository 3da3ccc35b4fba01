package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"lexrag/ingest"
	"lexrag/llm/parser"
	"lexrag/llm/vector"
	"lexrag/pubsub"
)

var flagDir string

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	summaryStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into a knowledge base",
	Long: `Walks the document directory, parses every supported file (txt, md,
html), chunks it, embeds the chunks and stores them in the selected
knowledge base namespace. Re-running over the same tree updates
records in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		broker := pubsub.NewBroker[pubsub.IngestProgress]()
		defer broker.Shutdown()
		go printProgress(ctx, broker)

		pipeline := ingest.New(parser.DefaultRegistry(), embedder, store, broker, ingest.Config{
			ChunkConfig: vector.ChunkConfig{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
			BatchSize:   cfg.BatchSize,
			Workers:     cfg.IngestWorkers,
		})

		summary, err := pipeline.Run(ctx, cfg.Namespace, flagDir)
		if err != nil {
			return err
		}

		fmt.Println(summaryStyle.Render(fmt.Sprintf(
			"Ingested %d files (%d failed) into %q: %d chunks, %d records",
			summary.Files, summary.FilesFailed, summary.Namespace, summary.Chunks, summary.Records)))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagDir, "dir", "./data", "directory of documents to ingest")
	rootCmd.AddCommand(ingestCmd)
}

func printProgress(ctx context.Context, broker *pubsub.Broker[pubsub.IngestProgress]) {
	for event := range broker.Subscribe(ctx) {
		switch event.Type {
		case pubsub.FileParsedEvent:
			fmt.Println(progressStyle.Render(fmt.Sprintf("  parsed %s (%d chunks)", event.Payload.Path, event.Payload.Chunks)))
		case pubsub.FileFailedEvent:
			fmt.Println(failureStyle.Render(fmt.Sprintf("  failed %s: %s", event.Payload.Path, event.Payload.Err)))
		case pubsub.BatchEmbeddedEvent:
			fmt.Println(progressStyle.Render(fmt.Sprintf("  embedded batch of %d chunks", event.Payload.Chunks)))
		}
	}
}
