package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stationmind/stationmind/internal/app"
	"github.com/stationmind/stationmind/internal/config"
	"github.com/stationmind/stationmind/internal/retrieval"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index text documents into the knowledge base",
	Long: `ingest reads plain-text or markdown files, splits them into
overlapping chunks at sentence boundaries, embeds each chunk, and
upserts them into the document store used for grounded answers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "provenance label (defaults to the file name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	total := 0
	for _, path := range args {
		n, err := ingestFile(cmd, a, cfg, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		total += n
	}
	fmt.Printf("indexed %d chunks from %d file(s)\n", total, len(args))
	return nil
}

func ingestFile(cmd *cobra.Command, a *app.App, cfg *config.Config, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	source := ingestSource
	if source == "" {
		source = filepath.Base(path)
	}

	chunks := retrieval.Chunk(string(data), cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	for _, chunk := range chunks {
		doc := retrieval.Document{Content: chunk, Source: source}
		if err := a.Documents.Upsert(cmd.Context(), doc); err != nil {
			return 0, fmt.Errorf("upserting chunk: %w", err)
		}
	}
	return len(chunks), nil
}
