package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/construdocs/construdocs/chunking"
	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/ingest"
	"github.com/construdocs/construdocs/normalize"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <records.json>",
		Short: "Index an export of document records (JSON array or NDJSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open records: %w", err)
			}
			defer f.Close()

			records, err := ingest.ReadRecords(f)
			if err != nil {
				return err
			}

			emb, err := embedder.Shared()
			if err != nil {
				return err
			}
			pipeline := ingest.New(a.store, normalize.New(a.cfg.DefaultProjectID), emb,
				ingest.WithBatchSize(a.cfg.EmbeddingBatch),
				ingest.WithChunker(chunking.New(
					chunking.WithChunkSize(a.cfg.ChunkSize),
					chunking.WithOverlap(a.cfg.ChunkOverlap))))
			stats, err := pipeline.Run(ctx, records)
			if err != nil {
				return err
			}
			log.Info("ingest finished",
				"documents", stats.Documents, "chunks", stats.Chunks, "skipped", stats.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (%d chunks, %d skipped)\n",
				stats.Documents, stats.Chunks, stats.Skipped)
			return nil
		},
	}
}
