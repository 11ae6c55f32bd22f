package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/construdocs/construdocs/config"
	"github.com/construdocs/construdocs/ingest"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/synth"
)

// newSynthCmd enriches metadata-only records with generated full text. It only
// needs the LLM, so it deliberately skips the database wiring.
func newSynthCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "synth <records.json>",
		Short: "Generate synthetic document bodies for metadata-only records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			if cfg.LLMAPIKey == "" {
				return fmt.Errorf("LLM_API_KEY is required: %w", errors.ErrInvalidInput)
			}
			a := &app{cfg: cfg}
			defer a.close()
			client, err := buildLLM(ctx, cfg, a)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open records: %w", err)
			}
			defer f.Close()
			records, err := ingest.ReadRecords(f)
			if err != nil {
				return err
			}

			gen := synth.New(client)
			enriched := make([]json.RawMessage, 0, len(records))
			var generated int
			for i, rec := range records {
				er, err := gen.Enrich(ctx, rec)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				if er.SyntheticContent != "" {
					generated++
				}
				enriched = append(enriched, json.RawMessage(er.Raw()))
				log.Info("record enriched",
					"document_id", er.DocumentID, "progress", fmt.Sprintf("%d/%d", i+1, len(records)))
			}

			if err := writeRecords(out, enriched); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enriched %d/%d records -> %s\n",
				generated, len(records), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "enriched.json", "output file for enriched records")
	return cmd
}

func writeRecords(path string, records []json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode enriched records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
