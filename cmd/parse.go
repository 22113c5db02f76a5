package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mindshare-cli/internal/model"
)

var parseText string

var parseCmd = &cobra.Command{
	Use:   "parse [run-id]",
	Short: "Re-derive extractions from stored raw answers",
	Long: "Re-runs mention detection and rank extraction against the raw answer text of a stored run, " +
		"useful after changing the brand list. With --text, parses ad-hoc text instead.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(); err != nil {
			return err
		}
		parser := buildParser(nil)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		// Ad-hoc mode: parse the given text directly.
		if parseText != "" {
			res := parser.Parse(ctx, parseText, cfg.Brands, "adhoc", "none", "none", time.Now().UTC())
			return enc.Encode(res)
		}

		if len(args) == 0 {
			return eris.New("parse: run-id or --text required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListOutcomes(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "parse: list outcomes")
		}

		var results []model.ExtractionResult
		for _, rec := range records {
			if !rec.Outcome.OK {
				continue
			}
			res := parser.Parse(ctx, rec.Outcome.RawText, cfg.Brands,
				rec.Item.Intent.ID, rec.Item.Provider, rec.Item.Model, time.Now().UTC())
			results = append(results, res)
		}

		zap.L().Info("re-parsed stored answers",
			zap.String("run_id", args[0]),
			zap.Int("answers", len(results)),
		)
		return enc.Encode(results)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseText, "text", "", "parse this text instead of a stored run")
	rootCmd.AddCommand(parseCmd)
}
