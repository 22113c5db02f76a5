package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing and viewing past panel runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List panel runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs outcomes --

var runsOutcomesCmd = &cobra.Command{
	Use:   "outcomes <run-id>",
	Short: "List per-item outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListOutcomes(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs outcomes")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No outcomes found.")
			return nil
		}

		formatOutcomes(os.Stdout, records)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tATTEMPTED\tSUCCEEDED\tFAILED\tCOST\tCREATED")
	for _, r := range runs {
		attempted, succeeded, failed := "-", "-", "-"
		cost := "-"
		if r.Summary != nil {
			attempted = fmt.Sprintf("%d", r.Summary.Attempted)
			succeeded = fmt.Sprintf("%d", r.Summary.Succeeded)
			failed = fmt.Sprintf("%d", r.Summary.Failed)
			cost = fmt.Sprintf("$%.4f", r.Summary.TotalCost)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, attempted, succeeded, failed, cost,
			r.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush() //nolint:errcheck
}

func formatOutcomes(w io.Writer, records []store.OutcomeRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INTENT\tPROVIDER\tMODEL\tOK\tATTEMPTS\tMINE\tCOST")
	for _, rec := range records {
		ok := "yes"
		if !rec.Outcome.OK {
			ok = string(rec.Outcome.FailureKind)
		}
		mine := "-"
		if rec.Extraction != nil {
			mine = fmt.Sprintf("%v", rec.Extraction.AppearedMine)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t$%.4f\n",
			rec.Item.Intent.ID, rec.Item.Provider, rec.Item.Model,
			ok, rec.Outcome.Attempts, mine, rec.Outcome.ActualCost)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, aborted)")
	runsListCmd.Flags().Int("limit", 20, "max runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsOutcomesCmd)
	rootCmd.AddCommand(runsCmd)
}
