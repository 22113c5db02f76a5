package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mindshare-cli/internal/batch"
	"github.com/sells-group/mindshare-cli/internal/budget"
	"github.com/sells-group/mindshare-cli/internal/pricing"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect the model price table",
}

var pricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective price table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pc, err := pricing.NewCache(cfg.Pricing.Path)
		if err != nil {
			return eris.Wrap(err, "load pricing")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pc.Snapshot())
	},
}

var pricingEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the cost of a full panel run without dispatching",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		pc, err := pricing.NewCache(cfg.Pricing.Path)
		if err != nil {
			return eris.Wrap(err, "load pricing")
		}

		estimator := budget.New(cfg.Budget)
		items := batch.BuildItems(cfg.Intents, cfg.Targets)
		estimate := estimator.Estimate(items, pc.Snapshot())
		decision := estimator.Check(estimate)

		out := struct {
			TotalUSD   float64 `json:"total_usd"`
			MaxItemUSD float64 `json:"max_item_usd"`
			Items      int     `json:"items"`
			Verdict    string  `json:"verdict"`
			Reason     string  `json:"reason,omitempty"`
		}{
			TotalUSD:   estimate.TotalUSD,
			MaxItemUSD: estimate.MaxItemUSD,
			Items:      len(estimate.Items),
			Verdict:    verdictString(decision.Kind),
			Reason:     decision.Reason,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func verdictString(kind budget.DecisionKind) string {
	switch kind {
	case budget.Abort:
		return "abort"
	case budget.ProceedWithWarning:
		return "proceed_with_warning"
	default:
		return "proceed"
	}
}

func init() {
	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingEstimateCmd)
	rootCmd.AddCommand(pricingCmd)
}
