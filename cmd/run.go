package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mindshare-cli/internal/batch"
	"github.com/sells-group/mindshare-cli/internal/budget"
	"github.com/sells-group/mindshare-cli/internal/extract"
	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
	"github.com/sells-group/mindshare-cli/internal/query"
	"github.com/sells-group/mindshare-cli/internal/resilience"
	"github.com/sells-group/mindshare-cli/internal/store"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full intent x model panel",
	Long:  "Asks every configured intent question to every configured (provider, model) pair, extracts brand mentions and rankings, and persists one outcome per item.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pc, err := pricing.NewCache(cfg.Pricing.Path)
		if err != nil {
			return eris.Wrap(err, "load pricing")
		}
		pc.StartRefresh(ctx, cfg.Pricing.RefreshInterval())

		orch, err := buildOrchestrator(st, pc)
		if err != nil {
			return err
		}

		summary, err := orch.RunAll(ctx, cfg.Intents, cfg.Targets)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		formatSummary(os.Stdout, summary)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run summary as JSON")
	rootCmd.AddCommand(runCmd)
}

// buildOrchestrator wires provider clients, executor, parser and budget
// gate from config.
func buildOrchestrator(st store.Store, pc *pricing.Cache) (*batch.Orchestrator, error) {
	clients, err := buildClients(cfg.Targets)
	if err != nil {
		return nil, err
	}

	opts := []batch.Option{batch.WithParser(buildParser(clients))}
	if cfg.Batch.Concurrency > 0 {
		opts = append(opts, batch.WithConcurrency(cfg.Batch.Concurrency))
	}

	return batch.New(
		buildExecutor(clients, pc),
		st,
		budget.New(cfg.Budget),
		pc,
		cfg.Brands,
		opts...,
	), nil
}

// formatSummary renders a run summary as a table, one row per item.
func formatSummary(w io.Writer, summary *model.RunSummary) {
	fmt.Fprintf(w, "Run %s  status=%s  attempted=%d  succeeded=%d  failed=%d  cost=$%.4f\n",
		summary.RunID, summary.Status, summary.Attempted, summary.Succeeded, summary.Failed, summary.TotalCost)
	if summary.AbortReason != "" {
		fmt.Fprintf(w, "Aborted: %s\n", summary.AbortReason)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INTENT\tPROVIDER\tMODEL\tOK\tMINE\tCOMPETITORS\tRANK\tCOST")
	for _, item := range summary.Items {
		ok := "yes"
		mine, competitors, rank := "-", "-", "-"
		if !item.Outcome.OK {
			ok = string(item.Outcome.FailureKind)
		} else if item.Extraction != nil {
			mine = fmt.Sprintf("%v", item.Extraction.AppearedMine)
			competitors = fmt.Sprintf("%d", len(item.Extraction.CompetitorMentions))
			rank = fmt.Sprintf("%s (%.1f)", item.Extraction.RankMethod, item.Extraction.RankConfidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t$%.4f\n",
			item.Item.Intent.ID, item.Item.Provider, item.Item.Model,
			ok, mine, competitors, rank, item.Outcome.ActualCost)
	}
	tw.Flush() //nolint:errcheck
	fmt.Fprintf(w, "Elapsed: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
}

// buildClients creates one client per distinct provider in the targets.
func buildClients(targets []model.Target) (map[string]query.Client, error) {
	clients := make(map[string]query.Client)
	for _, target := range targets {
		if _, ok := clients[target.Provider]; ok {
			continue
		}
		c, err := query.NewClient(target.Provider, cfg.Keys.Key(target.Provider))
		if err != nil {
			return nil, err
		}
		clients[target.Provider] = c
	}
	return clients, nil
}

// buildExecutor configures retry, timeout and rate limiting from config.
func buildExecutor(clients map[string]query.Client, pc *pricing.Cache) *query.Executor {
	opts := []query.Option{}
	if cfg.Query.MaxAttempts > 0 {
		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.MaxAttempts = cfg.Query.MaxAttempts
		opts = append(opts, query.WithRetryConfig(retryCfg))
	}
	if cfg.Query.TimeoutSecs > 0 {
		opts = append(opts, query.WithCallTimeout(time.Duration(cfg.Query.TimeoutSecs)*time.Second))
	}
	if cfg.Query.RatePerSecond > 0 {
		for provider := range clients {
			opts = append(opts, query.WithRateLimit(provider, cfg.Query.RatePerSecond))
		}
	}
	return query.NewExecutor(clients, pc, opts...)
}

// buildParser configures detection and ranking from config. With LLM
// ranking enabled, a rank failure still falls back to pattern matching.
func buildParser(clients map[string]query.Client) extract.Parser {
	detector := extract.NewDetector()
	detector.FuzzyEnabled = cfg.Extract.FuzzyEnabled
	if cfg.Extract.FuzzyThreshold > 0 {
		detector.FuzzyThreshold = cfg.Extract.FuzzyThreshold
	}

	if cfg.Extract.LLMRank {
		provider := query.ProviderAnthropic
		modelID := cfg.Extract.LLMRankModel
		if c, ok := clients[provider]; ok && modelID != "" {
			strategy := &extract.LLMRankStrategy{
				Completer: &rankCompleter{client: c, model: modelID},
				Fallback:  extract.PatternStrategy{Ranker: extract.NewRanker(detector)},
			}
			return extract.NewParserWith(detector, strategy)
		}
		zap.L().Warn("llm rank enabled but no anthropic client or model configured, using pattern ranking")
	}

	return extract.NewParserWith(detector, nil)
}

// rankCompleter adapts a query.Client to the rank strategy's completion
// interface.
type rankCompleter struct {
	client query.Client
	model  string
}

func (r *rankCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	answer, err := r.client.Ask(ctx, r.model, prompt)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}
