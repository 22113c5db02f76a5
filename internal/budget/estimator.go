// Package budget pre-computes expected spend for a batch and gates
// dispatch on it. Estimates use fixed assumed token counts standing in
// for unknown real usage; actual costs are attributed later from real
// token counts.
package budget

import (
	"fmt"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
)

// DefaultSafetyMultiplier pads estimates against prompt drift and long
// answers. Kept at 1.2 for compatibility with historical runs.
const DefaultSafetyMultiplier = 1.2

// Config holds budget policy settings.
type Config struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxPerRunUSD        float64 `yaml:"max_per_run_usd" mapstructure:"max_per_run_usd"`
	MaxPerIntentUSD     float64 `yaml:"max_per_intent_usd" mapstructure:"max_per_intent_usd"`
	WarnThresholdUSD    float64 `yaml:"warn_threshold_usd" mapstructure:"warn_threshold_usd"`
	AssumedInputTokens  int64   `yaml:"assumed_input_tokens" mapstructure:"assumed_input_tokens"`
	AssumedOutputTokens int64   `yaml:"assumed_output_tokens" mapstructure:"assumed_output_tokens"`
	SafetyMultiplier    float64 `yaml:"safety_multiplier" mapstructure:"safety_multiplier"`
}

// ItemEstimate is the expected spend for one work item.
type ItemEstimate struct {
	Item model.WorkItem
	USD  float64
}

// Estimate aggregates expected spend for a whole batch.
type Estimate struct {
	TotalUSD   float64
	MaxItemUSD float64
	Items      []ItemEstimate
}

// DecisionKind is the budget gate's verdict.
type DecisionKind int

const (
	Proceed DecisionKind = iota
	ProceedWithWarning
	Abort
)

// Decision carries the verdict and, for warnings and aborts, the reason.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// Estimator computes estimates against a pricing snapshot.
type Estimator struct {
	cfg Config
}

// New creates an Estimator; zero-value assumptions get defaults
// (2000 in / 1000 out, 1.2 safety).
func New(cfg Config) Estimator {
	if cfg.AssumedInputTokens <= 0 {
		cfg.AssumedInputTokens = 2000
	}
	if cfg.AssumedOutputTokens <= 0 {
		cfg.AssumedOutputTokens = 1000
	}
	if cfg.SafetyMultiplier <= 0 {
		cfg.SafetyMultiplier = DefaultSafetyMultiplier
	}
	return Estimator{cfg: cfg}
}

// Estimate prices every work item against the snapshot. Models missing
// from the table estimate to zero; the budget gate cannot protect
// against unpriced models, which is why config validation warns on them.
func (e Estimator) Estimate(items []model.WorkItem, table *pricing.Table) Estimate {
	est := Estimate{Items: make([]ItemEstimate, 0, len(items))}
	for _, item := range items {
		usd := table.Cost(item.Provider, item.Model, e.cfg.AssumedInputTokens, e.cfg.AssumedOutputTokens) * e.cfg.SafetyMultiplier
		est.Items = append(est.Items, ItemEstimate{Item: item, USD: usd})
		est.TotalUSD += usd
		if usd > est.MaxItemUSD {
			est.MaxItemUSD = usd
		}
	}
	return est
}

// Check applies the budget policy to an estimate. It must run strictly
// before any dispatch: an Abort here means zero network calls.
func (e Estimator) Check(est Estimate) Decision {
	if !e.cfg.Enabled {
		return Decision{Kind: Proceed}
	}
	if e.cfg.MaxPerRunUSD > 0 && est.TotalUSD > e.cfg.MaxPerRunUSD {
		return Decision{
			Kind:   Abort,
			Reason: fmt.Sprintf("estimated run cost $%.4f exceeds max_per_run_usd $%.4f", est.TotalUSD, e.cfg.MaxPerRunUSD),
		}
	}
	if e.cfg.MaxPerIntentUSD > 0 && est.MaxItemUSD > e.cfg.MaxPerIntentUSD {
		return Decision{
			Kind:   Abort,
			Reason: fmt.Sprintf("estimated item cost $%.4f exceeds max_per_intent_usd $%.4f", est.MaxItemUSD, e.cfg.MaxPerIntentUSD),
		}
	}
	if e.cfg.WarnThresholdUSD > 0 && est.TotalUSD > e.cfg.WarnThresholdUSD {
		return Decision{
			Kind:   ProceedWithWarning,
			Reason: fmt.Sprintf("estimated run cost $%.4f exceeds warn_threshold_usd $%.4f", est.TotalUSD, e.cfg.WarnThresholdUSD),
		}
	}
	return Decision{Kind: Proceed}
}
