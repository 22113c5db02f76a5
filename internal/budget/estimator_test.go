package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
)

func testItems(n int) []model.WorkItem {
	items := make([]model.WorkItem, n)
	for i := range items {
		items[i] = model.WorkItem{
			Intent:   model.Intent{ID: "intent", Prompt: "best cold outreach tool?"},
			Provider: "anthropic",
			Model:    "claude-haiku-4-5-20251001",
		}
	}
	return items
}

func TestEstimate_PerItemMath(t *testing.T) {
	e := New(Config{
		Enabled:             true,
		AssumedInputTokens:  1_000_000,
		AssumedOutputTokens: 1_000_000,
		SafetyMultiplier:    1.2,
	})

	est := e.Estimate(testItems(2), pricing.DefaultTable())

	// haiku: (0.80 + 4.00) * 1.2 per item.
	require.Len(t, est.Items, 2)
	assert.InDelta(t, 5.76, est.Items[0].USD, 1e-9)
	assert.InDelta(t, 11.52, est.TotalUSD, 1e-9)
	assert.InDelta(t, 5.76, est.MaxItemUSD, 1e-9)
}

func TestEstimate_UnknownModelIsZero(t *testing.T) {
	e := New(Config{Enabled: true})
	items := []model.WorkItem{{Provider: "anthropic", Model: "nonexistent"}}

	est := e.Estimate(items, pricing.DefaultTable())
	assert.Zero(t, est.TotalUSD)
}

func TestCheck_DisabledAlwaysProceeds(t *testing.T) {
	e := New(Config{Enabled: false, MaxPerRunUSD: 0.0001})
	d := e.Check(Estimate{TotalUSD: 999})
	assert.Equal(t, Proceed, d.Kind)
}

func TestCheck_AbortOnRunCap(t *testing.T) {
	e := New(Config{Enabled: true, MaxPerRunUSD: 1.00})
	d := e.Check(Estimate{TotalUSD: 1.50, MaxItemUSD: 0.10})
	assert.Equal(t, Abort, d.Kind)
	assert.Contains(t, d.Reason, "max_per_run_usd")
}

func TestCheck_AbortOnItemCap(t *testing.T) {
	e := New(Config{Enabled: true, MaxPerRunUSD: 10.00, MaxPerIntentUSD: 0.05})
	d := e.Check(Estimate{TotalUSD: 1.00, MaxItemUSD: 0.10})
	assert.Equal(t, Abort, d.Kind)
	assert.Contains(t, d.Reason, "max_per_intent_usd")
}

func TestCheck_WarnThreshold(t *testing.T) {
	e := New(Config{Enabled: true, MaxPerRunUSD: 10.00, WarnThresholdUSD: 0.50})
	d := e.Check(Estimate{TotalUSD: 1.00, MaxItemUSD: 0.10})
	assert.Equal(t, ProceedWithWarning, d.Kind)
	assert.Contains(t, d.Reason, "warn_threshold_usd")
}

func TestCheck_CleanProceed(t *testing.T) {
	e := New(Config{Enabled: true, MaxPerRunUSD: 10.00, WarnThresholdUSD: 5.00})
	d := e.Check(Estimate{TotalUSD: 1.00, MaxItemUSD: 0.10})
	assert.Equal(t, Proceed, d.Kind)
	assert.Empty(t, d.Reason)
}
