package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mindshare-cli/internal/budget"
	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
	"github.com/sells-group/mindshare-cli/internal/store"
)

// fakeExecutor returns canned outcomes keyed by work-item key and counts
// invocations.
type fakeExecutor struct {
	outcomes map[string]model.ExecutionOutcome
	fallback model.ExecutionOutcome
	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (f *fakeExecutor) Execute(_ context.Context, item model.WorkItem) model.ExecutionOutcome {
	f.calls.Add(1)
	cur := f.inflight.Add(1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.inflight.Add(-1)

	if out, ok := f.outcomes[item.Key()]; ok {
		return out
	}
	return f.fallback
}

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu       sync.Mutex
	runs     map[string]*model.Run
	outcomes map[string]store.OutcomeRecord // keyed by runID + "/" + item key
	mentions int
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{
		runs:     make(map[string]*model.Run),
		outcomes: make(map[string]store.OutcomeRecord),
	}
}

func (m *memStore) CreateRun(context.Context) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "run-" + string(rune('0'+m.nextID))
	run := &model.Run{ID: id, Status: model.RunStatusRunning, CreatedAt: time.Now()}
	m.runs[id] = run
	return run, nil
}

func (m *memStore) FinalizeRun(_ context.Context, runID string, summary *model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[runID]
	run.Status = summary.Status
	run.Summary = summary
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID], nil
}

func (m *memStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (m *memStore) InsertOutcome(_ context.Context, runID string, item model.WorkItem, outcome model.ExecutionOutcome, extraction *model.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := runID + "/" + item.Key()
	if _, exists := m.outcomes[key]; exists {
		return nil // idempotent
	}
	m.outcomes[key] = store.OutcomeRecord{Item: item, Outcome: outcome, Extraction: extraction}
	return nil
}

func (m *memStore) InsertMentions(_ context.Context, _ string, res model.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentions += len(res.MyMentions) + len(res.CompetitorMentions)
	return nil
}

func (m *memStore) ListOutcomes(_ context.Context, runID string) ([]store.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.OutcomeRecord
	for key, rec := range m.outcomes {
		if len(key) > len(runID) && key[:len(runID)] == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func testBrands() model.BrandSet {
	return model.BrandSet{
		Mine:        []string{"Warmly"},
		Competitors: []string{"Instantly", "Lemwarm"},
	}
}

func testIntents() []model.Intent {
	return []model.Intent{
		{ID: "best-warmup", Prompt: "What is the best email warmup tool?"},
		{ID: "alternatives", Prompt: "What are alternatives to Instantly?"},
	}
}

func testTargets() []model.Target {
	return []model.Target{
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func newTestOrchestrator(exec Executor, st store.Store, budgetCfg budget.Config, opts ...Option) *Orchestrator {
	pc, _ := pricing.NewCache("")
	return New(exec, st, budget.New(budgetCfg), pc, testBrands(), opts...)
}

func TestBuildItems_CrossProductOrder(t *testing.T) {
	items := BuildItems(testIntents(), testTargets())
	require.Len(t, items, 4)
	assert.Equal(t, "best-warmup/anthropic/claude-haiku-4-5-20251001", items[0].Key())
	assert.Equal(t, "best-warmup/openai/gpt-4o-mini", items[1].Key())
	assert.Equal(t, "alternatives/anthropic/claude-haiku-4-5-20251001", items[2].Key())
	assert.Equal(t, "alternatives/openai/gpt-4o-mini", items[3].Key())
}

func TestRunAll_Success(t *testing.T) {
	exec := &fakeExecutor{
		fallback: model.SuccessOutcome("1. Warmly\n2. Instantly", model.TokenUsage{InputTokens: 100, OutputTokens: 50}, 0.002, 1),
	}
	st := newMemStore()
	o := newTestOrchestrator(exec, st, budget.Config{})

	summary, err := o.RunAll(context.Background(), testIntents(), testTargets())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, summary.Status)
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.InDelta(t, 0.008, summary.TotalCost, 1e-9)
	assert.Equal(t, int64(4), exec.calls.Load())

	// Every item persisted with its extraction.
	records, err := st.ListOutcomes(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		require.NotNil(t, rec.Extraction)
		assert.True(t, rec.Extraction.AppearedMine)
	}
	assert.Positive(t, st.mentions)
}

func TestRunAll_BudgetAbortMakesZeroCalls(t *testing.T) {
	exec := &fakeExecutor{
		fallback: model.SuccessOutcome("answer", model.TokenUsage{}, 0, 1),
	}
	st := newMemStore()
	o := newTestOrchestrator(exec, st, budget.Config{
		Enabled:      true,
		MaxPerRunUSD: 0.0000001,
	})

	summary, err := o.RunAll(context.Background(), testIntents(), testTargets())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusAborted, summary.Status)
	assert.Zero(t, summary.Attempted)
	assert.Contains(t, summary.AbortReason, "max_per_run_usd")
	assert.Zero(t, exec.calls.Load(), "abort must happen before any dispatch")

	run, err := st.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusAborted, run.Status)
}

func TestRunAll_ItemFailureIsolated(t *testing.T) {
	failing := model.WorkItem{Intent: testIntents()[0], Provider: "openai", Model: "gpt-4o-mini"}
	exec := &fakeExecutor{
		outcomes: map[string]model.ExecutionOutcome{
			failing.Key(): model.FailureOutcome(model.FailureTransient, "429 after retries", 3),
		},
		fallback: model.SuccessOutcome("1. Warmly", model.TokenUsage{InputTokens: 10, OutputTokens: 5}, 0.001, 1),
	}
	st := newMemStore()
	o := newTestOrchestrator(exec, st, budget.Config{})

	summary, err := o.RunAll(context.Background(), testIntents(), testTargets())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, summary.Status)
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(4), exec.calls.Load())

	var failedResults int
	for _, r := range summary.Items {
		if !r.Outcome.OK {
			failedResults++
			assert.Equal(t, model.FailureTransient, r.Outcome.FailureKind)
			assert.Nil(t, r.Extraction)
		}
	}
	assert.Equal(t, 1, failedResults)
}

func TestRunAll_ConcurrencyBounded(t *testing.T) {
	exec := &fakeExecutor{
		fallback: model.SuccessOutcome("answer", model.TokenUsage{}, 0, 1),
		delay:    10 * time.Millisecond,
	}
	st := newMemStore()
	o := newTestOrchestrator(exec, st, budget.Config{}, WithConcurrency(2))

	intents := make([]model.Intent, 6)
	for i := range intents {
		intents[i] = model.Intent{ID: "intent-" + string(rune('a'+i)), Prompt: "q"}
	}

	_, err := o.RunAll(context.Background(), intents, testTargets()[:1])
	require.NoError(t, err)
	assert.LessOrEqual(t, exec.peak.Load(), int64(2))
	assert.Equal(t, int64(6), exec.calls.Load())
}

func TestRunAll_WarningStillProceeds(t *testing.T) {
	exec := &fakeExecutor{
		fallback: model.SuccessOutcome("answer", model.TokenUsage{}, 0, 1),
	}
	st := newMemStore()
	o := newTestOrchestrator(exec, st, budget.Config{
		Enabled:          true,
		MaxPerRunUSD:     1000,
		WarnThresholdUSD: 0.0000001,
	})

	summary, err := o.RunAll(context.Background(), testIntents(), testTargets())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, summary.Status)
	assert.Equal(t, int64(4), exec.calls.Load())
}
