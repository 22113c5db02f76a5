package model

import "time"

// Intent is one buyer-intent question posed to every configured model.
type Intent struct {
	ID     string `json:"id" yaml:"id" mapstructure:"id"`
	Prompt string `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
}

// Target is one (provider, model) pair the panel queries.
type Target struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
}

// WorkItem is the unit of batch dispatch: one intent against one
// (provider, model) pair. Pure value, built once from config.
type WorkItem struct {
	Intent   Intent `json:"intent"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Key returns the persistence key component identifying this item
// within a run.
func (w WorkItem) Key() string {
	return w.Intent.ID + "/" + w.Provider + "/" + w.Model
}

// TokenUsage tracks token consumption reported by a provider.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// FailureKind classifies terminal query failures.
type FailureKind string

const (
	FailureTransient FailureKind = "transient" // retries exhausted
	FailurePermanent FailureKind = "permanent" // auth / bad request, no retry
)

// ExecutionOutcome is the terminal state of one WorkItem's query.
// Exactly one of Success/Failure semantics applies: OK true means RawText,
// Usage and ActualCost are populated; OK false means FailureKind and
// ErrorMessage are.
type ExecutionOutcome struct {
	OK           bool        `json:"ok"`
	RawText      string      `json:"raw_text,omitempty"`
	Usage        TokenUsage  `json:"usage,omitempty"`
	ActualCost   float64     `json:"actual_cost,omitempty"`
	FailureKind  FailureKind `json:"failure_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Attempts     int         `json:"attempts"`
}

// SuccessOutcome builds a successful outcome value.
func SuccessOutcome(rawText string, usage TokenUsage, cost float64, attempts int) ExecutionOutcome {
	return ExecutionOutcome{
		OK:         true,
		RawText:    rawText,
		Usage:      usage,
		ActualCost: cost,
		Attempts:   attempts,
	}
}

// FailureOutcome builds a failed outcome value.
func FailureOutcome(kind FailureKind, msg string, attempts int) ExecutionOutcome {
	return ExecutionOutcome{
		OK:           false,
		FailureKind:  kind,
		ErrorMessage: msg,
		Attempts:     attempts,
	}
}

// ItemResult pairs a WorkItem with its terminal outcome and, on success,
// the extraction derived from it.
type ItemResult struct {
	Item       WorkItem          `json:"item"`
	Outcome    ExecutionOutcome  `json:"outcome"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
}

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// RunSummary is finalized once every work item reaches a terminal state.
type RunSummary struct {
	RunID       string       `json:"run_id"`
	Status      RunStatus    `json:"status"`
	Attempted   int          `json:"attempted"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	TotalCost   float64      `json:"total_cost_usd"`
	AbortReason string       `json:"abort_reason,omitempty"`
	Items       []ItemResult `json:"items"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// Run is a persisted batch run row.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Summary   *RunSummary
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
