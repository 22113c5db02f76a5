package store

import (
	"context"
	"time"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// OutcomeRecord is one persisted work-item outcome, with its extraction
// when the query succeeded.
type OutcomeRecord struct {
	Item       model.WorkItem           `json:"item"`
	Outcome    model.ExecutionOutcome   `json:"outcome"`
	Extraction *model.ExtractionResult  `json:"extraction,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

// Store defines the persistence interface for batch runs. Outcome and
// mention inserts are idempotent on their natural keys: repeating an
// insert for the same (run, intent, provider, model) is a no-op, which
// is what makes per-item persistence safe without cross-item locking.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	FinalizeRun(ctx context.Context, runID string, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-item outcomes
	InsertOutcome(ctx context.Context, runID string, item model.WorkItem, outcome model.ExecutionOutcome, extraction *model.ExtractionResult) error
	InsertMentions(ctx context.Context, runID string, res model.ExtractionResult) error
	ListOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
