package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	runs := []model.Run{
		{
			ID:     "run-1",
			Status: model.RunStatusComplete,
			Summary: &model.RunSummary{
				Attempted: 4, Succeeded: 3, Failed: 1, TotalCost: 0.05,
			},
			CreatedAt: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:        "run-2",
			Status:    model.RunStatusRunning,
			CreatedAt: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		},
	}

	var sb strings.Builder
	formatRunsList(&sb, runs)
	out := sb.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "$0.0500")
	// A still-running run has no summary columns yet.
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "running")
}

func TestFormatOutcomes(t *testing.T) {
	records := []store.OutcomeRecord{
		{
			Item:    model.WorkItem{Intent: model.Intent{ID: "alternatives"}, Provider: "perplexity", Model: "sonar"},
			Outcome: model.SuccessOutcome("answer", model.TokenUsage{}, 0.002, 2),
			Extraction: &model.ExtractionResult{
				AppearedMine: false,
			},
		},
	}

	var sb strings.Builder
	formatOutcomes(&sb, records)
	out := sb.String()

	assert.Contains(t, out, "alternatives")
	assert.Contains(t, out, "perplexity")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "$0.0020")
}
