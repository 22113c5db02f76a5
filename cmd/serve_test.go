package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/store"
)

// stubStore serves canned data to router tests.
type stubStore struct {
	runs     []model.Run
	outcomes map[string][]store.OutcomeRecord
}

func (s *stubStore) CreateRun(context.Context) (*model.Run, error) { return nil, eris.New("stub") }
func (s *stubStore) FinalizeRun(context.Context, string, *model.RunSummary) error {
	return eris.New("stub")
}

func (s *stubStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, eris.Errorf("run %s not found", id)
}

func (s *stubStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if filter.Status == "" {
		return s.runs, nil
	}
	var out []model.Run
	for _, r := range s.runs {
		if r.Status == filter.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) InsertOutcome(context.Context, string, model.WorkItem, model.ExecutionOutcome, *model.ExtractionResult) error {
	return eris.New("stub")
}

func (s *stubStore) InsertMentions(context.Context, string, model.ExtractionResult) error {
	return eris.New("stub")
}

func (s *stubStore) ListOutcomes(_ context.Context, runID string) ([]store.OutcomeRecord, error) {
	return s.outcomes[runID], nil
}

func (s *stubStore) Migrate(context.Context) error { return nil }
func (s *stubStore) Close() error                  { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubStore) {
	t.Helper()
	st := &stubStore{
		runs: []model.Run{
			{ID: "run-1", Status: model.RunStatusComplete, CreatedAt: time.Now().UTC()},
			{ID: "run-2", Status: model.RunStatusAborted, CreatedAt: time.Now().UTC()},
		},
		outcomes: map[string][]store.OutcomeRecord{
			"run-1": {
				{
					Item:    model.WorkItem{Intent: model.Intent{ID: "best-warmup"}, Provider: "anthropic", Model: "claude-haiku-4-5-20251001"},
					Outcome: model.SuccessOutcome("1. Warmly", model.TokenUsage{}, 0.001, 1),
				},
			},
		},
	}
	srv := httptest.NewServer(newRouter(st))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_ListRuns(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	assert.Len(t, runs, 2)
}

func TestServe_ListRuns_StatusFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs?status=aborted")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var runs []model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestServe_GetRun_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/ghost")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_ListOutcomes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/run-1/outcomes")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var records []store.OutcomeRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "anthropic", records[0].Item.Provider)
}

func TestServe_ListOutcomes_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/run-2/outcomes")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var records []store.OutcomeRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Empty(t, records)
}
