package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outcomes (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	intent_id     TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	ok            INTEGER NOT NULL,
	raw_text      TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	actual_cost   REAL NOT NULL DEFAULT 0,
	failure_kind  TEXT,
	error_message TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	extraction    TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(run_id, intent_id, provider, model)
);

CREATE TABLE IF NOT EXISTS mentions (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	intent_id  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	brand        TEXT NOT NULL,
	alias        TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	mine       INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(run_id, intent_id, provider, model, brand, mine)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_mentions_run_id ON mentions(run_id);
CREATE INDEX IF NOT EXISTS idx_mentions_brand ON mentions(brand);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(summary.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs rows")
}

// InsertOutcome persists one terminal outcome. Repeats on the same
// (run, intent, provider, model) key are no-ops via INSERT OR IGNORE.
func (s *SQLiteStore) InsertOutcome(ctx context.Context, runID string, item model.WorkItem, outcome model.ExecutionOutcome, extraction *model.ExtractionResult) error {
	var extractionJSON sql.NullString
	if extraction != nil {
		data, err := json.Marshal(extraction)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal extraction")
		}
		extractionJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO outcomes
		 (id, run_id, intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, item.Intent.ID, item.Provider, item.Model,
		boolToInt(outcome.OK), outcome.RawText,
		outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.ActualCost,
		string(outcome.FailureKind), outcome.ErrorMessage, outcome.Attempts,
		extractionJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert outcome %s", item.Key())
}

// InsertMentions persists each detected mention of an extraction.
// Idempotent per (run, intent, provider, model, brand, list).
func (s *SQLiteStore) InsertMentions(ctx context.Context, runID string, res model.ExtractionResult) error {
	insert := func(m model.Mention, mine bool) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO mentions
			 (id, run_id, intent_id, provider, model, brand, alias, start_offset, kind, mine, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, res.IntentID, res.Provider, res.Model,
			m.Normalized, m.Alias, m.Offset, string(m.Kind), boolToInt(mine), time.Now().UTC(),
		)
		return err
	}
	for _, m := range res.MyMentions {
		if err := insert(m, true); err != nil {
			return eris.Wrapf(err, "sqlite: insert mention %s", m.Normalized)
		}
	}
	for _, m := range res.CompetitorMentions {
		if err := insert(m, false); err != nil {
			return eris.Wrapf(err, "sqlite: insert mention %s", m.Normalized)
		}
	}
	return nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at
		 FROM outcomes WHERE run_id = ? ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes %s", runID)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var (
			rec            OutcomeRecord
			okInt          int
			failureKind    sql.NullString
			errorMessage   sql.NullString
			rawText        sql.NullString
			extractionJSON sql.NullString
		)
		if err := rows.Scan(
			&rec.Item.Intent.ID, &rec.Item.Provider, &rec.Item.Model,
			&okInt, &rawText,
			&rec.Outcome.Usage.InputTokens, &rec.Outcome.Usage.OutputTokens, &rec.Outcome.ActualCost,
			&failureKind, &errorMessage, &rec.Outcome.Attempts,
			&extractionJSON, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		rec.Outcome.OK = okInt != 0
		rec.Outcome.RawText = rawText.String
		rec.Outcome.FailureKind = model.FailureKind(failureKind.String)
		rec.Outcome.ErrorMessage = errorMessage.String
		if extractionJSON.Valid && extractionJSON.String != "" {
			var res model.ExtractionResult
			if err := json.Unmarshal([]byte(extractionJSON.String), &res); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal extraction")
			}
			rec.Extraction = &res
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list outcomes rows")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		summaryJSON sql.NullString
	)
	if err := row.Scan(&r.ID, &status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(err, "sqlite: run not found")
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		r.Summary = &summary
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
