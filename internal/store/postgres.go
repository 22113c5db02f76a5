package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mindshare-cli/internal/db"
	"github.com/sells-group/mindshare-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
	"finalize_run": `UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":      `SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_outcome": `INSERT INTO outcomes
		(id, run_id, intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id, intent_id, provider, model) DO NOTHING`,
	"list_outcomes": `SELECT intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at
		FROM outcomes WHERE run_id = $1 ORDER BY created_at ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the report API).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outcomes (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	intent_id     TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	ok            BOOLEAN NOT NULL,
	raw_text      TEXT,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	actual_cost   DOUBLE PRECISION NOT NULL DEFAULT 0,
	failure_kind  TEXT,
	error_message TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	extraction    JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(run_id, intent_id, provider, model)
);

CREATE TABLE IF NOT EXISTS mentions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	intent_id    TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	brand        TEXT NOT NULL,
	alias        TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	mine         BOOLEAN NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(run_id, intent_id, provider, model, brand, mine)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_mentions_run_id ON mentions(run_id);
CREATE INDEX IF NOT EXISTS idx_mentions_brand ON mentions(brand);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(summary.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		summaryJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(err, "postgres: get run %s: not found", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	if len(summaryJSON) > 0 {
		var summary model.RunSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		r.Summary = &summary
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r           model.Run
			status      string
			summaryJSON []byte
		)
		if err := rows.Scan(&r.ID, &status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if len(summaryJSON) > 0 {
			var summary model.RunSummary
			if err := json.Unmarshal(summaryJSON, &summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
			r.Summary = &summary
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs rows")
}

// InsertOutcome persists one terminal outcome. Repeats on the same
// (run, intent, provider, model) key are no-ops via ON CONFLICT DO NOTHING.
func (s *PostgresStore) InsertOutcome(ctx context.Context, runID string, item model.WorkItem, outcome model.ExecutionOutcome, extraction *model.ExtractionResult) error {
	var extractionJSON []byte
	if extraction != nil {
		data, err := json.Marshal(extraction)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal extraction")
		}
		extractionJSON = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes
		 (id, run_id, intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (run_id, intent_id, provider, model) DO NOTHING`,
		uuid.New().String(), runID, item.Intent.ID, item.Provider, item.Model,
		outcome.OK, outcome.RawText,
		outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.ActualCost,
		string(outcome.FailureKind), outcome.ErrorMessage, outcome.Attempts,
		extractionJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert outcome %s", item.Key())
}

// InsertMentions persists all detected mentions of an extraction in one
// idempotent multi-row insert.
func (s *PostgresStore) InsertMentions(ctx context.Context, runID string, res model.ExtractionResult) error {
	var rows [][]any
	appendRows := func(mentions []model.Mention, mine bool) {
		for _, m := range mentions {
			rows = append(rows, []any{
				uuid.New().String(), runID, res.IntentID, res.Provider, res.Model,
				m.Normalized, m.Alias, m.Offset, string(m.Kind), mine, time.Now().UTC(),
			})
		}
	}
	appendRows(res.MyMentions, true)
	appendRows(res.CompetitorMentions, false)

	_, err := db.InsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "mentions",
		Columns:      []string{"id", "run_id", "intent_id", "provider", "model", "brand", "alias", "start_offset", "kind", "mine", "created_at"},
		ConflictKeys: []string{"run_id", "intent_id", "provider", "model", "brand", "mine"},
	}, rows)
	return eris.Wrapf(err, "postgres: insert mentions %s/%s/%s", res.IntentID, res.Provider, res.Model)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT intent_id, provider, model, ok, raw_text, input_tokens, output_tokens, actual_cost, failure_kind, error_message, attempts, extraction, created_at
		 FROM outcomes WHERE run_id = $1 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes %s", runID)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var (
			rec            OutcomeRecord
			rawText        *string
			failureKind    *string
			errorMessage   *string
			extractionJSON []byte
		)
		if err := rows.Scan(
			&rec.Item.Intent.ID, &rec.Item.Provider, &rec.Item.Model,
			&rec.Outcome.OK, &rawText,
			&rec.Outcome.Usage.InputTokens, &rec.Outcome.Usage.OutputTokens, &rec.Outcome.ActualCost,
			&failureKind, &errorMessage, &rec.Outcome.Attempts,
			&extractionJSON, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		if rawText != nil {
			rec.Outcome.RawText = *rawText
		}
		if failureKind != nil {
			rec.Outcome.FailureKind = model.FailureKind(*failureKind)
		}
		if errorMessage != nil {
			rec.Outcome.ErrorMessage = *errorMessage
		}
		if len(extractionJSON) > 0 {
			var res model.ExtractionResult
			if err := json.Unmarshal(extractionJSON, &res); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal extraction")
			}
			rec.Extraction = &res
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list outcomes rows")
}
