package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIgnore_EmptyRows(t *testing.T) {
	n, err := InsertIgnore(context.Background(), nil, InsertConfig{
		Table:        "mentions",
		Columns:      []string{"id", "brand"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestInsertIgnore_NoColumns(t *testing.T) {
	_, err := InsertIgnore(context.Background(), nil, InsertConfig{
		Table:        "mentions",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestInsertIgnore_NoConflictKeys(t *testing.T) {
	_, err := InsertIgnore(context.Background(), nil, InsertConfig{
		Table:   "mentions",
		Columns: []string{"id", "brand"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestInsertIgnore_RowWidthMismatch(t *testing.T) {
	_, err := InsertIgnore(context.Background(), nil, InsertConfig{
		Table:        "mentions",
		Columns:      []string{"id", "brand"},
		ConflictKeys: []string{"id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values, want 2")
}

func TestInsertIgnore_BuildsOnConflictDoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectExec(`INSERT INTO "mentions" \("id", "brand"\) VALUES \(\$1, \$2\), \(\$3, \$4\) ON CONFLICT \("id"\) DO NOTHING`).
		WithArgs("a", "warmly", "b", "instantly").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := InsertIgnore(context.Background(), mock, InsertConfig{
		Table:        "mentions",
		Columns:      []string{"id", "brand"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"a", "warmly"}, {"b", "instantly"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"mentions", `"mentions"`},
		{"mindshare.mentions", `"mindshare"."mentions"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"run_id", "intent_id", "brand"`, quoteAndJoin([]string{"run_id", "intent_id", "brand"}))
}
