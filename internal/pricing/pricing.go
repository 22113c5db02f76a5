// Package pricing holds the per-model token price table used for both
// pre-flight budget estimates and actual cost attribution. The table is
// an immutable snapshot behind an atomic pointer: readers always see the
// latest completed load, never a half-updated one.
package pricing

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider → model → rate. Treated as immutable once built.
type Table struct {
	Rates    map[string]map[string]ModelRate `yaml:"rates"`
	LoadedAt time.Time                       `yaml:"-"`
}

// Rate looks up the rate for a (provider, model) pair.
func (t *Table) Rate(provider, model string) (ModelRate, bool) {
	models, ok := t.Rates[provider]
	if !ok {
		return ModelRate{}, false
	}
	r, ok := models[model]
	return r, ok
}

// Cost converts real token counts into USD for a (provider, model) pair.
// Unknown models cost 0; they are logged once at lookup sites.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int64) float64 {
	r, ok := t.Rate(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*r.Input + (float64(outputTokens)/1e6)*r.Output
}

// DefaultTable returns the compiled-in price table, used when no pricing
// file is configured or a refresh fails before the first load.
func DefaultTable() *Table {
	return &Table{
		LoadedAt: time.Now().UTC(),
		Rates: map[string]map[string]ModelRate{
			"anthropic": {
				"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
				"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
				"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
			},
			"openai": {
				"gpt-4o":      {Input: 2.50, Output: 10.00},
				"gpt-4o-mini": {Input: 0.15, Output: 0.60},
				"gpt-4.1":     {Input: 2.00, Output: 8.00},
			},
			"perplexity": {
				"sonar":     {Input: 1.00, Output: 1.00},
				"sonar-pro": {Input: 3.00, Output: 15.00},
			},
		},
	}
}

// Cache is the process-wide pricing snapshot holder.
type Cache struct {
	path     string
	snapshot atomic.Pointer[Table]
}

// NewCache initializes the cache with the compiled-in defaults and, when
// path is non-empty, immediately loads the pricing file over them.
func NewCache(path string) (*Cache, error) {
	c := &Cache{path: path}
	c.snapshot.Store(DefaultTable())
	if path != "" {
		if err := c.Reload(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Snapshot returns the latest completed table.
func (c *Cache) Snapshot() *Table {
	return c.snapshot.Load()
}

// Reload reads the pricing file and swaps in a fresh snapshot. On any
// error the previous snapshot stays in place.
func (c *Cache) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return eris.Wrapf(err, "pricing: read %s", c.path)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return eris.Wrapf(err, "pricing: parse %s", c.path)
	}
	if len(t.Rates) == 0 {
		return eris.Errorf("pricing: %s has no rates", c.path)
	}
	t.LoadedAt = time.Now().UTC()
	c.snapshot.Store(&t)
	zap.L().Info("pricing table reloaded",
		zap.String("path", c.path),
		zap.Int("providers", len(t.Rates)),
	)
	return nil
}

// StartRefresh reloads the pricing file on the given interval until ctx
// is cancelled. Failed reloads keep the previous snapshot and log.
func (c *Cache) StartRefresh(ctx context.Context, interval time.Duration) {
	if c.path == "" || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Reload(); err != nil {
					zap.L().Warn("pricing refresh failed, keeping previous snapshot", zap.Error(err))
				}
			}
		}
	}()
}
