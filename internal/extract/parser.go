package extract

import (
	"context"
	"time"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// RankStrategy produces a brand ordering for one answer. Implementations
// must be deterministic with respect to their inputs or fall back to a
// strategy that is (see LLMRankStrategy).
type RankStrategy interface {
	Rank(ctx context.Context, text string, vocabulary []string) ([]model.RankedBrand, float64, model.RankMethod)
}

// PatternStrategy ranks via structural text patterns only. It ignores
// the context: pattern extraction does no I/O.
type PatternStrategy struct {
	Ranker Ranker
}

func (s PatternStrategy) Rank(_ context.Context, text string, vocabulary []string) ([]model.RankedBrand, float64, model.RankMethod) {
	ranked, conf := s.Ranker.ExtractRanked(text, vocabulary)
	return ranked, conf, model.RankMethodPattern
}

// Parser turns one raw answer into an immutable ExtractionResult.
// Pure with respect to I/O: any network-backed rank strategy must handle
// its own failures by falling back to pattern extraction.
type Parser struct {
	detector Detector
	strategy RankStrategy
}

// NewParser builds a parser with fuzzy detection on and pattern-based
// ranking.
func NewParser() Parser {
	d := NewDetector()
	return Parser{detector: d, strategy: PatternStrategy{Ranker: NewRanker(d)}}
}

// NewParserWith builds a parser with explicit detector settings and rank
// strategy.
func NewParserWith(d Detector, strategy RankStrategy) Parser {
	if strategy == nil {
		strategy = PatternStrategy{Ranker: NewRanker(d)}
	}
	return Parser{detector: d, strategy: strategy}
}

// Parse never fails: malformed or empty input yields a result with empty
// collections rather than an error.
func (p Parser) Parse(ctx context.Context, answerText string, brands model.BrandSet, intentID, provider, modelID string, ts time.Time) model.ExtractionResult {
	mine, competitors := p.detector.Detect(answerText, brands.Mine, brands.Competitors)
	ranked, confidence, method := p.strategy.Rank(ctx, answerText, brands.AllAliases())

	return model.ExtractionResult{
		IntentID:           intentID,
		Provider:           provider,
		Model:              modelID,
		Timestamp:          ts,
		AppearedMine:       len(mine) > 0,
		MyMentions:         mine,
		CompetitorMentions: competitors,
		Ranked:             ranked,
		RankMethod:         method,
		RankConfidence:     confidence,
	}
}
