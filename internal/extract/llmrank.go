package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// ConfidenceLLM is the band assigned to LLM-assisted rankings. Lower
// than any pattern band: the ordering is not auditable from the text.
const ConfidenceLLM = 0.3

// RankCompleter is the single LLM call the LLM rank strategy needs.
type RankCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMRankStrategy asks a model to order the brands named in an answer.
// Any failure (call error, timeout, unparseable reply, empty ranking)
// falls back to the wrapped pattern strategy; the two paths share no
// state. The LLM strategy always wraps the pattern strategy, never the
// reverse.
type LLMRankStrategy struct {
	Completer RankCompleter
	Fallback  PatternStrategy
	Timeout   time.Duration
}

const rankPrompt = `Below is an answer from an AI assistant, followed by a list of known brand names.
List the brands in the order the answer recommends or presents them.
Reply with a JSON array of brand names drawn only from the known list, best first, and nothing else.

Answer:
%ANSWER%

Known brands: %BRANDS%`

func (s LLMRankStrategy) Rank(ctx context.Context, text string, vocabulary []string) ([]model.RankedBrand, float64, model.RankMethod) {
	ranked, ok := s.tryLLM(ctx, text, vocabulary)
	if !ok {
		r, conf, method := s.Fallback.Rank(ctx, text, vocabulary)
		return r, conf, method
	}
	return ranked, ConfidenceLLM, model.RankMethodLLM
}

func (s LLMRankStrategy) tryLLM(ctx context.Context, text string, vocabulary []string) ([]model.RankedBrand, bool) {
	if s.Completer == nil || text == "" || len(vocabulary) == 0 {
		return nil, false
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := strings.NewReplacer(
		"%ANSWER%", text,
		"%BRANDS%", strings.Join(vocabulary, ", "),
	).Replace(rankPrompt)

	reply, err := s.Completer.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("llm ranking failed, using pattern fallback", zap.Error(err))
		return nil, false
	}

	names, err := parseRankReply(reply)
	if err != nil {
		zap.L().Warn("llm ranking reply unparseable, using pattern fallback", zap.Error(err))
		return nil, false
	}

	// Map replies onto the known vocabulary with the same
	// normalize+fuzzy rule as mention detection.
	threshold := s.Fallback.Ranker.Detector.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	var ranked []model.RankedBrand
	seen := make(map[string]bool)
	for _, name := range names {
		norm, ok := matchVocabulary(name, vocabulary, threshold)
		if !ok || seen[norm] {
			continue
		}
		seen[norm] = true
		ranked = append(ranked, model.RankedBrand{Normalized: norm, Rank: len(ranked), Confidence: ConfidenceLLM})
	}
	if len(ranked) == 0 {
		return nil, false
	}
	return ranked, true
}

// parseRankReply extracts a JSON string array from a model reply,
// tolerating surrounding prose and markdown code fences.
func parseRankReply(reply string) ([]string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, errNoJSONArray
	}
	var names []string
	if err := json.Unmarshal([]byte(reply[start:end+1]), &names); err != nil {
		return nil, err
	}
	return names, nil
}

var errNoJSONArray = jsonArrayError{}

type jsonArrayError struct{}

func (jsonArrayError) Error() string { return "no JSON array in reply" }

// matchVocabulary resolves a free-form brand name to a configured alias.
func matchVocabulary(name string, vocabulary []string, threshold float64) (string, bool) {
	norm := Normalize(name)
	if norm == "" {
		return "", false
	}
	for _, alias := range vocabulary {
		if Normalize(alias) == norm {
			return Normalize(alias), true
		}
	}
	for _, alias := range vocabulary {
		if Similarity(norm, Normalize(alias)) >= threshold {
			return Normalize(alias), true
		}
	}
	return "", false
}
