package extract

import (
	"regexp"
	"sort"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// Confidence bands per extraction strategy. Preserved as-is for
// compatibility with previously persisted runs.
const (
	ConfidenceNumbered = 1.0
	ConfidenceBulleted = 0.8
	ConfidenceMention  = 0.5
	ConfidenceNone     = 0.0
)

var (
	numberedLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)
	bulletLine   = regexp.MustCompile(`(?m)^\s*[-•]\s+(.+)$`)
	headerLine   = regexp.MustCompile(`(?m)^\s*#+\s+(.+)$`)
)

// Ranker infers an ordered brand list from list-like text structure.
// Structural patterns are tried in priority order; the first pattern
// yielding at least one known brand wins. Deterministic: identical
// inputs always produce identical output.
type Ranker struct {
	Detector Detector
}

// NewRanker returns a Ranker sharing the detector's fuzzy settings for
// vocabulary matching.
func NewRanker(d Detector) Ranker {
	return Ranker{Detector: d}
}

// ExtractRanked returns the deduplicated brand ordering found in text
// together with the confidence of the strategy that produced it.
func (r Ranker) ExtractRanked(text string, vocabulary []string) ([]model.RankedBrand, float64) {
	if text == "" || len(vocabulary) == 0 {
		return nil, ConfidenceNone
	}

	if ranked := r.fromLines(text, numberedItems(text), vocabulary); len(ranked) > 0 {
		return withConfidence(ranked, ConfidenceNumbered), ConfidenceNumbered
	}
	if ranked := r.fromLines(text, bulletItems(text), vocabulary); len(ranked) > 0 {
		return withConfidence(ranked, ConfidenceBulleted), ConfidenceBulleted
	}
	if ranked := r.fromMentionOrder(text, vocabulary); len(ranked) > 0 {
		return withConfidence(ranked, ConfidenceMention), ConfidenceMention
	}
	return nil, ConfidenceNone
}

// listItem is one structural list entry with its position in the text.
type listItem struct {
	offset int
	body   string
}

func numberedItems(text string) []listItem {
	return matchItems(text, numberedLine)
}

// bulletItems merges dash/bullet lines and markdown headers, keeping
// document order.
func bulletItems(text string) []listItem {
	items := matchItems(text, bulletLine)
	items = append(items, matchItems(text, headerLine)...)
	sort.Slice(items, func(i, j int) bool { return items[i].offset < items[j].offset })
	return items
}

func matchItems(text string, re *regexp.Regexp) []listItem {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	items := make([]listItem, 0, len(locs))
	for _, loc := range locs {
		items = append(items, listItem{offset: loc[2], body: text[loc[2]:loc[3]]})
	}
	return items
}

// fromLines maps each list item to the first known brand it names,
// deduplicated by normalized name in first-seen order.
func (r Ranker) fromLines(text string, items []listItem, vocabulary []string) []model.RankedBrand {
	if len(items) == 0 {
		return nil
	}
	var ranked []model.RankedBrand
	seen := make(map[string]bool)
	for _, item := range items {
		norm, ok := r.brandInLine(item.body, vocabulary)
		if !ok || seen[norm] {
			continue
		}
		seen[norm] = true
		ranked = append(ranked, model.RankedBrand{Normalized: norm, Rank: len(ranked)})
	}
	return ranked
}

// brandInLine finds the earliest vocabulary brand named in one list
// line, using the same exact-then-fuzzy rule as mention detection.
func (r Ranker) brandInLine(line string, vocabulary []string) (string, bool) {
	bestOff := -1
	var best string
	for _, alias := range vocabulary {
		off, ok := firstExactOffset(line, alias)
		if ok && (bestOff < 0 || off < bestOff) {
			bestOff = off
			best = Normalize(alias)
		}
	}
	if bestOff >= 0 {
		return best, true
	}
	if !r.Detector.FuzzyEnabled {
		return "", false
	}

	threshold := r.Detector.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	words := wordSpans(line)
	for _, alias := range vocabulary {
		off, ok := firstFuzzyOffset(line, words, alias, threshold)
		if ok && (bestOff < 0 || off < bestOff) {
			bestOff = off
			best = Normalize(alias)
		}
	}
	if bestOff >= 0 {
		return best, true
	}
	return "", false
}

// fromMentionOrder falls back to order of first appearance in the text.
func (r Ranker) fromMentionOrder(text string, vocabulary []string) []model.RankedBrand {
	mentions := r.Detector.detectList(text, vocabulary)
	ranked := make([]model.RankedBrand, 0, len(mentions))
	for i, m := range mentions {
		ranked = append(ranked, model.RankedBrand{Normalized: m.Normalized, Rank: i})
	}
	return ranked
}

func withConfidence(ranked []model.RankedBrand, confidence float64) []model.RankedBrand {
	for i := range ranked {
		ranked[i].Confidence = confidence
	}
	return ranked
}
