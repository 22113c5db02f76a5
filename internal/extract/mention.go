package extract

import (
	"regexp"
	"sort"
	"sync"

	"github.com/sells-group/mindshare-cli/internal/model"
)

// DefaultFuzzyThreshold is the minimum normalized similarity for a fuzzy
// brand match. Kept at 0.90 for compatibility with historical runs.
const DefaultFuzzyThreshold = 0.90

// Detector finds brand alias occurrences in answer text.
type Detector struct {
	FuzzyEnabled   bool
	FuzzyThreshold float64
}

// NewDetector returns a Detector with fuzzy matching enabled at the
// default threshold.
func NewDetector() Detector {
	return Detector{FuzzyEnabled: true, FuzzyThreshold: DefaultFuzzyThreshold}
}

// Detect scans text for the two alias lists independently and returns
// detected mentions sorted by first-occurrence offset. There is no
// cross-dedup between the two lists; config validation guarantees the
// lists are disjoint under normalization.
func (d Detector) Detect(text string, myAliases, competitorAliases []string) (mine, competitors []model.Mention) {
	if text == "" {
		return nil, nil
	}
	return d.detectList(text, myAliases), d.detectList(text, competitorAliases)
}

func (d Detector) detectList(text string, aliases []string) []model.Mention {
	// Earliest mention per normalized name. Exact matches win over fuzzy
	// ones for the same name regardless of offset.
	byName := make(map[string]model.Mention)

	unmatched := make(map[string]bool)
	for _, alias := range aliases {
		norm := Normalize(alias)
		if norm == "" {
			continue
		}
		off, ok := firstExactOffset(text, alias)
		if !ok {
			unmatched[alias] = true
			continue
		}
		keep(byName, model.Mention{Alias: alias, Normalized: norm, Offset: off, Kind: model.MentionExact})
	}

	if d.FuzzyEnabled {
		threshold := d.FuzzyThreshold
		if threshold <= 0 {
			threshold = DefaultFuzzyThreshold
		}
		words := wordSpans(text)
		for _, alias := range aliases {
			if !unmatched[alias] {
				continue
			}
			norm := Normalize(alias)
			if prev, ok := byName[norm]; ok && prev.Kind == model.MentionExact {
				continue
			}
			off, ok := firstFuzzyOffset(text, words, alias, threshold)
			if !ok {
				continue
			}
			keep(byName, model.Mention{Alias: alias, Normalized: norm, Offset: off, Kind: model.MentionFuzzy})
		}
	}

	if len(byName) == 0 {
		return nil
	}
	out := make([]model.Mention, 0, len(byName))
	for _, m := range byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// keep records m unless an earlier (or exact, for a fuzzy candidate)
// mention of the same normalized name already exists.
func keep(byName map[string]model.Mention, m model.Mention) {
	prev, ok := byName[m.Normalized]
	if !ok {
		byName[m.Normalized] = m
		return
	}
	if prev.Kind == model.MentionExact && m.Kind == model.MentionFuzzy {
		return
	}
	if m.Kind == model.MentionExact && prev.Kind == model.MentionFuzzy {
		byName[m.Normalized] = m
		return
	}
	if m.Offset < prev.Offset {
		byName[m.Normalized] = m
	}
}

var (
	aliasPatternMu sync.Mutex
	aliasPatterns  = make(map[string]*regexp.Regexp)
)

// aliasPattern compiles (and caches) a case-insensitive pattern for the
// alias anchored on non-word-character boundaries, so "hub" inside
// "GitHub" does not match.
func aliasPattern(alias string) *regexp.Regexp {
	aliasPatternMu.Lock()
	defer aliasPatternMu.Unlock()
	if re, ok := aliasPatterns[alias]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\w])(` + regexp.QuoteMeta(alias) + `)(?:[^\w]|$)`)
	aliasPatterns[alias] = re
	return re
}

// firstExactOffset returns the byte offset of the first standalone
// occurrence of alias in text.
func firstExactOffset(text, alias string) (int, bool) {
	loc := aliasPattern(alias).FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, false
	}
	return loc[2], true // start of the capture group
}

// span is a half-open byte range of one whitespace-delimited word.
type span struct{ start, end int }

var wordRe = regexp.MustCompile(`\S+`)

func wordSpans(text string) []span {
	locs := wordRe.FindAllStringIndex(text, -1)
	out := make([]span, len(locs))
	for i, l := range locs {
		out[i] = span{start: l[0], end: l[1]}
	}
	return out
}

// firstFuzzyOffset slides a window of as many words as the alias has over
// the text and accepts the first window whose normalized similarity to
// the alias meets the threshold.
func firstFuzzyOffset(text string, words []span, alias string, threshold float64) (int, bool) {
	normAlias := Normalize(alias)
	width := len(wordRe.FindAllString(normAlias, -1))
	if width == 0 || len(words) < width {
		return 0, false
	}
	for i := 0; i+width <= len(words); i++ {
		candidate := text[words[i].start:words[i+width-1].end]
		if Similarity(Normalize(candidate), normAlias) >= threshold {
			return words[i].start, true
		}
	}
	return 0, false
}
