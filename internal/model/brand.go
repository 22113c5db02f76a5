package model

import "time"

// MentionKind distinguishes how a brand alias was matched in answer text.
type MentionKind string

const (
	MentionExact MentionKind = "exact"
	MentionFuzzy MentionKind = "fuzzy"
)

// RankMethod records which strategy produced a ranked brand list.
type RankMethod string

const (
	RankMethodPattern RankMethod = "pattern"
	RankMethodLLM     RankMethod = "llm"
)

// BrandSet holds the configured brand aliases, split into the tracked
// brand ("mine") and its competitors. Aliases are kept as configured;
// matching normalizes them on the fly. Invariant: no alias appears in
// both lists under normalization (enforced by config validation).
type BrandSet struct {
	Mine        []string `json:"mine" yaml:"mine" mapstructure:"mine"`
	Competitors []string `json:"competitors" yaml:"competitors" mapstructure:"competitors"`
}

// AllAliases returns the union of both alias lists, mine first.
func (b BrandSet) AllAliases() []string {
	out := make([]string, 0, len(b.Mine)+len(b.Competitors))
	out = append(out, b.Mine...)
	out = append(out, b.Competitors...)
	return out
}

// Mention is one detected brand occurrence in an answer. At most one
// Mention exists per normalized name per text, keeping the earliest offset.
type Mention struct {
	Alias      string      `json:"alias"`
	Normalized string      `json:"normalized"`
	Offset     int         `json:"offset"`
	Kind       MentionKind `json:"kind"`
}

// RankedBrand is one entry of an inferred brand ordering.
type RankedBrand struct {
	Normalized string  `json:"normalized"`
	Rank       int     `json:"rank"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the structured record derived from one raw answer.
// Built once by the parser and never mutated afterwards.
type ExtractionResult struct {
	IntentID           string        `json:"intent_id"`
	Provider           string        `json:"provider"`
	Model              string        `json:"model"`
	Timestamp          time.Time     `json:"timestamp"`
	AppearedMine       bool          `json:"appeared_mine"`
	MyMentions         []Mention     `json:"my_mentions"`
	CompetitorMentions []Mention     `json:"competitor_mentions"`
	Ranked             []RankedBrand `json:"ranked"`
	RankMethod         RankMethod    `json:"rank_method"`
	RankConfidence     float64       `json:"rank_confidence"`
}
