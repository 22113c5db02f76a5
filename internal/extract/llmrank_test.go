package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mindshare-cli/internal/model"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newLLMStrategy(c RankCompleter) LLMRankStrategy {
	return LLMRankStrategy{
		Completer: c,
		Fallback:  PatternStrategy{Ranker: NewRanker(NewDetector())},
	}
}

func TestLLMRank_Success(t *testing.T) {
	s := newLLMStrategy(&fakeCompleter{reply: `["Instantly", "Warmly"]`})

	ranked, conf, method := s.Rank(context.Background(), "whatever the model said", outreachVocab)
	require.Len(t, ranked, 2)
	assert.Equal(t, "instantly", ranked[0].Normalized)
	assert.Equal(t, "warmly", ranked[1].Normalized)
	assert.Equal(t, ConfidenceLLM, conf)
	assert.Equal(t, model.RankMethodLLM, method)
}

func TestLLMRank_CodeFencedReply(t *testing.T) {
	s := newLLMStrategy(&fakeCompleter{reply: "Here you go:\n```json\n[\"Lemwarm\"]\n```"})

	ranked, _, method := s.Rank(context.Background(), "some answer", outreachVocab)
	require.Len(t, ranked, 1)
	assert.Equal(t, "lemwarm", ranked[0].Normalized)
	assert.Equal(t, model.RankMethodLLM, method)
}

func TestLLMRank_CallErrorFallsBack(t *testing.T) {
	c := &fakeCompleter{err: errors.New("rate limited")}
	s := newLLMStrategy(c)

	ranked, conf, method := s.Rank(context.Background(), "1. Warmly\n2. Instantly", outreachVocab)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, model.RankMethodPattern, method)
	assert.Equal(t, ConfidenceNumbered, conf)
	require.Len(t, ranked, 2)
	assert.Equal(t, "warmly", ranked[0].Normalized)
}

func TestLLMRank_UnparseableReplyFallsBack(t *testing.T) {
	s := newLLMStrategy(&fakeCompleter{reply: "I cannot rank these brands."})

	_, _, method := s.Rank(context.Background(), "1. Lemwarm", outreachVocab)
	assert.Equal(t, model.RankMethodPattern, method)
}

func TestLLMRank_UnknownBrandsDropped(t *testing.T) {
	s := newLLMStrategy(&fakeCompleter{reply: `["Mailchimp", "Warmly"]`})

	ranked, _, method := s.Rank(context.Background(), "some answer", outreachVocab)
	assert.Equal(t, model.RankMethodLLM, method)
	require.Len(t, ranked, 1)
	assert.Equal(t, "warmly", ranked[0].Normalized)
}

func TestLLMRank_AllUnknownFallsBack(t *testing.T) {
	s := newLLMStrategy(&fakeCompleter{reply: `["Mailchimp", "Hunter"]`})

	_, _, method := s.Rank(context.Background(), "plain answer mentioning Warmly", outreachVocab)
	assert.Equal(t, model.RankMethodPattern, method)
}

func TestLLMRank_NilCompleterFallsBack(t *testing.T) {
	s := newLLMStrategy(nil)

	_, conf, method := s.Rank(context.Background(), "1. Instantly", outreachVocab)
	assert.Equal(t, model.RankMethodPattern, method)
	assert.Equal(t, ConfidenceNumbered, conf)
}
