package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fabfab/agentic-rag/rag"
)

func docs(contents ...string) []rag.Document {
	out := make([]rag.Document, len(contents))
	for i, c := range contents {
		out[i] = rag.Document{Content: c}
	}
	return out
}

func contents(in []rag.Document) []string {
	out := make([]string, len(in))
	for i, d := range in {
		out[i] = d.Content
	}
	return out
}

func TestNewRejectsSmallK(t *testing.T) {
	for _, k := range []float64{0, 0.5, -3} {
		_, err := New(k, 3)
		assert.Error(t, err, "k=%v", k)
	}

	f, err := New(1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopN, f.TopN())
	assert.Equal(t, 1.0, f.K())
}

func TestScoresFollowReciprocalRankFormula(t *testing.T) {
	f, err := New(60, 3)
	require.NoError(t, err)

	scores := f.Scores([]rag.RetrievalResult{
		{Documents: docs("X", "Y")},
		{Documents: docs("Y", "Z")},
	})

	require.Len(t, scores, 3)
	assert.Equal(t, "Y", scores[0].Document.Content)
	assert.InDelta(t, 1.0/62+1.0/61, scores[0].Score, 1e-12)
	assert.Equal(t, "X", scores[1].Document.Content)
	assert.InDelta(t, 1.0/61, scores[1].Score, 1e-12)
	assert.Equal(t, "Z", scores[2].Document.Content)
	assert.InDelta(t, 1.0/62, scores[2].Score, 1e-12)
}

func TestFuseKeepsTopThree(t *testing.T) {
	f, err := New(60, 3)
	require.NoError(t, err)

	fused := f.Fuse([]rag.RetrievalResult{
		{Documents: docs("A", "B", "C", "D")},
		{Documents: docs("B", "A", "E")},
		{Documents: docs("B", "F")},
	})

	// F (rank 2 once) outscores C (rank 3 once).
	assert.Equal(t, []string{"B", "A", "F"}, contents(fused))
}

func TestFuseBreaksTiesByFirstSeenOrder(t *testing.T) {
	f, err := New(1, 3)
	require.NoError(t, err)

	fused := f.Fuse([]rag.RetrievalResult{
		{Documents: docs("P")},
		{Documents: docs("Q")},
		{Documents: docs("R")},
		{Documents: docs("S")},
	})

	assert.Equal(t, []string{"P", "Q", "R"}, contents(fused))
}

func TestFuseDeduplicatesByContent(t *testing.T) {
	f, err := New(60, 3)
	require.NoError(t, err)

	fused := f.Fuse([]rag.RetrievalResult{
		{Documents: []rag.Document{{Content: "same", Source: "a.md"}}},
		{Documents: []rag.Document{{Content: "same", Source: "b.md"}}},
	})

	require.Len(t, fused, 1)
	assert.Equal(t, "a.md", fused[0].Source)
}

func TestFuseHandlesEmptyInput(t *testing.T) {
	f, err := New(60, 3)
	require.NoError(t, err)

	assert.Empty(t, f.Fuse(nil))
	assert.Empty(t, f.Fuse([]rag.RetrievalResult{{Query: "q"}, {Query: "r"}}))
}

func drawLists(rt *rapid.T) []rag.RetrievalResult {
	pool := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}
	n := rapid.IntRange(0, 6).Draw(rt, "lists")
	lists := make([]rag.RetrievalResult, n)
	for i := range lists {
		picked := rapid.SliceOfNDistinct(rapid.SampledFrom(pool), 0, len(pool), rapid.ID[string]).Draw(rt, fmt.Sprintf("list%d", i))
		lists[i] = rag.RetrievalResult{Query: fmt.Sprintf("q%d", i), Documents: docs(picked...)}
	}
	return lists
}

func TestFusePropertyDeterministicAndBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.Float64Range(1, 200).Draw(rt, "k")
		f, err := New(k, 3)
		require.NoError(rt, err)

		lists := drawLists(rt)
		first := f.Fuse(lists)
		second := f.Fuse(lists)

		assert.Equal(rt, first, second)
		assert.LessOrEqual(rt, len(first), 3)

		seen := make(map[string]bool)
		for _, d := range first {
			assert.False(rt, seen[d.Content], "duplicate %q", d.Content)
			seen[d.Content] = true
		}
	})
}

func TestScoresPropertyMatchesFormula(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.Float64Range(1, 200).Draw(rt, "k")
		f, err := New(k, 3)
		require.NoError(rt, err)

		lists := drawLists(rt)
		expected := make(map[string]float64)
		for _, list := range lists {
			for i, d := range list.Documents {
				expected[d.Content] += 1 / (float64(i+1) + k)
			}
		}

		scores := f.Scores(lists)
		require.Len(rt, scores, len(expected))
		for i, s := range scores {
			assert.InDelta(rt, expected[s.Document.Content], s.Score, 1e-9)
			if i > 0 {
				assert.GreaterOrEqual(rt, scores[i-1].Score, s.Score)
			}
		}
	})
}
