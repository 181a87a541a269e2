package rerank

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawquery/internal/corpus"
)

type stubClient struct {
	resp string
	err  error
}

func (s *stubClient) Complete(ctx context.Context, system, user string) (string, error) {
	return s.resp, s.err
}

func candidates(n int) []corpus.Chunk {
	out := make([]corpus.Chunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, corpus.Chunk{
			ID:         fmt.Sprintf("c%02d", i),
			Anchor:     fmt.Sprintf("Article %d", i+1),
			Type:       corpus.ChunkArticle,
			Text:       "some provision text",
			FinalScore: 1.0 - float64(i)*0.01,
		})
	}
	return out
}

func TestRerank_PassthroughWhenSetFitsBudget(t *testing.T) {
	r := New(&stubClient{err: errors.New("must not be called")}, nil, nil)
	in := candidates(5)

	got := r.Rerank(context.Background(), "q", in, 10)

	assert.Equal(t, in, got)
	got[0].ID = "mutated"
	assert.Equal(t, "c00", in[0].ID, "input slice must not be shared")
}

func TestRerank_AppliesModelOrder(t *testing.T) {
	resp := `{"ranked": [{"id": "c03", "score": 0.95}, {"id": "c01", "score": 0.90}]}`
	r := New(&stubClient{resp: resp}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 3)

	require.Len(t, got, 3)
	assert.Equal(t, "c03", got[0].ID)
	assert.InDelta(t, 0.95, got[0].FinalScore, 1e-9)
	assert.Equal(t, "c01", got[1].ID)
	assert.Equal(t, "c00", got[2].ID, "unranked remainder follows in score order")
}

func TestRerank_ServiceErrorFallsBackToScoreSort(t *testing.T) {
	r := New(&stubClient{err: errors.New("timeout")}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 3)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"c00", "c01", "c02"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestRerank_MalformedJSONFallsBack(t *testing.T) {
	r := New(&stubClient{resp: "the best excerpt is c03"}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 3)

	require.Len(t, got, 3)
	assert.Equal(t, "c00", got[0].ID)
}

func TestRerank_UnknownAndDuplicateIDsAreSkipped(t *testing.T) {
	resp := `{"ranked": [
		{"id": "ghost", "score": 0.99},
		{"id": "c02", "score": 0.80},
		{"id": "c02", "score": 0.70}
	]}`
	r := New(&stubClient{resp: resp}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 2)

	require.Len(t, got, 2)
	assert.Equal(t, "c02", got[0].ID)
	assert.Equal(t, "c00", got[1].ID)
}

func TestRerank_AllInvalidIDsFallsBack(t *testing.T) {
	resp := `{"ranked": [{"id": "x", "score": 0.9}, {"id": "y", "score": 0.8}]}`
	r := New(&stubClient{resp: resp}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 3)

	require.Len(t, got, 3)
	assert.Equal(t, "c00", got[0].ID)
}

func TestRerank_TruncatedResponseSurvivesRepair(t *testing.T) {
	// A cut-off response is repairable to valid JSON.
	resp := `{"ranked": [{"id": "c04", "score": 0.9}`
	r := New(&stubClient{resp: resp}, nil, nil)

	got := r.Rerank(context.Background(), "q", candidates(6), 2)

	require.Len(t, got, 2)
	assert.Equal(t, "c04", got[0].ID)
}

func TestScoreSort_TiesBreakOnID(t *testing.T) {
	in := []corpus.Chunk{
		{ID: "b", FinalScore: 0.5},
		{ID: "a", FinalScore: 0.5},
		{ID: "c", FinalScore: 0.9},
	}

	got := scoreSort(in, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}
