package judge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawquery/internal/corpus"
	"lawquery/internal/expand"
)

type stubClient struct {
	resp   string
	err    error
	called bool
}

func (s *stubClient) Complete(ctx context.Context, system, user string) (string, error) {
	s.called = true
	return s.resp, s.err
}

func strongSet(chunks, docs int) []corpus.Chunk {
	out := make([]corpus.Chunk, 0, chunks)
	for i := 0; i < chunks; i++ {
		out = append(out, corpus.Chunk{
			ID:         fmt.Sprintf("c%02d", i),
			DocumentID: fmt.Sprintf("d%d", i%docs),
			Type:       corpus.ChunkClause,
			FinalScore: 0.8,
		})
	}
	return out
}

func TestEvaluate_FastPathSkipsService(t *testing.T) {
	client := &stubClient{err: errors.New("must not be called")}
	j := New(client, nil, nil)

	v := j.Evaluate(context.Background(), "q", strongSet(16, 6))

	assert.True(t, v.Sufficient)
	assert.False(t, client.called)
}

func TestEvaluate_ArticleFastPath(t *testing.T) {
	set := strongSet(12, 4)
	for i := range set {
		set[i].FinalScore = 0.3 // too weak for the strong path
	}
	set[0].Type = corpus.ChunkArticle
	client := &stubClient{err: errors.New("must not be called")}
	j := New(client, nil, nil)

	v := j.Evaluate(context.Background(), "q", set)

	assert.True(t, v.Sufficient)
	assert.False(t, client.called)
}

func TestEvaluate_ServiceDownAssumesSufficient(t *testing.T) {
	j := New(&stubClient{err: errors.New("service down")}, nil, nil)

	v := j.Evaluate(context.Background(), "q", strongSet(3, 1))

	assert.True(t, v.Sufficient, "a dead judge must not stall the loop")
	assert.Empty(t, v.AdditionalRequests)
}

func TestEvaluate_MalformedVerdictAssumesSufficient(t *testing.T) {
	j := New(&stubClient{resp: "the evidence looks thin"}, nil, nil)

	v := j.Evaluate(context.Background(), "q", strongSet(3, 1))

	assert.True(t, v.Sufficient)
}

func TestEvaluate_InsufficientVerdictIsClamped(t *testing.T) {
	resp := `{
		"sufficient": false,
		"missing": ["withholding rate for royalties"],
		"expansion": {"expand_parent": true, "expand_siblings_window": 9, "expand_annotations": false},
		"additional_requests": [
			{"query": "royalty withholding", "doc_type_priority": ["circular", "nonsense"], "focus_chunk_types": ["clause", "poem"], "top_k": 30},
			{"query": "   ", "top_k": 10},
			{"query": "second valid", "top_k": 10},
			{"query": "third over cap", "top_k": 10}
		]
	}`
	j := New(&stubClient{resp: resp}, nil, nil)

	v := j.Evaluate(context.Background(), "q", strongSet(3, 1))

	require.False(t, v.Sufficient)
	assert.Equal(t, []string{"withholding rate for royalties"}, v.Missing)
	assert.Equal(t, expand.Config{Parent: true, SiblingsWindow: expand.MaxSiblingsWindow}, v.Expansion)

	require.Len(t, v.AdditionalRequests, MaxAdditionalRequests, "blank requests dropped, cap enforced")
	assert.Equal(t, "royalty withholding", v.AdditionalRequests[0].Query)
	assert.Equal(t, []corpus.DocType{corpus.DocTypeCircular}, v.AdditionalRequests[0].DocTypePriority)
	assert.Equal(t, []corpus.ChunkType{corpus.ChunkClause}, v.AdditionalRequests[0].FocusChunkTypes)
	assert.Equal(t, "second valid", v.AdditionalRequests[1].Query)
}

func TestEvaluate_TruncatedVerdictSurvivesRepair(t *testing.T) {
	resp := `{"sufficient": false, "missing": ["the computation basis"`
	j := New(&stubClient{resp: resp}, nil, nil)

	v := j.Evaluate(context.Background(), "q", strongSet(3, 1))

	assert.False(t, v.Sufficient)
	assert.Equal(t, []string{"the computation basis"}, v.Missing)
}

func TestFastPathSufficient_RequiresDocumentSpread(t *testing.T) {
	// 16 strong chunks inside a single document must not short-circuit.
	assert.False(t, fastPathSufficient(strongSet(16, 1)))
}
