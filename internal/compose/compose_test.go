package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawquery/internal/corpus"
)

type stubClient struct {
	resp    string
	err     error
	gotUser string
}

func (s *stubClient) Complete(ctx context.Context, system, user string) (string, error) {
	s.gotUser = user
	return s.resp, s.err
}

func evidence() []corpus.Chunk {
	return []corpus.Chunk{
		{ID: "a", DocumentID: "d1", Anchor: "Article 40", Type: corpus.ChunkArticle,
			Text: "assessable income includes employment income",
			Doc:  corpus.DocumentMeta{Type: corpus.DocTypeCode, Title: "Revenue Code"}},
		{ID: "b", DocumentID: "d2", Anchor: "Circular 9", Type: corpus.ChunkSection,
			Text: "withholding applies at source",
			Doc:  corpus.DocumentMeta{Type: corpus.DocTypeCircular, Title: "Circular 9"}},
	}
}

func TestCompose_LabelsEvidenceInOrder(t *testing.T) {
	client := &stubClient{resp: "Employment income is assessable (S1) and withheld at source (S2)."}
	c := NewLLMComposer(client, nil)

	got, err := c.Compose(context.Background(), "q", evidence(), "", corpus.DepthDetailed)
	require.NoError(t, err)

	require.Len(t, got.Sources, 2)
	assert.Equal(t, "S1", got.Sources[0].SID)
	assert.Equal(t, "a", got.Sources[0].ChunkID)
	assert.Equal(t, "S2", got.Sources[1].SID)
	assert.Contains(t, client.gotUser, "[S1] Revenue Code | Article 40")
	assert.Contains(t, client.gotUser, "[S2] Circular 9 | Circular 9")
}

func TestCompose_RateContextIsIncluded(t *testing.T) {
	client := &stubClient{resp: "ok"}
	c := NewLLMComposer(client, nil)

	_, err := c.Compose(context.Background(), "q", evidence(), "standard rate: 7%", corpus.DepthSummary)
	require.NoError(t, err)
	assert.Contains(t, client.gotUser, "standard rate: 7%")
	assert.Contains(t, client.gotUser, "at most three sentences")
}

func TestCompose_PropagatesServiceError(t *testing.T) {
	c := NewLLMComposer(&stubClient{err: errors.New("overloaded")}, nil)

	_, err := c.Compose(context.Background(), "q", evidence(), "", corpus.DepthDetailed)
	assert.Error(t, err)
}

func TestCompose_EmptyAnswerIsAnError(t *testing.T) {
	c := NewLLMComposer(&stubClient{resp: "   \n"}, nil)

	_, err := c.Compose(context.Background(), "q", evidence(), "", corpus.DepthDetailed)
	assert.Error(t, err)
}

func TestCompose_NoEvidenceIsAnError(t *testing.T) {
	c := NewLLMComposer(&stubClient{resp: "ok"}, nil)

	_, err := c.Compose(context.Background(), "q", nil, "", corpus.DepthDetailed)
	assert.Error(t, err)
}

func TestBuildSources_ClipsExcerpts(t *testing.T) {
	long := corpus.Chunk{ID: "x", Anchor: "A", Text: strings.Repeat("word ", 100)}

	sources := BuildSources([]corpus.Chunk{long})
	require.Len(t, sources, 1)
	assert.LessOrEqual(t, len(sources[0].Excerpt), sourceExcerptLength+3)
	assert.True(t, strings.HasSuffix(sources[0].Excerpt, "..."))
}
