package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawquery/internal/corpus"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTestCorpus(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, "code-1", corpus.DocumentMeta{
		Type: corpus.DocTypeCode, Number: "1", Title: "Revenue Code", Status: "in_force",
	}, true))
	require.NoError(t, s.UpsertDocument(ctx, "circ-9", corpus.DocumentMeta{
		Type: corpus.DocTypeCircular, Number: "9", Year: 2540, Title: "Circular 9", Status: "in_force",
	}, true))
	require.NoError(t, s.UpsertDocument(ctx, "old-2", corpus.DocumentMeta{
		Type: corpus.DocTypeCircular, Number: "2", Year: 2500, Title: "Repealed Circular", Status: "repealed",
	}, false))

	chunks := []corpus.Chunk{
		{ID: "art40", DocumentID: "code-1", Anchor: "Article 40", Type: corpus.ChunkArticle,
			Pointer: corpus.Pointer{Article: 40}, Text: "assessable income includes the following categories"},
		{ID: "a40c1", DocumentID: "code-1", Anchor: "Article 40 Clause 1", Type: corpus.ChunkClause,
			Pointer: corpus.Pointer{Article: 40, Clause: 1}, Text: "income from employment"},
		{ID: "a40c2", DocumentID: "code-1", Anchor: "Article 40 Clause 2", Type: corpus.ChunkClause,
			Pointer: corpus.Pointer{Article: 40, Clause: 2}, Text: "income from posts held or services rendered"},
		{ID: "note40", DocumentID: "code-1", Anchor: "Article 40 note", Type: corpus.ChunkAnnotation,
			Pointer: corpus.Pointer{Article: 40}, Text: "explanatory note on assessable income"},
		{ID: "circ", DocumentID: "circ-9", Anchor: "Circular 9", Type: corpus.ChunkSection,
			Text: "withholding tax on royalty payments"},
		{ID: "gone", DocumentID: "old-2", Anchor: "Repealed", Type: corpus.ChunkSection,
			Text: "withholding tax superseded guidance"},
	}
	embeddings := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.8, 0.2, 0},
		{0.5, 0.5, 0},
		{0, 1, 0},
		{1, 0, 0},
	}
	require.NoError(t, s.UpsertChunks(ctx, chunks, embeddings))
}

func TestSQLiteStore_VectorSearchRanksAndSkipsInactive(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)

	got, err := s.VectorSearch(context.Background(), []float32{1, 0, 0}, Filters{}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "art40", got[0].ID)
	assert.InDelta(t, 1.0, got[0].VectorScore, 1e-6)
	assert.Equal(t, corpus.DocTypeCode, got[0].Doc.Type)
	for _, c := range got {
		assert.NotEqual(t, "gone", c.ID, "inactive documents never surface")
	}
}

func TestSQLiteStore_KeywordSearchUsesFullText(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)

	got, err := s.KeywordSearch(context.Background(), []string{"withholding", "royalty"}, Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "only the active circular matches")
	assert.Equal(t, "circ", got[0].ID)
	assert.Greater(t, got[0].KeywordScore, 0.0)
	assert.LessOrEqual(t, got[0].KeywordScore, 1.0)
}

func TestSQLiteStore_KeywordSearchEmptyTermsReturnsNothing(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)

	got, err := s.KeywordSearch(context.Background(), nil, Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_FiltersRestrictSearches(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)

	got, err := s.VectorSearch(context.Background(), []float32{1, 0, 0}, Filters{
		DocTypes: []corpus.DocType{corpus.DocTypeCircular},
	}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "circ", got[0].ID)

	got, err = s.VectorSearch(context.Background(), []float32{1, 0, 0}, Filters{
		DocRefs: []corpus.DocRef{{Type: corpus.DocTypeCircular, Number: "9", Year: 2540}},
	}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "circ", got[0].ID)
}

func TestSQLiteStore_StructuralLookups(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)
	ctx := context.Background()

	parent, err := s.GetByPointer(ctx, "code-1", corpus.Pointer{Article: 40})
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "art40", parent.ID)

	missing, err := s.GetByPointer(ctx, "code-1", corpus.Pointer{Article: 99})
	require.NoError(t, err)
	assert.Nil(t, missing)

	siblings, err := s.GetSiblings(ctx, "code-1", corpus.Pointer{Article: 40, Clause: 2}, 1)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, "a40c1", siblings[0].ID)

	note, err := s.GetAnnotation(ctx, "code-1", corpus.Pointer{Article: 40})
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "note40", note.ID)
}

func TestSQLiteStore_UpsertChunkOverwrites(t *testing.T) {
	s := openTestStore(t)
	seedTestCorpus(t, s)
	ctx := context.Background()

	updated := corpus.Chunk{
		ID: "circ", DocumentID: "circ-9", Anchor: "Circular 9 (rev)", Type: corpus.ChunkSection,
		Text: "revised guidance on stamp duty",
	}
	require.NoError(t, s.UpsertChunks(ctx, []corpus.Chunk{updated}, [][]float32{{0, 0, 1}}))

	got, err := s.VectorSearch(ctx, []float32{0, 0, 1}, Filters{}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "circ", got[0].ID)
	assert.Equal(t, "Circular 9 (rev)", got[0].Anchor)
}

func TestSQLiteStore_EmbeddingCountMismatchRejected(t *testing.T) {
	s := openTestStore(t)

	err := s.UpsertChunks(context.Background(), []corpus.Chunk{{ID: "x"}}, [][]float32{{1}, {2}})
	assert.Error(t, err)
}
