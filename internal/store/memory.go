package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"lawquery/internal/corpus"
)

// MemStore is an in-memory ChunkStore used by tests and local
// experiments. Searches are deterministic: ties break on chunk id.
type MemStore struct {
	mu         sync.RWMutex
	chunks     []corpus.Chunk
	embeddings map[string][]float32
	inactive   map[string]bool // document ids excluded from reads
}

func NewMemStore() *MemStore {
	return &MemStore{
		embeddings: make(map[string][]float32),
		inactive:   make(map[string]bool),
	}
}

// Add registers chunks, optionally with embeddings (parallel slice,
// nil entries allowed).
func (m *MemStore) Add(chunks []corpus.Chunk, embeddings [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range chunks {
		m.chunks = append(m.chunks, c)
		if len(embeddings) > i && embeddings[i] != nil {
			m.embeddings[c.ID] = embeddings[i]
		}
	}
}

// Deactivate hides a document from all reads.
func (m *MemStore) Deactivate(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inactive[documentID] = true
}

func (m *MemStore) VectorSearch(ctx context.Context, embedding []float32, f Filters, topK int) ([]corpus.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []corpus.Chunk
	for _, c := range m.chunks {
		if !m.visible(c, f) {
			continue
		}
		vec, ok := m.embeddings[c.ID]
		if !ok {
			continue
		}
		c.VectorScore = float64(cosineSimilarity(embedding, vec))
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VectorScore != out[j].VectorScore {
			return out[i].VectorScore > out[j].VectorScore
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemStore) KeywordSearch(ctx context.Context, terms []string, f Filters, topK int) ([]corpus.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []corpus.Chunk
	for _, c := range m.chunks {
		if !m.visible(c, f) {
			continue
		}
		hits := 0
		lower := strings.ToLower(c.Text)
		for _, t := range terms {
			if t != "" && strings.Contains(lower, strings.ToLower(t)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		c.KeywordScore = float64(hits) / float64(max(1, len(terms)))
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].KeywordScore != out[j].KeywordScore {
			return out[i].KeywordScore > out[j].KeywordScore
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemStore) GetByPointer(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.chunks {
		if m.inactive[c.DocumentID] {
			continue
		}
		if c.DocumentID == documentID && c.Pointer == p && c.Type != corpus.ChunkAnnotation {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetSiblings(ctx context.Context, documentID string, p corpus.Pointer, window int) ([]corpus.Chunk, error) {
	if p.Clause == 0 || window <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []corpus.Chunk
	for _, c := range m.chunks {
		if m.inactive[c.DocumentID] || c.DocumentID != documentID {
			continue
		}
		if c.Type != corpus.ChunkClause || c.Pointer.Article != p.Article {
			continue
		}
		d := c.Pointer.Clause - p.Clause
		if d == 0 || d < -window || d > window {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pointer.Clause < out[j].Pointer.Clause })
	return out, nil
}

func (m *MemStore) GetAnnotation(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.chunks {
		if m.inactive[c.DocumentID] || c.DocumentID != documentID {
			continue
		}
		if c.Type == corpus.ChunkAnnotation && c.Pointer.Article == p.Article {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemStore) visible(c corpus.Chunk, f Filters) bool {
	if m.inactive[c.DocumentID] {
		return false
	}
	if len(f.DocTypes) > 0 {
		ok := false
		for _, t := range f.DocTypes {
			if c.Doc.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.DocRefs) > 0 {
		ok := false
		for _, r := range f.DocRefs {
			if c.Doc.Type == r.Type && c.Doc.Number == r.Number && c.Doc.Year == r.Year {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
