// Package retriever executes the hybrid retrieval pass: semantic and
// lexical search fused into one ranking, boosted by legal authority and
// plan priority, then diversified across documents.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"lawquery/internal/corpus"
	"lawquery/internal/embed"
	"lawquery/internal/metrics"
	"lawquery/internal/store"
)

const (
	vectorWeight  = 0.65
	keywordWeight = 0.35

	// Two-pass diversity selection bounds.
	diversityFloor = 20
	diversityCap   = 200

	maxEmbeddedVariants = 3
	maxKeywordVariants  = 3
)

// Hybrid retrieves candidate chunks for a plan.
type Hybrid struct {
	store    store.ChunkStore
	embedder embed.Embedder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHybrid(s store.ChunkStore, e embed.Embedder, logger *slog.Logger, m *metrics.Metrics) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hybrid{
		store:    s,
		embedder: e,
		logger:   logger,
		metrics:  m,
	}
}

// Retrieve runs both search paths and fuses the results. A vector-path
// failure is fatal (no retrieval is possible without it); a keyword-path
// failure degrades to vector-only.
func (h *Hybrid) Retrieve(ctx context.Context, plan corpus.RetrievalPlan, question string) ([]corpus.Chunk, error) {
	filters := store.Filters{
		DocTypes: plan.DocTypeGuards,
		DocRefs:  plan.Entities.DocRefs,
	}

	queryVec, err := h.embedQueries(ctx, plan, question)
	if err != nil {
		return nil, fmt.Errorf("embed query variants: %w", err)
	}

	vectorHits, err := h.store.VectorSearch(ctx, queryVec, filters, plan.Retrieval.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	keywordHits, err := h.store.KeywordSearch(ctx, buildKeywordTerms(plan), filters, plan.Retrieval.KeywordTopK)
	if err != nil {
		h.logger.WarnContext(ctx, "keyword search failed, degrading to vector-only", "error", err)
		h.metrics.Fallback("retriever", "keyword_error")
		keywordHits = nil
	}

	fused := fuse(vectorHits, keywordHits, plan)
	selected := diversify(fused, plan.Retrieval)

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].FinalScore > selected[j].FinalScore })
	if len(selected) > plan.Retrieval.VectorTopK {
		selected = selected[:plan.Retrieval.VectorTopK]
	}
	h.metrics.ObserveCandidates(len(selected))
	return selected, nil
}

// embedQueries embeds the question and up to three other variants
// concurrently and averages the vectors. Completion order does not
// matter: each goroutine writes its own slot.
func (h *Hybrid) embedQueries(ctx context.Context, plan corpus.RetrievalPlan, question string) ([]float32, error) {
	texts := []string{question}
	for _, v := range plan.QueryVariants {
		if len(texts) > maxEmbeddedVariants {
			break
		}
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(question)) {
			continue
		}
		texts = append(texts, v)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			vecs, err := h.embedder.Embed(gctx, []string{text})
			if err != nil {
				return err
			}
			if len(vecs) != 1 {
				return fmt.Errorf("expected 1 embedding, got %d", len(vecs))
			}
			vectors[i] = vecs[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	avg := embed.Average(vectors)
	if avg == nil {
		return nil, fmt.Errorf("no usable embeddings for %d query variants", len(texts))
	}
	return avg, nil
}

// buildKeywordTerms assembles the lexical query: long alphabetic tokens
// from up to three variants, plan topics, and an explicit clause term
// when the plan resolved one.
func buildKeywordTerms(plan corpus.RetrievalPlan) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	variants := plan.QueryVariants
	if len(variants) > maxKeywordVariants {
		variants = variants[:maxKeywordVariants]
	}
	for _, v := range variants {
		for _, tok := range strings.Fields(v) {
			tok = strings.TrimFunc(tok, func(r rune) bool { return !unicode.IsLetter(r) })
			if len(tok) > 3 && isAlphabetic(tok) {
				add(tok)
			}
		}
	}
	for _, topic := range plan.Entities.Topics {
		add(topic)
	}
	if plan.Entities.Pointer.Clause != 0 {
		add("clause " + strconv.Itoa(plan.Entities.Pointer.Clause))
	}
	return terms
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// fuse merges both result lists by chunk id and computes final scores.
// The vector result wins on conflict; only its missing keyword score is
// backfilled from the lexical hit.
func fuse(vectorHits, keywordHits []corpus.Chunk, plan corpus.RetrievalPlan) []corpus.Chunk {
	merged := make([]corpus.Chunk, 0, len(vectorHits)+len(keywordHits))
	index := make(map[string]int, len(vectorHits))

	for _, c := range vectorHits {
		index[c.ID] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range keywordHits {
		if i, ok := index[c.ID]; ok {
			if merged[i].KeywordScore == 0 {
				merged[i].KeywordScore = c.KeywordScore
			}
			continue
		}
		index[c.ID] = len(merged)
		merged = append(merged, c)
	}

	for i := range merged {
		merged[i].FinalScore = fusedScore(merged[i], plan)
	}
	return merged
}

func fusedScore(c corpus.Chunk, plan corpus.RetrievalPlan) float64 {
	score := vectorWeight*c.VectorScore + keywordWeight*c.KeywordScore
	score *= c.Doc.Type.AuthorityBoost()
	score *= priorityBoost(plan, c.Doc.Type)
	score *= c.Type.StructureBoost()
	return score
}

// priorityBoost favors document types the plan ranks early; the boost
// falls off linearly with rank position.
func priorityBoost(plan corpus.RetrievalPlan, t corpus.DocType) float64 {
	n := len(plan.DocTypePriority)
	if n == 0 {
		return 1.0
	}
	rank := plan.PriorityRank(t)
	if rank >= n {
		return 1.0
	}
	return 1.0 + 0.08*float64(n-rank)/float64(n)
}

// diversify applies the two-pass greedy selection: the first pass admits
// highest-score-first under the per-document cap until both the minimum
// distinct-document count and the admission floor are met; the second
// pass fills remaining capacity, still under the cap.
func diversify(chunks []corpus.Chunk, cfg corpus.RetrievalConfig) []corpus.Chunk {
	ordered := append([]corpus.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FinalScore > ordered[j].FinalScore })

	perDoc := make(map[string]int)
	admitted := make([]corpus.Chunk, 0, min(len(ordered), diversityCap))
	taken := make(map[string]bool)

	for _, c := range ordered {
		if len(perDoc) >= cfg.MinDistinctDocuments && len(admitted) >= diversityFloor {
			break
		}
		if perDoc[c.DocumentID] >= cfg.MaxChunksPerDocument {
			continue
		}
		perDoc[c.DocumentID]++
		taken[c.ID] = true
		admitted = append(admitted, c)
	}

	for _, c := range ordered {
		if len(admitted) >= diversityCap {
			break
		}
		if taken[c.ID] || perDoc[c.DocumentID] >= cfg.MaxChunksPerDocument {
			continue
		}
		perDoc[c.DocumentID]++
		taken[c.ID] = true
		admitted = append(admitted, c)
	}
	return admitted
}
