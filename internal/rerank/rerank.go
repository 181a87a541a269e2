// Package rerank reorders a candidate set by relevance to the question.
// The reasoning service is the primary path; any failure degrades to a
// deterministic score sort, so reranking is always a pure function.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"lawquery/internal/corpus"
	"lawquery/internal/llm"
	"lawquery/internal/metrics"
)

const (
	rerankWindow  = 50 // candidates shown to the model
	rerankMaxIDs  = 25 // ids the model may return
	excerptLength = 200
)

const rerankSystemPrompt = `You rank legal text excerpts by how directly they answer a question.
Respond with ONLY a JSON object: {"ranked": [{"id": "<chunk id>", "score": <0.0-1.0>}, ...]}.
Order entries best-first and return at most %d entries. Use only ids you were given.`

type rankedPayload struct {
	Ranked []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"ranked"`
}

// Reranker reorders candidates.
type Reranker struct {
	llm     llm.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(client llm.Client, logger *slog.Logger, m *metrics.Metrics) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{llm: client, logger: logger, metrics: m}
}

// Rerank returns the topK candidates, best first. The input slice is
// not mutated.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []corpus.Chunk, topK int) []corpus.Chunk {
	if len(candidates) <= topK {
		return append([]corpus.Chunk(nil), candidates...)
	}

	ranked, ok := r.rerankWithLLM(ctx, question, candidates, topK)
	if !ok {
		return scoreSort(candidates, topK)
	}
	return ranked
}

func (r *Reranker) rerankWithLLM(ctx context.Context, question string, candidates []corpus.Chunk, topK int) ([]corpus.Chunk, bool) {
	if r.llm == nil {
		return nil, false
	}

	window := scoreSort(candidates, rerankWindow)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nExcerpts:\n", question)
	for _, c := range window {
		fmt.Fprintf(&sb, "[%s] %s (%s): %s\n", c.ID, c.Anchor, string(c.Type), excerpt(c.Text, excerptLength))
	}

	resp, err := r.llm.Complete(ctx, fmt.Sprintf(rerankSystemPrompt, rerankMaxIDs), sb.String())
	if err != nil {
		r.logger.WarnContext(ctx, "rerank call failed, falling back to score sort", "error", err)
		r.metrics.Fallback("reranker", "llm_error")
		return nil, false
	}

	var payload rankedPayload
	if err := llm.DecodeObject(resp, &payload); err != nil {
		r.logger.WarnContext(ctx, "rerank returned malformed json, falling back to score sort", "error", err)
		r.metrics.Fallback("reranker", "malformed_json")
		return nil, false
	}

	byID := make(map[string]corpus.Chunk, len(window))
	for _, c := range window {
		byID[c.ID] = c
	}

	out := make([]corpus.Chunk, 0, topK)
	used := make(map[string]bool, topK)
	for i, entry := range payload.Ranked {
		if i >= rerankMaxIDs || len(out) >= topK {
			break
		}
		c, ok := byID[entry.ID]
		if !ok || used[entry.ID] {
			continue // ids outside the window are ignored, not fatal
		}
		c.FinalScore = entry.Score
		used[entry.ID] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		r.metrics.Fallback("reranker", "no_valid_ids")
		return nil, false
	}

	// Candidates the model skipped follow in original score order.
	for _, c := range window {
		if len(out) >= topK {
			break
		}
		if !used[c.ID] {
			used[c.ID] = true
			out = append(out, c)
		}
	}
	return out, true
}

// scoreSort is the deterministic fallback: final score descending, ties
// on id, truncated to k.
func scoreSort(candidates []corpus.Chunk, k int) []corpus.Chunk {
	out := append([]corpus.Chunk(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
