// Package judge decides whether the current evidence set can answer the
// question. A cheap heuristic short-circuits obviously strong sets; the
// reasoning service handles the rest. When the service is unavailable
// the verdict defaults to sufficient: the loop must terminate even with
// a dead judge, trading recall for a termination guarantee.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lawquery/internal/corpus"
	"lawquery/internal/expand"
	"lawquery/internal/llm"
	"lawquery/internal/metrics"
)

// MaxAdditionalRequests caps how many follow-up retrievals one verdict
// may ask for, enforced here regardless of what the service returns.
const MaxAdditionalRequests = 2

// AdditionalRequest asks for one more retrieval pass with its own focus.
type AdditionalRequest struct {
	Query           string
	DocTypePriority []corpus.DocType
	FocusChunkTypes []corpus.ChunkType
	TopK            int
}

// Verdict is the judge's structured output for one loop iteration.
type Verdict struct {
	Sufficient         bool
	Missing            []string
	Expansion          expand.Config
	AdditionalRequests []AdditionalRequest
}

const (
	fastPathStrongCount  = 15
	fastPathStrongScore  = 0.75
	fastPathStrongDocs   = 5
	fastPathArticleCount = 10
	fastPathArticleDocs  = 3
	maxSummarizedChunks  = 25
	summaryExcerptLength = 150
)

const judgeSystemPrompt = `You judge whether a set of legal text excerpts is sufficient evidence to
answer a question. Respond with ONLY a JSON object:
{
  "sufficient": true|false,
  "missing": ["<what is missing>", ...],
  "expansion": {"expand_parent": false, "expand_siblings_window": 0, "expand_annotations": false},
  "additional_requests": [
    {"query": "<search query>", "doc_type_priority": ["<doc type>", ...], "focus_chunk_types": ["article"|"clause"|...], "top_k": <int>}
  ]
}
Rules: expand_siblings_window is 0, 1, or 2; at most 2 additional_requests; ask for
expansion when the evidence is fragmentary (cut-off clauses, missing parent articles)
and for additional retrieval when a whole aspect of the question is uncovered.`

type verdictPayload struct {
	Sufficient bool     `json:"sufficient"`
	Missing    []string `json:"missing"`
	Expansion  struct {
		ExpandParent         bool `json:"expand_parent"`
		ExpandSiblingsWindow int  `json:"expand_siblings_window"`
		ExpandAnnotations    bool `json:"expand_annotations"`
	} `json:"expansion"`
	AdditionalRequests []struct {
		Query           string   `json:"query"`
		DocTypePriority []string `json:"doc_type_priority"`
		FocusChunkTypes []string `json:"focus_chunk_types"`
		TopK            int      `json:"top_k"`
	} `json:"additional_requests"`
}

// Judge evaluates evidence sufficiency.
type Judge struct {
	llm     llm.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(client llm.Client, logger *slog.Logger, m *metrics.Metrics) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{llm: client, logger: logger, metrics: m}
}

// Evaluate returns a verdict for the current evidence set. It never
// fails: service or parse errors yield a sufficient verdict.
func (j *Judge) Evaluate(ctx context.Context, question string, chunks []corpus.Chunk) Verdict {
	if fastPathSufficient(chunks) {
		return Verdict{Sufficient: true}
	}
	return j.evaluateWithLLM(ctx, question, chunks)
}

// fastPathSufficient short-circuits sets that are clearly adequate:
// either many strongly scored chunks across many documents, or a
// moderate set that includes article-level evidence with decent spread.
func fastPathSufficient(chunks []corpus.Chunk) bool {
	strong := 0
	strongDocs := make(map[string]bool)
	hasArticle := false
	for _, c := range chunks {
		if c.FinalScore > fastPathStrongScore {
			strong++
			strongDocs[c.DocumentID] = true
		}
		if c.Type == corpus.ChunkArticle {
			hasArticle = true
		}
	}
	if strong >= fastPathStrongCount && len(strongDocs) >= fastPathStrongDocs {
		return true
	}
	if len(chunks) >= fastPathArticleCount && hasArticle &&
		corpus.DistinctDocuments(chunks) >= fastPathArticleDocs {
		return true
	}
	return false
}

func (j *Judge) evaluateWithLLM(ctx context.Context, question string, chunks []corpus.Chunk) Verdict {
	if j.llm == nil {
		j.metrics.Fallback("judge", "no_client")
		return Verdict{Sufficient: true}
	}

	resp, err := j.llm.Complete(ctx, judgeSystemPrompt, j.buildPrompt(question, chunks))
	if err != nil {
		j.logger.WarnContext(ctx, "sufficiency call failed, assuming sufficient", "error", err)
		j.metrics.Fallback("judge", "llm_error")
		return Verdict{Sufficient: true}
	}

	var payload verdictPayload
	if err := llm.DecodeObject(resp, &payload); err != nil {
		j.logger.WarnContext(ctx, "sufficiency verdict malformed, assuming sufficient", "error", err)
		j.metrics.Fallback("judge", "malformed_json")
		return Verdict{Sufficient: true}
	}
	return clampVerdict(payload)
}

func (j *Judge) buildPrompt(question string, chunks []corpus.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nEvidence (%d chunks):\n", question, len(chunks))
	for i, c := range chunks {
		if i >= maxSummarizedChunks {
			break
		}
		fmt.Fprintf(&sb, "[%s] %s %s | %s (%s): %s\n",
			c.ID, string(c.Doc.Type), c.Doc.Number, c.Anchor, string(c.Type),
			excerpt(c.Text, summaryExcerptLength))
	}
	return sb.String()
}

// clampVerdict enforces the boundary limits on everything the service
// returned: the request list cap, the sibling window cap, and known
// enum values only.
func clampVerdict(p verdictPayload) Verdict {
	v := Verdict{
		Sufficient: p.Sufficient,
		Missing:    p.Missing,
		Expansion: expand.Config{
			Parent:         p.Expansion.ExpandParent,
			SiblingsWindow: p.Expansion.ExpandSiblingsWindow,
			Annotations:    p.Expansion.ExpandAnnotations,
		}.Clamped(),
	}

	for _, r := range p.AdditionalRequests {
		if len(v.AdditionalRequests) >= MaxAdditionalRequests {
			break
		}
		query := strings.TrimSpace(r.Query)
		if query == "" {
			continue
		}
		req := AdditionalRequest{Query: query, TopK: r.TopK}
		for _, s := range r.DocTypePriority {
			if t := corpus.NormalizeDocType(s); t != corpus.DocTypeUnknown {
				req.DocTypePriority = append(req.DocTypePriority, t)
			}
		}
		for _, s := range r.FocusChunkTypes {
			switch t := corpus.ChunkType(s); t {
			case corpus.ChunkArticle, corpus.ChunkClause, corpus.ChunkSubClause,
				corpus.ChunkAnnotation, corpus.ChunkTable, corpus.ChunkPreamble, corpus.ChunkSection:
				req.FocusChunkTypes = append(req.FocusChunkTypes, t)
			}
		}
		v.AdditionalRequests = append(v.AdditionalRequests, req)
	}
	return v
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
