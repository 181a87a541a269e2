// Package planner turns a free-text legal question into a structured
// retrieval plan. The reasoning service does the heavy lifting; a
// deterministic heuristic stands in whenever the service call or its
// JSON cannot be salvaged, so extraction never fails.
package planner

import (
	"context"
	"log/slog"
	"strings"

	"lawquery/internal/corpus"
	"lawquery/internal/llm"
	"lawquery/internal/metrics"
)

const planSystemPrompt = `You are a retrieval planner for a legal research system over a hierarchical
corpus of tax legislation: the revenue code, ministerial regulations, directorate
regulations, circulars, internal memos, rulings, court decisions, and commentary books.
Given a user question, respond with ONLY a JSON object, no prose, with this shape:
{
  "intent": ["rate_lookup"|"provision"|"definition"|"procedure"|"compliance"|"case_law"|"general", ...],
  "entities": {
    "doc_refs": [{"type": "<doc type>", "number": "<string>", "year": <int>}],
    "article": <int or 0>, "clause": <int or 0>, "sub_clause": "<letter or empty>",
    "topics": ["<topic keyword>", ...]
  },
  "doc_type_priority": ["code", "ministerial_regulation", "directorate_regulation", "circular", "internal_memo", "court_decision", "ruling", "book"],
  "doc_type_guards": [],
  "query_variants": ["<rephrasing 1>", "<rephrasing 2>"],
  "use_rate_registry": false,
  "answer_depth": "summary"|"detailed"|"comprehensive"
}
Rules: at most 4 query variants, never repeat the question verbatim; doc_type_guards
is a hard whitelist and stays empty unless the question names a document type
explicitly; set use_rate_registry true only for questions about tax rates or percentages.`

type planPayload struct {
	Intent   []string `json:"intent"`
	Entities struct {
		DocRefs []struct {
			Type   string `json:"type"`
			Number string `json:"number"`
			Year   int    `json:"year"`
		} `json:"doc_refs"`
		Article   int      `json:"article"`
		Clause    int      `json:"clause"`
		SubClause string   `json:"sub_clause"`
		Topics    []string `json:"topics"`
	} `json:"entities"`
	DocTypePriority []string `json:"doc_type_priority"`
	DocTypeGuards   []string `json:"doc_type_guards"`
	QueryVariants   []string `json:"query_variants"`
	UseRateRegistry bool     `json:"use_rate_registry"`
	AnswerDepth     string   `json:"answer_depth"`
}

// Extractor builds retrieval plans from questions.
type Extractor struct {
	llm      llm.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	defaults corpus.RetrievalConfig
}

func NewExtractor(client llm.Client, defaults corpus.RetrievalConfig, logger *slog.Logger, m *metrics.Metrics) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		llm:      client,
		logger:   logger,
		metrics:  m,
		defaults: defaults,
	}
}

// Extract resolves a plan for the question. External-service errors and
// unparseable responses degrade to the heuristic plan; the result is
// always usable.
func (e *Extractor) Extract(ctx context.Context, question string) corpus.RetrievalPlan {
	plan, ok := e.extractWithLLM(ctx, question)
	if !ok {
		plan = HeuristicPlan(question, e.defaults)
	}
	return e.enrich(question, plan)
}

func (e *Extractor) extractWithLLM(ctx context.Context, question string) (corpus.RetrievalPlan, bool) {
	if e.llm == nil {
		return corpus.RetrievalPlan{}, false
	}

	resp, err := e.llm.Complete(ctx, planSystemPrompt, question)
	if err != nil {
		e.logger.WarnContext(ctx, "plan extraction call failed, using heuristic plan", "error", err)
		e.metrics.Fallback("planner", "llm_error")
		return corpus.RetrievalPlan{}, false
	}

	var payload planPayload
	if err := llm.DecodeObject(resp, &payload); err != nil {
		e.logger.WarnContext(ctx, "plan extraction returned malformed json, using heuristic plan", "error", err)
		e.metrics.Fallback("planner", "malformed_json")
		return corpus.RetrievalPlan{}, false
	}

	return e.fromPayload(question, payload), true
}

// fromPayload validates and clamps every field coming off the wire
// before constructing the typed plan. Nothing from the external call is
// trusted raw.
func (e *Extractor) fromPayload(question string, p planPayload) corpus.RetrievalPlan {
	var plan corpus.RetrievalPlan

	for _, s := range p.Intent {
		if tag, ok := corpus.NormalizeIntent(s); ok {
			plan.Intents = append(plan.Intents, tag)
		}
	}

	for _, r := range p.Entities.DocRefs {
		t := corpus.NormalizeDocType(r.Type)
		if t == corpus.DocTypeUnknown || strings.TrimSpace(r.Number) == "" {
			continue
		}
		plan.Entities.DocRefs = append(plan.Entities.DocRefs, corpus.DocRef{
			Type:   t,
			Number: strings.TrimSpace(r.Number),
			Year:   r.Year,
		})
	}
	if p.Entities.Article > 0 {
		plan.Entities.Pointer.Article = p.Entities.Article
		if p.Entities.Clause > 0 {
			plan.Entities.Pointer.Clause = p.Entities.Clause
			sub := strings.ToLower(strings.TrimSpace(p.Entities.SubClause))
			if len(sub) == 1 && sub[0] >= 'a' && sub[0] <= 'z' {
				plan.Entities.Pointer.SubClause = sub
			}
		}
	}
	for _, t := range p.Entities.Topics {
		if t = strings.TrimSpace(t); t != "" {
			plan.Entities.Topics = append(plan.Entities.Topics, t)
		}
	}

	for _, s := range p.DocTypePriority {
		if t := corpus.NormalizeDocType(s); t != corpus.DocTypeUnknown {
			plan.DocTypePriority = append(plan.DocTypePriority, t)
		}
	}
	for _, s := range p.DocTypeGuards {
		if t := corpus.NormalizeDocType(s); t != corpus.DocTypeUnknown {
			plan.DocTypeGuards = append(plan.DocTypeGuards, t)
		}
	}

	plan.QueryVariants = p.QueryVariants
	plan.UseRateRegistry = p.UseRateRegistry
	switch corpus.AnswerDepth(p.AnswerDepth) {
	case corpus.DepthSummary, corpus.DepthDetailed, corpus.DepthComprehensive:
		plan.Depth = corpus.AnswerDepth(p.AnswerDepth)
	}
	plan.Retrieval = e.defaults
	return plan
}

// enrich applies the shared validation step to plans from either path:
// trigger-phrase priority reordering, rate-registry forcing, and answer
// depth derivation, then seals the plan.
func (e *Extractor) enrich(question string, plan corpus.RetrievalPlan) corpus.RetrievalPlan {
	lower := strings.ToLower(question)

	if containsAny(lower, rateVocabulary) {
		plan.UseRateRegistry = true
		if !hasIntent(plan.Intents, corpus.IntentRateLookup) {
			plan.Intents = append(plan.Intents, corpus.IntentRateLookup)
		}
	}

	if containsAny(lower, courtVocabulary) {
		plan.DocTypePriority = promoteDocType(plan.DocTypePriority, corpus.DocTypeCourt)
	}

	if plan.Depth == "" {
		plan.Depth = deriveDepth(plan)
	}

	return corpus.NewRetrievalPlan(question, plan)
}

// deriveDepth maps intent complexity and pointer resolution onto an
// answer depth: a single intent aimed at a resolved pointer needs only a
// summary, while multi-intent questions warrant a comprehensive answer.
func deriveDepth(plan corpus.RetrievalPlan) corpus.AnswerDepth {
	switch {
	case len(plan.Intents) >= 3:
		return corpus.DepthComprehensive
	case len(plan.Intents) <= 1 && plan.Entities.Pointer.Article != 0:
		return corpus.DepthSummary
	default:
		return corpus.DepthDetailed
	}
}

func promoteDocType(priority []corpus.DocType, t corpus.DocType) []corpus.DocType {
	if len(priority) == 0 {
		priority = append([]corpus.DocType(nil), corpus.KnownDocTypes...)
	}
	out := make([]corpus.DocType, 0, len(priority)+1)
	out = append(out, t)
	for _, d := range priority {
		if d != t {
			out = append(out, d)
		}
	}
	return out
}

func hasIntent(intents []corpus.IntentTag, tag corpus.IntentTag) bool {
	for _, t := range intents {
		if t == tag {
			return true
		}
	}
	return false
}

func containsAny(lower string, vocab []string) bool {
	for _, w := range vocab {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
