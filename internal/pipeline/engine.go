// Package pipeline drives one question through the bounded
// retrieve-verify-answer loop: plan, retrieve, guard, rerank, expand,
// then judge sufficiency up to a fixed number of iterations before
// composing the final grounded answer. Every external dependency has a
// deterministic fallback, so the public entry point always returns a
// result and never panics or errors.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"lawquery/internal/compose"
	"lawquery/internal/corpus"
	"lawquery/internal/expand"
	"lawquery/internal/guard"
	"lawquery/internal/judge"
	"lawquery/internal/metrics"
	"lawquery/internal/planner"
	"lawquery/internal/ratereg"
	"lawquery/internal/rerank"
	"lawquery/internal/retriever"
)

const (
	// Hard caps, enforced independently of judge output. A hostile or
	// broken judge cannot extend the loop.
	maxJudgeIterations = 2
	maxRetrievalPasses = 2 // total, counting the initial pass

	rerankTopK       = 30
	expansionMax     = 40
	finalEvidenceMax = 25

	auxTopKMin = 10
	auxTopKMax = 100

	// Score multiplier for chunks matching a judge-requested focus type.
	focusTypeBoost = 1.10
)

// Messages for terminal degraded outcomes.
const (
	apologyAnswer    = "I'm sorry - I found relevant legal material but couldn't put together a reliable answer this time. Please try rephrasing the question."
	noEvidenceAnswer = "I couldn't retrieve any legal material for this question, so I can't give a grounded answer."
	cancelledAnswer  = "The request was cancelled before an answer could be produced."
)

// AnswerResult is the terminal artifact for one question.
type AnswerResult struct {
	Answer           string
	Sources          []compose.Source
	ProcessingTimeMs int64
}

// Engine wires the pipeline components together. All collaborators are
// injected; the engine holds no mutable state across questions.
type Engine struct {
	planner   *planner.Extractor
	retriever *retriever.Hybrid
	guard     *guard.Guard
	reranker  *rerank.Reranker
	expander  *expand.Expander
	judge     *judge.Judge
	composer  compose.Composer
	rateReg   ratereg.Registry // optional
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Planner   *planner.Extractor
	Retriever *retriever.Hybrid
	Guard     *guard.Guard
	Reranker  *rerank.Reranker
	Expander  *expand.Expander
	Judge     *judge.Judge
	Composer  compose.Composer
	RateReg   ratereg.Registry
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		planner:   d.Planner,
		retriever: d.Retriever,
		guard:     d.Guard,
		reranker:  d.Reranker,
		expander:  d.Expander,
		judge:     d.Judge,
		composer:  d.Composer,
		rateReg:   d.RateReg,
		logger:    logger,
		metrics:   d.Metrics,
	}
}

// Answer processes one question to completion.
func (e *Engine) Answer(ctx context.Context, question string) *AnswerResult {
	return e.AnswerStream(ctx, question, nil)
}

// AnswerStream processes one question, pushing incremental events to
// the sink, and returns the same terminal result as Answer. The sink
// may be nil.
func (e *Engine) AnswerStream(ctx context.Context, question string, sink EventSink) *AnswerResult {
	start := time.Now()
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID)

	finish := func(outcome string, r *AnswerResult) *AnswerResult {
		r.ProcessingTimeMs = time.Since(start).Milliseconds()
		e.metrics.Outcome(outcome)
		logger.InfoContext(ctx, "question processed",
			"outcome", outcome,
			"sources", len(r.Sources),
			"elapsed_ms", r.ProcessingTimeMs,
		)
		return r
	}

	// Planning. Never fails; degraded plans come from the heuristic.
	emit(sink, EventStatus, "analyzing question")
	plan := e.stagePlan(ctx, question)
	if ctx.Err() != nil {
		return finish("cancelled", &AnswerResult{Answer: cancelledAnswer})
	}

	// Retrieving. A vector-path failure means no evidence at all.
	emit(sink, EventStatus, "searching the corpus")
	chunks, err := e.stageRetrieve(ctx, plan, question)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed, no evidence available", "error", err)
		return finish("no_evidence", &AnswerResult{Answer: noEvidenceAnswer})
	}
	if ctx.Err() != nil {
		return finish("cancelled", &AnswerResult{Answer: cancelledAnswer})
	}

	// DomainFiltering, Reranking, InitialExpansion.
	chunks = e.stageFilter(chunks)
	emit(sink, EventStatus, fmt.Sprintf("weighing %d candidate passages", len(chunks)))
	chunks = e.stageRerank(ctx, question, chunks)
	if ctx.Err() != nil {
		return finish("cancelled", &AnswerResult{Answer: cancelledAnswer})
	}
	chunks = e.stageExpand(ctx, chunks, plan)

	// SufficiencyLoop. Bounded by iteration count, not convergence.
	retrievalPasses := 1
	for i := 0; i < maxJudgeIterations; i++ {
		if ctx.Err() != nil {
			return finish("cancelled", &AnswerResult{Answer: cancelledAnswer})
		}
		emit(sink, EventStatus, "verifying the evidence is sufficient")
		verdict := e.stageJudge(ctx, question, chunks)
		if verdict.Sufficient {
			break
		}
		if len(verdict.Missing) > 0 {
			emit(sink, EventThinking, "still missing: "+joinMissing(verdict.Missing))
		}

		// Expansion is applied before additional retrieval when the
		// verdict requests both, and the domain guard re-runs because
		// structural neighbors may sit outside the domain.
		if verdict.Expansion.Enabled() {
			chunks = e.expander.ApplyConfig(ctx, chunks, verdict.Expansion, expansionMax)
			chunks = e.guard.Filter(chunks)
		}

		if len(verdict.AdditionalRequests) > 0 && retrievalPasses < maxRetrievalPasses {
			extra := e.stageAuxRetrieve(ctx, plan, verdict.AdditionalRequests[0])
			chunks = corpus.MergeByID(chunks, extra...)
			retrievalPasses++
		}
	}

	// FinalSelection.
	evidence := finalSelection(chunks)
	if len(evidence) == 0 {
		logger.WarnContext(ctx, "no in-domain evidence survived selection")
		return finish("no_evidence", &AnswerResult{Answer: noEvidenceAnswer})
	}
	if ctx.Err() != nil {
		return finish("cancelled", &AnswerResult{Answer: cancelledAnswer})
	}

	// Answering.
	emit(sink, EventStatus, "composing the answer")
	rateContext := e.stageRateLookup(ctx, plan, question)
	result, err := e.composer.Compose(ctx, question, evidence, rateContext, plan.Depth)
	if err != nil {
		logger.ErrorContext(ctx, "answer composition failed", "error", err)
		e.metrics.Fallback("composer", "compose_error")
		return finish("degraded", &AnswerResult{Answer: apologyAnswer})
	}

	emit(sink, EventContent, result.Answer)
	return finish("answered", &AnswerResult{
		Answer:  result.Answer,
		Sources: result.Sources,
	})
}

func (e *Engine) stagePlan(ctx context.Context, question string) corpus.RetrievalPlan {
	defer e.observeStage("planning")()
	return e.planner.Extract(ctx, question)
}

func (e *Engine) stageRetrieve(ctx context.Context, plan corpus.RetrievalPlan, question string) ([]corpus.Chunk, error) {
	defer e.observeStage("retrieving")()
	return e.retriever.Retrieve(ctx, plan, question)
}

func (e *Engine) stageFilter(chunks []corpus.Chunk) []corpus.Chunk {
	defer e.observeStage("domain_filtering")()
	return e.guard.Filter(chunks)
}

func (e *Engine) stageRerank(ctx context.Context, question string, chunks []corpus.Chunk) []corpus.Chunk {
	defer e.observeStage("reranking")()
	return e.reranker.Rerank(ctx, question, chunks, rerankTopK)
}

func (e *Engine) stageExpand(ctx context.Context, chunks []corpus.Chunk, plan corpus.RetrievalPlan) []corpus.Chunk {
	defer e.observeStage("initial_expansion")()
	return e.expander.Expand(ctx, chunks, plan.Intents, expansionMax)
}

func (e *Engine) stageJudge(ctx context.Context, question string, chunks []corpus.Chunk) judge.Verdict {
	defer e.observeStage("sufficiency")()
	return e.judge.Evaluate(ctx, question, chunks)
}

// stageAuxRetrieve runs one additional retrieval pass driven by a judge
// request: the request's query leads, padded with the first two original
// variants, and candidate counts scale with the requested top-k. A
// failure here is non-fatal - the loop continues with what it has.
func (e *Engine) stageAuxRetrieve(ctx context.Context, base corpus.RetrievalPlan, req judge.AdditionalRequest) []corpus.Chunk {
	defer e.observeStage("aux_retrieving")()

	variants := []string{req.Query}
	for i, v := range base.QueryVariants {
		if i >= 2 {
			break
		}
		variants = append(variants, v)
	}

	overrides := corpus.PlanOverrides{QueryVariants: variants}
	if len(req.DocTypePriority) > 0 {
		overrides.DocTypePriority = req.DocTypePriority
	}
	if req.TopK > 0 {
		topK := clampInt(req.TopK, auxTopKMin, auxTopKMax)
		cfg := base.Retrieval
		cfg.VectorTopK = topK
		cfg.KeywordTopK = topK
		overrides.Retrieval = &cfg
	}

	derived := base.WithOverrides(overrides)
	extra, err := e.retriever.Retrieve(ctx, derived, req.Query)
	if err != nil {
		e.logger.WarnContext(ctx, "additional retrieval pass failed", "error", err)
		e.metrics.Fallback("orchestrator", "aux_retrieval_error")
		return nil
	}
	return boostFocusTypes(e.guard.Filter(extra), req.FocusChunkTypes)
}

// boostFocusTypes nudges chunks of the structural types the judge asked
// to focus on ahead of the rest of an auxiliary pass, so the final
// score-ordered selection favors them.
func boostFocusTypes(chunks []corpus.Chunk, focus []corpus.ChunkType) []corpus.Chunk {
	if len(focus) == 0 {
		return chunks
	}
	focused := make(map[corpus.ChunkType]bool, len(focus))
	for _, t := range focus {
		focused[t] = true
	}
	for i := range chunks {
		if focused[chunks[i].Type] {
			chunks[i].FinalScore *= focusTypeBoost
		}
	}
	return chunks
}

func (e *Engine) stageRateLookup(ctx context.Context, plan corpus.RetrievalPlan, question string) string {
	if !plan.UseRateRegistry || e.rateReg == nil {
		return ""
	}
	defer e.observeStage("rate_lookup")()

	lookup, err := e.rateReg.Lookup(ctx, question)
	if err != nil {
		e.logger.WarnContext(ctx, "rate registry lookup failed, continuing without it", "error", err)
		e.metrics.Fallback("orchestrator", "rate_registry_error")
		return ""
	}
	if !lookup.Needed {
		return ""
	}
	return lookup.ContextText
}

func (e *Engine) observeStage(stage string) func() {
	start := time.Now()
	return func() { e.metrics.ObserveStage(stage, time.Since(start)) }
}

// finalSelection orders the merged evidence by score, guarantees every
// surviving chunk carries a citation anchor, and truncates to the
// composition budget. Chunks without a stored anchor get one
// synthesized from document metadata; a chunk that still cannot be
// cited is dropped rather than handed to the composer.
func finalSelection(chunks []corpus.Chunk) []corpus.Chunk {
	out := make([]corpus.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Anchor == "" {
			c.Anchor = synthesizeAnchor(c)
		}
		if c.Anchor == "" {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > finalEvidenceMax {
		out = out[:finalEvidenceMax]
	}
	return out
}

// synthesizeAnchor builds a citation from document metadata and the
// structural pointer when a chunk was stored without one.
func synthesizeAnchor(c corpus.Chunk) string {
	base := c.Doc.Title
	if base == "" && c.Doc.Number != "" {
		base = fmt.Sprintf("%s %s", string(c.Doc.Type), c.Doc.Number)
	}
	if base == "" {
		base = c.DocumentID
	}
	if p := c.Pointer.String(); p != "" && base != "" {
		return base + " " + p
	}
	return base
}

func joinMissing(missing []string) string {
	const maxShown = 3
	if len(missing) > maxShown {
		missing = missing[:maxShown]
	}
	out := ""
	for i, m := range missing {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
