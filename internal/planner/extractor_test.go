package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"lawquery/internal/corpus"
)

// stubClient returns a fixed response or error for every call.
type stubClient struct {
	resp string
	err  error
}

func (s *stubClient) Complete(ctx context.Context, system, user string) (string, error) {
	return s.resp, s.err
}

func defaults() corpus.RetrievalConfig { return corpus.DefaultRetrievalConfig() }

func TestExtract_LLMErrorFallsBackToHeuristic(t *testing.T) {
	ex := NewExtractor(&stubClient{err: errors.New("service down")}, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "What does Article 65 provide about depreciation?")

	assert.Contains(t, plan.Intents, corpus.IntentProvision)
	assert.Equal(t, 65, plan.Entities.Pointer.Article)
	assert.Contains(t, plan.Entities.Topics, "depreciation")
	assert.Equal(t, "What does Article 65 provide about depreciation?", plan.QueryVariants[0])
}

func TestExtract_MalformedResponseFallsBackToHeuristic(t *testing.T) {
	ex := NewExtractor(&stubClient{resp: "I cannot answer that."}, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "How do I register for VAT?")

	assert.Contains(t, plan.Intents, corpus.IntentProcedure)
	assert.Contains(t, plan.Entities.Topics, "vat")
}

func TestExtract_ValidPayloadIsClamped(t *testing.T) {
	resp := `{
		"intent": ["provision", "made_up_intent"],
		"entities": {
			"doc_refs": [
				{"type": "circular", "number": "12", "year": 2540},
				{"type": "treaty", "number": "9", "year": 2541},
				{"type": "ruling", "number": "", "year": 2542}
			],
			"article": 40, "clause": 2, "sub_clause": "B!",
			"topics": ["  withholding  ", ""]
		},
		"doc_type_priority": ["circular", "nonsense", "code"],
		"doc_type_guards": ["gibberish"],
		"query_variants": ["withholding on dividends"],
		"use_rate_registry": false,
		"answer_depth": "verbose"
	}`
	ex := NewExtractor(&stubClient{resp: resp}, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "withholding tax on dividends under article 40?")

	assert.Equal(t, []corpus.IntentTag{corpus.IntentProvision}, plan.Intents)
	assert.Equal(t, []corpus.DocRef{{Type: corpus.DocTypeCircular, Number: "12", Year: 2540}}, plan.Entities.DocRefs)
	assert.Equal(t, 40, plan.Entities.Pointer.Article)
	assert.Equal(t, 2, plan.Entities.Pointer.Clause)
	assert.Empty(t, plan.Entities.Pointer.SubClause, "multi-char sub-clause must be dropped")
	assert.Equal(t, []corpus.DocType{corpus.DocTypeCircular, corpus.DocTypeCode}, plan.DocTypePriority)
	assert.Empty(t, plan.DocTypeGuards, "unknown guard types must be dropped")
	assert.Equal(t, corpus.DepthSummary, plan.Depth, "invalid depth falls back to derivation")
}

func TestExtract_RateVocabularyForcesRegistry(t *testing.T) {
	resp := `{"intent": ["general"], "use_rate_registry": false, "answer_depth": "detailed"}`
	ex := NewExtractor(&stubClient{resp: resp}, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "What is the current VAT rate?")

	assert.True(t, plan.UseRateRegistry)
	assert.Contains(t, plan.Intents, corpus.IntentRateLookup)
}

func TestExtract_CourtVocabularyPromotesCourtDecisions(t *testing.T) {
	resp := `{"intent": ["case_law"], "answer_depth": "detailed"}`
	ex := NewExtractor(&stubClient{resp: resp}, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "Has the supreme court ruled on permanent establishment?")

	assert.Equal(t, corpus.DocTypeCourt, plan.DocTypePriority[0])
}

func TestExtract_NilClientUsesHeuristic(t *testing.T) {
	ex := NewExtractor(nil, defaults(), nil, nil)

	plan := ex.Extract(context.Background(), "penalty for late filing")

	assert.Contains(t, plan.Intents, corpus.IntentCompliance)
	assert.Equal(t, corpus.DepthDetailed, plan.Depth)
}

func TestDeriveDepth(t *testing.T) {
	comprehensive := corpus.RetrievalPlan{
		Intents: []corpus.IntentTag{corpus.IntentProvision, corpus.IntentProcedure, corpus.IntentCompliance},
	}
	assert.Equal(t, corpus.DepthComprehensive, deriveDepth(comprehensive))

	summary := corpus.RetrievalPlan{
		Intents:  []corpus.IntentTag{corpus.IntentProvision},
		Entities: corpus.PlanEntities{Pointer: corpus.Pointer{Article: 3}},
	}
	assert.Equal(t, corpus.DepthSummary, deriveDepth(summary))

	detailed := corpus.RetrievalPlan{
		Intents: []corpus.IntentTag{corpus.IntentProvision, corpus.IntentProcedure},
	}
	assert.Equal(t, corpus.DepthDetailed, deriveDepth(detailed))
}

func TestHeuristicPlan_ExtractsDocRefs(t *testing.T) {
	plan := HeuristicPlan("Does Ministerial Regulation No. 126 of 2509 exempt this income, per Circular 118/2545?", defaults())

	assert.Equal(t, []corpus.DocRef{
		{Type: corpus.DocTypeMinisterial, Number: "126", Year: 2509},
		{Type: corpus.DocTypeCircular, Number: "118", Year: 2545},
	}, plan.Entities.DocRefs)
}

func TestHeuristicPlan_ClauseOnlyResolvesUnderArticle(t *testing.T) {
	noArticle := HeuristicPlan("what does clause 5 say?", defaults())
	assert.Equal(t, corpus.Pointer{}, noArticle.Entities.Pointer)

	full := HeuristicPlan("article 40 clause 2 sub-clause (b)", defaults())
	assert.Equal(t, corpus.Pointer{Article: 40, Clause: 2, SubClause: "b"}, full.Entities.Pointer)
}

func TestHeuristicPlan_PlainQuestionYieldsGeneralIntent(t *testing.T) {
	plan := HeuristicPlan("history of the department", defaults())

	assert.Equal(t, []corpus.IntentTag{corpus.IntentGeneral}, plan.Intents)
	assert.Empty(t, plan.DocTypeGuards)
	assert.Empty(t, plan.Entities.DocRefs)
}
