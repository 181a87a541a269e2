package corpus

import "strings"

// IntentTag labels what kind of answer the question is after.
type IntentTag string

const (
	IntentRateLookup IntentTag = "rate_lookup"
	IntentProvision  IntentTag = "provision" // what does article/clause X provide
	IntentDefinition IntentTag = "definition"
	IntentProcedure  IntentTag = "procedure"
	IntentCompliance IntentTag = "compliance"
	IntentCaseLaw    IntentTag = "case_law"
	IntentGeneral    IntentTag = "general"
)

// KnownIntents is the closed set accepted from the plan extractor.
var KnownIntents = []IntentTag{
	IntentRateLookup,
	IntentProvision,
	IntentDefinition,
	IntentProcedure,
	IntentCompliance,
	IntentCaseLaw,
	IntentGeneral,
}

// NormalizeIntent clamps a free-form label to the known set, returning
// false for labels outside it.
func NormalizeIntent(s string) (IntentTag, bool) {
	t := IntentTag(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownIntents {
		if t == k {
			return k, true
		}
	}
	return "", false
}

// AnswerDepth controls how expansive the composed answer should be.
type AnswerDepth string

const (
	DepthSummary       AnswerDepth = "summary"
	DepthDetailed      AnswerDepth = "detailed"
	DepthComprehensive AnswerDepth = "comprehensive"
)

// DocRef is a resolved reference to a specific document, e.g.
// "ministerial regulation no. 126 of 2509".
type DocRef struct {
	Type   DocType
	Number string
	Year   int
}

// PlanEntities holds what the extractor recognized inside the question.
type PlanEntities struct {
	DocRefs []DocRef
	Pointer Pointer // resolved article/clause pointer, zero when absent
	Topics  []string
}

// RetrievalConfig tunes one retrieval pass.
type RetrievalConfig struct {
	VectorTopK           int
	KeywordTopK          int
	MaxChunksPerDocument int
	MinDistinctDocuments int
}

// DefaultRetrievalConfig returns the baseline tuning used when the plan
// extractor supplies nothing better.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		VectorTopK:           40,
		KeywordTopK:          40,
		MaxChunksPerDocument: 6,
		MinDistinctDocuments: 3,
	}
}

func (c RetrievalConfig) normalized() RetrievalConfig {
	d := DefaultRetrievalConfig()
	if c.VectorTopK <= 0 {
		c.VectorTopK = d.VectorTopK
	}
	if c.KeywordTopK <= 0 {
		c.KeywordTopK = d.KeywordTopK
	}
	if c.MaxChunksPerDocument < 1 {
		c.MaxChunksPerDocument = d.MaxChunksPerDocument
	}
	if c.MinDistinctDocuments < 1 {
		c.MinDistinctDocuments = d.MinDistinctDocuments
	}
	return c
}

// RetrievalPlan is the immutable output of plan extraction. Build one
// with NewRetrievalPlan; derive variants with WithOverrides.
type RetrievalPlan struct {
	Intents         []IntentTag
	Entities        PlanEntities
	DocTypePriority []DocType
	DocTypeGuards   []DocType // hard whitelist, empty = unrestricted
	QueryVariants   []string  // deduplicated, original question always present
	Retrieval       RetrievalConfig
	UseRateRegistry bool
	Depth           AnswerDepth
}

const maxQueryVariants = 5

// NewRetrievalPlan normalizes and seals a plan: variants are deduplicated
// case-insensitively and capped, the literal question is guaranteed
// present, and the retrieval config is clamped to sane minimums.
func NewRetrievalPlan(question string, p RetrievalPlan) RetrievalPlan {
	variants := make([]string, 0, maxQueryVariants)
	seen := make(map[string]bool, maxQueryVariants)
	add := func(q string) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] || len(variants) >= maxQueryVariants {
			return
		}
		seen[key] = true
		variants = append(variants, q)
	}
	add(question)
	for _, q := range p.QueryVariants {
		add(q)
	}
	p.QueryVariants = variants

	if len(p.Intents) == 0 {
		p.Intents = []IntentTag{IntentGeneral}
	}
	if len(p.DocTypePriority) == 0 {
		p.DocTypePriority = append([]DocType(nil), KnownDocTypes...)
	}
	if p.Depth == "" {
		p.Depth = DepthDetailed
	}
	p.Retrieval = p.Retrieval.normalized()
	return p
}

// PlanOverrides carries the fields an auxiliary retrieval pass replaces.
type PlanOverrides struct {
	QueryVariants   []string
	DocTypePriority []DocType
	Retrieval       *RetrievalConfig
}

// WithOverrides copies the plan with the given fields replaced. The
// receiver is never mutated.
func (p RetrievalPlan) WithOverrides(o PlanOverrides) RetrievalPlan {
	out := p
	out.Intents = append([]IntentTag(nil), p.Intents...)
	out.DocTypeGuards = append([]DocType(nil), p.DocTypeGuards...)
	if o.QueryVariants != nil {
		out.QueryVariants = append([]string(nil), o.QueryVariants...)
	} else {
		out.QueryVariants = append([]string(nil), p.QueryVariants...)
	}
	if o.DocTypePriority != nil {
		out.DocTypePriority = append([]DocType(nil), o.DocTypePriority...)
	} else {
		out.DocTypePriority = append([]DocType(nil), p.DocTypePriority...)
	}
	if o.Retrieval != nil {
		out.Retrieval = o.Retrieval.normalized()
	}
	return out
}

// HasIntent reports whether the plan carries the given tag.
func (p RetrievalPlan) HasIntent(tag IntentTag) bool {
	for _, t := range p.Intents {
		if t == tag {
			return true
		}
	}
	return false
}

// PriorityRank returns the 0-based rank of t in the priority list, or
// len(priority) when absent.
func (p RetrievalPlan) PriorityRank(t DocType) int {
	for i, d := range p.DocTypePriority {
		if d == t {
			return i
		}
	}
	return len(p.DocTypePriority)
}
