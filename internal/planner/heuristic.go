package planner

import (
	"regexp"
	"strconv"
	"strings"

	"lawquery/internal/corpus"
)

// Trigger vocabularies for intent inference and validation. Phrase-level
// checks run against the lowercased question.
var (
	rateVocabulary = []string{
		"rate", "percent", "percentage", "tariff", "how much tax", "%",
	}
	definitionVocabulary = []string{
		"what is", "what does", "define", "definition", "meaning of", "means",
	}
	procedureVocabulary = []string{
		"how do", "how to", "procedure", "file a", "submit", "register", "deadline", "when must",
	}
	complianceVocabulary = []string{
		"penalty", "fine", "surcharge", "obligation", "liable", "must i", "required to",
	}
	courtVocabulary = []string{
		"court", "judgment", "judgement", "supreme court", "case law", "precedent", "ruled",
	}
	provisionVocabulary = []string{
		"article", "clause", "paragraph", "section", "provide", "stipulate",
	}
)

// topicVocabulary is the fixed list of domain topics the heuristic can
// recognize without the reasoning service.
var topicVocabulary = []string{
	"income tax", "value added tax", "vat", "withholding", "stamp duty",
	"specific business tax", "exemption", "deduction", "allowance",
	"assessment", "refund", "tax invoice", "residence", "permanent establishment",
	"depreciation", "appeal", "installment", "double taxation",
}

var (
	ministerialRefRe = regexp.MustCompile(`(?i)ministerial\s+regulation\s+(?:no\.?\s*)?(\d+)(?:\s*(?:of|/)\s*(\d{4}))?`)
	directorateRefRe = regexp.MustCompile(`(?i)directorate\s+regulation\s+(?:no\.?\s*)?(\d+)(?:\s*(?:of|/)\s*(\d{4}))?`)
	circularRefRe    = regexp.MustCompile(`(?i)circular\s+(?:no\.?\s*)?(\d+)(?:\s*(?:of|/)\s*(\d{4}))?`)
	rulingRefRe      = regexp.MustCompile(`(?i)ruling\s+(?:no\.?\s*)?(\d+)(?:\s*(?:of|/)\s*(\d{4}))?`)

	articleRe   = regexp.MustCompile(`(?i)article\s+(\d+)`)
	clauseRe    = regexp.MustCompile(`(?i)clause\s+(\d+)`)
	subClauseRe = regexp.MustCompile(`(?i)sub-?clause\s+\(?([a-z])\)?`)
)

// HeuristicPlan derives a retrieval plan from the question text alone.
// It is the deterministic fallback for the LLM extraction path and the
// reference behavior for questions with no resolvable references: plain
// questions yield a plan with only the question as variant and no
// document-type guard.
func HeuristicPlan(question string, defaults corpus.RetrievalConfig) corpus.RetrievalPlan {
	lower := strings.ToLower(question)

	var plan corpus.RetrievalPlan
	plan.Retrieval = defaults
	plan.Entities.DocRefs = extractDocRefs(question)
	plan.Entities.Pointer = extractPointer(question)

	for _, topic := range topicVocabulary {
		if strings.Contains(lower, topic) {
			plan.Entities.Topics = append(plan.Entities.Topics, topic)
		}
	}

	if containsAny(lower, rateVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentRateLookup)
		plan.UseRateRegistry = true
	}
	if containsAny(lower, provisionVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentProvision)
	}
	if containsAny(lower, definitionVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentDefinition)
	}
	if containsAny(lower, procedureVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentProcedure)
	}
	if containsAny(lower, complianceVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentCompliance)
	}
	if containsAny(lower, courtVocabulary) {
		plan.Intents = append(plan.Intents, corpus.IntentCaseLaw)
	}
	if len(plan.Intents) == 0 {
		plan.Intents = []corpus.IntentTag{corpus.IntentGeneral}
	}

	return plan
}

func extractDocRefs(question string) []corpus.DocRef {
	var refs []corpus.DocRef
	collect := func(re *regexp.Regexp, t corpus.DocType) {
		for _, m := range re.FindAllStringSubmatch(question, -1) {
			ref := corpus.DocRef{Type: t, Number: m[1]}
			if len(m) > 2 && m[2] != "" {
				ref.Year, _ = strconv.Atoi(m[2])
			}
			refs = append(refs, ref)
		}
	}
	collect(ministerialRefRe, corpus.DocTypeMinisterial)
	collect(directorateRefRe, corpus.DocTypeDirectorate)
	collect(circularRefRe, corpus.DocTypeCircular)
	collect(rulingRefRe, corpus.DocTypeRuling)
	return refs
}

func extractPointer(question string) corpus.Pointer {
	var p corpus.Pointer
	if m := articleRe.FindStringSubmatch(question); m != nil {
		p.Article, _ = strconv.Atoi(m[1])
	}
	// Clause and sub-clause only resolve under a known article.
	if p.Article == 0 {
		return p
	}
	if m := clauseRe.FindStringSubmatch(question); m != nil {
		p.Clause, _ = strconv.Atoi(m[1])
	}
	if p.Clause != 0 {
		if m := subClauseRe.FindStringSubmatch(question); m != nil {
			p.SubClause = strings.ToLower(m[1])
		}
	}
	return p
}
