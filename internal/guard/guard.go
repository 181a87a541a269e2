// Package guard filters retrieved evidence to the tax-law domain.
// Primary legislation spans many unrelated subjects, so ambiguous acts
// and decrees fail closed; document types issued only by the revenue
// authority are always trusted.
package guard

import (
	"log/slog"
	"regexp"
	"strings"

	"lawquery/internal/corpus"
)

// DocPattern matches a document by exact reference or by title.
type DocPattern struct {
	Type    corpus.DocType
	Number  string
	Year    int
	TitleRe *regexp.Regexp
}

func (p DocPattern) matches(meta corpus.DocumentMeta) bool {
	if p.TitleRe != nil {
		return p.TitleRe.MatchString(strings.ToLower(meta.Title))
	}
	if p.Type != "" && p.Type != meta.Type {
		return false
	}
	if p.Number != "" && p.Number != meta.Number {
		return false
	}
	if p.Year != 0 && p.Year != meta.Year {
		return false
	}
	return p.Type != "" || p.Number != "" || p.Year != 0
}

// Guard holds the domain decision configuration.
type Guard struct {
	whitelist []DocPattern
	blacklist []DocPattern
	logger    *slog.Logger
}

// alwaysAccept lists document types that exist only inside the revenue
// domain; they are trusted regardless of any blacklist entry.
var alwaysAccept = map[corpus.DocType]bool{
	corpus.DocTypeDirectorate: true,
	corpus.DocTypeCircular:    true,
	corpus.DocTypeMemo:        true,
	corpus.DocTypeRuling:      true,
}

// titleKeywords accept a document on title alone.
var titleKeywords = []string{
	"tax", "revenue", "vat", "duty", "customs", "excise",
}

// contentKeywords are the generic terms scanned in chunk text.
var contentKeywords = []string{
	"tax", "taxpayer", "revenue", "vat", "withholding", "assessment",
	"duty", "taxable", "exemption", "deduction",
}

// strongPhrases are phrase-level markers specific enough to override a
// blacklist rejection.
var strongPhrases = []string{
	"revenue code", "value added tax", "personal income tax",
	"corporate income tax", "withholding tax", "tax assessment",
	"tax invoice", "stamp duty", "specific business tax",
	"assessable income",
}

const (
	legislativeScanLen = 500
	looseScanLen       = 300
)

// Option configures a Guard.
type Option func(*Guard)

func WithWhitelist(patterns ...DocPattern) Option {
	return func(g *Guard) { g.whitelist = append(g.whitelist, patterns...) }
}

func WithBlacklist(patterns ...DocPattern) Option {
	return func(g *Guard) { g.blacklist = append(g.blacklist, patterns...) }
}

func New(logger *slog.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Filter keeps only in-domain chunks, preserving order.
func (g *Guard) Filter(chunks []corpus.Chunk) []corpus.Chunk {
	out := make([]corpus.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if g.accepts(c) {
			out = append(out, c)
		} else {
			g.logger.Debug("domain guard rejected chunk",
				"chunk_id", c.ID,
				"doc_type", string(c.Doc.Type),
				"title", c.Doc.Title,
			)
		}
	}
	return out
}

// accepts runs the decision ladder for one chunk. Order matters: the
// always-accept set beats the blacklist, and the blacklist beats title
// keywords unless the text carries a strong domain phrase.
func (g *Guard) accepts(c corpus.Chunk) bool {
	// 1. Types issued only within the domain.
	if alwaysAccept[c.Doc.Type] {
		return true
	}

	// 2. Explicit whitelist.
	for _, p := range g.whitelist {
		if p.matches(c.Doc) {
			return true
		}
	}

	// 3. Explicit blacklist, overridable by strong phrases in the text.
	for _, p := range g.blacklist {
		if p.matches(c.Doc) {
			return hasAnyPhrase(strings.ToLower(c.Text), strongPhrases)
		}
	}

	// 4. Title keywords.
	title := strings.ToLower(c.Doc.Title)
	if hasAnyPhrase(title, titleKeywords) {
		return true
	}

	// 5. Legislative types: lenient scan of the opening text, otherwise
	// reject. Acts and ministerial regulations cover every subject of
	// law, so an ambiguous one is assumed out of domain.
	if c.Doc.Type == corpus.DocTypeCode || c.Doc.Type == corpus.DocTypeMinisterial {
		return hasAnyPhrase(lowerPrefix(c.Text, legislativeScanLen), contentKeywords)
	}

	// 6. Loose types: title already failed, so check the opening text.
	if c.Doc.Type == corpus.DocTypeBook || c.Doc.Type == corpus.DocTypeCourt {
		return hasAnyPhrase(lowerPrefix(c.Text, looseScanLen), contentKeywords)
	}

	// 7. Unknown types pass through.
	return true
}

func lowerPrefix(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.ToLower(s)
}

func hasAnyPhrase(haystack string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
