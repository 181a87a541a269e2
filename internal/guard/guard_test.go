package guard

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"lawquery/internal/corpus"
)

func chunk(dt corpus.DocType, title, text string) corpus.Chunk {
	return corpus.Chunk{
		ID:         "c-" + strings.ToLower(title),
		DocumentID: "d-" + strings.ToLower(title),
		Type:       corpus.ChunkArticle,
		Text:       text,
		Doc:        corpus.DocumentMeta{Type: dt, Title: title},
	}
}

func TestFilter_RevenueOnlyTypesAlwaysPass(t *testing.T) {
	g := New(nil)
	in := []corpus.Chunk{
		chunk(corpus.DocTypeDirectorate, "Reg A", "totally unrelated text"),
		chunk(corpus.DocTypeCircular, "Circ B", "nothing about the domain"),
		chunk(corpus.DocTypeMemo, "Memo C", ""),
		chunk(corpus.DocTypeRuling, "Ruling D", ""),
	}

	assert.Equal(t, in, g.Filter(in))
}

func TestFilter_AlwaysAcceptBeatsBlacklist(t *testing.T) {
	g := New(nil, WithBlacklist(DocPattern{Type: corpus.DocTypeCircular}))
	in := []corpus.Chunk{chunk(corpus.DocTypeCircular, "Circ", "off-topic text")}

	assert.Len(t, g.Filter(in), 1)
}

func TestFilter_BlacklistRejectsWithoutStrongPhrase(t *testing.T) {
	g := New(nil, WithBlacklist(DocPattern{TitleRe: regexp.MustCompile(`customs act`)}))

	weak := chunk(corpus.DocTypeCode, "Customs Act", "import duties are assessed on arrival")
	strong := chunk(corpus.DocTypeCode, "Customs Act", "goods subject to value added tax on import")

	assert.Empty(t, g.Filter([]corpus.Chunk{weak}))
	assert.Len(t, g.Filter([]corpus.Chunk{strong}), 1, "a strong domain phrase overrides the blacklist")
}

func TestFilter_WhitelistBeatsBlacklist(t *testing.T) {
	g := New(nil,
		WithWhitelist(DocPattern{Type: corpus.DocTypeCode, Number: "1"}),
		WithBlacklist(DocPattern{Type: corpus.DocTypeCode}),
	)
	c := chunk(corpus.DocTypeCode, "Some Act", "nothing relevant")
	c.Doc.Number = "1"

	assert.Len(t, g.Filter([]corpus.Chunk{c}), 1)
}

func TestFilter_TitleKeywordAccepts(t *testing.T) {
	g := New(nil)
	c := chunk(corpus.DocTypeBook, "Handbook of Revenue Practice", "chapter one")

	assert.Len(t, g.Filter([]corpus.Chunk{c}), 1)
}

func TestFilter_AmbiguousLegislationFailsClosed(t *testing.T) {
	g := New(nil)

	offTopic := chunk(corpus.DocTypeCode, "Civil Procedure Act", "a claim shall be filed with the competent tribunal within thirty days")
	onTopic := chunk(corpus.DocTypeCode, "Consolidated Statutes", "the taxpayer shall file a return of assessable income")

	assert.Empty(t, g.Filter([]corpus.Chunk{offTopic}), "ambiguous primary legislation is rejected")
	assert.Len(t, g.Filter([]corpus.Chunk{onTopic}), 1)
}

func TestFilter_LegislativeScanIgnoresLateKeywords(t *testing.T) {
	g := New(nil)
	// The only domain keyword sits past the scan window.
	text := strings.Repeat("procedural boilerplate without relevant words. ", 20) + "tax"
	c := chunk(corpus.DocTypeCode, "Some Act", text)

	assert.Empty(t, g.Filter([]corpus.Chunk{c}))
}

func TestFilter_BooksAndCourtScanOpeningText(t *testing.T) {
	g := New(nil)

	court := chunk(corpus.DocTypeCourt, "Decision 1234", "the plaintiff disputed the revenue assessment for the year")
	offTopic := chunk(corpus.DocTypeCourt, "Decision 5678", "the parties disputed ownership of the land parcel")

	assert.Len(t, g.Filter([]corpus.Chunk{court}), 1)
	assert.Empty(t, g.Filter([]corpus.Chunk{offTopic}))
}

func TestFilter_UnknownTypePassesThrough(t *testing.T) {
	g := New(nil)
	c := chunk(corpus.DocTypeUnknown, "Fragment", "no recognizable signal at all")

	assert.Len(t, g.Filter([]corpus.Chunk{c}), 1)
}

func TestFilter_PreservesInputOrder(t *testing.T) {
	g := New(nil)
	in := []corpus.Chunk{
		chunk(corpus.DocTypeRuling, "R1", ""),
		chunk(corpus.DocTypeCode, "Unrelated Act", "nothing"),
		chunk(corpus.DocTypeCircular, "C1", ""),
	}

	got := g.Filter(in)
	assert.Equal(t, []string{in[0].ID, in[2].ID}, []string{got[0].ID, got[1].ID})
}
