package corpus

import "fmt"

// DocType classifies a source document by its place in the legal hierarchy.
type DocType string

const (
	DocTypeCode        DocType = "code"                  // primary legislation
	DocTypeMinisterial DocType = "ministerial_regulation"
	DocTypeDirectorate DocType = "directorate_regulation"
	DocTypeCircular    DocType = "circular"
	DocTypeMemo        DocType = "internal_memo"
	DocTypeRuling      DocType = "ruling"
	DocTypeCourt       DocType = "court_decision"
	DocTypeBook        DocType = "book"
	DocTypeUnknown     DocType = "unknown"
)

// KnownDocTypes lists every recognized document type, highest legal
// authority first.
var KnownDocTypes = []DocType{
	DocTypeCode,
	DocTypeMinisterial,
	DocTypeDirectorate,
	DocTypeCircular,
	DocTypeMemo,
	DocTypeCourt,
	DocTypeRuling,
	DocTypeBook,
}

// AuthorityBoost returns the score multiplier tied to the document's
// legal authority tier.
func (t DocType) AuthorityBoost() float64 {
	switch t {
	case DocTypeCode:
		return 1.30
	case DocTypeMinisterial:
		return 1.22
	case DocTypeDirectorate:
		return 1.16
	case DocTypeCircular:
		return 1.10
	case DocTypeMemo:
		return 1.05
	case DocTypeCourt:
		return 1.04
	case DocTypeRuling:
		return 1.02
	case DocTypeBook:
		return 1.00
	default:
		return 1.00
	}
}

// NormalizeDocType maps free-form type labels onto the known enum,
// defaulting to DocTypeUnknown.
func NormalizeDocType(s string) DocType {
	t := DocType(s)
	for _, k := range KnownDocTypes {
		if t == k {
			return k
		}
	}
	return DocTypeUnknown
}

// ChunkType tags the structural role of a chunk within its document.
type ChunkType string

const (
	ChunkArticle    ChunkType = "article"
	ChunkClause     ChunkType = "clause"
	ChunkSubClause  ChunkType = "sub_clause"
	ChunkAnnotation ChunkType = "annotation" // explanatory note
	ChunkTable      ChunkType = "table"
	ChunkPreamble   ChunkType = "preamble"
	ChunkSection    ChunkType = "section"
)

// StructureBoost weights operative structural chunks above framing text.
func (t ChunkType) StructureBoost() float64 {
	switch t {
	case ChunkArticle:
		return 1.15
	case ChunkClause:
		return 1.12
	case ChunkSubClause:
		return 1.08
	case ChunkTable:
		return 1.05
	case ChunkSection:
		return 1.02
	case ChunkPreamble:
		return 0.90
	default:
		return 1.00
	}
}

// IsLeaf reports whether the chunk type sits below article level, so it
// has a parent article worth pulling in during expansion.
func (t ChunkType) IsLeaf() bool {
	return t == ChunkClause || t == ChunkSubClause
}

// ExpandedFrom records how an expanded chunk entered the evidence set.
type ExpandedFrom string

const (
	ExpandedParent     ExpandedFrom = "parent"
	ExpandedSibling    ExpandedFrom = "sibling"
	ExpandedAnnotation ExpandedFrom = "annotation"
)

// DocumentMeta carries the document-level metadata attached to a chunk.
type DocumentMeta struct {
	Type   DocType
	Number string
	Year   int
	Title  string
	Status string // lifecycle status, e.g. "in_force", "repealed"
}

// Pointer identifies a chunk's place in the document hierarchy. Zero
// values mean the level is not resolved: Article/Clause 0, SubClause "".
type Pointer struct {
	Article   int
	Clause    int
	SubClause string
}

// ParentPointer returns the pointer one structural level up, or false
// when the pointer is already at the top.
func (p Pointer) ParentPointer() (Pointer, bool) {
	switch {
	case p.SubClause != "":
		return Pointer{Article: p.Article, Clause: p.Clause}, true
	case p.Clause != 0:
		return Pointer{Article: p.Article}, true
	default:
		return Pointer{}, false
	}
}

func (p Pointer) String() string {
	switch {
	case p.SubClause != "":
		return fmt.Sprintf("art %d cl %d (%s)", p.Article, p.Clause, p.SubClause)
	case p.Clause != 0:
		return fmt.Sprintf("art %d cl %d", p.Article, p.Clause)
	case p.Article != 0:
		return fmt.Sprintf("art %d", p.Article)
	default:
		return ""
	}
}

// Chunk is the unit of retrievable evidence: a span of legal text plus
// the structural and scoring metadata the pipeline works with.
type Chunk struct {
	ID         string
	DocumentID string

	// Anchor is the human-readable citation pointer, e.g.
	// "Revenue Code – Article 40 Clause 2".
	Anchor string

	Type    ChunkType
	Pointer Pointer

	Text          string
	TokenEstimate int

	VectorScore  float64
	KeywordScore float64
	FinalScore   float64

	Doc DocumentMeta

	IsExpanded   bool
	ExpandedFrom ExpandedFrom
}

// MergeByID folds extra chunks into base without duplicating ids.
// First writer wins for provenance and all other fields; callers that
// want score updates mutate in place instead.
func MergeByID(base []Chunk, extra ...Chunk) []Chunk {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[c.ID] = true
	}
	for _, c := range extra {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		base = append(base, c)
	}
	return base
}

// DistinctDocuments counts the documents represented in the set.
func DistinctDocuments(chunks []Chunk) int {
	docs := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		docs[c.DocumentID] = true
	}
	return len(docs)
}
