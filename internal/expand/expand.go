// Package expand augments an evidence set with structurally related
// chunks: the parent article of a leaf clause, neighboring sibling
// clauses, and explanatory annotations. Expanded chunks carry neutral
// scores and provenance tags so later stages can tell them apart from
// independently retrieved evidence.
package expand

import (
	"context"
	"log/slog"
	"sort"

	"lawquery/internal/corpus"
	"lawquery/internal/store"
)

// Config is the explicit expansion instruction consumed from a
// sufficiency verdict.
type Config struct {
	Parent         bool
	SiblingsWindow int // 0 disables, clamped to MaxSiblingsWindow
	Annotations    bool
}

// MaxSiblingsWindow bounds how far sibling expansion may reach.
const MaxSiblingsWindow = 2

// Enabled reports whether any toggle is set.
func (c Config) Enabled() bool {
	return c.Parent || c.SiblingsWindow > 0 || c.Annotations
}

// Clamped returns the config with the sibling window forced into
// [0, MaxSiblingsWindow]. Verdict values are never trusted raw.
func (c Config) Clamped() Config {
	if c.SiblingsWindow < 0 {
		c.SiblingsWindow = 0
	}
	if c.SiblingsWindow > MaxSiblingsWindow {
		c.SiblingsWindow = MaxSiblingsWindow
	}
	return c
}

// neutralScore is assigned to expanded chunks: they were never scored
// by retrieval, so they rank below well-matched evidence but above
// noise.
const neutralScore = 0.5

// Expander fetches structural context from the chunk store.
type Expander struct {
	store  store.ChunkStore
	logger *slog.Logger
}

func New(s store.ChunkStore, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{store: s, logger: logger}
}

// Expand derives what each chunk needs from its structural type and the
// question intents: leaves pull their parent article, clause-level
// chunks pull a +/-1 sibling window, and definitional or provision
// questions pull explanatory annotations for article/clause evidence.
func (e *Expander) Expand(ctx context.Context, chunks []corpus.Chunk, intents []corpus.IntentTag, maxChunks int) []corpus.Chunk {
	wantAnnotations := hasIntent(intents, corpus.IntentDefinition) || hasIntent(intents, corpus.IntentProvision)

	working := append([]corpus.Chunk(nil), chunks...)
	seen := idSet(working)

	for _, c := range chunks {
		if c.Type.IsLeaf() {
			working = e.addParent(ctx, working, seen, c)
		}
		if wantAnnotations && (c.Type == corpus.ChunkArticle || c.Type == corpus.ChunkClause) {
			working = e.addAnnotation(ctx, working, seen, c)
		}
		if c.Type == corpus.ChunkClause {
			working = e.addSiblings(ctx, working, seen, c, 1)
		}
	}
	return finalize(working, maxChunks)
}

// ApplyConfig performs the same three expansion categories driven by an
// explicit instruction instead of intent inference.
func (e *Expander) ApplyConfig(ctx context.Context, chunks []corpus.Chunk, cfg Config, maxChunks int) []corpus.Chunk {
	cfg = cfg.Clamped()

	working := append([]corpus.Chunk(nil), chunks...)
	seen := idSet(working)

	for _, c := range chunks {
		if cfg.Parent && c.Type.IsLeaf() {
			working = e.addParent(ctx, working, seen, c)
		}
		if cfg.Annotations && (c.Type == corpus.ChunkArticle || c.Type == corpus.ChunkClause) {
			working = e.addAnnotation(ctx, working, seen, c)
		}
		if cfg.SiblingsWindow > 0 && c.Type == corpus.ChunkClause {
			working = e.addSiblings(ctx, working, seen, c, cfg.SiblingsWindow)
		}
	}
	return finalize(working, maxChunks)
}

func (e *Expander) addParent(ctx context.Context, working []corpus.Chunk, seen map[string]bool, c corpus.Chunk) []corpus.Chunk {
	parentPtr, ok := c.Pointer.ParentPointer()
	if !ok {
		return working
	}
	parent, err := e.store.GetByPointer(ctx, c.DocumentID, parentPtr)
	if err != nil {
		// A failed lookup skips this expansion, nothing more.
		e.logger.Debug("parent lookup failed", "chunk_id", c.ID, "error", err)
		return working
	}
	if parent == nil {
		return working
	}
	return admit(working, seen, *parent, corpus.ExpandedParent)
}

func (e *Expander) addAnnotation(ctx context.Context, working []corpus.Chunk, seen map[string]bool, c corpus.Chunk) []corpus.Chunk {
	note, err := e.store.GetAnnotation(ctx, c.DocumentID, c.Pointer)
	if err != nil {
		e.logger.Debug("annotation lookup failed", "chunk_id", c.ID, "error", err)
		return working
	}
	if note == nil {
		return working
	}
	return admit(working, seen, *note, corpus.ExpandedAnnotation)
}

func (e *Expander) addSiblings(ctx context.Context, working []corpus.Chunk, seen map[string]bool, c corpus.Chunk, window int) []corpus.Chunk {
	siblings, err := e.store.GetSiblings(ctx, c.DocumentID, c.Pointer, window)
	if err != nil {
		e.logger.Debug("sibling lookup failed", "chunk_id", c.ID, "error", err)
		return working
	}
	for _, sib := range siblings {
		working = admit(working, seen, sib, corpus.ExpandedSibling)
	}
	return working
}

// admit appends the chunk with provenance and a neutral score unless an
// equally-identified chunk is already present.
func admit(working []corpus.Chunk, seen map[string]bool, c corpus.Chunk, from corpus.ExpandedFrom) []corpus.Chunk {
	if c.ID == "" || seen[c.ID] {
		return working
	}
	seen[c.ID] = true
	c.IsExpanded = true
	c.ExpandedFrom = from
	c.FinalScore = neutralScore
	return append(working, c)
}

// finalize orders independently retrieved chunks ahead of expanded
// ones, each group by score descending, and truncates to maxChunks.
func finalize(working []corpus.Chunk, maxChunks int) []corpus.Chunk {
	retrieved := make([]corpus.Chunk, 0, len(working))
	expanded := make([]corpus.Chunk, 0, len(working))
	for _, c := range working {
		if c.IsExpanded {
			expanded = append(expanded, c)
		} else {
			retrieved = append(retrieved, c)
		}
	}
	byScore := func(s []corpus.Chunk) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].FinalScore > s[j].FinalScore })
	}
	byScore(retrieved)
	byScore(expanded)

	out := append(retrieved, expanded...)
	if maxChunks > 0 && len(out) > maxChunks {
		out = out[:maxChunks]
	}
	return out
}

func idSet(chunks []corpus.Chunk) map[string]bool {
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		seen[c.ID] = true
	}
	return seen
}

func hasIntent(intents []corpus.IntentTag, tag corpus.IntentTag) bool {
	for _, t := range intents {
		if t == tag {
			return true
		}
	}
	return false
}
