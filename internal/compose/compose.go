// Package compose produces the final grounded answer. The reasoning
// service writes the prose; source entries are assembled locally from
// the evidence set so citations can never point outside it.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lawquery/internal/corpus"
	"lawquery/internal/llm"
)

// Source is one citation entry in a finished answer.
type Source struct {
	SID        string // stable label: "S1", "S2", ...
	DocType    corpus.DocType
	Title      string
	Anchor     string
	Excerpt    string
	ChunkID    string
	DocumentID string
}

// Result is the composed answer plus its citation list.
type Result struct {
	Answer  string
	Sources []Source
}

// Composer turns finalized evidence into an answer.
type Composer interface {
	Compose(ctx context.Context, question string, evidence []corpus.Chunk, rateContext string, depth corpus.AnswerDepth) (Result, error)
}

const sourceExcerptLength = 240

const composeSystemPrompt = `You are a legal research assistant answering questions about tax law.
You are given evidence excerpts labelled S1, S2, ... Answer the question using ONLY
that evidence. Cite the labels inline, e.g. "... (S1, S3)". If the evidence does not
cover part of the question, say so explicitly instead of guessing. Never invent
citations or refer to labels you were not given.`

var depthInstructions = map[corpus.AnswerDepth]string{
	corpus.DepthSummary:       "Answer in at most three sentences.",
	corpus.DepthDetailed:      "Answer thoroughly, walking through each relevant provision.",
	corpus.DepthComprehensive: "Answer exhaustively: cover every relevant provision, exceptions, and interactions between documents.",
}

// LLMComposer implements Composer over the reasoning service.
type LLMComposer struct {
	llm    llm.Client
	logger *slog.Logger
}

func NewLLMComposer(client llm.Client, logger *slog.Logger) *LLMComposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMComposer{llm: client, logger: logger}
}

// Compose builds the labelled evidence prompt and returns the answer
// with locally assembled sources. Unlike the other service consumers
// this one propagates failure: with no composed text there is nothing
// to degrade to, and the caller owns the user-visible fallback.
func (c *LLMComposer) Compose(ctx context.Context, question string, evidence []corpus.Chunk, rateContext string, depth corpus.AnswerDepth) (Result, error) {
	if c.llm == nil {
		return Result{}, fmt.Errorf("no reasoning client configured")
	}
	if len(evidence) == 0 {
		return Result{}, fmt.Errorf("no evidence to compose from")
	}

	sources := BuildSources(evidence)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	if rateContext != "" {
		fmt.Fprintf(&sb, "Current rate registry context:\n%s\n\n", rateContext)
	}
	sb.WriteString("Evidence:\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "[%s] %s | %s\n%s\n\n", s.SID, s.Title, s.Anchor, promptText(evidence[i].Text))
	}
	if instr, ok := depthInstructions[depth]; ok {
		sb.WriteString(instr)
	}

	answer, err := c.llm.Complete(ctx, composeSystemPrompt, sb.String())
	if err != nil {
		return Result{}, fmt.Errorf("compose answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Result{}, fmt.Errorf("empty answer from reasoning service")
	}

	return Result{Answer: answer, Sources: sources}, nil
}

// BuildSources derives the stable citation list from an evidence set,
// in evidence order.
func BuildSources(evidence []corpus.Chunk) []Source {
	sources := make([]Source, 0, len(evidence))
	for i, c := range evidence {
		sources = append(sources, Source{
			SID:        fmt.Sprintf("S%d", i+1),
			DocType:    c.Doc.Type,
			Title:      c.Doc.Title,
			Anchor:     c.Anchor,
			Excerpt:    excerptText(c.Text),
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
		})
	}
	return sources
}

func excerptText(s string) string {
	return clip(s, sourceExcerptLength)
}

// promptText allows a longer window than the citation excerpt so the
// model sees enough of each provision to quote it faithfully.
func promptText(s string) string {
	return clip(s, 1200)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
