package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is the single reasoning-service capability the pipeline
// consumes: one prompt in, one text completion out. Plan extraction,
// reranking, sufficiency judgment, and answer composition all ride on it
// with their own prompt templates.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds a Client for the configured provider.
func New(ctx context.Context, opts Options) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, opts.APIKey, opts.Model)
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.Model, opts.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}

// StripFences removes a surrounding markdown code fence, if any, so
// fenced JSON payloads parse cleanly.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop an optional language tag on the opening fence.
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first := strings.TrimSpace(text[:i])
		if first == "json" || first == "JSON" || first == "" {
			text = text[i+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
