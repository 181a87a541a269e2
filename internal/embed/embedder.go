package embed

import (
	"context"
	"fmt"
	"strings"
)

// Embedder converts query text into vectors. The pipeline only ever
// embeds a handful of short query variants per request, so inputs stay
// small; corpus-side embedding happens at ingestion time, outside this
// module.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Options selects and configures an embedding provider.
type Options struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	BaseURL   string
}

// New builds an Embedder for the configured provider.
func New(ctx context.Context, opts Options) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		return NewGeminiEmbedder(ctx, opts.APIKey, opts.Model, opts.Dimension)
	case "openai":
		return NewOpenAIEmbedder(opts.APIKey, opts.Model, opts.Dimension, opts.BaseURL), nil
	case "ollama":
		return NewOllamaEmbedder(opts.Model, opts.Dimension, opts.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", opts.Provider)
	}
}

// Average folds vectors into their component-wise mean. Inputs of
// mismatched or zero length are skipped; nil is returned when nothing
// usable remains.
func Average(vectors [][]float32) []float32 {
	var dim int
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}
