// Package ratereg consults the external tax-rate registry. The registry
// is optional: lookups that fail simply contribute no context.
package ratereg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Lookup is the registry's answer for one question.
type Lookup struct {
	Needed      bool   `json:"needed"`
	ContextText string `json:"context_text"`
}

// Registry resolves current rate context for a question.
type Registry interface {
	Lookup(ctx context.Context, question string) (Lookup, error)
}

// HTTPRegistry calls a JSON endpoint exposing the registry.
type HTTPRegistry struct {
	client   *http.Client
	endpoint string
}

func NewHTTPRegistry(endpoint string) *HTTPRegistry {
	return &HTTPRegistry{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (r *HTTPRegistry) Lookup(ctx context.Context, question string) (Lookup, error) {
	if r.endpoint == "" {
		return Lookup{}, fmt.Errorf("rate registry endpoint not configured")
	}

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return Lookup{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/lookup", bytes.NewReader(body))
	if err != nil {
		return Lookup{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Lookup{}, fmt.Errorf("rate registry request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Lookup{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Lookup{}, fmt.Errorf("rate registry status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out Lookup
	if err := json.Unmarshal(raw, &out); err != nil {
		return Lookup{}, fmt.Errorf("decode rate registry response: %w", err)
	}
	return out, nil
}
