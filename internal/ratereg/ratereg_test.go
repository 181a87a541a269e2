package ratereg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_PostsQuestionAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lookup", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "vat rate on exports?", payload["question"])

		json.NewEncoder(w).Encode(Lookup{Needed: true, ContextText: "standard VAT rate: 7%"})
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL + "/")

	got, err := reg.Lookup(context.Background(), "vat rate on exports?")
	require.NoError(t, err)
	assert.True(t, got.Needed)
	assert.Equal(t, "standard VAT rate: 7%", got.ContextText)
}

func TestLookup_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registry rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPRegistry(srv.URL).Lookup(context.Background(), "q")
	assert.ErrorContains(t, err, "503")
}

func TestLookup_EmptyEndpointFailsFast(t *testing.T) {
	_, err := NewHTTPRegistry("").Lookup(context.Background(), "q")
	assert.Error(t, err)
}
