package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestAPIProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := apiResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, apiEmbeddingData{Index: i, Embedding: []float32{float32(i), 0.2, 0.3}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	vectors, err := p.Embed(context.Background(), []string{"bonjour", "salut"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{Endpoint: "http://unused", Model: "test-model", Dimension: 128})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	if d := p.Dimension(); d != 128 {
		t.Errorf("got dimension %d, want configured default 128", d)
	}
}

func TestLocalProviderEmbed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		calls++
		_ = json.NewEncoder(w).Encode(localResponse{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "nomic-embed-text"})
	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 || calls != 3 {
		t.Errorf("vectors=%d calls=%d, want 3/3", len(vectors), calls)
	}
}

type failingProvider struct{ calls int }

func (f *failingProvider) Embed(context.Context, []string) ([][]float32, error) {
	f.calls++
	return nil, errors.New("model not loaded")
}
func (f *failingProvider) Dimension() int { return 0 }

func TestFallbackZeroVectors(t *testing.T) {
	fb := NewFallback(&failingProvider{}, 0, zap.NewNop())

	vectors, err := fb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	for _, v := range vectors {
		if len(v) != DefaultDimension {
			t.Fatalf("got dimension %d, want %d", len(v), DefaultDimension)
		}
		for _, x := range v {
			if x != 0 {
				t.Fatalf("expected zero vector, got %v", v)
			}
		}
	}
}

func TestFallbackWithoutProvider(t *testing.T) {
	vectors, err := NewFallback(nil, 16, zap.NewNop()).Embed(context.Background(), []string{"x"})
	if err != nil || len(vectors) != 1 || len(vectors[0]) != 16 {
		t.Fatalf("vectors=%v err=%v", vectors, err)
	}
}

type countingProvider struct{ texts int }

func (c *countingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.texts += len(texts)
	return Zero(len(texts), 4), nil
}
func (c *countingProvider) Dimension() int { return 4 }

func TestCachedServesRepeats(t *testing.T) {
	inner := &countingProvider{}
	c, err := NewCached(inner, 16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	if _, err := c.Embed(context.Background(), []string{"avancer"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	c.cache.Wait()
	vecs, err := c.Embed(context.Background(), []string{"avancer", "reculer"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1] == nil {
		t.Fatalf("vecs = %v", vecs)
	}
	if inner.texts != 2 {
		t.Errorf("inner embedded %d texts, want 2", inner.texts)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := New(Config{})
	if err != nil || p != nil {
		t.Errorf("empty config: p=%v err=%v", p, err)
	}
	if _, err := New(Config{Provider: "bogus"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	p, err = New(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if p.Dimension() != DefaultDimension {
		t.Errorf("dimension = %d, want %d", p.Dimension(), DefaultDimension)
	}
}

func TestLocalProviderErrorNamesText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "model missing", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(localResponse{Embedding: []float32{1}})
	}))
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "nomic-embed-text"})
	_, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "2/3") || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want stop after failure", calls)
	}
}

func TestAPIProviderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{Data: []apiEmbeddingData{{Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	if _, err := NewAPIProvider(Config{Endpoint: srv.URL}).Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when fewer vectors than texts")
	}
}
