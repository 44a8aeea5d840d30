package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestOpenAIProviderStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected auth header")
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Errorf("expected stream true")
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json response format")
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("expected temperature 0")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello \"}}]}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{
		APIURL: server.URL,
		APIKey: "test-key",
		Model:  "gpt-test",
	})

	stream, err := provider.Complete(context.Background(), Request{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: Temperature(0),
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := Collect(stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "Hello world" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, Model: "m", MaxRetries: 2})
	stream, err := provider.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := Collect(stream)
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIProviderDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, Model: "m", MaxRetries: 3})
	_, err := provider.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestOpenAIProviderRequiresModel(t *testing.T) {
	t.Parallel()

	provider := NewOpenAIProvider(Config{APIURL: "http://127.0.0.1:1"})
	if _, err := provider.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "openai", "OpenAI", "fireworks", "ollama"} {
		if _, err := NewProvider(Config{Provider: name}); err != nil {
			t.Fatalf("provider %q: %v", name, err)
		}
	}
	if _, err := NewProvider(Config{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
