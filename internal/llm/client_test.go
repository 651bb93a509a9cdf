package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "world"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", "gpt-4o-mini", time.Second)
	got, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "world" {
		t.Errorf("Generate() = %q, want %q", got, "world")
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "m", time.Second)
	_, err := c.Generate(context.Background(), "hello")
	if err == nil {
		t.Fatal("Generate() error = nil, want rate limit error")
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "m", time.Second)
	_, err := c.Generate(context.Background(), "hello")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Generate() error = %v, want ErrEmptyCompletion", err)
	}
}
