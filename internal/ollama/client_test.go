package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "llama2", "nomic-embed-text", 8, 5*time.Second, nil)
	return c, srv
}

func TestGenerateConcatenatesStreamInOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"response":"Hello"}`)
		fmt.Fprintln(w, `{"response":", "}`)
		fmt.Fprintln(w, `{"response":"world"}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))

	got, err := c.Generate(context.Background(), "greet me")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("Generate = %q, want %q", got, "Hello, world")
	}
}

func TestGenerateSkipsMalformedRecords(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"keep "}`)
		fmt.Fprintln(w, `this line is not JSON`)
		fmt.Fprintln(w, `{"response":"going"}`)
	}))

	got, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "keep going" {
		t.Errorf("Generate = %q, want %q", got, "keep going")
	}
}

func TestGenerateNon200IsError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))

	if _, err := c.Generate(context.Background(), "q"); err == nil {
		t.Fatal("Generate succeeded on a 404 response")
	}
}

func TestChatReturnsMessageContent(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"model":"llama2","message":{"role":"assistant","content":"model answer"},"done":true}`)
	}))

	got, err := c.Chat(context.Background(), "question")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "model answer" {
		t.Errorf("Chat = %q, want %q", got, "model answer")
	}
}

func TestGenerateWithRetrySucceedsAfterTwoFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, `{"response":"third time lucky"}`)
	}))

	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	got := c.GenerateWithRetry(context.Background(), "q")
	if got != "third time lucky" {
		t.Fatalf("GenerateWithRetry = %q, want %q", got, "third time lucky")
	}
	if len(sleeps) != 2 {
		t.Fatalf("incurred %d backoff delays, want 2", len(sleeps))
	}
	if sleeps[0] != 1000*time.Millisecond || sleeps[1] != 2000*time.Millisecond {
		t.Errorf("backoff delays = %v, want [1s 2s]", sleeps)
	}
}

func TestGenerateWithRetryExhaustionReturnsFixedString(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	var sleeps int
	c.sleep = func(time.Duration) { sleeps++ }

	got := c.GenerateWithRetry(context.Background(), "q")
	if got != retryFailureMessage {
		t.Errorf("GenerateWithRetry = %q, want the fixed failure message", got)
	}
	if sleeps != 2 {
		t.Errorf("incurred %d backoff delays, want 2", sleeps)
	}
}

func TestEmbedParsesVector(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"embedding":[0.1,0.2,0.3]}`)
	}))

	vec, err := c.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("Embed = %v, want [0.1 0.2 0.3]", vec)
	}
}

func TestEmbedFallbackShape(t *testing.T) {
	// No server at all: the endpoint is unreachable.
	c := New("http://127.0.0.1:1", "llama2", "nomic-embed-text", 8, time.Second, nil)

	vec, err := c.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Embed returned an error on the fallback path: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("fallback vector length = %d, want the configured dimensionality 8", len(vec))
	}
	for i, v := range vec {
		if v < -1 || v > 1 {
			t.Errorf("fallback component %d = %v, want within [-1, 1]", i, v)
		}
	}
}

func TestEmbedCachesByText(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintln(w, `{"embedding":[1,2]}`)
	}))

	for i := 0; i < 3; i++ {
		if _, err := c.Embed(context.Background(), "same text"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("embedding endpoint called %d times for identical text, want 1", got)
	}
}

func TestAvailable(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"version":"0.1.0"}`)
	}))
	defer okSrv.Close()

	c := New(okSrv.URL, "", "", 0, time.Second, nil)
	if !c.Available(context.Background()) {
		t.Error("Available = false against a healthy server")
	}

	down := New("http://127.0.0.1:1", "", "", 0, time.Second, nil)
	if down.Available(context.Background()) {
		t.Error("Available = true against an unreachable server")
	}
}
