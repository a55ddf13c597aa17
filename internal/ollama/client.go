package ollama

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// retryFailureMessage is returned to the caller after the retry helper
	// exhausts its attempts. It is a user-facing string, not an error.
	retryFailureMessage = "I'm sorry, I wasn't able to process your request after multiple attempts. Please try again later."

	maxRetries       = 3
	baseRetryBackoff = 1000 * time.Millisecond
)

// Client is the gateway to a local Ollama server. Generation failures surface
// as errors; embedding failures degrade to a pseudo-random fallback vector so
// ingestion never aborts.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	embedDim   int
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter

	// embedCache memoizes embedding vectors by text hash, keyed the same way
	// the response cache in a chat pipeline would be.
	embedCache sync.Map

	sleep func(time.Duration)
}

func New(baseURL, genModel, embedModel string, embedDim int, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if genModel == "" {
		genModel = "llama2"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if embedDim <= 0 {
		embedDim = 768
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		genModel:   genModel,
		embedModel: embedModel,
		embedDim:   embedDim,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     otel.Tracer("studychat"),
		meter:      otel.Meter("studychat"),
		sleep:      time.Sleep,
	}
}

// Dimension reports the embedding vector length the client produces,
// including on the fallback path.
func (c *Client) Dimension() int {
	return c.embedDim
}

// Available reports whether the Ollama server answers its version endpoint.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ollama service unavailable", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Chat sends the prompt as a structured user message to /api/chat and returns
// the assistant reply.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ollama_chat_call")
	defer span.End()

	start := time.Now()

	reqBody := ChatRequest{
		Model: c.genModel,
		Messages: []map[string]string{
			{"role": "user", "content": prompt},
		},
		Stream: false,
	}

	body, err := c.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", err
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.recordDuration(ctx, time.Since(start))
	return apiResp.Message.Content, nil
}

// Generate sends the raw prompt to /api/generate. The endpoint streams
// newline-delimited JSON records; their response fragments are concatenated
// in arrival order. Malformed records are skipped.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ollama_generate_call")
	defer span.End()

	start := time.Now()

	reqBody := GenerateRequest{Model: c.genModel, Prompt: prompt}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var full bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk GenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Warn("failed to parse response line", "line", string(line), "error", err)
			continue
		}
		full.WriteString(chunk.Response)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read response stream: %w", err)
	}

	c.recordDuration(ctx, time.Since(start))
	return full.String(), nil
}

// GenerateWithRetry wraps Generate with up to three attempts and exponential
// backoff. After exhausting the attempts it returns a fixed failure string
// rather than an error.
func (c *Client) GenerateWithRetry(ctx context.Context, prompt string) string {
	backoff := baseRetryBackoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := c.Generate(ctx, prompt)
		if err == nil {
			return response
		}
		c.logger.Error("generate attempt failed", "attempt", attempt, "max_retries", maxRetries, "error", err)
		if attempt == maxRetries {
			break
		}
		c.sleep(backoff)
		backoff *= 2
	}
	return retryFailureMessage
}

// Embed requests an embedding vector for the text. On any failure it returns
// a pseudo-random vector of the configured dimensionality with components in
// [-1, 1): the fallback keeps the indexing pipeline alive at the cost of
// meaningless similarity for that passage.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
	if cached, ok := c.embedCache.Load(key); ok {
		return cached.([]float64), nil
	}

	ctx, span := c.tracer.Start(ctx, "ollama_embeddings_call")
	defer span.End()

	body, err := c.post(ctx, "/api/embeddings", EmbeddingsRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		c.logger.Error("embedding request failed, using fallback vector", "error", err)
		return c.fallbackVector(), nil
	}

	var apiResp EmbeddingsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		c.logger.Error("failed to unmarshal embedding response, using fallback vector", "error", err)
		return c.fallbackVector(), nil
	}
	if len(apiResp.Embedding) == 0 {
		c.logger.Error("embedding response missing vector, using fallback vector")
		return c.fallbackVector(), nil
	}

	c.embedCache.Store(key, apiResp.Embedding)
	return apiResp.Embedding, nil
}

func (c *Client) fallbackVector() []float64 {
	vec := make([]float64, c.embedDim)
	for i := range vec {
		vec[i] = rand.Float64()*2 - 1
	}
	return vec
}

func (c *Client) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return body, nil
}

func (c *Client) recordDuration(ctx context.Context, duration time.Duration) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}
}
