package ollama

// ChatRequest represents the request body for the Ollama /api/chat endpoint
type ChatRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// ChatResponse represents the response from the Ollama /api/chat endpoint
type ChatResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// GenerateRequest represents the request body for the Ollama /api/generate endpoint
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// GenerateChunk represents one newline-delimited record of the streamed
// /api/generate response
type GenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// EmbeddingsRequest represents the request body for the Ollama /api/embeddings endpoint
type EmbeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingsResponse represents the response from the Ollama /api/embeddings endpoint
type EmbeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// VersionResponse represents the response from the Ollama /api/version endpoint
type VersionResponse struct {
	Version string `json:"version"`
}
