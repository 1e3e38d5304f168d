package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the default Ollama API endpoint.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is the default generation model.
	DefaultModel = "llama3.1"

	// DefaultTimeout is the HTTP request timeout. Generation is slow.
	DefaultTimeout = 2 * time.Minute

	// DefaultRateLimit caps generation requests per second.
	DefaultRateLimit = 2.0

	// apiPathGenerate is the Ollama API endpoint for completions.
	apiPathGenerate = "/api/generate"
)

// OllamaClient implements Oracle against the Ollama generate API.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets the Ollama API base URL.
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the generation model.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(c *OllamaClient) {
		c.client.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.client = hc
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(rps float64) OllamaOption {
	return func(c *OllamaClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewOllamaClient creates a rate-limited Ollama generation client.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ollamaGenerateRequest is the request body for the generate API.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the non-streaming generate response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate sends the prompt and returns the completion text.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPathGenerate, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

// ModelName returns the configured generation model.
func (c *OllamaClient) ModelName() string {
	return c.model
}
