// Package llmkit holds the abstract LLM/embedding collaborator
// contracts and the orchestrations built on top of them:
// metadata generation, query parsing, and strategy analysis.
// Concrete transports are HTTP clients following the widely
// used chat/embedding request shapes; the engine never depends on a
// specific vendor.
package llmkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LLMClient is the abstract chat/embedding collaborator contract.
// MetadataGenerator, QueryExpander, Reranker, QueryParser,
// StrategyAnalyzer, and WorkflowPlanner are thin orchestrations over
// this interface.
type LLMClient interface {
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingDimensions() int
	ModelName() string
}

// HTTPConfig configures an HTTPLLMClient.
type HTTPConfig struct {
	BaseURL    string
	Model      string
	EmbedModel string
	APIKey     string
	Timeout    time.Duration

	// Temperature and MaxTokens are forwarded on every chat request.
	Temperature float64
	MaxTokens   int
}

// DefaultHTTPConfig returns sensible defaults for a local LLM gateway.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:     "http://localhost:11434/v1",
		Model:       "llama3.2:1b",
		EmbedModel:  "nomic-embed-text",
		Timeout:     30 * time.Second,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

// HTTPLLMClient is an LLMClient backed by the widely used
// OpenAI-compatible HTTP shapes:
// chat -> {messages, temperature, max_tokens, model}
// embed -> {model, input[]}
type HTTPLLMClient struct {
	client *http.Client
	config HTTPConfig
	dims   int
}

var _ LLMClient = (*HTTPLLMClient)(nil)

// NewHTTPLLMClient creates an HTTP-backed LLM client. dims is the
// known embedding dimensionality of EmbedModel (the engine treats
// the embedder's returned dimension as canonical, but
// a configured value lets callers reason about it before the first
// call completes).
func NewHTTPLLMClient(cfg HTTPConfig, dims int) *HTTPLLMClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPLLMClient{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		dims:   dims,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatChoice struct {
	Message Message `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// ChatCompletion sends messages to the chat endpoint and returns the
// first choice's content.
func (c *HTTPLLMClient) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      false,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", kberrors.New(kberrors.CodeLLM, "marshal chat request", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", kberrors.New(kberrors.CodeLLM, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", kberrors.New(kberrors.CodeHTTP, "chat completion request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", kberrors.New(kberrors.CodeHTTP, fmt.Sprintf("chat completion status %d: %s", resp.StatusCode, string(data)), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", kberrors.New(kberrors.CodeParse, "decode chat response", err)
	}
	if len(out.Choices) == 0 {
		return "", kberrors.New(kberrors.CodeLLM, "chat completion returned no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

// EmbedBatch embeds multiple texts in one request.
func (c *HTTPLLMClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := embedRequest{Model: c.config.EmbedModel, Input: texts}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeLLM, "marshal embed request", err)
	}

	url := c.config.BaseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, kberrors.New(kberrors.CodeLLM, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeHTTP, "embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, kberrors.New(kberrors.CodeHTTP, fmt.Sprintf("embedding status %d: %s", resp.StatusCode, string(data)), nil)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, kberrors.New(kberrors.CodeParse, "decode embedding response", err)
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
		if c.dims == 0 {
			c.dims = len(d.Embedding)
		}
	}
	return vecs, nil
}

// Embed embeds a single text.
func (c *HTTPLLMClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, kberrors.New(kberrors.CodeLLM, "embedding returned no vectors", nil)
	}
	return vecs[0], nil
}

// EmbeddingDimensions returns the configured embedding dimensionality,
// or, when none was configured, the one observed on the first response.
func (c *HTTPLLMClient) EmbeddingDimensions() int { return c.dims }

// ModelName returns the chat model identifier.
func (c *HTTPLLMClient) ModelName() string { return c.config.Model }
