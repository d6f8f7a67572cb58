package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingClient turns text into vectors for semantic search.
type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// maxEmbedInputChars bounds each input; embedding models truncate
// silently past their context window, so we cut deterministically instead.
const maxEmbedInputChars = 8000

type embeddingBackend interface {
	embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// EmbeddingProvider routes embedding calls to a configured backend.
type EmbeddingProvider struct {
	backend embeddingBackend
}

func NewEmbeddingClient(cfg Config) (EmbeddingClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	baseURL := strings.TrimRight(cfg.APIURL, "/")

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return &EmbeddingProvider{backend: &openAIEmbedder{
			client: httpClient,
			apiKey: cfg.APIKey,
			url:    baseURL + "/embeddings",
			model:  cfg.Model,
		}}, nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &EmbeddingProvider{backend: &ollamaEmbedder{
			client: httpClient,
			url:    baseURL + "/api/embeddings",
			model:  cfg.Model,
		}}, nil
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", cfg.Provider)
	}
}

func (p *EmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	clipped := make([]string, len(inputs))
	for i, in := range inputs {
		if len(in) > maxEmbedInputChars {
			in = in[:maxEmbedInputChars]
		}
		clipped[i] = in
	}
	return p.backend.embed(ctx, clipped)
}

// openAIEmbedder batches all inputs into a single request.
type openAIEmbedder struct {
	client *http.Client
	apiKey string
	url    string
	model  string
}

func (e *openAIEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	payload, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: e.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("openai embed: marshal request: %w", err)
	}

	body, err := postJSON(ctx, e.client, e.url, payload, e.apiKey)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", err)
	}
	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(response.Data), len(inputs))
	}

	vectors := make([][]float32, len(response.Data))
	for i, entry := range response.Data {
		vectors[i] = entry.Embedding
	}
	return vectors, nil
}

// ollamaEmbedder embeds one prompt per request; the API has no batch form.
type ollamaEmbedder struct {
	client *http.Client
	url    string
	model  string
}

func (e *ollamaEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		payload, err := json.Marshal(struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}{Model: e.model, Prompt: input})
		if err != nil {
			return nil, fmt.Errorf("ollama embed: marshal request: %w", err)
		}

		body, err := postJSON(ctx, e.client, e.url, payload, "")
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}

		var response struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("ollama embed: decode response: %w", err)
		}
		if len(response.Embedding) == 0 {
			return nil, errors.New("ollama embed: empty embedding in response")
		}
		vectors = append(vectors, response.Embedding)
	}
	return vectors, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload []byte, bearer string) ([]byte, error) {
	resp, err := doWithRetry(ctx, client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
