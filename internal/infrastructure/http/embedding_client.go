package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/relaydesk/internal/domain/embedding"
	"github.com/relaydesk/relaydesk/internal/metrics"
)

// EmbeddingClient is the HTTP transport for the BGE-M3 embedding service.
type EmbeddingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ embedding.Client = (*EmbeddingClient)(nil)

// EmbedRequest is the embedding service request body.
type EmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// EmbedResponse is the embedding service response body.
type EmbedResponse [][]float32

// ModelInfo describes the model the service is running.
type ModelInfo struct {
	ModelID        string `json:"model_id"`
	MaxInputLength int    `json:"max_input_length"`
}

func NewEmbeddingClient(baseURL, apiKey string, timeout time.Duration) *EmbeddingClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &EmbeddingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Embed generates embeddings for the given texts.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	jsonData, err := json.Marshal(EmbedRequest{
		Inputs:    texts,
		Normalize: true,
		Truncate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", c.baseURL+"/embed").
			Msg("embedding request failed")
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embeddings EmbedResponse
	if err := json.Unmarshal(bodyBytes, &embeddings); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	metrics.RecordEmbedding(time.Since(start).Seconds())
	log.Debug().
		Int("text_count", len(texts)).
		Int("embeddings", len(embeddings)).
		Dur("latency", time.Since(start)).
		Msg("embedding_request_done")

	return embeddings, nil
}

// Health probes the embedding service liveness endpoint.
func (c *EmbeddingClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Info retrieves model information from the service.
func (c *EmbeddingClient) Info(ctx context.Context) (*ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("info request failed with status %d", resp.StatusCode)
	}

	var info ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// ValidateServer confirms at startup that the service is alive, runs the
// expected model, and produces vectors of the width the schema expects.
func (c *EmbeddingClient) ValidateServer(ctx context.Context) error {
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	info, err := c.Info(ctx)
	if err != nil {
		return fmt.Errorf("info check failed: %w", err)
	}
	if info.ModelID != "BAAI/bge-m3" {
		log.Warn().Str("model", info.ModelID).Msg("expected BGE-M3, got different model")
	}

	embeddings, err := c.Embed(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("test embedding failed: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("test embedding returned no vectors")
	}
	if len(embeddings[0]) != embedding.Dimensions {
		return fmt.Errorf("expected %d dimensions, got %d", embedding.Dimensions, len(embeddings[0]))
	}

	log.Info().
		Str("model", info.ModelID).
		Int("max_input_length", info.MaxInputLength).
		Msg("embedding server validated")

	return nil
}
