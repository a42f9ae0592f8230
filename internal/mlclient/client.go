package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentiment-classifier/internal/models"

	"github.com/sony/gobreaker"
)

// Client is a client for the sentiment classification API
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new client. After five consecutive failures calls fail
// fast for 30 seconds.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sentiment-api",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// State returns the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// ClassifySingle classifies a single message
func (c *Client) ClassifySingle(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	var result models.ClassifyResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/classify/single", models.ClassifyRequest{Text: text}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClassifyBatch classifies multiple messages in one request
func (c *Client) ClassifyBatch(ctx context.Context, messages []models.BatchMessage) (*models.BatchClassifyResponse, error) {
	var result models.BatchClassifyResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/classify/batch", models.BatchClassifyRequest{Messages: messages}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the service is healthy
func (c *Client) HealthCheck(ctx context.Context) (*models.HealthResponse, error) {
	var result models.HealthResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetModelInfo retrieves information about the loaded model
func (c *Client) GetModelInfo(ctx context.Context) (*models.ModelInfo, error) {
	var result models.ModelInfo
	if err := c.call(ctx, http.MethodGet, "/api/v1/model/info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sentiment service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
