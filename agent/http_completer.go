package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// HTTPCompleter talks to an Ollama-compatible generate endpoint.
type HTTPCompleter struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

// HTTPCompleterConfig configures the completion backend.
type HTTPCompleterConfig struct {
	// Generate endpoint URL, e.g. http://localhost:11434/api/generate
	Endpoint string
	// Model name
	Model string
	// Per-request timeout
	Timeout time.Duration
}

// NewHTTPCompleter creates a completer over the configured backend.
func NewHTTPCompleter(cfg HTTPCompleterConfig, logger *zap.Logger) *HTTPCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPCompleter{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "completer")),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete implements Completer. Connection-class failures come back as
// transient errors so the recovery policy retries them; a non-200 from
// the backend is permanent.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || isConnError(err) {
			return "", types.NewTransientAgentError("completion backend unreachable", err)
		}
		return "", types.NewTransientAgentError("completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return "", types.NewTransientAgentError(
				fmt.Sprintf("completion backend returned %d: %s", resp.StatusCode, data), nil)
		}
		return "", types.NewPermanentAgentError(
			fmt.Sprintf("completion backend returned %d: %s", resp.StatusCode, data), nil)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", types.NewPermanentAgentError("invalid completion response", err)
	}

	c.logger.Debug("completion finished",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_chars", len(gen.Response)))
	return gen.Response, nil
}

func isConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
