package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/apiask/pkg/types"
)

// Client calls an OpenAI-compatible embeddings endpoint. The response
// vectors are returned in input order; the index field of each datum is
// honored rather than trusting the array position.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

var sleepFn = time.Sleep

const maxRetries = 3

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/embeddings"
	body, err := json.Marshal(map[string]interface{}{
		"model": c.Model,
		"input": inputs,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: embeddings: %v", types.ErrRemote, err)
			if attempt < maxRetries && ctx.Err() == nil {
				sleepFn(backoff(attempt))
				continue
			}
			return nil, lastErr
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: embeddings: %v", types.ErrRemote, err)
			if attempt < maxRetries {
				sleepFn(backoff(attempt))
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: embeddings status %d: %s", types.ErrRemote, resp.StatusCode, strings.TrimSpace(string(data)))
			if attempt < maxRetries {
				wait := backoff(attempt)
				if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					}
				}
				sleepFn(wait)
				continue
			}
			return nil, lastErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: embeddings status %d: %s", types.ErrRemote, resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var out struct {
			Data []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%w: embeddings: %v", types.ErrRemote, err)
		}
		if len(out.Data) != len(inputs) {
			return nil, fmt.Errorf("%w: embeddings: got %d vectors for %d inputs", types.ErrRemote, len(out.Data), len(inputs))
		}
		vectors := make([][]float32, len(inputs))
		for _, d := range out.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("%w: embeddings: index %d out of range", types.ErrRemote, d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		if c.Logger != nil {
			c.Logger.Debug("embedded batch", "inputs", len(inputs), "dimension", len(vectors[0]))
		}
		return vectors, nil
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Second << attempt
}
