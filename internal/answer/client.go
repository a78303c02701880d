package answer

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

// Client is an OpenAI-compatible chat completions client. A response
// with no usable content yields ("", nil); the synthesizer decides what
// that means.
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

var sleepFn = time.Sleep

const maxRetries = 3

func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	payload := map[string]interface{}{
		"model":       c.Model,
		"max_tokens":  c.MaxTokens,
		"temperature": c.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if c.Logger != nil {
		c.Logger.Debug("completion request", "url", endpoint, "user_len", len(userPrompt))
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: completion: %v", types.ErrRemote, err)
			if attempt < maxRetries && ctx.Err() == nil {
				sleepFn(backoff(attempt))
				continue
			}
			return "", lastErr
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: completion: %v", types.ErrRemote, err)
			if attempt < maxRetries {
				sleepFn(backoff(attempt))
				continue
			}
			return "", lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: completion status %d: %s", types.ErrRemote, resp.StatusCode, strings.TrimSpace(string(data)))
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
			return "", lastErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("%w: completion status %d: %s", types.ErrRemote, resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var out struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return "", fmt.Errorf("%w: completion: %v", types.ErrRemote, err)
		}
		if len(out.Choices) == 0 {
			return "", nil
		}
		return out.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Second << attempt
}
