package brain

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

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/reliability"
)

const systemPrompt = "You are Meera, an emotional assistant. Respond to user queries."

// HTTPAdapter calls an OpenAI-compatible chat-completions endpoint.
// Retryable statuses get a small number of backed-off attempts within the
// caller's deadline; everything else fails the call immediately.
type HTTPAdapter struct {
	baseURL   string
	apiKey    string
	modelName string
	client    *http.Client
}

// StatusError reports a non-2xx response from the model endpoint so callers
// can classify retryability.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint status %d: %s", e.Code, e.Detail)
}

func NewHTTPAdapter(cfg Config) *HTTPAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPAdapter{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		modelName: strings.TrimSpace(cfg.ModelName),
		client:    &http.Client{Timeout: timeout},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
	retryCap     = 2 * time.Second
)

func (a *HTTPAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(completionRequest{
		Model:    a.modelName,
		Messages: buildMessages(req),
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, retryBackoff, retryCap)):
			}
		}

		resp, err := a.attempt(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !reliability.IsRetryableHTTPStatus(statusErr.Code) {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func (a *HTTPAdapter) attempt(ctx context.Context, payload []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	res, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &StatusError{Code: res.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	var out completionResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("model endpoint returned no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("model endpoint returned an empty message")
	}
	return Response{Text: text}, nil
}

// buildMessages lays out the wire conversation: system prompt, assembled
// context in order, then the live question.
func buildMessages(req Request) []wireMessage {
	messages := make([]wireMessage, 0, len(req.ChatHistory)+2)
	messages = append(messages, wireMessage{Role: "system", Content: systemPrompt})
	for _, entry := range req.ChatHistory {
		role := "user"
		if entry.Type == chat.TypeAI {
			role = "assistant"
		}
		messages = append(messages, wireMessage{Role: role, Content: entry.Content})
	}
	messages = append(messages, wireMessage{Role: "user", Content: "Question:" + req.Question})
	return messages
}
