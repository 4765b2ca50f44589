package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/meera/internal/chat"
)

// Request is the normalized request sent to the model collaborator. The
// model call itself is stateless: everything it should know arrives in
// ChatHistory.
type Request struct {
	UserID      string              `json:"user_id"`
	SessionID   string              `json:"session_id"`
	TurnID      string              `json:"turn_id"`
	Question    string              `json:"question"`
	ChatHistory []chat.HistoryEntry `json:"chat_history"`
}

// Response carries the assistant's reply text.
type Response struct {
	Text string `json:"text"`
}

// Adapter bridges the chat runtime with the hosted model endpoint.
type Adapter interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode      string
	APIKey    string
	BaseURL   string
	ModelName string
	Timeout   time.Duration
}

// ErrNotConfigured reports that required model credentials or identifiers
// are absent. It is fatal to the adapter only; the caller keeps the rest of
// the pipeline running in a degraded, model-unavailable mode.
var ErrNotConfigured = errors.New("model endpoint not configured")

// NewAdapter builds the configured adapter. In auto mode a missing
// configuration yields (nil, ErrNotConfigured) so the caller can degrade
// instead of exiting.
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		return NewHTTPAdapter(cfg), nil
	case "http":
		if err := validate(cfg); err != nil {
			return nil, err
		}
		return NewHTTPAdapter(cfg), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}

func validate(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "api key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		missing = append(missing, "model name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
