package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no model endpoint is
// available.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.Question)
	if base == "" {
		base = "I am listening."
	}
	if len(req.ChatHistory) == 0 {
		return Response{Text: fmt.Sprintf("I hear you: %s", base)}, nil
	}
	last := strings.TrimSpace(req.ChatHistory[len(req.ChatHistory)-1].Content)
	if last == "" {
		return Response{Text: fmt.Sprintf("I hear you: %s", base)}, nil
	}
	return Response{Text: fmt.Sprintf("I hear you: %s\nI also remember: %s", base, last)}, nil
}
