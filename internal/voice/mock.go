package voice

import "context"

// MockProvider produces a placeholder payload for local development.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (*MockProvider) Synthesize(ctx context.Context, text string) (Audio, error) {
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	default:
	}
	return Audio{Data: []byte(text), Format: "mock"}, nil
}
