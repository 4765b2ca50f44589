package memory

import (
	"strings"
	"time"
)

// NewClient creates an HTTP-backed client when credentials are present,
// otherwise a no-op null client that disables the capability entirely.
func NewClient(baseURL, apiKey string, timeout time.Duration) Client {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(baseURL) == "" {
		return NewNoopClient()
	}
	return NewHTTPClient(baseURL, apiKey, timeout)
}
