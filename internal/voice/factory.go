package voice

import (
	"fmt"
	"strings"
	"time"
)

// NewProvider builds the configured TTS provider. A nil provider means
// speech is disabled; replies are text-only.
func NewProvider(mode, url, speaker string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		if strings.TrimSpace(url) == "" {
			return nil, nil
		}
		return NewHTTPProvider(HTTPConfig{URL: url, Speaker: speaker, Timeout: timeout}), nil
	case "http":
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("TTS_URL is required for http mode")
		}
		return NewHTTPProvider(HTTPConfig{URL: url, Speaker: speaker, Timeout: timeout}), nil
	case "mock":
		return NewMockProvider(), nil
	case "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid TTS_MODE: %q (expected auto|http|mock|off)", mode)
	}
}
