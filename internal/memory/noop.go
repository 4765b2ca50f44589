package memory

import (
	"context"

	"github.com/antoniostano/meera/internal/chat"
)

// NoopClient stands in when the semantic memory capability is not
// configured: searches are empty, records are dropped. Selecting it once at
// startup keeps conditional checks out of the turn pipeline.
type NoopClient struct{}

func NewNoopClient() *NoopClient { return &NoopClient{} }

func (*NoopClient) Search(context.Context, string, string, int) ([]chat.HistoryEntry, error) {
	return nil, nil
}

func (*NoopClient) Record(context.Context, string, chat.HistoryEntry, Metadata) error {
	return nil
}
