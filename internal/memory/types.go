package memory

import (
	"context"
	"time"

	"github.com/antoniostano/meera/internal/chat"
)

// Metadata travels with a recorded message so the memory service can rank
// and scope it later.
type Metadata struct {
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Client talks to an external long-term memory service. Both calls are
// best-effort from the pipeline's point of view: a failed Search contributes
// an empty result and a failed Record is dropped with a warning; neither
// interrupts a turn.
type Client interface {
	// Search returns up to topK past messages ranked by the service's own
	// similarity metric, in the service's retrieval order.
	Search(ctx context.Context, userID, query string, topK int) ([]chat.HistoryEntry, error)
	// Record stores one message for future retrieval.
	Record(ctx context.Context, userID string, entry chat.HistoryEntry, meta Metadata) error
}
