package store

import (
	"context"
	"errors"

	"github.com/antoniostano/meera/internal/chat"
)

// ErrStorage marks load/parse/write failures in a chat store. Callers are
// expected to degrade (empty conversation on load, dropped write with a
// warning) rather than abort the session.
var ErrStorage = errors.New("chat store failure")

// Store persists per-user conversation turns.
//
// Load returns the full ordered turn sequence for a user; a user with no
// prior conversation yields an empty slice and no error. Append durably
// records completed turns; each turn is written atomically so a crash never
// leaves a half-written message behind.
type Store interface {
	Load(ctx context.Context, username string) ([]chat.Turn, error)
	Append(ctx context.Context, username string, turns ...chat.Turn) error
	Close() error
}
