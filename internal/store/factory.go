package store

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise a
// file-backed one. The choice is a deployment decision; both honor the same
// Load/Append contract.
func NewStore(ctx context.Context, databaseURL, fileDir string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(fileDir)
	}
	return NewPostgresStore(ctx, databaseURL)
}
