package session

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("session store is closed")

// Store abstracts session history storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the history for a session in order.
	// Unseen session IDs yield an empty history, not an error.
	Get(ctx context.Context, sessionID string) ([]Turn, error)

	// Set replaces the stored history for a session atomically.
	Set(ctx context.Context, sessionID string, turns []Turn) error

	// Close releases any resources held by the store.
	Close() error
}
