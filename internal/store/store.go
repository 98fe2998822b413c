//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store persists the chat message log as a single unit and
// serializes writes so that an older snapshot never overwrites a newer one.
package store

import (
	"context"
	"fmt"

	"github.com/Tyrowin/livechat/internal/chat"
)

// Store reads and writes the whole message log.
type Store interface {
	// Load returns the persisted log. A missing or empty store yields an
	// empty slice and no error.
	Load(ctx context.Context) ([]chat.Entry, error)
	// Persist atomically replaces the stored log with snapshot.
	Persist(ctx context.Context, snapshot []chat.Entry) error
}

// UnavailableStore stands in for a backend that could not be opened. Every
// call fails with Err wrapped in chat.ErrStorageUnavailable, so the chat
// starts from an empty log and keeps running without persistence.
type UnavailableStore struct {
	Err error
}

func (s UnavailableStore) Load(context.Context) ([]chat.Entry, error) {
	return nil, fmt.Errorf("%w: store not opened: %w", chat.ErrStorageUnavailable, s.Err)
}

func (s UnavailableStore) Persist(context.Context, []chat.Entry) error {
	return fmt.Errorf("%w: store not opened: %w", chat.ErrStorageUnavailable, s.Err)
}
