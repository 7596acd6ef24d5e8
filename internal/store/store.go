// Package store is the persistence collaborator of the chat core: it saves messages,
// returns the recent history and purges everything on admin request.
package store

import (
	"context"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// DefaultHistoryLimit bounds RecentMessages when the configuration leaves it unset.
const DefaultHistoryLimit = 50

// Store exposes message persistence to the gateway and the admin plane.
//
// RecentMessages returns at most the configured limit of the newest messages in
// chronological order (oldest first).
type Store interface {
	SaveMessage(ctx context.Context, msg chat.Message) error
	RecentMessages(ctx context.Context) ([]chat.Message, error)
	ClearMessages(ctx context.Context) error
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
