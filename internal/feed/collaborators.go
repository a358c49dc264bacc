package feed

import (
	"context"

	"github.com/collinglass/blarg/internal/domain"
)

// Presence advertises live rooms to the outside world (e.g. a Redis registry
// with TTL heartbeat). Calls are made off the room mutation path.
type Presence interface {
	RoomUp(ctx context.Context, roomID string) error
	RoomDown(ctx context.Context, roomID string) error
}

// Archiver persists room metadata and comments beyond process lifetime. The
// feed core never reads it back; the history API does.
type Archiver interface {
	RoomOpened(ctx context.Context, roomID, hostID, title string) error
	RoomClosed(ctx context.Context, roomID string) error
	TitleChanged(ctx context.Context, roomID, title string) error
	CommentAdded(ctx context.Context, roomID string, c domain.Comment) error
}

// Mirror republishes accepted broadcasts to an external stream (e.g. Kafka)
// for downstream consumers.
type Mirror interface {
	Produce(ctx context.Context, ev *domain.Event) error
}

// Collaborators bundles the optional external integrations. Nil fields are
// skipped.
type Collaborators struct {
	Presence Presence
	Archiver Archiver
	Mirror   Mirror
}
