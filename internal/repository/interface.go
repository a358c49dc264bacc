package repository

import (
	"context"
	"errors"
	"time"

	"github.com/collinglass/blarg/internal/domain"
)

// ErrRoomNotFound is returned when the requested room has never been seen.
var ErrRoomNotFound = errors.New("room not found")

// RoomRecord is the persisted metadata for a room across its lifetimes.
type RoomRecord struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	HostID   string     `json:"host_id"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// RoomRepository persists room metadata.
type RoomRepository interface {
	Open(ctx context.Context, roomID, hostID, title string) error
	Close(ctx context.Context, roomID string) error
	SetTitle(ctx context.Context, roomID, title string) error
	Get(ctx context.Context, roomID string) (*RoomRecord, error)
	List(ctx context.Context, page, pageSize int) ([]RoomRecord, int64, error)
}

// CommentRepository persists the full comment history, beyond the in-memory
// retention cap.
type CommentRepository interface {
	Save(ctx context.Context, roomID string, c domain.Comment) error
	// ListBefore returns up to limit comments of a room with sequence numbers
	// strictly below before (0 = from the latest), newest first.
	ListBefore(ctx context.Context, roomID string, before uint64, limit int) ([]domain.Comment, error)
}
