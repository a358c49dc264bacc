package repository

import (
	"context"

	"github.com/collinglass/blarg/internal/domain"
)

// Archiver adapts the repositories to the feed core's write-through hooks.
type Archiver struct {
	rooms    RoomRepository
	comments CommentRepository
}

// NewArchiver creates a feed archiver over the given repositories.
func NewArchiver(rooms RoomRepository, comments CommentRepository) *Archiver {
	return &Archiver{rooms: rooms, comments: comments}
}

func (a *Archiver) RoomOpened(ctx context.Context, roomID, hostID, title string) error {
	return a.rooms.Open(ctx, roomID, hostID, title)
}

func (a *Archiver) RoomClosed(ctx context.Context, roomID string) error {
	return a.rooms.Close(ctx, roomID)
}

func (a *Archiver) TitleChanged(ctx context.Context, roomID, title string) error {
	return a.rooms.SetTitle(ctx, roomID, title)
}

func (a *Archiver) CommentAdded(ctx context.Context, roomID string, c domain.Comment) error {
	return a.comments.Save(ctx, roomID, c)
}
