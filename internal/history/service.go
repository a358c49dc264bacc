package history

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/collinglass/blarg/internal/domain"
	"github.com/collinglass/blarg/internal/repository"
)

// Service is the read path over persisted rooms and comments.
type Service interface {
	Room(ctx context.Context, roomID string) (*repository.RoomRecord, error)
	ListRooms(ctx context.Context, page, pageSize int) ([]repository.RoomRecord, int64, error)
	Comments(ctx context.Context, roomID string, before uint64, limit int) ([]domain.Comment, error)
}

type service struct {
	rooms    repository.RoomRepository
	comments repository.CommentRepository
	sf       singleflight.Group
}

// NewService creates a history service over the given repositories.
func NewService(rooms repository.RoomRepository, comments repository.CommentRepository) Service {
	return &service{rooms: rooms, comments: comments}
}

func (s *service) Room(ctx context.Context, roomID string) (*repository.RoomRecord, error) {
	return s.rooms.Get(ctx, roomID)
}

func (s *service) ListRooms(ctx context.Context, page, pageSize int) ([]repository.RoomRecord, int64, error) {
	return s.rooms.List(ctx, page, pageSize)
}

// Comments fetches one history page. Concurrent requests for the same page
// are collapsed through singleflight; comment pages are immutable once
// written, so sharing results across callers is safe.
func (s *service) Comments(ctx context.Context, roomID string, before uint64, limit int) ([]domain.Comment, error) {
	key := fmt.Sprintf("%s:%d:%d", roomID, before, limit)

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.comments.ListBefore(ctx, roomID, before, limit)
	})
	if err != nil {
		return nil, err
	}

	comments, ok := result.([]domain.Comment)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return comments, nil
}
