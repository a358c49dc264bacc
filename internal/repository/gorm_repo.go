package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collinglass/blarg/internal/domain"
	"github.com/collinglass/blarg/pkg/log"
)

// RoomModel is the GORM schema for room metadata.
type RoomModel struct {
	ID        string `gorm:"primaryKey;size:128"`
	Title     string `gorm:"size:256"`
	HostID    string `gorm:"size:64"`
	OpenedAt  time.Time
	ClosedAt  *time.Time
	UpdatedAt time.Time
}

func (RoomModel) TableName() string { return "rooms" }

// CommentModel is the GORM schema for comments.
type CommentModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RoomID     string `gorm:"size:128;index:idx_room_seq,priority:1"`
	Sequence   uint64 `gorm:"index:idx_room_seq,priority:2"`
	AuthorID   string `gorm:"size:64"`
	AuthorName string `gorm:"size:128"`
	Body       string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (CommentModel) TableName() string { return "comments" }

// GormRepository implements RoomRepository and CommentRepository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository migrates the schema and returns a repository.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&RoomModel{}, &CommentModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormRepository{db: db}, nil
}

// Open records a room opening. A room ID reopened after teardown gets a fresh
// lifetime: host and title are overwritten and closed_at cleared.
func (r *GormRepository) Open(ctx context.Context, roomID, hostID, title string) error {
	model := RoomModel{
		ID:       roomID,
		Title:    title,
		HostID:   hostID,
		OpenedAt: time.Now().UTC(),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "host_id", "opened_at", "closed_at", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to record room open: %w", result.Error)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Msg("room recorded in db")
	return nil
}

// Close stamps closed_at on the room record.
func (r *GormRepository) Close(ctx context.Context, roomID string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&RoomModel{}).
		Where("id = ?", roomID).
		Update("closed_at", &now)
	if result.Error != nil {
		return fmt.Errorf("failed to record room close: %w", result.Error)
	}
	return nil
}

// SetTitle updates the persisted room title.
func (r *GormRepository) SetTitle(ctx context.Context, roomID, title string) error {
	result := r.db.WithContext(ctx).Model(&RoomModel{}).
		Where("id = ?", roomID).
		Update("title", title)
	if result.Error != nil {
		return fmt.Errorf("failed to update room title: %w", result.Error)
	}
	return nil
}

// Get retrieves a room record by ID.
func (r *GormRepository) Get(ctx context.Context, roomID string) (*RoomRecord, error) {
	var model RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", roomID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", result.Error)
	}
	return roomToRecord(&model), nil
}

// List retrieves room records with pagination, most recently opened first.
func (r *GormRepository) List(ctx context.Context, page, pageSize int) ([]RoomRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&RoomModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rooms: %w", err)
	}

	var models []RoomModel
	result := r.db.WithContext(ctx).
		Order("opened_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list rooms: %w", result.Error)
	}

	records := make([]RoomRecord, 0, len(models))
	for i := range models {
		records = append(records, *roomToRecord(&models[i]))
	}
	return records, total, nil
}

// Save appends one comment to the history table.
func (r *GormRepository) Save(ctx context.Context, roomID string, c domain.Comment) error {
	model := CommentModel{
		RoomID:     roomID,
		Sequence:   c.Sequence,
		AuthorID:   c.Author,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		CreatedAt:  c.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}
	return nil
}

// ListBefore returns up to limit comments with sequence below before (0 means
// from the latest), newest first.
func (r *GormRepository) ListBefore(ctx context.Context, roomID string, before uint64, limit int) ([]domain.Comment, error) {
	if limit < 1 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if before > 0 {
		q = q.Where("sequence < ?", before)
	}

	var models []CommentModel
	result := q.Order("sequence DESC").Limit(limit).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list comments: %w", result.Error)
	}

	comments := make([]domain.Comment, 0, len(models))
	for _, m := range models {
		comments = append(comments, domain.Comment{
			Sequence:   m.Sequence,
			Author:     m.AuthorID,
			AuthorName: m.AuthorName,
			Body:       m.Body,
			Timestamp:  m.CreatedAt,
		})
	}
	return comments, nil
}

func roomToRecord(m *RoomModel) *RoomRecord {
	return &RoomRecord{
		ID:       m.ID,
		Title:    m.Title,
		HostID:   m.HostID,
		OpenedAt: m.OpenedAt,
		ClosedAt: m.ClosedAt,
	}
}
