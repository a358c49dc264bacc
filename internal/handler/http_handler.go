package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collinglass/blarg/internal/feed"
	"github.com/collinglass/blarg/internal/history"
	"github.com/collinglass/blarg/internal/repository"
	"github.com/collinglass/blarg/pkg/log"
	"github.com/collinglass/blarg/pkg/response"
)

// HTTPHandler serves the read-only room and history API.
type HTTPHandler struct {
	dispatcher *feed.Dispatcher
	history    history.Service
}

func NewHTTPHandler(d *feed.Dispatcher, h history.Service) *HTTPHandler {
	return &HTTPHandler{
		dispatcher: d,
		history:    h,
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.GET("/history", h.ListRoomHistory)
			rooms.GET("/:id", h.GetRoom)
			rooms.GET("/:id/comments", h.GetComments)
		}
	}
}

// ListRooms returns summaries of all live rooms.
func (h *HTTPHandler) ListRooms(c *gin.Context) {
	response.Success(c, h.dispatcher.Rooms())
}

// ListRoomHistory returns persisted room records with pagination.
func (h *HTTPHandler) ListRoomHistory(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize > 100 {
		pageSize = 100
	}

	records, total, err := h.history.ListRooms(ctx, page, pageSize)
	if err != nil {
		l.Error().Err(err).Msg("failed to list room history")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, gin.H{
		"rooms":     records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetRoom returns the live snapshot of a room, falling back to its persisted
// record once it has been torn down.
func (h *HTTPHandler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")

	if snapshot, ok := h.dispatcher.RoomSnapshot(roomID); ok {
		response.Success(c, gin.H{"live": true, "room": snapshot})
		return
	}

	record, err := h.history.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return
	}

	response.Success(c, gin.H{"live": false, "room": record})
}

// GetComments pages backwards through a room's persisted comment history.
func (h *HTTPHandler) GetComments(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")

	before, err := strconv.ParseUint(c.DefaultQuery("before", "0"), 10, 64)
	if err != nil {
		response.BadRequest(c, "before must be a sequence number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}

	comments, err := h.history.Comments(ctx, roomID, before, limit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get comments")
		response.InternalError(c, "failed to get comments")
		return
	}

	response.Success(c, gin.H{
		"room_id":  roomID,
		"comments": comments,
	})
}
