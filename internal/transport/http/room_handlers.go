package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/proto"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	rooms    *rooms.Service
	messages store.MessageStore
	hub      *core.Hub
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *rooms.Service, messages store.MessageStore, hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms:    svc,
		messages: messages,
		hub:      hub,
		cfg:      cfg,
		log:      logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: errs.CodeUnauthorized})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: errs.CodeBadRequest})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), req.Name, p.ID, false)
	if err != nil {
		writeError(c, h.log, err, "failed to create room")
		return
	}
	h.hub.RoomCreated(room)

	h.log.Info().Str("room_name", room.Name).Str("room_id", room.ID).Int64("created_by", p.ID).Msg("room created successfully")
	c.JSON(http.StatusCreated, roomDTO(room))
}

// ListRooms handles listing every room.
// GET /api/rooms?withMembers=true
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	withMembers, _ := strconv.ParseBool(c.Query("withMembers"))

	list, err := h.rooms.List(c.Request.Context(), withMembers)
	if err != nil {
		writeError(c, h.log, err, "failed to list rooms")
		return
	}
	c.JSON(http.StatusOK, roomDTOs(list))
}

// ListMessages returns recent messages of a room the caller belongs to.
// GET /api/rooms/:id/messages?limit=50
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: errs.CodeUnauthorized})
		return
	}
	roomID := c.Param("id")

	limit := h.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Code: errs.CodeBadRequest})
			return
		}
		limit = min(n, h.cfg.HistoryLimit)
	}

	ctx := c.Request.Context()
	if _, err := h.rooms.Get(ctx, roomID); err != nil {
		writeError(c, h.log, err, "failed to load room")
		return
	}
	member, err := h.rooms.IsMember(ctx, roomID, p.ID)
	if err != nil {
		writeError(c, h.log, err, "failed to check membership")
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "you are not a member of this room", Code: errs.CodeNotAMember})
		return
	}

	msgs, err := h.messages.ListMessages(ctx, roomID, limit)
	if err != nil {
		writeError(c, h.log, errs.StoreFailure(err), "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, proto.RoomHistory{RoomID: roomID, Messages: messageDTOs(msgs)})
}
