package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/bus"
	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/store"
)

// UserHandlers provides HTTP handlers for the caller's account.
type UserHandlers struct {
	users store.UserStore
	bus   bus.Bus
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(users store.UserStore, b bus.Bus, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users: users,
		bus:   b,
		log:   logger,
	}
}

// Me returns the authenticated account.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: errs.CodeUnauthorized})
		return
	}
	c.JSON(http.StatusOK, UserResponse{ID: p.ID, Username: p.Username, Role: string(p.Role)})
}

// DeleteMe removes the caller's account and tells every hub to evict it.
// DELETE /api/users/me
func (h *UserHandlers) DeleteMe(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: errs.CodeUnauthorized})
		return
	}

	ctx := c.Request.Context()
	if err := h.users.DeleteUser(ctx, p.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found", Code: errs.CodeUserNotFound})
			return
		}
		writeError(c, h.log, errs.StoreFailure(err), "failed to delete user")
		return
	}

	if err := h.bus.PublishUserDeleted(ctx, p.ID); err != nil {
		// The account is gone either way; only live sockets outlast it.
		h.log.Error().Err(err).Int64("user_id", p.ID).Msg("failed to publish user deleted")
	}

	h.log.Info().Int64("user_id", p.ID).Str("username", p.Username).Msg("user deleted")
	c.Status(http.StatusNoContent)
}
