package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/services"
)

// ConversationResponse contains a page of direct messages and pagination metadata.
type ConversationResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation history
// @Description Messages between the caller and otherUserId in both directions, oldest first. Deleted messages carry placeholder content.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       otherUserId  path   int  true   "Other user ID"
// @Param       page         query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size    query  int  false  "Items per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object} handlers.ConversationResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages/conversation/{otherUserId} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	otherID, valid := pathID(c, "otherUserId")
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.Conversation(c.Request.Context(), uid, otherID, page, pageSize)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not load conversation")
		return
	}
	ok(c, http.StatusOK, ConversationResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
