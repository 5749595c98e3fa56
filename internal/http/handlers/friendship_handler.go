package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/services"
)

// FriendRequest is the JSON payload for sending a friend request.
type FriendRequest struct {
	ReceiverID uint `json:"receiverId" binding:"required" example:"7"`
}

// failFriendship maps friendship service errors to HTTP results.
func failFriendship(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSelfFriendship), errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrFriendshipNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrFriendshipExists), errors.Is(err, services.ErrFriendshipNotPending):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "friendship update failed")
	}
}

// RequestFriendship godoc
// @ID          requestFriendship
// @Summary     Send a friend request
// @Tags        Friendships
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body body handlers.FriendRequest true "Receiver"
// @Success     201  {object} domain.Friendship
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Self request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     409  {object} handlers.ErrorResponse "Already exists"
// @Router      /friendships/requests [post]
func (h *Handlers) RequestFriendship(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	var req FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiverId required")
		return
	}
	f, err := h.friendSvc.Request(c.Request.Context(), uid, req.ReceiverID)
	if err != nil {
		failFriendship(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// AcceptFriendship godoc
// @ID          acceptFriendship
// @Summary     Accept a friend request
// @Description Only the receiver of a pending request may accept it.
// @Tags        Friendships
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Friendship ID"
// @Success     200  {object} domain.Friendship
// @Failure     403  {object} handlers.ErrorResponse "Not the receiver"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Not pending"
// @Router      /friendships/requests/{id}/accept [post]
func (h *Handlers) AcceptFriendship(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	f, err := h.friendSvc.Accept(c.Request.Context(), id, uid)
	if err != nil {
		failFriendship(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}
