package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/services"
	"github.com/flamewall/realtime/internal/utils"
)

// ListNotificationsResponse wraps the newest notifications of the caller.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

// ReadByLinkRequest acknowledges every notification pointing at Link.
type ReadByLinkRequest struct {
	Link string `json:"link" binding:"required" example:"/messages/7"`
}

// MarkedResponse reports how many notifications changed.
type MarkedResponse struct {
	Updated int64 `json:"updated"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications
// @Description Newest first. Supports a weak ETag over the unread set via If-None-Match.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max items" minimum(1) maximum(100) default(30)
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Header      200  {string}  ETag  "Weak ETag for the unread set"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	limit := utils.Clamp(
		utils.AtoiDefault(c.Query("limit"), services.DefaultNotificationLimit),
		services.DefaultNotificationLimit, 1, services.MaxNotificationLimit,
	)

	// ETag pre-check (best effort).
	unread, latest, err := h.notifySvc.Unread(ctx, uid)
	if err == nil {
		var ts int64
		if latest != nil {
			ts = latest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"notifications:%d:%d:%d:%d"`, uid, limit, unread, ts)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.notifySvc.List(ctx, uid, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list notifications")
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Unread: unread})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Tags        Notifications
// @Security    BearerAuth
// @Param       id   path  int  true  "Notification ID"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found or not owned"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	err := h.notifySvc.MarkRead(c.Request.Context(), uid, id)
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not update notification")
		return
	}
	noContent(c)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.MarkedResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	n, err := h.notifySvc.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not update notifications")
		return
	}
	ok(c, http.StatusOK, MarkedResponse{Updated: n})
}

// MarkNotificationsReadByLink godoc
// @ID          markNotificationsReadByLink
// @Summary     Mark notifications for a link read
// @Description Used when the client opens the page a notification points at.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body body handlers.ReadByLinkRequest true "Link"
// @Success     200  {object} handlers.MarkedResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-by-link [post]
func (h *Handlers) MarkNotificationsReadByLink(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}
	var req ReadByLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Link) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "link required")
		return
	}
	n, err := h.notifySvc.MarkReadByLink(c.Request.Context(), uid, req.Link)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not update notifications")
		return
	}
	ok(c, http.StatusOK, MarkedResponse{Updated: n})
}
