// Package handlers exposes the REST surface that sits next to the realtime
// gateway: link-code issuance, notification storage, conversation history
// and the friendship actions that feed the notification bridge.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate sentinel errors into ErrorResponse envelopes. All
// routes run behind middleware.BearerAuth.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/http/middleware"
	"github.com/flamewall/realtime/internal/utils"
)

//
// Service contracts (context-aware)
//

// LinkingService issues one-time account-linking codes.
type LinkingService interface {
	GenerateCode(ctx context.Context, userID uint) (*domain.LinkCode, error)
}

// NotificationService reads and acknowledges persisted notifications.
type NotificationService interface {
	List(ctx context.Context, userID uint, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id uint) error
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	MarkReadByLink(ctx context.Context, userID uint, link string) (int64, error)
	// Unread backs the list ETag.
	Unread(ctx context.Context, userID uint) (int64, *time.Time, error)
}

// MessageService serves conversation history.
type MessageService interface {
	Conversation(ctx context.Context, userID, otherID uint, page, pageSize int) ([]domain.Message, int64, error)
}

// FriendshipService records friend requests and acceptances.
type FriendshipService interface {
	Request(ctx context.Context, requesterID, receiverID uint) (*domain.Friendship, error)
	Accept(ctx context.Context, friendshipID, actorID uint) (*domain.Friendship, error)
}

//
// Handler wiring
//

// Handlers groups the REST endpoints.
type Handlers struct {
	linkSvc   LinkingService
	notifySvc NotificationService
	msgSvc    MessageService
	friendSvc FriendshipService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(linkSvc LinkingService, notifySvc NotificationService, msgSvc MessageService, friendSvc FriendshipService) *Handlers {
	return &Handlers{linkSvc: linkSvc, notifySvc: notifySvc, msgSvc: msgSvc, friendSvc: friendSvc}
}

// userID returns the caller's id or writes a 401 and reports false.
func userID(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return id, ok
}

// pathID parses a numeric path parameter or writes a 400.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
	}
	return id, ok
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), defaultPageSize, 1, maxPageSize)
	return
}
