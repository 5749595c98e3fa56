package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/services"
)

// LinkCodeResponse carries a freshly issued code. The player types it in game
// with /link <code>.
type LinkCodeResponse struct {
	Code      string    `json:"code" example:"3FA9C2"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateLinkCode godoc
// @ID          generateLinkCode
// @Summary     Issue an account-linking code
// @Description Replaces any previous code of the caller with a fresh 6-character code.
// @Tags        Linking
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.LinkCodeResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already linked"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /linking/generate-code [post]
func (h *Handlers) GenerateLinkCode(c *gin.Context) {
	uid, authed := userID(c)
	if !authed {
		return
	}

	rec, err := h.linkSvc.GenerateCode(c.Request.Context(), uid)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	case errors.Is(err, services.ErrAlreadyLinked):
		fail(c, http.StatusConflict, ErrCodeAlreadyLinked, "account already linked")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not generate code")
		return
	}
	ok(c, http.StatusOK, LinkCodeResponse{Code: rec.Code, ExpiresAt: rec.ExpiresAt})
}
