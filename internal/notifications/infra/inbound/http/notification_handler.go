package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/feedbacklab/internal/notifications/domain"
	"github.com/davicafu/feedbacklab/pkg/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type NotificationHandler struct {
	store domain.Store
}

func NewNotificationHandler(store domain.Store) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// ListNotifications endpoint GET /notifications?recipient=&limit=
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	recipient := strings.TrimSpace(c.Query("recipient"))
	if recipient == "" {
		utils.SendBadRequest(c, "recipient is required")
		return
	}

	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.SendBadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}

	ns, err := h.store.ListByRecipient(c.Request.Context(), recipient, limit)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	if ns == nil {
		ns = []*domain.Notification{}
	}
	utils.SendSuccess(c, http.StatusOK, ns)
}
