package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/feedbacklab/internal/feedback/application"
	"github.com/davicafu/feedbacklab/internal/feedback/domain"
	"github.com/davicafu/feedbacklab/pkg/utils"
)

type FeedbackHandler struct {
	service *application.FeedbackService
}

func NewFeedbackHandler(service *application.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// RaiseAlert endpoint POST /alerts
func (h *FeedbackHandler) RaiseAlert(c *gin.Context) {
	var req struct {
		OrganizationID string   `json:"organization_id" binding:"required"`
		Severity       string   `json:"severity" binding:"required"`
		Message        string   `json:"message" binding:"required"`
		Recipients     []string `json:"recipients" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	alert, err := h.service.RaiseAlert(c.Request.Context(), req.OrganizationID, req.Severity, req.Message, req.Recipients)
	if err != nil {
		sendFeedbackError(c, err)
		return
	}
	// 202: el evento está encolado, las notificaciones llegan después.
	utils.SendSuccess(c, http.StatusAccepted, alert)
}

// GenerateReport endpoint POST /reports
func (h *FeedbackHandler) GenerateReport(c *gin.Context) {
	var req struct {
		OrganizationID string   `json:"organization_id" binding:"required"`
		Title          string   `json:"title" binding:"required"`
		URL            string   `json:"url" binding:"required,url"`
		Recipients     []string `json:"recipients" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	report, err := h.service.GenerateReport(c.Request.Context(), req.OrganizationID, req.Title, req.URL, req.Recipients)
	if err != nil {
		sendFeedbackError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusAccepted, report)
}

func sendFeedbackError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidFeedback) {
		utils.SendBadRequest(c, err.Error())
		return
	}
	utils.SendInternalServerError(c, err.Error())
}
