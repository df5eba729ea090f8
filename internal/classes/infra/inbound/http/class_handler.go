package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/davicafu/feedbacklab/internal/classes/application"
	"github.com/davicafu/feedbacklab/internal/classes/domain"
	"github.com/davicafu/feedbacklab/pkg/utils"
)

// ClassHandler encapsula los endpoints HTTP relacionados con Class
type ClassHandler struct {
	service *application.ClassService
}

func NewClassHandler(service *application.ClassService) *ClassHandler {
	return &ClassHandler{service: service}
}

// ---------------- Handlers ----------------

// CreateClass endpoint POST /classes
func (h *ClassHandler) CreateClass(c *gin.Context) {
	var req struct {
		OrganizationID string   `json:"organization_id" binding:"required"`
		Name           string   `json:"name" binding:"required"`
		TeacherEmail   string   `json:"teacher_email" binding:"required,email"`
		StudentEmails  []string `json:"student_emails" binding:"dive,email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	class, err := h.service.CreateClass(c.Request.Context(), req.OrganizationID, req.Name, req.TeacherEmail, req.StudentEmails)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidClass):
			utils.SendBadRequest(c, err.Error())
		case errors.Is(err, domain.ErrClassAlreadyExists):
			utils.SendError(c, http.StatusConflict, err.Error())
		default:
			utils.SendInternalServerError(c, err.Error())
		}
		return
	}

	utils.SendSuccess(c, http.StatusCreated, class)
}

// GetClass endpoint GET /classes/:id
func (h *ClassHandler) GetClass(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid class id")
		return
	}

	class, err := h.service.GetClass(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrClassNotFound) {
			utils.SendNotFound(c, "class not found")
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}

	utils.SendSuccess(c, http.StatusOK, class)
}

// ListClasses endpoint GET /classes?organization_id=...&limit=...
func (h *ClassHandler) ListClasses(c *gin.Context) {
	orgID := c.Query("organization_id")
	if orgID == "" {
		utils.SendBadRequest(c, "organization_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	classes, err := h.service.ListClasses(c.Request.Context(), orgID, limit)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}

	utils.SendSuccess(c, http.StatusOK, classes)
}
