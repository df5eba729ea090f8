package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
	sharedUtils "github.com/davicafu/feedbacklab/internal/shared/infra/utils"
	"github.com/davicafu/feedbacklab/pkg/utils"
)

const (
	defaultFailedLimit = 20
	healthTimeout      = 2 * time.Second
)

// Checker comprueba una dependencia (DB, Redis...). nil = sana.
type Checker func(ctx context.Context) error

type OpsHandler struct {
	queue  queue.Queue
	checks map[string]Checker
}

func NewOpsHandler(q queue.Queue, checks map[string]Checker) *OpsHandler {
	if checks == nil {
		checks = map[string]Checker{}
	}
	return &OpsHandler{queue: q, checks: checks}
}

// Health endpoint GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":       sharedUtils.Ternary(status == http.StatusOK, "ok", "degraded"),
		"dependencies": deps,
	})
}

// failedJobView muestra Data como JSON en vez de base64.
type failedJobView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	AttemptsMade int             `json:"attempts_made"`
	FailedReason string          `json:"failed_reason"`
	FinishedOn   time.Time       `json:"finished_on"`
}

func toView(j *queue.Job) failedJobView {
	data := json.RawMessage(j.Data)
	if !json.Valid(data) {
		data, _ = json.Marshal(string(j.Data))
	}
	return failedJobView{
		ID:           j.ID,
		Name:         j.Name,
		Data:         data,
		AttemptsMade: j.AttemptsMade,
		FailedReason: j.FailedReason,
		FinishedOn:   j.FinishedOn,
	}
}

// FailedJobs endpoint GET /ops/queues/failed?limit=
func (h *OpsHandler) FailedJobs(c *gin.Context) {
	limit := defaultFailedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.SendBadRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := h.queue.Failed(c.Request.Context(), limit)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}

	out := make([]failedJobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toView(j))
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"queue": h.queue.Name(), "jobs": out})
}
