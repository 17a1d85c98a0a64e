package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diysmart/productinfo/internal/agent"
	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service *usecase.ExtractionService
	logger  logger.Logger
	now     func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(service *usecase.ExtractionService, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{service: service, logger: log, now: time.Now}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "productinfo",
		"version": "1.0.0",
	})
}

// ExtractRequest is the body of POST /api/v1/products/extract. Image is
// base64 in JSON.
type ExtractRequest struct {
	ProductURL string `json:"product_url" binding:"required"`
	Image      []byte `json:"image"`
	TaskType   string `json:"task_type"`
}

// ExtractProduct runs the product_info agent for the calling identity
func (h *Handler) ExtractProduct(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id := identityFrom(c)
	task, decision, err := h.service.Extract(c.Request.Context(), id, &domain.AgentInput{
		ProductURL: req.ProductURL,
		Image:      req.Image,
		TaskType:   req.TaskType,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	setQuotaHeaders(c, decision)
	c.JSON(taskStatusCode(task), task)
}

// WorkflowRequest is the body of POST /api/v1/workflows
type WorkflowRequest struct {
	Steps []agent.WorkflowStep `json:"steps" binding:"required"`
}

// RunWorkflow runs a chain of agents, charging one unit per step
func (h *Handler) RunWorkflow(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}

	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, decision, err := h.service.RunWorkflow(c.Request.Context(), identityFrom(c), req.Steps)
	if err != nil {
		h.writeError(c, err)
		return
	}

	setQuotaHeaders(c, decision)
	status := http.StatusOK
	if !result.Completed && len(result.Steps) > 0 {
		status = taskStatusCode(result.Steps[len(result.Steps)-1].Task)
	}
	c.JSON(status, result)
}

// GetQuota reports the caller's remaining allowance
func (h *Handler) GetQuota(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}
	decision, err := h.service.Usage(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ListAgents returns every agent's status
func (h *Handler) ListAgents(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": h.service.Agents().Status()})
}

// ListTasks returns recent finished tasks, newest first
func (h *Handler) ListTasks(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"tasks": h.service.Agents().TaskHistory(limit)})
}

// GetTask returns a task by id
func (h *Handler) GetTask(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}
	task, ok := h.service.Agents().Task(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		retryAfter := int(math.Ceil(quotaErr.ResetsAt.Sub(h.now()).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     err.Error(),
			"limit":     quotaErr.Limit,
			"resets_at": quotaErr.ResetsAt,
		})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadInput), errors.Is(err, domain.ErrMalformedURL):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExtractionExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func taskStatusCode(task domain.AgentTask) int {
	if task.Status == domain.TaskCompleted {
		return http.StatusOK
	}
	if task.Result != nil && task.Result.Cause != nil {
		return statusFor(task.Result.Cause)
	}
	return http.StatusInternalServerError
}

func setQuotaHeaders(c *gin.Context, d domain.QuotaDecision) {
	c.Header("X-Quota-Limit", strconv.Itoa(d.Limit))
	c.Header("X-Quota-Remaining", strconv.Itoa(d.Remaining))
}
