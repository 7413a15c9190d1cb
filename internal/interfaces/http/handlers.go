package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/service"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflows *service.WorkflowService
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(workflows *service.WorkflowService, logger *zap.Logger) *Handlers {
	return &Handlers{workflows: workflows, logger: logger}
}

// Response is the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// respondError maps engine error kinds to HTTP status codes. Conflict and
// AlreadyProcessed are expected, recoverable outcomes the caller must handle,
// not server failures.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, workflow.ErrInstanceNotFound),
		errors.Is(err, workflow.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrConflict),
		errors.Is(err, workflow.ErrAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidRequest):
		status = http.StatusBadRequest
	default:
		h.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// actor reads the pre-resolved identity from headers. Auth and permission
// checks happen upstream of this module.
func (h *Handlers) actor(c *gin.Context) (service.Actor, bool) {
	id := c.GetHeader("X-User-Id")
	if id == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "missing X-User-Id header"})
		return service.Actor{}, false
	}
	return service.Actor{ID: id, Name: c.GetHeader("X-User-Name")}, true
}

func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid task id"})
		return 0, false
	}
	return id, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CreateDefinition handles POST /api/v1/workflows
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var in service.DefinitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	def, err := h.workflows.CreateDefinition(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, def)
}

// PublishDefinition handles POST /api/v1/workflows/:code/publish
func (h *Handlers) PublishDefinition(c *gin.Context) {
	if err := h.workflows.PublishDefinition(c.Request.Context(), c.Param("code")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, nil)
}

// ListDefinitions handles GET /api/v1/workflows
func (h *Handlers) ListDefinitions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	defs, err := h.workflows.ListDefinitions(page, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, defs)
}

// StartWorkflow handles POST /api/v1/instances
func (h *Handlers) StartWorkflow(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}

	var in service.StartWorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	instance, err := h.workflows.StartWorkflow(c.Request.Context(), actor, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, instance)
}

type decideBody struct {
	Comment string `json:"comment"`
}

// ApproveTask handles POST /api/v1/tasks/:id/approve
func (h *Handlers) ApproveTask(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}
	id, found := taskID(c)
	if !found {
		return
	}

	var body decideBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.workflows.ApproveTask(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, result)
}

// RejectTask handles POST /api/v1/tasks/:id/reject
func (h *Handlers) RejectTask(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}
	id, found := taskID(c)
	if !found {
		return
	}

	var body decideBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.workflows.RejectTask(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, result)
}

type transferBody struct {
	TargetUserID string `json:"target_user_id"`
	TargetName   string `json:"target_name"`
	Reason       string `json:"reason"`
}

// TransferTask handles POST /api/v1/tasks/:id/transfer
func (h *Handlers) TransferTask(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}
	id, found := taskID(c)
	if !found {
		return
	}

	var body transferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	err := h.workflows.TransferTask(c.Request.Context(), actor, id, body.TargetUserID, body.TargetName, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, nil)
}

// ListMyTasks handles GET /api/v1/tasks
func (h *Handlers) ListMyTasks(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	tasks, err := h.workflows.ListMyTasks(actor, c.Query("status"), page, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, tasks)
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	instances, err := h.workflows.ListInstances(page, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, instances)
}

// GetInstance handles GET /api/v1/instances/:no
func (h *Handlers) GetInstance(c *gin.Context) {
	detail, err := h.workflows.GetInstance(c.Param("no"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, detail)
}

// GetHistory handles GET /api/v1/instances/:no/history
func (h *Handlers) GetHistory(c *gin.Context) {
	records, err := h.workflows.GetHistory(c.Param("no"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, records)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

// CancelInstance handles POST /api/v1/instances/:no/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	actor, found := h.actor(c)
	if !found {
		return
	}

	var body cancelBody
	_ = c.ShouldBindJSON(&body)

	if err := h.workflows.CancelInstance(c.Request.Context(), actor, c.Param("no"), body.Reason); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, nil)
}

// GetBusinessStatus handles GET /api/v1/business/:type/:id/status
func (h *Handlers) GetBusinessStatus(c *gin.Context) {
	instance, err := h.workflows.GetBusinessStatus(c.Param("type"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, gin.H{
		"instance_no":  instance.InstanceNo,
		"status":       instance.Status,
		"completed_at": instance.CompletedAt,
	})
}
