package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/recurrence"
)

type TaskHandler struct {
	tasks *task.Usecase
}

func NewTaskHandler(tasks *task.Usecase) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	created, err := h.tasks.Create(c.Request.Context(), ownerID(c), &task.CreateRequest{
		Title:            req.Title,
		Prompt:           req.Prompt,
		ScheduleType:     recurrence.Type(req.ScheduleType),
		ScheduledTime:    req.ScheduledTime,
		ScheduledDate:    req.ScheduledDate,
		TimeZone:         req.TimeZone,
		EnabledToolSlugs: req.EnabledToolSlugs,
		SearchEnabled:    req.SearchEnabled,
		EmailNotify:      req.EmailNotify,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, toTaskResponse(created))
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	filter := &task.TaskFilter{}
	if status := c.Query("status"); status != "" {
		ts := task.TaskStatus(status)
		if !ts.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_STATUS",
				Message: "unknown status filter " + status,
			})
			return
		}
		filter.Status = mo.Some(ts)
	}

	tasks, err := h.tasks.List(c.Request.Context(), ownerID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toTaskResponses(tasks))
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(t))
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	var req UpdateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	update := &task.UpdateRequest{
		Title:            mo.PointerToOption(req.Title),
		Prompt:           mo.PointerToOption(req.Prompt),
		ScheduledTime:    mo.PointerToOption(req.ScheduledTime),
		ScheduledDate:    mo.PointerToOption(req.ScheduledDate),
		TimeZone:         mo.PointerToOption(req.TimeZone),
		EnabledToolSlugs: mo.PointerToOption(req.EnabledToolSlugs),
		SearchEnabled:    mo.PointerToOption(req.SearchEnabled),
		EmailNotify:      mo.PointerToOption(req.EmailNotify),
	}
	if req.ScheduleType != nil {
		update.ScheduleType = mo.Some(recurrence.Type(*req.ScheduleType))
	}
	if req.Status != nil {
		update.Status = mo.Some(task.TaskStatus(*req.Status))
	}

	updated, err := h.tasks.Update(c.Request.Context(), ownerID(c), c.Param("id"), update)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(updated))
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (h *TaskHandler) PauseTask(c *gin.Context) {
	if err := h.tasks.Pause(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task paused"})
}

func (h *TaskHandler) ResumeTask(c *gin.Context) {
	if err := h.tasks.Resume(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task resumed"})
}

// TriggerTask queues an immediate manual run and returns as soon as the job
// is accepted; the run itself is asynchronous.
func (h *TaskHandler) TriggerTask(c *gin.Context) {
	if err := h.tasks.TriggerNow(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "execution queued"})
}

func (h *TaskHandler) GetLimits(c *gin.Context) {
	summary, err := h.tasks.Limits(c.Request.Context(), ownerID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
