package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
)

// HistoryHandler serves execution history. Every route resolves the task
// through the owner-scoped usecase first, so history is never readable across
// owners.
type HistoryHandler struct {
	tasks   *task.Usecase
	history *execution.Usecase
}

func NewHistoryHandler(tasks *task.Usecase, history *execution.Usecase) *HistoryHandler {
	return &HistoryHandler{tasks: tasks, history: history}
}

func (h *HistoryHandler) ListExecutions(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	limit := cast.ToInt(c.Query("limit"))
	execs, err := h.history.ListForTask(c.Request.Context(), t.ID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toExecutionResponses(execs))
}

func (h *HistoryHandler) GetTaskStats(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	stats, err := h.history.Stats(c.Request.Context(), t.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
