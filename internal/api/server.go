package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
)

var Provider = wire.NewSet(NewServer)

type Server struct {
	router *gin.Engine
}

func NewServer(
	tasks *task.Usecase,
	history *execution.Usecase,
	logger *zap.Logger,
) *Server {
	s := &Server{}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(ErrorHandlingMiddleware(logger))
	s.router.Use(Cors())

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	taskHandler := NewTaskHandler(tasks)
	historyHandler := NewHistoryHandler(tasks, history)

	v1 := s.router.Group("/api/v1")
	v1.Use(OwnerRequired())
	{
		tasksGroup := v1.Group("/tasks")
		{
			tasksGroup.POST("", taskHandler.CreateTask)
			tasksGroup.GET("", taskHandler.ListTasks)
			tasksGroup.GET("/:id", taskHandler.GetTask)
			tasksGroup.PUT("/:id", taskHandler.UpdateTask)
			tasksGroup.DELETE("/:id", taskHandler.DeleteTask)
			tasksGroup.POST("/:id/pause", taskHandler.PauseTask)
			tasksGroup.POST("/:id/resume", taskHandler.ResumeTask)
			tasksGroup.POST("/:id/trigger", taskHandler.TriggerTask)
			tasksGroup.GET("/:id/executions", historyHandler.ListExecutions)
			tasksGroup.GET("/:id/stats", historyHandler.GetTaskStats)
		}

		v1.GET("/limits", taskHandler.GetLimits)
	}

	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
