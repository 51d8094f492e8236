package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
)

type CreateTaskReq struct {
	Title            string   `json:"title" binding:"required"`
	Prompt           string   `json:"prompt" binding:"required"`
	ScheduleType     string   `json:"schedule_type" binding:"required"`
	ScheduledTime    string   `json:"scheduled_time" binding:"required"`
	ScheduledDate    string   `json:"scheduled_date"`
	TimeZone         string   `json:"time_zone" binding:"required"`
	EnabledToolSlugs []string `json:"enabled_tool_slugs"`
	SearchEnabled    bool     `json:"search_enabled"`
	EmailNotify      bool     `json:"email_notify"`
}

// UpdateTaskReq uses pointers so absent fields stay untouched.
type UpdateTaskReq struct {
	Title            *string   `json:"title"`
	Prompt           *string   `json:"prompt"`
	ScheduleType     *string   `json:"schedule_type"`
	ScheduledTime    *string   `json:"scheduled_time"`
	ScheduledDate    *string   `json:"scheduled_date"`
	TimeZone         *string   `json:"time_zone"`
	EnabledToolSlugs *[]string `json:"enabled_tool_slugs"`
	SearchEnabled    *bool     `json:"search_enabled"`
	EmailNotify      *bool     `json:"email_notify"`
	Status           *string   `json:"status"`
}

type TaskResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`

	ScheduleType  string `json:"schedule_type"`
	ScheduledTime string `json:"scheduled_time"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	TimeZone      string `json:"time_zone"`

	Status               string     `json:"status"`
	NextExecutionAt      *time.Time `json:"next_execution_at,omitempty"`
	LastExecutedAt       *time.Time `json:"last_executed_at,omitempty"`
	LinkedConversationID *string    `json:"linked_conversation_id,omitempty"`

	EnabledToolSlugs []string `json:"enabled_tool_slugs,omitempty"`
	SearchEnabled    bool     `json:"search_enabled"`
	EmailNotify      bool     `json:"email_notify"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTaskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Prompt:               t.Prompt,
		ScheduleType:         string(t.ScheduleType),
		ScheduledTime:        t.ScheduledTime,
		ScheduledDate:        t.ScheduledDate,
		TimeZone:             t.TimeZone,
		Status:               string(t.Status),
		NextExecutionAt:      t.NextExecutionAt,
		LastExecutedAt:       t.LastExecutedAt,
		LinkedConversationID: t.LinkedConversationID,
		EnabledToolSlugs:     t.EnabledToolSlugs,
		SearchEnabled:        t.SearchEnabled,
		EmailNotify:          t.EmailNotify,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func toTaskResponses(tasks []*task.Task) []TaskResponse {
	return lo.Map(tasks, func(t *task.Task, _ int) TaskResponse {
		return toTaskResponse(t)
	})
}

type ExecutionResponse struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	Status          string         `json:"status"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	DurationMs      *int64         `json:"duration_ms,omitempty"`
	ConversationID  *string        `json:"conversation_id,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	IsManualTrigger bool           `json:"is_manual_trigger"`
}

func toExecutionResponse(e *execution.TaskExecution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:              e.ID,
		TaskID:          e.TaskID,
		Status:          string(e.Status),
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		ConversationID:  e.ConversationID,
		ErrorMessage:    e.ErrorMessage,
		Metadata:        e.Metadata,
		IsManualTrigger: e.IsManualTrigger,
	}
	if e.EndTime != nil {
		ms := e.Duration().Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

func toExecutionResponses(execs []*execution.TaskExecution) []ExecutionResponse {
	return lo.Map(execs, func(e *execution.TaskExecution, _ int) ExecutionResponse {
		return toExecutionResponse(e)
	})
}
