package taskrepo

import (
	"gorm.io/datatypes"

	domain "github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
)

func (po *TaskPo) FromDomain(in *domain.Task) *TaskPo {
	return &TaskPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		OwnerID:              in.OwnerID,
		Title:                in.Title,
		Prompt:               in.Prompt,
		ScheduleType:         in.ScheduleType,
		ScheduledTime:        in.ScheduledTime,
		ScheduledDate:        in.ScheduledDate,
		TimeZone:             in.TimeZone,
		Status:               in.Status,
		NextExecutionAt:      in.NextExecutionAt,
		PendingJobHandle:     in.PendingJobHandle,
		LastExecutedAt:       in.LastExecutedAt,
		LinkedConversationID: in.LinkedConversationID,
		EnabledToolSlugs:     datatypes.NewJSONSlice(in.EnabledToolSlugs),
		SearchEnabled:        in.SearchEnabled,
		EmailNotify:          in.EmailNotify,
	}
}

func (po *TaskPo) ToDomain() *domain.Task {
	return &domain.Task{
		ID:                   po.ID,
		OwnerID:              po.OwnerID,
		CreatedAt:            po.CreatedAt,
		UpdatedAt:            po.UpdatedAt,
		Title:                po.Title,
		Prompt:               po.Prompt,
		ScheduleType:         po.ScheduleType,
		ScheduledTime:        po.ScheduledTime,
		ScheduledDate:        po.ScheduledDate,
		TimeZone:             po.TimeZone,
		Status:               po.Status,
		NextExecutionAt:      po.NextExecutionAt,
		PendingJobHandle:     po.PendingJobHandle,
		LastExecutedAt:       po.LastExecutedAt,
		LinkedConversationID: po.LinkedConversationID,
		EnabledToolSlugs:     []string(po.EnabledToolSlugs),
		SearchEnabled:        po.SearchEnabled,
		EmailNotify:          po.EmailNotify,
	}
}

func patchToMap(input *domain.TaskPatch) map[string]any {
	var values = make(map[string]any)

	if input.Title != nil {
		values["title"] = *input.Title
	}

	if input.Prompt != nil {
		values["prompt"] = *input.Prompt
	}

	if input.ScheduleType != nil {
		values["schedule_type"] = *input.ScheduleType
	}

	if input.ScheduledTime != nil {
		values["scheduled_time"] = *input.ScheduledTime
	}

	if input.ScheduledDate != nil {
		values["scheduled_date"] = *input.ScheduledDate
	}

	if input.TimeZone != nil {
		values["time_zone"] = *input.TimeZone
	}

	if input.Status != nil {
		values["status"] = *input.Status
	}

	// The pending pair is written together: either both columns get fresh
	// values or both get NULL.
	if input.ClearPendingJob {
		values["next_execution_at"] = nil
		values["pending_job_handle"] = nil
	} else if input.NextExecutionAt != nil {
		values["next_execution_at"] = *input.NextExecutionAt
		values["pending_job_handle"] = *input.PendingJobHandle
	}

	if input.LastExecutedAt != nil {
		values["last_executed_at"] = *input.LastExecutedAt
	}

	if input.LinkedConversationID != nil {
		values["linked_conversation_id"] = *input.LinkedConversationID
	}

	if input.EnabledToolSlugs != nil {
		values["enabled_tool_slugs"] = datatypes.NewJSONSlice(*input.EnabledToolSlugs)
	}

	if input.SearchEnabled != nil {
		values["search_enabled"] = *input.SearchEnabled
	}

	if input.EmailNotify != nil {
		values["email_notify"] = *input.EmailNotify
	}

	return values
}
