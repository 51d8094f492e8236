package executionrepo

import (
	"gorm.io/datatypes"

	domain "github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
)

func (po *ExecutionPo) FromDomain(in *domain.TaskExecution) *ExecutionPo {
	return &ExecutionPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		TaskID:          in.TaskID,
		Status:          in.Status,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		ConversationID:  in.ConversationID,
		ErrorMessage:    in.ErrorMessage,
		Metadata:        datatypes.JSONMap(in.Metadata),
		IsManualTrigger: in.IsManualTrigger,
	}
}

func (po *ExecutionPo) ToDomain() *domain.TaskExecution {
	return &domain.TaskExecution{
		ID:              po.ID,
		TaskID:          po.TaskID,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
		Status:          po.Status,
		StartTime:       po.StartTime,
		EndTime:         po.EndTime,
		ConversationID:  po.ConversationID,
		ErrorMessage:    po.ErrorMessage,
		Metadata:        map[string]any(po.Metadata),
		IsManualTrigger: po.IsManualTrigger,
	}
}

func patchToMap(input *domain.TaskExecutionPatch) map[string]any {
	var values = make(map[string]any)

	if input.Status != nil {
		values["status"] = *input.Status
	}

	if input.EndTime != nil {
		values["end_time"] = *input.EndTime
	}

	if input.ConversationID != nil {
		values["conversation_id"] = *input.ConversationID
	}

	if input.ErrorMessage != nil {
		values["error_message"] = *input.ErrorMessage
	}

	if input.Metadata != nil {
		values["metadata"] = datatypes.JSONMap(*input.Metadata)
	}

	return values
}
